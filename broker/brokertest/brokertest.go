// Package brokertest provides a conformance test suite that every
// broker.Broker implementation must pass. Backend packages call RunBrokerTests
// from their own tests with a factory for a fresh broker.
package brokertest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/feedwire/feedwire-go/broker"
)

// BrokerFactory creates a new broker instance for one test.
type BrokerFactory func(t *testing.T) broker.Broker

// RunBrokerTests runs the conformance suite against the provided factory.
func RunBrokerTests(t *testing.T, factory BrokerFactory) {
	t.Run("PublishThenSubscribeLive", func(t *testing.T) {
		testPublishThenSubscribeLive(t, factory)
	})
	t.Run("ResumeFromLastEventID", func(t *testing.T) {
		testResumeFromLastEventID(t, factory)
	})
	t.Run("OrderedDelivery", func(t *testing.T) {
		testOrderedDelivery(t, factory)
	})
	t.Run("MultipleSubscribers", func(t *testing.T) {
		testMultipleSubscribers(t, factory)
	})
	t.Run("FeedIsolation", func(t *testing.T) {
		testFeedIsolation(t, factory)
	})
	t.Run("NextHonorsContext", func(t *testing.T) {
		testNextHonorsContext(t, factory)
	})
	t.Run("Cleanup", func(t *testing.T) {
		testCleanup(t, factory)
	})
}

func testPublishThenSubscribeLive(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	feed := "brokertest-live"
	defer cleanup(t, b, feed)

	stream, err := b.Subscribe(ctx, feed, "")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer stream.Close()

	id, err := b.Publish(ctx, feed, []byte(`{"n":1}`))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if id == "" {
		t.Fatal("Expected non-empty event ID")
	}

	ev, err := stream.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.ID != id {
		t.Fatalf("Expected event ID %s, got %s", id, ev.ID)
	}
	if string(ev.Data) != `{"n":1}` {
		t.Fatalf("Unexpected payload: %s", ev.Data)
	}
}

func testResumeFromLastEventID(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	feed := "brokertest-resume"
	defer cleanup(t, b, feed)

	var ids []string
	for i := 1; i <= 3; i++ {
		id, err := b.Publish(ctx, feed, []byte(fmt.Sprintf(`{"n":%d}`, i)))
		if err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
		ids = append(ids, id)
	}

	stream, err := b.Subscribe(ctx, feed, ids[0])
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer stream.Close()

	for i, want := range ids[1:] {
		ev, err := stream.Next(ctx)
		if err != nil {
			t.Fatalf("Next %d failed: %v", i, err)
		}
		if ev.ID != want {
			t.Fatalf("Expected event %s, got %s", want, ev.ID)
		}
	}

	// Live events continue after the resumed backlog.
	id4, err := b.Publish(ctx, feed, []byte(`{"n":4}`))
	if err != nil {
		t.Fatalf("Publish 4 failed: %v", err)
	}
	ev, err := stream.Next(ctx)
	if err != nil {
		t.Fatalf("Next after backlog failed: %v", err)
	}
	if ev.ID != id4 {
		t.Fatalf("Expected event %s, got %s", id4, ev.ID)
	}
}

func testOrderedDelivery(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	feed := "brokertest-order"
	defer cleanup(t, b, feed)

	stream, err := b.Subscribe(ctx, feed, "")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer stream.Close()

	const n = 20
	for i := 0; i < n; i++ {
		if _, err := b.Publish(ctx, feed, []byte(fmt.Sprintf(`{"n":%d}`, i))); err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
	}

	for i := 0; i < n; i++ {
		ev, err := stream.Next(ctx)
		if err != nil {
			t.Fatalf("Next %d failed: %v", i, err)
		}
		want := fmt.Sprintf(`{"n":%d}`, i)
		if string(ev.Data) != want {
			t.Fatalf("Out of order delivery at %d: got %s", i, ev.Data)
		}
	}
}

func testMultipleSubscribers(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	feed := "brokertest-fanout"
	defer cleanup(t, b, feed)

	s1, err := b.Subscribe(ctx, feed, "")
	if err != nil {
		t.Fatalf("Subscribe 1 failed: %v", err)
	}
	defer s1.Close()
	s2, err := b.Subscribe(ctx, feed, "")
	if err != nil {
		t.Fatalf("Subscribe 2 failed: %v", err)
	}
	defer s2.Close()

	id, err := b.Publish(ctx, feed, []byte(`{"fanout":true}`))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for i, s := range []broker.EventStream{s1, s2} {
		ev, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("Subscriber %d Next failed: %v", i+1, err)
		}
		if ev.ID != id {
			t.Fatalf("Subscriber %d: expected %s, got %s", i+1, id, ev.ID)
		}
	}
}

func testFeedIsolation(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	feedA, feedB := "brokertest-iso-a", "brokertest-iso-b"
	defer cleanup(t, b, feedA)
	defer cleanup(t, b, feedB)

	sa, err := b.Subscribe(ctx, feedA, "")
	if err != nil {
		t.Fatalf("Subscribe A failed: %v", err)
	}
	defer sa.Close()

	if _, err := b.Publish(ctx, feedB, []byte(`{"feed":"b"}`)); err != nil {
		t.Fatalf("Publish B failed: %v", err)
	}
	idA, err := b.Publish(ctx, feedA, []byte(`{"feed":"a"}`))
	if err != nil {
		t.Fatalf("Publish A failed: %v", err)
	}

	ev, err := sa.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.ID != idA {
		t.Fatalf("Subscriber A saw foreign event: %s", ev.Data)
	}
}

func testNextHonorsContext(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	feed := "brokertest-ctx"
	defer cleanup(t, b, feed)

	stream, err := b.Subscribe(ctx, feed, "")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer stream.Close()

	nextCtx, nextCancel := context.WithCancel(ctx)
	errc := make(chan error, 1)
	go func() {
		_, err := stream.Next(nextCtx)
		errc <- err
	}()

	nextCancel()

	select {
	case err := <-errc:
		if err == nil {
			t.Fatal("Expected error from canceled Next")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Next did not unblock on context cancellation")
	}
}

func testCleanup(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	feed := "brokertest-cleanup"
	if _, err := b.Publish(ctx, feed, []byte(`{"n":1}`)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := b.Cleanup(ctx, feed); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	// Cleanup is idempotent.
	if err := b.Cleanup(ctx, feed); err != nil {
		t.Fatalf("Repeated cleanup failed: %v", err)
	}
}

func cleanup(t *testing.T, b broker.Broker, feed string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.Cleanup(ctx, feed); err != nil {
		t.Logf("cleanup of %s failed: %v", feed, err)
	}
}
