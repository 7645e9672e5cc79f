package memory

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/feedwire/feedwire-go/broker"
	"github.com/feedwire/feedwire-go/broker/brokertest"
)

func TestMemoryBroker_Conformance(t *testing.T) {
	brokertest.RunBrokerTests(t, func(t *testing.T) broker.Broker {
		return New()
	})
}

func TestMemoryBroker_PublishAfterCleanupFails(t *testing.T) {
	b := New()
	ctx := context.Background()
	feed := "gone"

	if _, err := b.Publish(ctx, feed, []byte(`1`)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := b.Cleanup(ctx, feed); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	// Cleanup drops the retained log; the next publish starts a fresh feed.
	id, err := b.Publish(ctx, feed, []byte(`2`))
	if err != nil {
		t.Fatalf("Publish to recreated feed failed: %v", err)
	}
	if id == "" {
		t.Fatal("Expected a fresh event ID")
	}
}

func TestMemoryBroker_CleanupEndsOpenStreams(t *testing.T) {
	b := New()
	ctx := context.Background()
	feed := "ending"

	stream, err := b.Subscribe(ctx, feed, "")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := b.Cleanup(ctx, feed); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	nextCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := stream.Next(nextCtx); !errors.Is(err, io.EOF) {
		t.Fatalf("Expected io.EOF after cleanup, got %v", err)
	}
}

func TestMemoryBroker_ClosedStreamReturnsEOF(t *testing.T) {
	b := New()
	ctx := context.Background()

	stream, err := b.Subscribe(ctx, "closable", "")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := stream.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("Expected io.EOF after Close, got %v", err)
	}
}

func TestMemoryBroker_ResumeFromUnknownIDStartsLive(t *testing.T) {
	b := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	feed := "unknown-resume"

	stream, err := b.Subscribe(ctx, feed, "no-such-id")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer stream.Close()

	id, err := b.Publish(ctx, feed, []byte(`{"live":true}`))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	ev, err := stream.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.ID != id {
		t.Fatalf("Expected live event %s, got %s", id, ev.ID)
	}
}
