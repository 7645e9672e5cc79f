package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/feedwire/feedwire-go/broker"
	"github.com/feedwire/feedwire-go/broker/brokertest"
)

// redisAddr returns the test Redis address or skips the test.
func redisAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("FEEDWIRE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FEEDWIRE_TEST_REDIS_ADDR not set; skipping Redis broker tests")
	}
	return addr
}

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: redisAddr(t)})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not reachable at %s: %v", client.Options().Addr, err)
	}

	b := New(Config{
		Client: client,
		// Keys are namespaced per test run so parallel CI jobs do not collide.
		KeyPrefix:     "feedwire:test:" + t.Name() + ":",
		BlockInterval: 100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })
	return b
}

func TestRedisBroker_Conformance(t *testing.T) {
	brokertest.RunBrokerTests(t, func(t *testing.T) broker.Broker {
		return newTestBroker(t)
	})
}

func TestRedisBroker_ResumeAcrossInstances(t *testing.T) {
	addr := redisAddr(t)
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not reachable: %v", err)
	}

	prefix := "feedwire:test:crossnode:"
	b1 := New(Config{Client: client, KeyPrefix: prefix, BlockInterval: 100 * time.Millisecond})
	b2 := New(Config{Client: client, KeyPrefix: prefix, BlockInterval: 100 * time.Millisecond})

	feed := "cross"
	defer func() { _ = b1.Cleanup(context.Background(), feed) }()

	id1, err := b1.Publish(ctx, feed, []byte(`{"n":1}`))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	id2, err := b1.Publish(ctx, feed, []byte(`{"n":2}`))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// Resume on a different broker instance, as a second node would.
	stream, err := b2.Subscribe(ctx, feed, id1)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer stream.Close()

	ev, err := stream.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.ID != id2 {
		t.Fatalf("Expected %s, got %s", id2, ev.ID)
	}
}
