// Package redis provides a Redis Streams implementation of broker.Broker
// for multi-node feed serving. Event IDs are the Redis stream entry IDs, so
// resume positions are valid on any node sharing the Redis deployment.
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/feedwire/feedwire-go/broker"
)

// Config contains configuration options for the Redis broker. Defaults can
// be loaded from the environment via NewFromEnv.
type Config struct {
	// Addr is the Redis server address, used when Client is nil.
	Addr string `env:"FEEDWIRE_REDIS_ADDR,default=localhost:6379"`
	// Password for the Redis server, used when Client is nil.
	Password string `env:"FEEDWIRE_REDIS_PASSWORD"`
	// DB selects the Redis logical database, used when Client is nil.
	DB int `env:"FEEDWIRE_REDIS_DB,default=0"`
	// KeyPrefix is prepended to all Redis keys used by the broker.
	KeyPrefix string `env:"FEEDWIRE_REDIS_KEY_PREFIX,default=feedwire:broker:"`

	// Client overrides Addr/Password/DB with a caller-managed client.
	Client redis.UniversalClient `env:"-"`

	// BlockInterval bounds each blocking read so subscription contexts are
	// observed promptly. Defaults to one second.
	BlockInterval time.Duration `env:"-"`
}

// Broker implements broker.Broker on Redis Streams.
type Broker struct {
	client    redis.UniversalClient
	keyPrefix string
	block     time.Duration
	ownClient bool
}

// New creates a Redis-backed broker from cfg.
func New(cfg Config) *Broker {
	client := cfg.Client
	own := false
	if client == nil {
		client = redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
		own = true
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "feedwire:broker:"
	}
	block := cfg.BlockInterval
	if block <= 0 {
		block = time.Second
	}
	return &Broker{client: client, keyPrefix: prefix, block: block, ownClient: own}
}

// NewFromEnv builds a broker from FEEDWIRE_REDIS_* environment variables.
func NewFromEnv() *Broker {
	var cfg Config
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

// Close closes the Redis client if the broker created it.
func (b *Broker) Close() error {
	if b.ownClient {
		return b.client.Close()
	}
	return nil
}

// Publish implements broker.Broker using XADD; Redis generates the entry ID.
func (b *Broker) Publish(ctx context.Context, feed string, data []byte) (string, error) {
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.streamKey(feed),
		Values: map[string]any{"data": data},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish to feed %q: %w", feed, err)
	}
	return id, nil
}

// Subscribe implements broker.Broker. The returned stream reads the Redis
// stream in bounded blocking slices so Next honors its context.
func (b *Broker) Subscribe(ctx context.Context, feed string, lastEventID string) (broker.EventStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	startID := lastEventID
	if startID == "" {
		// Snapshot the current tail now instead of passing "$" to XREAD, so
		// events published between Subscribe and the first read are never
		// missed.
		entries, err := b.client.XRevRangeN(ctx, b.streamKey(feed), "+", "-", 1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to inspect feed %q: %w", feed, err)
		}
		if len(entries) > 0 {
			startID = entries[0].ID
		} else {
			startID = "0"
		}
	}
	return &stream{
		client: b.client,
		key:    b.streamKey(feed),
		lastID: startID,
		block:  b.block,
	}, nil
}

// Cleanup implements broker.Broker by deleting the feed's stream. Open
// subscriptions see no further events and end at their next context
// cancellation.
func (b *Broker) Cleanup(ctx context.Context, feed string) error {
	if err := b.client.Del(ctx, b.streamKey(feed)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to cleanup feed %q: %w", feed, err)
	}
	return nil
}

func (b *Broker) streamKey(feed string) string {
	return b.keyPrefix + "stream:" + feed
}

type stream struct {
	client redis.UniversalClient
	key    string
	lastID string
	block  time.Duration
	closed atomic.Bool
}

// Next implements broker.EventStream.
func (s *stream) Next(ctx context.Context) (broker.Event, error) {
	for {
		if s.closed.Load() {
			return broker.Event{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return broker.Event{}, err
		}

		res, err := s.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{s.key, s.lastID},
			Count:   1,
			Block:   s.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Blocking window elapsed with no entries.
				continue
			}
			if ctx.Err() != nil {
				return broker.Event{}, ctx.Err()
			}
			return broker.Event{}, fmt.Errorf("failed to read stream %s: %w", s.key, err)
		}

		for _, st := range res {
			for _, msg := range st.Messages {
				s.lastID = msg.ID
				data, ok := msg.Values["data"].(string)
				if !ok {
					// Skip malformed entries rather than poisoning the feed.
					continue
				}
				return broker.Event{ID: msg.ID, Data: []byte(data)}, nil
			}
		}
	}
}

// Close implements broker.EventStream.
func (s *stream) Close() error {
	s.closed.Store(true)
	return nil
}

var (
	_ broker.Broker      = (*Broker)(nil)
	_ broker.EventStream = (*stream)(nil)
)
