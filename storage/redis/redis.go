// Package redis provides a Redis-backed Storage with TTL support. Values
// are wrapped in a JSON envelope carrying creation and expiry metadata.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/feedwire/feedwire-go/storage"
)

// Config contains configuration options for the Redis storage. Defaults can
// be loaded from the environment via NewFromEnv.
type Config struct {
	// Addr is the Redis server address, used when Client is nil.
	Addr string `env:"FEEDWIRE_REDIS_ADDR,default=localhost:6379"`
	// Password for the Redis server, used when Client is nil.
	Password string `env:"FEEDWIRE_REDIS_PASSWORD"`
	// DB selects the Redis logical database, used when Client is nil.
	DB int `env:"FEEDWIRE_REDIS_DB,default=0"`
	// KeyPrefix is prepended to all Redis keys used by the storage.
	KeyPrefix string `env:"FEEDWIRE_REDIS_STORAGE_PREFIX,default=feedwire:storage:"`

	// Client overrides Addr/Password/DB with a caller-managed client.
	Client redis.UniversalClient `env:"-"`
}

// Storage implements storage.Storage on Redis.
type Storage struct {
	client    redis.UniversalClient
	keyPrefix string
	ownClient bool
}

// storedItem is the JSON envelope persisted per key.
type storedItem struct {
	Data      []byte     `json:"data"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// New creates a Redis-backed storage from cfg.
func New(cfg Config) *Storage {
	client := cfg.Client
	own := false
	if client == nil {
		client = redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
		own = true
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "feedwire:storage:"
	}
	return &Storage{client: client, keyPrefix: prefix, ownClient: own}
}

// NewFromEnv builds a storage from FEEDWIRE_REDIS_* environment variables.
func NewFromEnv() *Storage {
	var cfg Config
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

// Get implements storage.Storage.
func (s *Storage) Get(ctx context.Context, key string, opts ...storage.Option) (*storage.Item, error) {
	o := storage.Resolve(opts)
	rk := s.buildKey(o.Feed, key)

	val, err := s.client.Get(ctx, rk).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get key %s: %w", rk, err)
	}

	var stored storedItem
	if err := json.Unmarshal([]byte(val), &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored data: %w", err)
	}

	item := &storage.Item{Data: stored.Data, CreatedAt: stored.CreatedAt, ExpiresAt: stored.ExpiresAt}
	if item.IsExpired() {
		s.client.Del(ctx, rk)
		return nil, nil
	}
	return item, nil
}

// Set implements storage.Storage. TTLs are enforced both by the envelope
// metadata and by Redis key expiry.
func (s *Storage) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	o := storage.Resolve(opts)
	rk := s.buildKey(o.Feed, key)

	now := time.Now()
	stored := storedItem{Data: data, CreatedAt: now}

	var redisTTL time.Duration
	if o.TTL != nil {
		expiresAt := now.Add(*o.TTL)
		stored.ExpiresAt = &expiresAt
		redisTTL = *o.TTL
	}

	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal storage item: %w", err)
	}
	if err := s.client.Set(ctx, rk, payload, redisTTL).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", rk, err)
	}
	return nil
}

// Delete implements storage.Storage.
func (s *Storage) Delete(ctx context.Context, opts ...storage.Option) error {
	o := storage.Resolve(opts)

	if o.Key != nil {
		rk := s.buildKey(o.Feed, *o.Key)
		if err := s.client.Del(ctx, rk).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", rk, err)
		}
		return nil
	}

	keys, err := s.scanKeys(ctx, s.namespacePrefix(o.Feed)+"*")
	if err != nil {
		return fmt.Errorf("failed to scan namespace: %w", err)
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete namespace keys: %w", err)
		}
	}
	return nil
}

// List implements storage.Storage.
func (s *Storage) List(ctx context.Context, opts ...storage.Option) ([]string, error) {
	o := storage.Resolve(opts)
	prefix := s.namespacePrefix(o.Feed)

	keys, err := s.scanKeys(ctx, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan namespace: %w", err)
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, prefix))
	}
	return names, nil
}

// Close implements storage.Storage.
func (s *Storage) Close() error {
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}

func (s *Storage) buildKey(feed, key string) string {
	return s.namespacePrefix(feed) + key
}

func (s *Storage) namespacePrefix(feed string) string {
	if feed == "" {
		return s.keyPrefix + "global:"
	}
	return s.keyPrefix + "feed:" + feed + ":"
}

func (s *Storage) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

var _ storage.Storage = (*Storage)(nil)
