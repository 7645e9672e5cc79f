// Package memory provides a map-backed Storage with lazy expiry. State is
// process-local; use the redis backend for multi-node deployments.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/feedwire/feedwire-go/storage"
)

// Storage implements storage.Storage with a mutex-guarded map.
type Storage struct {
	mu    sync.RWMutex
	items map[string]*storage.Item
}

// New creates an empty in-memory storage.
func New() *Storage {
	return &Storage{items: make(map[string]*storage.Item)}
}

// Get implements storage.Storage.
func (s *Storage) Get(ctx context.Context, key string, opts ...storage.Option) (*storage.Item, error) {
	o := storage.Resolve(opts)
	sk := buildKey(o.Feed, key)

	s.mu.RLock()
	item, ok := s.items[sk]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if item.IsExpired() {
		s.mu.Lock()
		delete(s.items, sk)
		s.mu.Unlock()
		return nil, nil
	}
	return item, nil
}

// Set implements storage.Storage.
func (s *Storage) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	o := storage.Resolve(opts)

	item := &storage.Item{
		Data:      append([]byte(nil), data...),
		CreatedAt: time.Now(),
	}
	if o.TTL != nil {
		expiresAt := item.CreatedAt.Add(*o.TTL)
		item.ExpiresAt = &expiresAt
	}

	s.mu.Lock()
	s.items[buildKey(o.Feed, key)] = item
	s.mu.Unlock()
	return nil
}

// Delete implements storage.Storage.
func (s *Storage) Delete(ctx context.Context, opts ...storage.Option) error {
	o := storage.Resolve(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	if o.Key != nil {
		delete(s.items, buildKey(o.Feed, *o.Key))
		return nil
	}

	prefix := namespacePrefix(o.Feed)
	for k := range s.items {
		if strings.HasPrefix(k, prefix) {
			delete(s.items, k)
		}
	}
	return nil
}

// List implements storage.Storage.
func (s *Storage) List(ctx context.Context, opts ...storage.Option) ([]string, error) {
	o := storage.Resolve(opts)
	prefix := namespacePrefix(o.Feed)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k, item := range s.items {
		if !strings.HasPrefix(k, prefix) || item.IsExpired() {
			continue
		}
		keys = append(keys, strings.TrimPrefix(k, prefix))
	}
	return keys, nil
}

// Close implements storage.Storage.
func (s *Storage) Close() error {
	s.mu.Lock()
	s.items = make(map[string]*storage.Item)
	s.mu.Unlock()
	return nil
}

func buildKey(feed, key string) string {
	return namespacePrefix(feed) + key
}

func namespacePrefix(feed string) string {
	if feed == "" {
		return "global:"
	}
	return "feed:" + feed + ":"
}

var _ storage.Storage = (*Storage)(nil)
