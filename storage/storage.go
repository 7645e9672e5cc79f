// Package storage is a small key-value store with TTL support used to
// persist feed descriptors and related metadata so that any node of a
// multi-node deployment can list and serve dynamically created feeds.
package storage

import (
	"context"
	"time"
)

// Storage defines the key-value contract shared by all backends.
type Storage interface {
	// Get retrieves the item stored under key. Returns a nil Item when the
	// key does not exist or has expired; errors indicate backend failures.
	Get(ctx context.Context, key string, opts ...Option) (*Item, error)

	// Set stores data under key.
	Set(ctx context.Context, key string, data []byte, opts ...Option) error

	// Delete removes data. With WithKey it removes one key; otherwise it
	// removes the entire namespace.
	Delete(ctx context.Context, opts ...Option) error

	// List returns all keys in the namespace, in no particular order.
	List(ctx context.Context, opts ...Option) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// Item is a stored value with its metadata.
type Item struct {
	Data      []byte
	CreatedAt time.Time
	ExpiresAt *time.Time // nil = no expiration
}

// IsExpired reports whether the item has passed its expiration.
func (it *Item) IsExpired() bool {
	return it.ExpiresAt != nil && time.Now().After(*it.ExpiresAt)
}

// Option configures a storage operation.
type Option func(*Options)

// Options carries the resolved configuration of one operation.
type Options struct {
	// Feed scopes the operation to one feed's namespace. Empty = global.
	Feed string
	// Key selects a specific key for Delete.
	Key *string
	// TTL sets a time-to-live for Set.
	TTL *time.Duration
}

// WithFeed scopes the operation to the named feed's namespace.
func WithFeed(feed string) Option {
	return func(o *Options) { o.Feed = feed }
}

// WithKey selects a specific key for Delete. Without it Delete removes the
// whole namespace.
func WithKey(key string) Option {
	return func(o *Options) { o.Key = &key }
}

// WithTTL sets a time-to-live for the stored data.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) { o.TTL = &ttl }
}

// Resolve applies opts and returns the resulting Options.
func Resolve(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
