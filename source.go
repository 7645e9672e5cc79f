package feedwire

import (
	"context"
	"io"
)

// Source is a lazy, pull-based, possibly unbounded producer of values.
// Next returns io.EOF once the sequence is exhausted normally; any other
// error is treated as a source failure. Implementations whose Next can
// suspend (waiting on a queue, a timer, an upstream read) must unblock
// promptly when ctx is canceled rather than waiting for their own
// completion.
//
// A Source is owned by exactly one emission for its duration; no concurrent
// consumer may pull from the same instance.
type Source[T any] interface {
	Next(ctx context.Context) (T, error)

	// Close releases any resources held by the source. The emitter never
	// calls Close; the caller owns the source's lifecycle.
	Close() error
}

// SourceFunc adapts a pull function to the Source interface. Close is a
// no-op.
type SourceFunc[T any] func(ctx context.Context) (T, error)

func (f SourceFunc[T]) Next(ctx context.Context) (T, error) { return f(ctx) }

func (f SourceFunc[T]) Close() error { return nil }

// SliceSource returns a finite Source over the given items.
func SliceSource[T any](items ...T) Source[T] {
	return &sliceSource[T]{items: items}
}

type sliceSource[T any] struct {
	items []T
	idx   int
}

func (s *sliceSource[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if s.idx >= len(s.items) {
		return zero, io.EOF
	}
	v := s.items[s.idx]
	s.idx++
	return v, nil
}

func (s *sliceSource[T]) Close() error {
	s.idx = len(s.items)
	return nil
}

// ChanSource returns a Source that pulls from ch. The sequence ends
// normally when ch is closed. Next blocks until a value is available or ctx
// is canceled.
func ChanSource[T any](ch <-chan T) Source[T] {
	return chanSource[T]{ch: ch}
}

type chanSource[T any] struct {
	ch <-chan T
}

func (s chanSource[T]) Next(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-s.ch:
		if !ok {
			return zero, io.EOF
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (s chanSource[T]) Close() error { return nil }
