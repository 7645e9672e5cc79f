// Package memory provides an in-memory Broker backed by per-feed retained
// event logs. Late subscribers can resume from an event ID. State is
// process-local, so this backend suits single-node deployments and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/feedwire/feedwire-go/broker"
)

// Broker implements broker.Broker with per-feed retained event logs and
// non-blocking fan-out to subscribers.
type Broker struct {
	mu       sync.RWMutex
	feeds    map[string]*feedLog
	eventSeq atomic.Int64
}

// feedLog is one feed's retained events plus its live subscribers.
type feedLog struct {
	mu          sync.Mutex
	events      []broker.Event
	subscribers map[*subscription]struct{}
	closed      bool
}

// subscription buffers delivered events in an unbounded pending queue so
// publishers never block on a slow consumer; backpressure is the consumer's
// concern, applied by how fast it pulls.
type subscription struct {
	feed    *feedLog
	mu      sync.Mutex
	pending []broker.Event
	notify  chan struct{}
	done    chan struct{}
	closed  atomic.Bool
}

// New creates an empty in-memory broker.
func New() *Broker {
	return &Broker{feeds: make(map[string]*feedLog)}
}

func (b *Broker) feedLog(name string) *feedLog {
	b.mu.Lock()
	defer b.mu.Unlock()
	fl, ok := b.feeds[name]
	if !ok {
		fl = &feedLog{subscribers: make(map[*subscription]struct{})}
		b.feeds[name] = fl
	}
	return fl
}

// Publish implements broker.Broker.
func (b *Broker) Publish(ctx context.Context, feed string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ev := broker.Event{
		ID:   strconv.FormatInt(b.eventSeq.Add(1), 10),
		Data: append([]byte(nil), data...),
	}

	fl := b.feedLog(feed)
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.closed {
		return "", fmt.Errorf("feed %q has been cleaned up", feed)
	}

	fl.events = append(fl.events, ev)
	for sub := range fl.subscribers {
		sub.push(ev)
	}
	return ev.ID, nil
}

// Subscribe implements broker.Broker. When lastEventID names a retained
// event, all retained events after it are queued before live delivery
// begins, preserving order.
func (b *Broker) Subscribe(ctx context.Context, feed string, lastEventID string) (broker.EventStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fl := b.feedLog(feed)
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.closed {
		return nil, fmt.Errorf("feed %q has been cleaned up", feed)
	}

	sub := &subscription{
		feed:   fl,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	if lastEventID != "" {
		for i, ev := range fl.events {
			if ev.ID == lastEventID {
				sub.pending = append(sub.pending, fl.events[i+1:]...)
				break
			}
		}
	}

	fl.subscribers[sub] = struct{}{}
	return sub, nil
}

// Cleanup implements broker.Broker.
func (b *Broker) Cleanup(ctx context.Context, feed string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	fl, ok := b.feeds[feed]
	if !ok {
		b.mu.Unlock()
		return nil
	}
	delete(b.feeds, feed)
	b.mu.Unlock()

	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.closed = true
	for sub := range fl.subscribers {
		sub.shutdown()
	}
	fl.subscribers = make(map[*subscription]struct{})
	fl.events = nil
	return nil
}

func (s *subscription) push(ev broker.Event) {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) pop() (broker.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return broker.Event{}, false
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, true
}

// Next implements broker.EventStream. Pending events queued before the
// stream ended (including resumed backlogs) are drained before io.EOF.
func (s *subscription) Next(ctx context.Context) (broker.Event, error) {
	for {
		if ev, ok := s.pop(); ok {
			return ev, nil
		}
		if s.closed.Load() {
			return broker.Event{}, io.EOF
		}
		select {
		case <-s.notify:
		case <-s.done:
			if ev, ok := s.pop(); ok {
				return ev, nil
			}
			return broker.Event{}, io.EOF
		case <-ctx.Done():
			return broker.Event{}, ctx.Err()
		}
	}
}

// Close implements broker.EventStream.
func (s *subscription) Close() error {
	s.feed.mu.Lock()
	delete(s.feed.subscribers, s)
	s.feed.mu.Unlock()
	s.shutdown()
	return nil
}

func (s *subscription) shutdown() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
	}
}

var (
	_ broker.Broker      = (*Broker)(nil)
	_ broker.EventStream = (*subscription)(nil)
)
