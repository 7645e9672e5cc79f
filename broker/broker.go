// Package broker carries live feed events from publishers to any number of
// stream subscribers, with per-feed isolation and ordered delivery. A
// subscription is a pull-based event stream, which makes it a natural
// upstream for a feedwire emission: NewSource adapts one directly.
package broker

import (
	"context"
	"encoding/json"

	feedwire "github.com/feedwire/feedwire-go"
)

// Broker handles event queuing and delivery for horizontally scalable feed
// serving. Events within a feed are delivered in publish order.
type Broker interface {
	// Publish stores data as the next event of the feed and returns the
	// generated event ID. IDs are unique and ordered within a feed.
	Publish(ctx context.Context, feed string, data []byte) (eventID string, err error)

	// Subscribe opens an ordered stream over the feed's events. If
	// lastEventID is empty the stream starts from the next published event;
	// otherwise it resumes from the event after lastEventID.
	Subscribe(ctx context.Context, feed string, lastEventID string) (EventStream, error)

	// Cleanup removes all stored events and active subscriptions of a feed.
	Cleanup(ctx context.Context, feed string) error
}

// EventStream provides ordered event consumption within a feed. A stream is
// owned by a single consumer.
type EventStream interface {
	// Next blocks until the next event is available or ctx is canceled.
	// Returns io.EOF when the stream is closed and drained.
	Next(ctx context.Context) (Event, error)

	// Close releases resources associated with this stream.
	Close() error
}

// Event is one feed element plus the delivery metadata needed for resume.
type Event struct {
	// ID is unique and monotonically increasing within the feed.
	ID string `json:"id"`
	// Data is the JSON-encoded element payload.
	Data []byte `json:"data"`
}

// NewSource adapts an EventStream to a feedwire.Source of raw JSON items,
// discarding event IDs. Closing the source closes the stream.
func NewSource(stream EventStream) feedwire.Source[json.RawMessage] {
	return streamSource{stream: stream}
}

type streamSource struct {
	stream EventStream
}

func (s streamSource) Next(ctx context.Context) (json.RawMessage, error) {
	ev, err := s.stream.Next(ctx)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(ev.Data), nil
}

func (s streamSource) Close() error { return s.stream.Close() }
