package feedwire

import (
	"context"
	"time"
)

// CancelOption adds one stop condition to a merged cancellation context.
type CancelOption func(*cancelConfig)

type cancelConfig struct {
	deadline time.Time
	signals  []<-chan struct{}
}

// WithDeadline cancels the merged context at t.
func WithDeadline(t time.Time) CancelOption {
	return func(c *cancelConfig) { c.deadline = t }
}

// WithTimeout cancels the merged context after d.
func WithTimeout(d time.Duration) CancelOption {
	return func(c *cancelConfig) { c.deadline = time.Now().Add(d) }
}

// WithSignal cancels the merged context when ch is closed or receives.
func WithSignal(ch <-chan struct{}) CancelOption {
	return func(c *cancelConfig) { c.signals = append(c.signals, ch) }
}

// WithStopContext cancels the merged context when other is done. Typical
// use is linking a server-shutdown context into a request-scoped emission.
func WithStopContext(other context.Context) CancelOption {
	return func(c *cancelConfig) { c.signals = append(c.signals, other.Done()) }
}

// MergeCancel composes the parent context with an optional deadline and any
// number of external stop signals into a single level-triggered context:
// whichever source fires first cancels it, and it stays canceled. The
// returned CancelFunc is the mandatory teardown for the composition; callers
// must invoke it when the emission ends or the linking goroutines and timer
// leak across long-lived connections.
func MergeCancel(parent context.Context, opts ...CancelOption) (context.Context, context.CancelFunc) {
	var cfg cancelConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := parent
	stop := func() {}
	if !cfg.deadline.IsZero() {
		ctx, stop = context.WithDeadline(ctx, cfg.deadline)
	}

	ctx, cancel := context.WithCancel(ctx)
	for _, sig := range cfg.signals {
		go func(sig <-chan struct{}) {
			select {
			case <-sig:
				cancel()
			case <-ctx.Done():
			}
		}(sig)
	}

	return ctx, func() {
		cancel()
		stop()
	}
}
