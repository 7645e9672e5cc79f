package feedwire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// flusher is the signature exposed by http.ResponseWriter implementations.
type flusher interface{ Flush() }

// errFlusher is the signature exposed by *bufio.Writer and friends.
type errFlusher interface{ Flush() error }

// Emit performs one emission: it pulls items from src one at a time,
// serializes each with marshal, and writes the framed result to sink. A nil
// marshal uses encoding/json. Emit returns when the source is exhausted,
// the sink fails, or ctx is canceled.
//
// Exactly one open delimiter is written before anything else; each element
// after the first is preceded by exactly one separator; the close delimiter
// is written if and only if the source was exhausted normally. On
// cancellation or sink failure the emission stops immediately: no close
// delimiter, no further pulls, and the remaining sequence is abandoned
// rather than drained.
//
// The returned error is nil for OutcomeCompleted and OutcomeCanceled. For
// OutcomeFailed it wraps ErrSinkWrite, ErrSource, or ErrSerialize. Sink
// failures need no corrective action (the usual cause is a vanished peer);
// source and serialization failures deserve the caller's attention.
//
// Emit never closes src or sink; both are owned by the caller and must not
// be used concurrently with the emission.
func Emit[T any](ctx context.Context, sink io.Writer, src Source[T], marshal func(T) ([]byte, error), opts ...Option) (Outcome, error) {
	cfg := newEmitConfig(opts)
	if marshal == nil {
		marshal = func(v T) ([]byte, error) { return json.Marshal(v) }
	}

	if err := writeString(sink, cfg.framing.Open); err != nil {
		return OutcomeFailed, fmt.Errorf("%w: open delimiter: %v", ErrSinkWrite, err)
	}

	first := true
	written := 0
	for {
		if ctx.Err() != nil {
			return OutcomeCanceled, nil
		}

		item, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return OutcomeCanceled, nil
			}
			return OutcomeFailed, fmt.Errorf("%w: %v", ErrSource, err)
		}

		payload, err := marshal(item)
		if err != nil {
			return OutcomeFailed, fmt.Errorf("%w: %v", ErrSerialize, err)
		}

		if ctx.Err() != nil {
			return OutcomeCanceled, nil
		}

		if !first {
			if err := writeString(sink, cfg.framing.Separator); err != nil {
				return OutcomeFailed, fmt.Errorf("%w: separator: %v", ErrSinkWrite, err)
			}
		}
		first = false

		if _, err := sink.Write(payload); err != nil {
			return OutcomeFailed, fmt.Errorf("%w: element: %v", ErrSinkWrite, err)
		}
		if err := writeString(sink, cfg.framing.Terminator); err != nil {
			return OutcomeFailed, fmt.Errorf("%w: element terminator: %v", ErrSinkWrite, err)
		}

		written++
		if cfg.flush.every > 0 && written%cfg.flush.every == 0 {
			if err := flushSink(sink); err != nil {
				return OutcomeFailed, fmt.Errorf("%w: flush: %v", ErrSinkWrite, err)
			}
		}
	}

	if err := writeString(sink, cfg.framing.Close); err != nil {
		return OutcomeFailed, fmt.Errorf("%w: close delimiter: %v", ErrSinkWrite, err)
	}
	if err := flushSink(sink); err != nil {
		return OutcomeFailed, fmt.Errorf("%w: final flush: %v", ErrSinkWrite, err)
	}
	return OutcomeCompleted, nil
}

func writeString(w io.Writer, s string) error {
	if s == "" {
		return nil
	}
	_, err := io.WriteString(w, s)
	return err
}

// flushSink flushes w if it exposes a flush operation. The error-returning
// form is preferred so buffered writers can report short writes.
func flushSink(w io.Writer) error {
	switch f := w.(type) {
	case errFlusher:
		return f.Flush()
	case flusher:
		f.Flush()
	}
	return nil
}
