// Package feedwire incrementally serializes a pull-based sequence of items
// as a single JSON array written to an io.Writer, without ever buffering the
// full sequence in memory. It is the core of a streaming response pipeline:
// sequences may be unbounded, pulls may suspend on upstream producers, and
// the emission stops promptly when the peer disconnects, a deadline elapses,
// or an external signal fires.
//
// The central entry point is Emit, which owns one emission: it writes the
// array-open delimiter, pulls items one at a time from a Source, writes a
// separator before every element after the first, and writes the array-close
// delimiter only when the source is exhausted normally. On cancellation or a
// sink write failure the byte stream simply stops; a half-written,
// unterminated array is the expected wire-level signal that the peer is gone.
//
//	src := feedwire.SliceSource("a", "b", "c")
//	outcome, err := feedwire.Emit(ctx, w, src, nil)
//
// # Cancellation
//
// Emission cancellation is context-based and level-triggered. MergeCancel
// composes the peer-bound context with an optional deadline and any number
// of external stop signals into one context; the returned CancelFunc is the
// mandatory teardown for the composition. The emitter observes the context
// at every pull and every write, and Source implementations must honor it at
// their own suspension points.
//
// # Failure semantics
//
// Sink write failures and cancellation terminate the emission silently: no
// close delimiter, no error payload, and the remaining sequence is abandoned
// rather than drained. Source and serialization failures are surfaced as
// distinguishable errors (ErrSource, ErrSerialize) since they indicate a
// producer-side defect rather than expected peer behavior.
//
// Subpackages provide the infrastructure around one emission: package broker
// carries live multi-subscriber feeds, package filesource tails JSON-Lines
// files, and package feedhttp mounts feeds as streaming HTTP responses.
package feedwire
