package feedwire

import "errors"

// Sentinel errors distinguishing the terminal failure classes of an
// emission. Match with errors.Is; the wrapped message carries the cause.
var (
	// ErrSinkWrite indicates a write or flush to the destination failed,
	// most commonly because the peer disconnected. Hosts should treat this
	// as an expected terminal condition, not an alert-worthy error.
	ErrSinkWrite = errors.New("feedwire: sink write failed")

	// ErrSource indicates the upstream item sequence failed. Unlike sink
	// failures this points at a producer-side defect or transient upstream
	// fault and is worth logging.
	ErrSource = errors.New("feedwire: source failed")

	// ErrSerialize indicates an individual item could not be encoded.
	ErrSerialize = errors.New("feedwire: item serialization failed")
)

// Outcome reports how an emission terminated.
type Outcome int

const (
	// OutcomeCompleted: the source was exhausted normally and the
	// array-close delimiter was written.
	OutcomeCompleted Outcome = iota

	// OutcomeCanceled: cancellation fired mid-emission. The byte stream was
	// left unterminated; this is a normal outcome, not an error.
	OutcomeCanceled

	// OutcomeFailed: a sink, source, or serialization failure ended the
	// emission. The accompanying error wraps one of the sentinel errors.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCanceled:
		return "canceled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}
