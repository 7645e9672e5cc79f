package feedwire

// Framing describes the delimiters around and between emitted elements.
//
// Open is written once before the first element, Close once after normal
// exhaustion only. Separator precedes every element after the first.
// Terminator, when non-empty, follows every element; it exists for
// line-oriented framings where each element must be complete on the wire
// before the next one arrives.
type Framing struct {
	Open       string
	Separator  string
	Close      string
	Terminator string
}

// ArrayFraming is the default framing: a single JSON array.
var ArrayFraming = Framing{Open: "[", Separator: ",", Close: "]"}

// NDJSONFraming emits one element per line (application/x-ndjson). Each
// line is terminated as it is written, so a consumer sees every element
// without waiting for its successor.
var NDJSONFraming = Framing{Terminator: "\n"}

// FlushPolicy controls when the sink is flushed during an emission.
// Flushing is a no-op for sinks without a Flush method.
type FlushPolicy struct {
	every int
}

// FlushBuffered relies entirely on the sink's own buffering; the emitter
// flushes only once, after the close delimiter.
func FlushBuffered() FlushPolicy { return FlushPolicy{} }

// FlushImmediate flushes after every element. This is the right policy for
// live feeds where elements must reach the peer as they become available.
func FlushImmediate() FlushPolicy { return FlushPolicy{every: 1} }

// FlushEvery flushes after every n elements. n < 1 behaves like
// FlushBuffered.
func FlushEvery(n int) FlushPolicy {
	if n < 1 {
		n = 0
	}
	return FlushPolicy{every: n}
}

// Option configures an emission.
type Option func(*emitConfig)

type emitConfig struct {
	framing Framing
	flush   FlushPolicy
}

func newEmitConfig(opts []Option) emitConfig {
	cfg := emitConfig{framing: ArrayFraming}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithFraming overrides the default ArrayFraming.
func WithFraming(f Framing) Option {
	return func(c *emitConfig) { c.framing = f }
}

// WithFlushPolicy sets the flush policy. The default is FlushBuffered.
func WithFlushPolicy(p FlushPolicy) Option {
	return func(c *emitConfig) { c.flush = p }
}
