package feedwire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// failAfterWriter fails every write once n bytes-level writes have happened.
type failAfterWriter struct {
	buf    bytes.Buffer
	writes int
	failAt int // fail on the Nth write (1-based); 0 = never
}

func (w *failAfterWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.failAt > 0 && w.writes >= w.failAt {
		return 0, errors.New("broken pipe")
	}
	return w.buf.Write(p)
}

// countingSource records how many pulls happen and can fail or block.
type countingSource struct {
	items []string
	idx   int
	pulls int
	errAt int // return an error on the Nth pull (1-based); 0 = never
}

func (s *countingSource) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.pulls++
	if s.errAt > 0 && s.pulls >= s.errAt {
		return "", errors.New("upstream exploded")
	}
	if s.idx >= len(s.items) {
		return "", io.EOF
	}
	v := s.items[s.idx]
	s.idx++
	return v, nil
}

func (s *countingSource) Close() error { return nil }

func TestEmit_FiniteSequence(t *testing.T) {
	var buf bytes.Buffer
	src := SliceSource("a", "b", "c")

	outcome, err := Emit(context.Background(), &buf, src, nil)
	if err != nil {
		t.Fatalf("Emit returned error: %v", err)
	}
	if outcome != OutcomeCompleted {
		t.Fatalf("Expected OutcomeCompleted, got %v", outcome)
	}
	if got := buf.String(); got != `["a","b","c"]` {
		t.Fatalf("Unexpected output: %s", got)
	}
}

func TestEmit_EmptySequence(t *testing.T) {
	var buf bytes.Buffer
	src := SliceSource[string]()

	outcome, err := Emit(context.Background(), &buf, src, nil)
	if err != nil {
		t.Fatalf("Emit returned error: %v", err)
	}
	if outcome != OutcomeCompleted {
		t.Fatalf("Expected OutcomeCompleted, got %v", outcome)
	}
	if got := buf.String(); got != "[]" {
		t.Fatalf("Expected [] for empty sequence, got %s", got)
	}
}

func TestEmit_DelimiterCounts(t *testing.T) {
	for n := 0; n <= 5; n++ {
		items := make([]int, n)
		for i := range items {
			items[i] = i
		}

		var buf bytes.Buffer
		outcome, err := Emit(context.Background(), &buf, SliceSource(items...), nil)
		if err != nil || outcome != OutcomeCompleted {
			t.Fatalf("n=%d: outcome=%v err=%v", n, outcome, err)
		}

		out := buf.String()
		if !strings.HasPrefix(out, "[") || !strings.HasSuffix(out, "]") {
			t.Fatalf("n=%d: missing delimiters: %s", n, out)
		}
		seps := strings.Count(out, ",")
		want := 0
		if n > 1 {
			want = n - 1
		}
		if seps != want {
			t.Fatalf("n=%d: expected %d separators, got %d in %s", n, want, seps, out)
		}
	}
}

func TestEmit_CancelBeforeFirstPull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	src := &countingSource{items: []string{"a"}}

	outcome, err := Emit(ctx, &buf, src, nil)
	if err != nil {
		t.Fatalf("Cancellation must not surface an error, got: %v", err)
	}
	if outcome != OutcomeCanceled {
		t.Fatalf("Expected OutcomeCanceled, got %v", outcome)
	}
	// The open delimiter is committed before the first pull; nothing else is.
	if got := buf.String(); got != "[" {
		t.Fatalf("Expected bare open delimiter, got %q", got)
	}
	if src.pulls != 0 {
		t.Fatalf("Expected no pulls after cancellation, got %d", src.pulls)
	}
}

// lockedBuffer makes a bytes.Buffer safe to inspect while an emission is
// writing to it from another goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestEmit_CancelMidSequence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan string, 1)
	ch <- "a"
	src := SourceFunc[string](func(ctx context.Context) (string, error) {
		select {
		case v := <-ch:
			return v, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})

	done := make(chan struct{})
	buf := &lockedBuffer{}
	var outcome Outcome
	var err error
	go func() {
		defer close(done)
		outcome, err = Emit(ctx, buf, src, nil, WithFlushPolicy(FlushImmediate()))
	}()

	// Let the first element land, then cancel while the second pull blocks.
	deadline := time.Now().Add(2 * time.Second)
	for buf.String() != `["a"` && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if err != nil {
		t.Fatalf("Cancellation must not surface an error, got: %v", err)
	}
	if outcome != OutcomeCanceled {
		t.Fatalf("Expected OutcomeCanceled, got %v", outcome)
	}
	if got := buf.String(); got != `["a"` {
		t.Fatalf("Expected unterminated array with one element, got %q", got)
	}
}

func TestEmit_SinkFailureAbandonsTail(t *testing.T) {
	// Writes: open(1), "a"(2), sep(3) -> fail on the separator write.
	w := &failAfterWriter{failAt: 3}
	src := &countingSource{items: []string{"a", "b", "c", "d"}}

	outcome, err := Emit(context.Background(), w, src, nil)
	if outcome != OutcomeFailed {
		t.Fatalf("Expected OutcomeFailed, got %v", outcome)
	}
	if !errors.Is(err, ErrSinkWrite) {
		t.Fatalf("Expected ErrSinkWrite, got %v", err)
	}
	// The failing write happened while emitting the second element; the
	// remaining sequence must be abandoned, not drained.
	if src.pulls != 2 {
		t.Fatalf("Expected exactly 2 pulls, got %d", src.pulls)
	}
	if got := w.buf.String(); got != `["a"` {
		t.Fatalf("Expected %q before failure, got %q", `["a"`, got)
	}
}

func TestEmit_SourceFailure(t *testing.T) {
	var buf bytes.Buffer
	src := &countingSource{items: []string{"a", "b"}, errAt: 2}

	outcome, err := Emit(context.Background(), &buf, src, nil)
	if outcome != OutcomeFailed {
		t.Fatalf("Expected OutcomeFailed, got %v", outcome)
	}
	if !errors.Is(err, ErrSource) {
		t.Fatalf("Expected ErrSource, got %v", err)
	}
	// No close delimiter on any non-normal exit.
	if got := buf.String(); got != `["a"` {
		t.Fatalf("Expected unterminated array, got %q", got)
	}
}

func TestEmit_SerializationFailure(t *testing.T) {
	var buf bytes.Buffer
	src := SliceSource("ok", "boom")
	marshal := func(v string) ([]byte, error) {
		if v == "boom" {
			return nil, fmt.Errorf("unencodable value")
		}
		return []byte(`"` + v + `"`), nil
	}

	outcome, err := Emit(context.Background(), &buf, src, marshal)
	if outcome != OutcomeFailed {
		t.Fatalf("Expected OutcomeFailed, got %v", outcome)
	}
	if !errors.Is(err, ErrSerialize) {
		t.Fatalf("Expected ErrSerialize, got %v", err)
	}
	if got := buf.String(); strings.HasSuffix(got, "]") {
		t.Fatalf("Close delimiter must not follow a failed emission: %q", got)
	}
}

func TestEmit_Deterministic(t *testing.T) {
	run := func() string {
		var buf bytes.Buffer
		outcome, err := Emit(context.Background(), &buf, SliceSource(1, 2, 3, 4, 5), nil)
		if err != nil || outcome != OutcomeCompleted {
			t.Fatalf("outcome=%v err=%v", outcome, err)
		}
		return buf.String()
	}

	if a, b := run(), run(); a != b {
		t.Fatalf("Two identical emissions diverged: %q vs %q", a, b)
	}
}

func TestEmit_StructItems(t *testing.T) {
	type event struct {
		Name string `json:"name"`
		Seq  int    `json:"seq"`
	}

	var buf bytes.Buffer
	src := SliceSource(event{Name: "a", Seq: 1}, event{Name: "b", Seq: 2})

	outcome, err := Emit(context.Background(), &buf, src, nil)
	if err != nil || outcome != OutcomeCompleted {
		t.Fatalf("outcome=%v err=%v", outcome, err)
	}
	want := `[{"name":"a","seq":1},{"name":"b","seq":2}]`
	if got := buf.String(); got != want {
		t.Fatalf("Expected %s, got %s", want, got)
	}
}

func TestEmit_NDJSONFraming(t *testing.T) {
	var buf bytes.Buffer
	src := SliceSource("a", "b")

	outcome, err := Emit(context.Background(), &buf, src, nil, WithFraming(NDJSONFraming))
	if err != nil || outcome != OutcomeCompleted {
		t.Fatalf("outcome=%v err=%v", outcome, err)
	}
	if got := buf.String(); got != "\"a\"\n\"b\"\n" {
		t.Fatalf("Unexpected NDJSON output: %q", got)
	}
}

type recordingFlusher struct {
	bytes.Buffer
	flushes int
}

func (f *recordingFlusher) Flush() { f.flushes++ }

func TestEmit_FlushPolicies(t *testing.T) {
	emit := func(p FlushPolicy, n int) int {
		items := make([]int, n)
		f := &recordingFlusher{}
		outcome, err := Emit(context.Background(), f, SliceSource(items...), nil, WithFlushPolicy(p))
		if err != nil || outcome != OutcomeCompleted {
			t.Fatalf("outcome=%v err=%v", outcome, err)
		}
		return f.flushes
	}

	// Final flush after the close delimiter always happens.
	if got := emit(FlushBuffered(), 10); got != 1 {
		t.Fatalf("FlushBuffered: expected 1 flush, got %d", got)
	}
	if got := emit(FlushImmediate(), 10); got != 11 {
		t.Fatalf("FlushImmediate: expected 11 flushes, got %d", got)
	}
	if got := emit(FlushEvery(4), 10); got != 3 {
		t.Fatalf("FlushEvery(4): expected 3 flushes, got %d", got)
	}
}

func TestEmit_RawMessagePassthrough(t *testing.T) {
	var buf bytes.Buffer
	items := []string{`{"k":1}`, `{"k":2}`}
	src := SliceSource(items...)
	marshal := func(v string) ([]byte, error) { return []byte(v), nil }

	outcome, err := Emit(context.Background(), &buf, src, marshal, WithFlushPolicy(FlushImmediate()))
	if err != nil || outcome != OutcomeCompleted {
		t.Fatalf("outcome=%v err=%v", outcome, err)
	}
	if got := buf.String(); got != `[{"k":1},{"k":2}]` {
		t.Fatalf("Unexpected output: %s", got)
	}
}
