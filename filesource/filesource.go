// Package filesource turns a JSONL file into a feed source. Each line of
// the file is one JSON item. Open reads the file once and exhausts; Follow
// keeps the source open and delivers lines as they are appended, using
// fsnotify with a polling fallback.
package filesource

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	feedwire "github.com/feedwire/feedwire-go"
)

// Option configures a Tailer.
type Option func(*config)

type config struct {
	follow       bool
	fromEnd      bool
	pollInterval time.Duration
}

// WithFromEnd starts reading at the current end of the file instead of the
// beginning. Only meaningful together with Follow.
func WithFromEnd() Option {
	return func(c *config) { c.fromEnd = true }
}

// WithPollInterval sets the fallback polling interval used when file system
// notifications are unavailable or silent. Defaults to 500ms.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) { c.pollInterval = d }
}

// Open reads path as a finite JSONL sequence. The source exhausts when the
// last line has been delivered.
func Open(path string, opts ...Option) (*Tailer, error) {
	return newTailer(path, false, opts)
}

// Follow tails path as an unbounded JSONL sequence. When the reader reaches
// the end of the file the source blocks until more lines are appended or the
// pull context is canceled. Truncation resets the read position to the start.
func Follow(path string, opts ...Option) (*Tailer, error) {
	return newTailer(path, true, opts)
}

func newTailer(path string, follow bool, opts []Option) (*Tailer, error) {
	cfg := config{pollInterval: 500 * time.Millisecond}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.follow = follow

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	t := &Tailer{
		path: path,
		file: f,
		r:    bufio.NewReader(f),
		cfg:  cfg,
	}

	if cfg.follow && cfg.fromEnd {
		offset, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to seek %s: %w", path, err)
		}
		t.offset = offset
		t.r.Reset(f)
	}

	if cfg.follow {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			slog.Debug("fsnotify unavailable, polling only", slog.String("err", err.Error()))
		} else if err := w.Add(filepath.Dir(path)); err != nil {
			slog.Debug("fsnotify add failed, polling only", slog.String("err", err.Error()))
			_ = w.Close()
		} else {
			t.watcher = w
		}
	}

	return t, nil
}

// Tailer is a feed source over a JSONL file.
type Tailer struct {
	path    string
	file    *os.File
	r       *bufio.Reader
	offset  int64
	partial []byte
	cfg     config
	watcher *fsnotify.Watcher
	closed  bool
}

// Next returns the next JSON line of the file. In follow mode it blocks at
// end-of-file until more data arrives or ctx is canceled. Lines that are not
// valid JSON are skipped.
func (t *Tailer) Next(ctx context.Context) (json.RawMessage, error) {
	for {
		if t.closed {
			return nil, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, err := t.readLine()
		if err == nil {
			if len(line) == 0 {
				continue
			}
			if !json.Valid(line) {
				slog.Debug("skipping malformed JSONL line", slog.String("path", t.path))
				continue
			}
			return json.RawMessage(line), nil
		}
		if err != io.EOF {
			return nil, fmt.Errorf("failed to read %s: %w", t.path, err)
		}

		if !t.cfg.follow {
			return nil, io.EOF
		}
		if err := t.waitForChange(ctx); err != nil {
			return nil, err
		}
		if err := t.reopenIfTruncated(); err != nil {
			return nil, err
		}
	}
}

// Close releases the file and watcher. Subsequent Next calls return io.EOF.
func (t *Tailer) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if t.watcher != nil {
		_ = t.watcher.Close()
	}
	return t.file.Close()
}

// readLine returns the next complete line, stripped of its newline. A final
// unterminated fragment is buffered in follow mode and returned as io.EOF so
// the caller waits for the rest of the line.
func (t *Tailer) readLine() ([]byte, error) {
	chunk, err := t.r.ReadBytes('\n')
	t.offset += int64(len(chunk))

	if err == nil {
		line := append(t.partial, chunk...)
		t.partial = nil
		return bytes.TrimSpace(line), nil
	}
	if err == io.EOF {
		if len(chunk) > 0 {
			if t.cfg.follow {
				t.partial = append(t.partial, chunk...)
				return nil, io.EOF
			}
			// Finite read: deliver the unterminated last line.
			line := append(t.partial, chunk...)
			t.partial = nil
			return bytes.TrimSpace(line), nil
		}
		return nil, io.EOF
	}
	return nil, err
}

// waitForChange blocks until the file plausibly has new content.
func (t *Tailer) waitForChange(ctx context.Context) error {
	timer := time.NewTimer(t.cfg.pollInterval)
	defer timer.Stop()

	if t.watcher == nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case ev, ok := <-t.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != t.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				return nil
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Debug("fsnotify error", slog.String("err", err.Error()))
		}
	}
}

// reopenIfTruncated resets to the start of the file when it shrank below the
// current read offset, and reopens it when it was rotated away.
func (t *Tailer) reopenIfTruncated() error {
	fi, err := os.Stat(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			// Rotated away; wait for it to reappear.
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", t.path, err)
	}
	if fi.Size() >= t.offset {
		return nil
	}

	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("failed to reopen %s: %w", t.path, err)
	}
	_ = t.file.Close()
	t.file = f
	t.r.Reset(f)
	t.offset = 0
	t.partial = nil
	return nil
}

var _ feedwire.Source[json.RawMessage] = (*Tailer)(nil)
