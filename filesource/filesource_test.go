package filesource

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestOpen_FiniteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	writeFile(t, path, "{\"n\":1}\n{\"n\":2}\n{\"n\":3}\n")

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	ctx := context.Background()
	var got []string
	for {
		item, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		got = append(got, string(item))
	}

	want := []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}
	if len(got) != len(want) {
		t.Fatalf("Expected %d items, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Item %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestOpen_SkipsBlankAndMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	writeFile(t, path, "{\"ok\":true}\n\nnot json\n{\"ok\":false}\n")

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	ctx := context.Background()
	var count int
	for {
		_, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		count++
	}
	if count != 2 {
		t.Fatalf("Expected 2 valid items, got %d", count)
	}
}

func TestOpen_UnterminatedLastLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	writeFile(t, path, "{\"n\":1}\n{\"n\":2}")

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	ctx := context.Background()
	first, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if string(first) != `{"n":1}` {
		t.Fatalf("Unexpected first item: %s", first)
	}
	second, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if string(second) != `{"n":2}` {
		t.Fatalf("Unexpected second item: %s", second)
	}
	if _, err := src.Next(ctx); err != io.EOF {
		t.Fatalf("Expected io.EOF, got %v", err)
	}
}

func TestFollow_DeliversAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	writeFile(t, path, "{\"n\":1}\n")

	src, err := Follow(path, WithPollInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Follow failed: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if string(first) != `{"n":1}` {
		t.Fatalf("Unexpected first item: %s", first)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		defer f.Close()
		_, _ = f.WriteString("{\"n\":2}\n")
	}()

	second, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if string(second) != `{"n":2}` {
		t.Fatalf("Unexpected second item: %s", second)
	}
}

func TestFollow_FromEndSkipsBacklog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	writeFile(t, path, "{\"old\":1}\n{\"old\":2}\n")

	src, err := Follow(path, WithFromEnd(), WithPollInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Follow failed: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		defer f.Close()
		_, _ = f.WriteString("{\"new\":1}\n")
	}()

	item, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if string(item) != `{"new":1}` {
		t.Fatalf("Expected only the appended item, got %s", item)
	}
}

func TestFollow_NextHonorsContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	writeFile(t, path, "")

	src, err := Follow(path, WithPollInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("Follow failed: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := src.Next(ctx); err != context.DeadlineExceeded {
		t.Fatalf("Expected context.DeadlineExceeded, got %v", err)
	}
}

func TestFollow_ClosedReturnsEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	writeFile(t, path, "{\"n\":1}\n")

	src, err := Follow(path)
	if err != nil {
		t.Fatalf("Follow failed: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := src.Next(context.Background()); err != io.EOF {
		t.Fatalf("Expected io.EOF after Close, got %v", err)
	}
}
