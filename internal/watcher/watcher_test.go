package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type recorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recorder) trigger(_ context.Context, paths []string) {
	r.mu.Lock()
	r.calls = append(r.calls, paths)
	r.mu.Unlock()
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

func writeFile(t *testing.T, p string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("---\nSyncID: x\n---\n\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWatch_RemovalTriggers(t *testing.T) {
	vault := t.TempDir()
	writeFile(t, filepath.Join(vault, "people", "Jane Doe.md"))
	writeFile(t, filepath.Join(vault, "people", "Bob.md"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	go Watch(ctx, vault, "people", 100*time.Millisecond, quietLogger(), rec.trigger)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(vault, "people", "Jane Doe.md"))
	_ = os.Rename(filepath.Join(vault, "people", "Bob.md"), filepath.Join(vault, "Bob.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return len(rec.snapshot()) > 0
	}, "removal did not trigger")

	calls := rec.snapshot()
	seen := map[string]bool{}
	for _, c := range calls {
		for _, p := range c {
			seen[p] = true
		}
	}
	if !seen["people/Jane Doe.md"] {
		t.Errorf("trigger paths = %v", calls)
	}
}

func TestWatch_IgnoresOutsideAndWrites(t *testing.T) {
	vault := t.TempDir()
	writeFile(t, filepath.Join(vault, "people", "Jane Doe.md"))
	writeFile(t, filepath.Join(vault, "journal", "today.md"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	go Watch(ctx, vault, "people", 50*time.Millisecond, quietLogger(), rec.trigger)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(vault, "journal", "today.md"))
	writeFile(t, filepath.Join(vault, "people", "New.md"))
	time.Sleep(400 * time.Millisecond)

	if calls := rec.snapshot(); len(calls) != 0 {
		t.Errorf("unexpected triggers: %v", calls)
	}
}

func TestWatch_PeopleFolderCreatedLater(t *testing.T) {
	vault := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	go Watch(ctx, vault, "people", 50*time.Millisecond, quietLogger(), rec.trigger)
	time.Sleep(100 * time.Millisecond)

	writeFile(t, filepath.Join(vault, "people", "Jane Doe.md"))
	time.Sleep(200 * time.Millisecond)
	_ = os.Remove(filepath.Join(vault, "people", "Jane Doe.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return len(rec.snapshot()) > 0
	}, "removal in late folder did not trigger")
}

func TestWithin(t *testing.T) {
	base := filepath.Join("vault", "people")
	tests := map[string]bool{
		filepath.Join("vault", "people", "a.md"):      true,
		filepath.Join("vault", "people", "x", "a.md"): true,
		filepath.Join("vault", "peoplex", "a.md"):     false,
		filepath.Join("vault", "a.md"):                false,
	}
	for p, want := range tests {
		if got := within(base, p); got != want {
			t.Errorf("within(%q, %q) = %v, want %v", base, p, got, want)
		}
	}
}
