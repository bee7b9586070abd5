package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestIsExportFile(t *testing.T) {
	yes := []string{"cal.json", "export.ICS", "/tmp/a/b/2025.ics"}
	for _, p := range yes {
		if !isExportFile(p) {
			t.Errorf("%q should be an export file", p)
		}
	}
	no := []string{"notes.txt", "cal.json.swp", "archive.zip", ""}
	for _, p := range no {
		if isExportFile(p) {
			t.Errorf("%q should not be an export file", p)
		}
	}
}

func TestDebounceCoalescesBurst(t *testing.T) {
	var mu sync.Mutex
	var batches [][]string

	w := New(t.TempDir(), 50*time.Millisecond, func(paths []string) {
		mu.Lock()
		batches = append(batches, paths)
		mu.Unlock()
	})

	w.record("a.json")
	w.record("b.json")
	w.record("a.json") // duplicate within the burst

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 {
		t.Fatalf("expected one coalesced batch, got %d", len(batches))
	}
	got := batches[0]
	sort.Strings(got)
	if len(got) != 2 || got[0] != "a.json" || got[1] != "b.json" {
		t.Errorf("batch = %v", got)
	}
}

func TestRunDeliversFilesystemChanges(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan []string, 1)

	w := New(dir, 50*time.Millisecond, func(paths []string) {
		select {
		case changed <- paths:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to install before writing.
	time.Sleep(100 * time.Millisecond)
	path := filepath.Join(dir, "export.json")
	if err := os.WriteFile(path, []byte(`[]`), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case paths := <-changed:
		if len(paths) != 1 || paths[0] != path {
			t.Errorf("paths = %v", paths)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestIgnoresNonExportFiles(t *testing.T) {
	var mu sync.Mutex
	fired := false

	w := New(t.TempDir(), 30*time.Millisecond, func([]string) {
		mu.Lock()
		fired = true
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(w.dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired {
		t.Error("non-export files must not trigger the callback")
	}
}
