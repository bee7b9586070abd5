// Package watch monitors the import directory and triggers an import
// when calendar export files change. Bursts of filesystem events are
// debounced into a single import.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/calens/calens/internal/logging"
)

const defaultDebounce = 2 * time.Second

// Watcher watches a directory for calendar export changes.
type Watcher struct {
	dir      string
	debounce time.Duration

	// OnChange receives the paths that changed since the last trigger.
	OnChange func(paths []string)

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

// New creates a Watcher over dir. debounce <= 0 uses the default.
func New(dir string, debounce time.Duration, onChange func(paths []string)) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		OnChange: onChange,
		pending:  make(map[string]struct{}),
	}
}

// Run blocks watching the directory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	logging.Info("watching for calendar exports", "dir", w.dir, "debounce", w.debounce.String())

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isExportFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.record(event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error("watch error", err, "dir", w.dir)
		}
	}
}

// record queues a changed path and (re)arms the debounce timer.
func (w *Watcher) record(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if len(paths) == 0 || w.OnChange == nil {
		return
	}
	w.OnChange(paths)
}

// isExportFile reports whether the path looks like a calendar export.
func isExportFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".ics":
		return true
	}
	return false
}
