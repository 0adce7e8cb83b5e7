// Package watch reruns builds when step metadata changes on disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Debounce is how long the watcher waits after the last matching change
// before firing.
const Debounce = 100 * time.Millisecond

// Watcher fires a callback when files matching a pattern change in a
// directory. Bursts of changes collapse into one callback.
type Watcher struct {
	dir      string
	pattern  string
	onChange func()
	logger   *slog.Logger
}

// New creates a watcher over dir for base names matching pattern.
// If logger is nil, a discard logger is used.
func New(dir, pattern string, onChange func(), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{dir: dir, pattern: pattern, onChange: onChange, logger: logger}
}

// Run watches until the context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.logger.Info("watching for changes", slog.String("dir", w.dir), slog.String("pattern", w.pattern))

	// Debounce timer
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if matched, err := filepath.Match(w.pattern, name); err != nil || !matched {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(Debounce, func() {
				w.logger.Info("change detected", slog.String("file", name))
				w.onChange()
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", slog.String("error", err.Error()))
		}
	}
}
