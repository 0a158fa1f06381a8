package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of writes (SQLite touches the DB,
// WAL, and SHM files per transaction) into one reload.
const DefaultDebounce = 500 * time.Millisecond

// IndexMaps is one atomic snapshot of both index kinds.
type IndexMaps struct {
	Text   map[string]string
	Images map[string]string
}

// Watcher keeps an in-memory IndexMaps snapshot in sync with the
// registry database. Readers get the current snapshot without blocking
// reloads; snapshots are replaced whole, never mutated.
type Watcher struct {
	registry *Registry
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.RWMutex
	current IndexMaps

	fsw    *fsnotify.Watcher
	done   chan struct{}
	closed sync.Once
}

// NewWatcher loads the initial snapshot and, when the registry is
// file-backed, starts watching the database path. In-memory registries
// get the snapshot but no watch; call Reload explicitly.
func NewWatcher(reg *Registry, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		registry: reg,
		logger:   logger,
		debounce: debounce,
		done:     make(chan struct{}),
	}
	if err := w.Reload(context.Background()); err != nil {
		return nil, err
	}

	if reg.Path() != "" {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, err
		}
		if err := fsw.Add(reg.Path()); err != nil {
			fsw.Close()
			return nil, err
		}
		w.fsw = fsw
		go w.loop()
	}
	return w, nil
}

// Snapshot returns the current index maps. The returned maps must be
// treated as read-only.
func (w *Watcher) Snapshot() IndexMaps {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Reload reads both index maps from the registry and swaps the
// snapshot.
func (w *Watcher) Reload(ctx context.Context) error {
	text, err := w.registry.IndexMap(ctx, KindText)
	if err != nil {
		return err
	}
	images, err := w.registry.IndexMap(ctx, KindImages)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.current = IndexMaps{Text: text, Images: images}
	w.mu.Unlock()

	w.logger.Debug("registry_snapshot_reload",
		"text_documents", len(text),
		"image_documents", len(images))
	return nil
}

func (w *Watcher) loop() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			if err := w.Reload(context.Background()); err != nil {
				w.logger.Warn("registry_reload_failed", "error", err)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("registry_watch_error", "error", err)
		}
	}
}

// Close stops the watch loop.
func (w *Watcher) Close() error {
	var err error
	w.closed.Do(func() {
		close(w.done)
		if w.fsw != nil {
			err = w.fsw.Close()
		}
	})
	return err
}
