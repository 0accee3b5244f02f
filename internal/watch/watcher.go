// Package watch reloads a file when it changes on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/reelquery/reelquery/internal/pkg/logger"
)

// Watcher calls OnChange after writes to one file settle.
//
// The parent directory is watched rather than the file itself, so editors
// that save by renaming a temp file over the original are still seen.
type Watcher struct {
	path     string
	onChange func(context.Context) error

	// Batch processing
	pendingMu  sync.Mutex
	pending    bool
	batchTimer *time.Timer
	batchDelay time.Duration

	// Stats
	statsMu    sync.Mutex
	reloads    int
	failures   int
	lastReload time.Time

	// Lifecycle
	ready    chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	log      *logger.Logger
}

// Config configures a watcher.
type Config struct {
	Path       string
	OnChange   func(context.Context) error
	BatchDelay time.Duration // Default: 500ms
}

// New creates a watcher for cfg.Path.
func New(cfg Config, log *logger.Logger) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, errors.New("watch: no path")
	}
	if cfg.OnChange == nil {
		return nil, errors.New("watch: no change handler")
	}
	if cfg.BatchDelay == 0 {
		cfg.BatchDelay = 500 * time.Millisecond
	}
	if log == nil {
		log = logger.Discard()
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, err
	}

	return &Watcher{
		path:       absPath,
		onChange:   cfg.OnChange,
		batchDelay: cfg.BatchDelay,
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
		log:        log.WithComponent("watcher").With("path", absPath),
	}, nil
}

// Start watches until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsWatcher.Close()

	if err := fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}
	close(w.ready)
	w.log.Info("Watching for changes")

	defer w.cancelBatch()

	// Event loop
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("Watcher error", "error", err)
		}
	}
}

// Ready is closed once the watch is registered.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		// Removal alone leaves the last good contents in place.
		return
	}

	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending = true
	if w.batchTimer != nil {
		w.batchTimer.Stop()
	}
	w.batchTimer = time.AfterFunc(w.batchDelay, w.processBatch)
}

func (w *Watcher) cancelBatch() {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if w.batchTimer != nil {
		w.batchTimer.Stop()
	}
	w.pending = false
}

func (w *Watcher) processBatch() {
	w.pendingMu.Lock()
	pending := w.pending
	w.pending = false
	w.pendingMu.Unlock()

	if !pending {
		return
	}
	select {
	case <-w.done:
		return
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := w.onChange(ctx)

	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	if err != nil {
		w.failures++
		w.log.Error("Reload failed, keeping previous contents", "error", err)
		return
	}
	w.reloads++
	w.lastReload = time.Now()
	w.log.Info("Reloaded", "reloads", w.reloads)
}

// Stop ends Start. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

// Stats returns the successful and failed reload counts and the time of
// the last successful reload.
func (w *Watcher) Stats() (reloads, failures int, last time.Time) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.reloads, w.failures, w.lastReload
}
