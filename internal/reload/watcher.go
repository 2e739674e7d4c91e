// Package reload watches the region data file and reloads it on change.
package reload

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 250 * time.Millisecond

// Func performs a reload. It is never called concurrently.
type Func func(ctx context.Context) error

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long the watcher waits after the last event before
// reloading.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithResultHook registers a callback invoked after every reload attempt.
func WithResultHook(hook func(error)) Option {
	return func(w *Watcher) {
		w.onResult = hook
	}
}

// Watcher triggers Func when the watched file is written, created or
// renamed into place.
type Watcher struct {
	path     string
	reload   Func
	logger   *zap.Logger
	debounce time.Duration
	onResult func(error)

	fw *fsnotify.Watcher
}

// New creates a Watcher for path.
func New(path string, fn Func, logger *zap.Logger, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve watch path: %w", err)
	}

	w := &Watcher{
		path:     filepath.Clean(abs),
		reload:   fn,
		logger:   logger,
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Start registers the watch on the parent directory of the data file, so
// that files replaced by rename are still seen. Changes made after Start
// returns are delivered once Run is called. Calling Start again is a no-op.
func (w *Watcher) Start() error {
	if w.fw != nil {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.fw = fw
	w.logger.Info("watching data file", zap.String("path", w.path), zap.Duration("debounce", w.debounce))
	return nil
}

// Close releases the underlying watch. Run calls it on return.
func (w *Watcher) Close() error {
	if w.fw == nil {
		return nil
	}
	err := w.fw.Close()
	w.fw = nil
	return err
}

// Run watches until ctx is cancelled, calling Start first when needed.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(); err != nil {
		return err
	}
	fw := w.fw
	defer w.Close()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("data file event", zap.String("op", ev.Op.String()))
			pending = time.After(w.debounce)
		case werr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(werr))
		case <-pending:
			pending = nil
			w.fire(ctx)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (w *Watcher) fire(ctx context.Context) {
	err := w.reload(ctx)
	if err != nil {
		w.logger.Error("reload failed, keeping previous data", zap.String("path", w.path), zap.Error(err))
	} else {
		w.logger.Info("data reloaded", zap.String("path", w.path))
	}
	if w.onResult != nil {
		w.onResult(err)
	}
}
