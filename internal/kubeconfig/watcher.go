package kubeconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/giantswarm/kube-context-monitor/internal/logging"
)

// Default watcher timings.
const (
	DefaultDebounce     = 250 * time.Millisecond
	DefaultPollInterval = 5 * time.Second
)

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithDebounce sets the delay between the last file event and the reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithPollInterval sets the mtime polling fallback interval. Zero disables polling.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.pollInterval = d
	}
}

// Watcher reloads a kubeconfig file whenever it changes and hands the new
// Snapshot to a callback. A file that fails to parse is logged and the last
// good snapshot is kept.
type Watcher struct {
	path         string
	onChange     func(Snapshot)
	logger       *slog.Logger
	debounce     time.Duration
	pollInterval time.Duration

	mu      sync.RWMutex
	current Snapshot
	modTime time.Time
}

// NewWatcher creates a watcher for path. The file is loaded once so Current
// is valid before Run is called.
func NewWatcher(path string, onChange func(Snapshot), opts ...WatcherOption) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("kubeconfig path is required")
	}

	w := &Watcher{
		path:         filepath.Clean(path),
		onChange:     onChange,
		logger:       slog.Default(),
		debounce:     DefaultDebounce,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := Load(w.path)
	if err != nil && !errors.Is(err, ErrNoContexts) {
		return nil, err
	}
	w.current = snap
	if info, statErr := os.Stat(w.path); statErr == nil {
		w.modTime = info.ModTime()
	}

	return w, nil
}

// Current returns the last successfully loaded snapshot.
func (w *Watcher) Current() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run watches the file until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	// Watch the directory so atomic replacements (rename over the file) are seen.
	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.logger.Info("Watching kubeconfig for changes", slog.String("path", w.path))

	var pollC <-chan time.Time
	if w.pollInterval > 0 {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		pollC = ticker.C
	}

	var debounceTimer *time.Timer
	trigger := func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(w.debounce, w.reload)
	}
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				trigger()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Kubeconfig watcher error", logging.Err(err))
		case <-pollC:
			info, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			w.mu.RLock()
			changed := !info.ModTime().Equal(w.modTime)
			w.mu.RUnlock()
			if changed {
				w.logger.Debug("Kubeconfig change detected by poll")
				trigger()
			}
		}
	}
}

func (w *Watcher) reload() {
	if info, err := os.Stat(w.path); err == nil {
		w.mu.Lock()
		w.modTime = info.ModTime()
		w.mu.Unlock()
	}

	snap, err := Load(w.path)
	if err != nil && !errors.Is(err, ErrNoContexts) {
		w.logger.Warn("Failed to reload kubeconfig, keeping previous contexts", logging.Err(err))
		return
	}

	w.mu.Lock()
	w.current = snap
	w.mu.Unlock()

	w.logger.Info("Kubeconfig reloaded", slog.Int("contexts", len(snap.Contexts)), slog.String("current_context", snap.CurrentContext))

	if w.onChange != nil {
		w.onChange(snap)
	}
}
