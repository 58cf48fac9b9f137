package artifact

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/shaderhunt/internal/ir"
)

// DefaultSettleWindow is how long a file must stay quiet before Drain
// reports it. Editors often save in several writes.
const DefaultSettleWindow = 100 * time.Millisecond

// Watcher records edits to reloadable override files.
//
// The watcher never triggers work itself. Its goroutine only notes which
// files changed; the frame thread calls Drain from its tick and reloads
// them. This keeps all resolution on the host's own thread.
//
// Thread-safety: safe for concurrent use.
type Watcher struct {
	dir     string
	settle  time.Duration
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]time.Time // path -> last event time

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithSettleWindow overrides DefaultSettleWindow.
func WithSettleWindow(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.settle = d }
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithWatcherClock replaces time.Now, for tests.
func WithWatcherClock(now func() time.Time) WatcherOption {
	return func(w *Watcher) { w.now = now }
}

// NewWatcher creates a watcher for the overrides directory of s.
// Call Start to begin receiving events and Close to release the OS handle.
func NewWatcher(s *Store, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		dir:     s.Dir(RootOverrides),
		settle:  DefaultSettleWindow,
		watcher: fw,
		logger:  slog.Default(),
		now:     time.Now,
		pending: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start adds the directory to the OS watch list and spawns the event loop.
// The loop exits when ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	go w.loop(ctx)
	return nil
}

// Close stops the event loop and releases the OS watch.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.Note(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("override watcher error", "dir", w.dir, "error", err)
		}
	}
}

// Note records a change to path if it names a reloadable artifact. It is
// called by the event loop and is exported for embedders that have their
// own change notifications.
func (w *Watcher) Note(path string) {
	if !IsReloadable(filepath.Base(path)) {
		return
	}
	w.mu.Lock()
	w.pending[path] = w.now()
	w.mu.Unlock()
}

// Drain returns, sorted, the paths that have been quiet for the settle
// window and forgets them. Paths still settling stay pending.
func (w *Watcher) Drain() []string {
	now := w.now()
	w.mu.Lock()
	var ready []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.settle {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()
	sort.Strings(ready)
	return ready
}

// IsReloadable reports whether a filename is an override the reload path
// consumes: replacement source or assembly. Binaries are excluded; the
// engine writes those itself.
func IsReloadable(name string) bool {
	parsed, err := ir.ParseFilename(name)
	if err != nil {
		return false
	}
	switch parsed.Role {
	case ir.RoleHumanSource, ir.RoleDisassembly:
		return true
	default:
		return false
	}
}
