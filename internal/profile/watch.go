package profile

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce batches bursts of directory events (copying many files).
const DefaultDebounce = 500 * time.Millisecond

// Watcher calls OnChange after profile files appear in, vanish from, or are
// renamed within a directory. Content edits do not change the profile set and
// are ignored.
type Watcher struct {
	dir      string
	debounce time.Duration
	onChange func()
	logger   *slog.Logger
	fw       *fsnotify.Watcher

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewWatcher(dir string, debounce time.Duration, onChange func(), l *slog.Logger) (*Watcher, error) {
	if err := CheckDir(dir); err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if l == nil {
		l = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		onChange: onChange,
		logger:   l,
		fw:       fw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins delivering events. It does not block.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true
	go w.run(ctx)
}

// Stop ends the event loop and releases the underlying watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	started := w.started
	w.mu.Unlock()

	close(w.stopCh)
	if started {
		<-w.doneCh
	}
	if err := w.fw.Close(); err != nil {
		w.logger.Error("close profile watcher", "error", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !relevant(ev) {
				continue
			}
			w.logger.Debug("profile directory changed", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Error("profile watcher", "error", err)
		case <-fire:
			fire = nil
			if w.onChange != nil {
				w.onChange()
			}
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if !hasExt(filepath.Base(ev.Name)) {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}
