// Package configwatch debounces filesystem change notifications on the
// proxy's single JSON config file into Reload triggers, grounded on
// internal/reconciler/filesystem_detector.go's fsnotify-plus-debounce
// pattern (adapted here from a directory of YAML resources to a single
// watched file feeding one callback).
package configwatch

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/giantswarm/mcpmux/internal/logging"
)

// DefaultDebounce matches the teacher's default debounce interval.
const DefaultDebounce = 500 * time.Millisecond

// Watcher calls OnChange (debounced) whenever the watched config file is
// written, renamed over, or recreated.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func()

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	timer   *time.Timer
	stopped bool
}

// New constructs a Watcher for path. onChange is invoked on its own
// goroutine after the debounce interval elapses with no further events.
func New(path string, onChange func()) *Watcher {
	return &Watcher{path: path, debounce: DefaultDebounce, onChange: onChange}
}

// Start begins watching. Safe to call once; returns the underlying
// fsnotify error if the watch could not be established (e.g. missing
// parent directory).
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.path); err != nil {
		_ = fsw.Close()
		return err
	}

	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	go w.loop(fsw)
	return nil
}

func (w *Watcher) loop(fsw *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.scheduleReload()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logging.Warn("ConfigWatch", "watch error for %s: %v", w.path, err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

// Stop closes the underlying watcher and cancels any pending debounce.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
}
