package watcher

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/girowatch/girowatch/pkg/models"
	"github.com/rs/zerolog"
)

// SettleWatcher reports a file once its writes have been quiet for the
// debounce window. Only the last path of a burst is reported; a create
// cancels the pending settle without reporting.
type SettleWatcher struct {
	*dirWatcher
	debounce time.Duration

	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	stopped    bool

	// serializes deliveries so the sink sees settles in firing order
	emitMu sync.Mutex
}

// NewSettleWatcher creates a debounced watcher for dir
func NewSettleWatcher(dir string, matcher Matcher, debounce time.Duration, sink EventSink, logger zerolog.Logger) *SettleWatcher {
	return &SettleWatcher{
		dirWatcher: newDirWatcher(dir, matcher, models.SourceSettle, sink, logger),
		debounce:   debounce,
	}
}

// Start begins watching for file events
func (w *SettleWatcher) Start() error {
	return w.start(w.handle)
}

// Stop stops the watcher and discards any pending settle
func (w *SettleWatcher) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.cancelLocked()
	w.mu.Unlock()

	w.stop()
}

func (w *SettleWatcher) handle(event fsnotify.Event) {
	if !w.matcher.Match(event.Name) {
		return
	}
	if event.Has(fsnotify.Create) {
		w.cancel()
	}
	if event.Has(fsnotify.Write) {
		w.touch(event.Name)
	}
}

// touch replaces any pending timer with a new one for path
func (w *SettleWatcher) touch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.cancelLocked()
	gen := w.generation
	w.timer = time.AfterFunc(w.debounce, func() {
		w.fire(gen, path)
	})
}

// cancel drops the pending timer without reporting anything
func (w *SettleWatcher) cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelLocked()
}

// cancelLocked bumps the generation so a timer that already fired but lost
// the race for mu never emits. Caller must hold mu.
func (w *SettleWatcher) cancelLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.generation++
}

func (w *SettleWatcher) fire(gen uint64, path string) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()

	w.mu.Lock()
	if w.stopped || gen != w.generation {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	w.mu.Unlock()

	w.emit(path)
}
