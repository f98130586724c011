package watcher

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/girowatch/girowatch/pkg/models"
	"github.com/rs/zerolog"
)

// renamePairWindow bounds the gap between the Rename on the old name and the
// Create on the new name of one rename.
const renamePairWindow = 100 * time.Millisecond

// MoveWatcher reports files renamed within its directory. A move is assumed
// to deliver a complete file, so there is no debounce. Files created or
// written in place are ignored.
//
// fsnotify reports a rename inside a watched directory as Rename on the old
// name immediately followed by Create on the new name. A Create without that
// Rename is a new file, or one moved in from outside, and is not reported.
type MoveWatcher struct {
	*dirWatcher
	now func() time.Time

	// old name of the last Rename, waiting for its Create
	renamed   string
	renamedAt time.Time
}

// NewMoveWatcher creates an immediate watcher for dir
func NewMoveWatcher(dir string, matcher Matcher, sink EventSink, logger zerolog.Logger) *MoveWatcher {
	return &MoveWatcher{
		dirWatcher: newDirWatcher(dir, matcher, models.SourceMove, sink, logger),
		now:        time.Now,
	}
}

// Start begins watching for file events
func (w *MoveWatcher) Start() error {
	return w.start(w.handle)
}

// Stop stops the watcher
func (w *MoveWatcher) Stop() {
	w.stop()
}

// handle runs on the event loop goroutine only
func (w *MoveWatcher) handle(event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Rename):
		w.renamed, w.renamedAt = event.Name, w.now()

	case event.Has(fsnotify.Create):
		from := w.renamed
		paired := from != "" && w.now().Sub(w.renamedAt) <= renamePairWindow
		w.renamed = ""
		if !paired {
			w.logger.Debug().Str("path", event.Name).Msg("Ignoring file created in place")
			return
		}
		// either name may carry the pattern, e.g. invoice.pdf.part -> invoice.pdf
		if !w.matcher.Match(event.Name) && !w.matcher.Match(from) {
			return
		}
		w.emit(event.Name)

	default:
		w.renamed = ""
	}
}
