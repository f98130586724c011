package watcher

import (
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/girowatch/girowatch/pkg/models"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Watcher is the interface for all event sources
type Watcher interface {
	Start() error
	Stop()
}

// EventSink is a channel that receives events
type EventSink chan<- models.WatchEvent

// Matcher decides whether a path is relevant to a watcher
type Matcher interface {
	Match(path string) bool
	String() string
}

// NewMatcher compiles pattern using the given syntax ("regex" or "glob").
// Regexes are matched against the full path, globs against the base name.
func NewMatcher(syntax, pattern string) (Matcher, error) {
	switch syntax {
	case "", "regex":
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.Errorf("compiling pattern %q: %w", pattern, err)
		}
		return regexMatcher{re: re}, nil
	case "glob":
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.Errorf("invalid glob pattern %q", pattern)
		}
		return globMatcher{pattern: pattern}, nil
	default:
		return nil, errors.Errorf("unknown pattern syntax %q", syntax)
	}
}

type regexMatcher struct {
	re *regexp.Regexp
}

func (m regexMatcher) Match(path string) bool { return m.re.MatchString(path) }
func (m regexMatcher) String() string         { return m.re.String() }

type globMatcher struct {
	pattern string
}

func (m globMatcher) Match(path string) bool {
	ok, err := doublestar.Match(m.pattern, filepath.Base(path))
	return err == nil && ok
}

func (m globMatcher) String() string { return m.pattern }

// dirWatcher holds what both sources share: one non-recursive fsnotify
// watch on a directory and a blocking send onto the event queue.
type dirWatcher struct {
	dir      string
	matcher  Matcher
	source   models.SourceName
	sink     EventSink
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newDirWatcher(dir string, matcher Matcher, source models.SourceName, sink EventSink, logger zerolog.Logger) *dirWatcher {
	return &dirWatcher{
		dir:      dir,
		matcher:  matcher,
		source:   source,
		sink:     sink,
		logger:   logger.With().Str("component", "watcher").Str("source", string(source)).Str("dir", dir).Logger(),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// start registers the directory and runs handle for every fsnotify event.
// Handlers apply the matcher themselves.
func (w *dirWatcher) start(handle func(fsnotify.Event)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return errors.Errorf("watching %s: %w", w.dir, err)
	}
	w.watcher = watcher

	go w.watch(handle)

	w.logger.Info().Str("pattern", w.matcher.String()).Msg("Observing directory")
	return nil
}

func (w *dirWatcher) watch(handle func(fsnotify.Event)) {
	defer close(w.done)
	for {
		select {
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}

// stop closes the stop channel once and waits for the event loop to exit
func (w *dirWatcher) stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		if w.watcher != nil {
			w.watcher.Close()
			<-w.done
		}
	})
}

// emit sends path to the sink. It blocks until the consumer takes the event
// or the watcher is stopped; events are never dropped.
func (w *dirWatcher) emit(path string) bool {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return false
	}

	event := models.WatchEvent{
		ID:         ulid.Make().String(),
		Path:       path,
		Source:     w.source,
		ReceivedAt: time.Now(),
	}

	select {
	case w.sink <- event:
		w.logger.Debug().Str("path", path).Str("event", event.ID).Msg("File event")
		return true
	case <-w.stopChan:
		w.logger.Debug().Str("path", path).Msg("Watcher stopped, event not delivered")
		return false
	}
}
