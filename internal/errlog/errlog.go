// Package errlog implements the single fatal-error path of the daemon.
package errlog

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Reporter records unrecoverable errors on the process logger and, when a
// path is configured, appends them to an error log file
type Reporter struct {
	logger zerolog.Logger
	path   string
	now    func() time.Time
	mu     sync.Mutex
}

// New creates a reporter. An empty path disables the error log file.
func New(logger zerolog.Logger, path string) *Reporter {
	return &Reporter{
		logger: logger,
		path:   path,
		now:    time.Now,
	}
}

// Prepare creates the directory holding the error log file
func (r *Reporter) Prepare() error {
	if r.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return errors.Errorf("creating error log directory: %w", err)
	}
	return nil
}

// Report logs err. Failing to write the file is logged, not returned, so the
// original error is never masked.
func (r *Reporter) Report(err error) {
	if err == nil {
		return
	}
	r.logger.Error().Err(err).Msg("ERROR: " + err.Error())

	if r.path == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.Prepare(); err != nil {
		r.logger.Warn().Err(err).Msg("error log unavailable")
		return
	}
	file, ferr := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if ferr != nil {
		r.logger.Warn().Err(ferr).Str("path", r.path).Msg("opening error log")
		return
	}
	defer file.Close()

	w := zerolog.ConsoleWriter{
		Out:        file,
		NoColor:    true,
		TimeFormat: "2006-01-02 15:04:05.000000",
		PartsOrder: []string{zerolog.TimestampFieldName, zerolog.MessageFieldName},
	}
	fileLogger := zerolog.New(w)
	fileLogger.Log().Time(zerolog.TimestampFieldName, r.now()).Msg("ERROR: " + err.Error())
}
