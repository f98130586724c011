package agent

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/girowatch/girowatch/internal/config"
	"github.com/girowatch/girowatch/internal/dispatch"
	"github.com/girowatch/girowatch/internal/pairing"
	"github.com/girowatch/girowatch/internal/store"
	"github.com/girowatch/girowatch/internal/watcher"
	"github.com/girowatch/girowatch/pkg/models"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

const (
	queueSize         = 1024
	retentionInterval = time.Hour
)

// Options holds everything the agent is built from
type Options struct {
	Config      *config.Config
	Transformer dispatch.Transformer
	// Journal is optional
	Journal *store.Store
	Logger  zerolog.Logger
}

// Agent is the girowatch supervisor: it owns the event queue, both
// watchers and the single consumer that drives the pairing state machine
type Agent struct {
	config     *config.Config
	store      *store.Store
	logger     zerolog.Logger
	eventQueue chan models.WatchEvent
	watchers   []watcher.Watcher
	pairer     *pairing.Pairer
}

// New creates a new agent instance
func New(opts Options) (*Agent, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("agent requires a config")
	}
	if opts.Transformer == nil {
		return nil, errors.New("agent requires a transformer")
	}

	a := &Agent{
		config:     cfg,
		store:      opts.Journal,
		logger:     opts.Logger.With().Str("component", "agent").Logger(),
		eventQueue: make(chan models.WatchEvent, queueSize),
	}

	var journal dispatch.Journal
	if opts.Journal != nil {
		journal = opts.Journal
	}
	d := dispatch.New(cfg.Output.Directory, opts.Transformer, journal, opts.Logger)
	a.pairer = pairing.New(d, opts.Logger)

	xmlMatcher, err := watcher.NewMatcher(cfg.Watch.PatternSyntax, cfg.Watch.XML.Pattern)
	if err != nil {
		return nil, errors.Errorf("%w: xml pattern: %v", config.ErrInvalidSetting, err)
	}
	pdfMatcher, err := watcher.NewMatcher(cfg.Watch.PatternSyntax, cfg.Watch.PDF.Pattern)
	if err != nil {
		return nil, errors.Errorf("%w: pdf pattern: %v", config.ErrInvalidSetting, err)
	}

	a.watchers = []watcher.Watcher{
		watcher.NewSettleWatcher(cfg.Watch.XML.Directory, xmlMatcher, cfg.Watch.Debounce, a.eventQueue, opts.Logger),
		watcher.NewMoveWatcher(cfg.Watch.PDF.Directory, pdfMatcher, a.eventQueue, opts.Logger),
	}

	return a, nil
}

// Run starts the consumer and both watchers and blocks until ctx is done or
// a fatal error occurs. Watchers are stopped and the consumer joined before
// Run returns. A nil result means a graceful shutdown.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.prepareDirs(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.processEvents(gctx)
	})

	if err := a.startWatchers(); err != nil {
		cancel()
		_ = g.Wait()
		return errors.Errorf("failed to start watchers: %w", err)
	}

	g.Go(func() error {
		<-gctx.Done()
		a.stopWatchers()
		return nil
	})

	if a.store != nil && a.config.Journal.Retention > 0 {
		g.Go(func() error {
			a.retentionLoop(gctx)
			return nil
		})
	}

	a.logger.Info().Msg("girowatch agent started")
	err := g.Wait()
	a.logger.Info().Msg("girowatch agent stopped")
	return err
}

func (a *Agent) prepareDirs() error {
	dirs := []string{a.config.Output.Directory}
	if a.config.Output.ErrorLogPath != "" {
		dirs = append(dirs, filepath.Dir(a.config.Output.ErrorLogPath))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// startWatchers starts every watcher, stopping the ones already running if one fails
func (a *Agent) startWatchers() error {
	for i, w := range a.watchers {
		if err := w.Start(); err != nil {
			for _, started := range a.watchers[:i] {
				started.Stop()
			}
			return err
		}
	}
	return nil
}

func (a *Agent) stopWatchers() {
	for _, w := range a.watchers {
		w.Stop()
	}
}

// processEvents is the single consumer of the event queue
func (a *Agent) processEvents(ctx context.Context) error {
	var staleTick <-chan time.Time
	if staleAfter := a.config.Pairing.StaleAfter; staleAfter > 0 {
		ticker := time.NewTicker(staleCheckInterval(staleAfter))
		defer ticker.Stop()
		staleTick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			if xml, pdf := a.pairer.Pending(); xml != "" || pdf != "" {
				a.logger.Warn().Str("xml", xml).Str("pdf", pdf).Msg("Abandoning incomplete pair")
			}
			return nil

		case event := <-a.eventQueue:
			a.journalEvent(&event)
			if err := a.pairer.Handle(ctx, event); err != nil {
				return err
			}

		case now := <-staleTick:
			a.pairer.CheckStale(now, a.config.Pairing.StaleAfter)
		}
	}
}

func (a *Agent) journalEvent(event *models.WatchEvent) {
	if a.store == nil {
		return
	}
	if err := a.store.CreateEvent(event); err != nil {
		a.logger.Warn().Err(err).Str("path", event.Path).Msg("Failed to store event")
	}
}

// retentionLoop periodically prunes old journal rows
func (a *Agent) retentionLoop(ctx context.Context) {
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	for {
		a.prune()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *Agent) prune() {
	cutoff := time.Now().Add(-a.config.Journal.Retention)
	removed, err := a.store.Prune(cutoff)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to prune journal")
		return
	}
	if removed > 0 {
		a.logger.Info().Int64("rows", removed).Msg("Pruned journal")
	}
}

func staleCheckInterval(staleAfter time.Duration) time.Duration {
	if interval := staleAfter / 4; interval > 0 {
		return interval
	}
	return staleAfter
}
