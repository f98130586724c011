package dispatch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/girowatch/girowatch/pkg/models"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Transformer composes the output document for a pair. It is synchronous
// and writes outputPath itself.
type Transformer interface {
	Transform(ctx context.Context, pdfPath, xmlPath, outputPath string) error
}

// Journal records dispatch outcomes
type Journal interface {
	RecordDispatch(r *models.DispatchRecord) error
}

// Dispatcher hands pairs to the transformer, one at a time
type Dispatcher struct {
	outputDir   string
	transformer Transformer
	journal     Journal
	logger      zerolog.Logger
	now         func() time.Time
}

// New creates a dispatcher writing into outputDir. journal may be nil.
func New(outputDir string, transformer Transformer, journal Journal, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		outputDir:   outputDir,
		transformer: transformer,
		journal:     journal,
		logger:      logger.With().Str("component", "dispatch").Logger(),
		now:         time.Now,
	}
}

// OutputPath returns where the result for pdfPath is written
func OutputPath(outputDir, pdfPath string) string {
	return filepath.Join(outputDir, filepath.Base(pdfPath))
}

// Dispatch runs the transformer for pair and returns the output path. A
// transformer error is returned as is; there is no retry.
func (d *Dispatcher) Dispatch(ctx context.Context, pair models.Pair) (string, error) {
	outputPath := OutputPath(d.outputDir, pair.PDFPath)
	rec := &models.DispatchRecord{
		ID:         ulid.Make().String(),
		PairID:     pair.ID,
		XMLPath:    pair.XMLPath,
		PDFPath:    pair.PDFPath,
		OutputPath: outputPath,
		StartedAt:  d.now(),
	}

	err := d.transformer.Transform(ctx, pair.PDFPath, pair.XMLPath, outputPath)
	rec.FinishedAt = d.now()

	if err != nil {
		rec.Status = models.DispatchFailed
		rec.Error = err.Error()
		d.record(rec)
		return "", errors.Errorf("transforming %s: %w", pair.PDFPath, err)
	}

	rec.Status = models.DispatchSucceeded
	d.record(rec)

	d.logger.Info().
		Str("pair", pair.ID).
		Str("xml", pair.XMLPath).
		Dur("took", rec.Duration()).
		Msgf("GIROCODE: %s -> %s", pair.PDFPath, outputPath)

	return outputPath, nil
}

func (d *Dispatcher) record(rec *models.DispatchRecord) {
	if d.journal == nil {
		return
	}
	if err := d.journal.RecordDispatch(rec); err != nil {
		d.logger.Warn().Err(err).Str("pair", rec.PairID).Msg("Failed to journal dispatch")
	}
}
