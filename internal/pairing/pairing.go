// Package pairing holds the state machine that turns a stream of settled
// files into XML/PDF pairs. It keeps at most one pending file per kind and
// dispatches synchronously, so exactly one pair is ever in flight.
package pairing

import (
	"context"
	"path/filepath"
	"time"

	"github.com/girowatch/girowatch/pkg/models"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

var (
	// ErrProtocolViolation marks events the pipeline is not allowed to deliver
	ErrProtocolViolation = errors.Base("protocol violation")
	// ErrUnexpectedKind is returned for a path that is neither XML nor PDF
	ErrUnexpectedKind = errors.Errorf("%w: invalid file extension", ErrProtocolViolation)
	// ErrSlotOccupied is returned when a second file of a kind arrives before the pair was dispatched
	ErrSlotOccupied = errors.Errorf("%w: slot already occupied", ErrProtocolViolation)
)

// Dispatcher receives each completed pair
type Dispatcher interface {
	Dispatch(ctx context.Context, pair models.Pair) (string, error)
}

// Classify returns the kind of path from its exact extension
func Classify(path string) (models.Kind, error) {
	switch filepath.Ext(path) {
	case models.KindXML.Extension():
		return models.KindXML, nil
	case models.KindPDF.Extension():
		return models.KindPDF, nil
	default:
		return "", errors.Errorf("%w: %s", ErrUnexpectedKind, path)
	}
}

type slot struct {
	path  string
	since time.Time
	// warned is set once a stale warning was logged for this occupant
	warned bool
}

func (s *slot) occupied() bool { return s.path != "" }

// Pairer is the pairing state machine. It is not safe for concurrent use:
// it is owned by the single consumer goroutine.
type Pairer struct {
	dispatcher Dispatcher
	logger     zerolog.Logger
	xml        slot
	pdf        slot
	now        func() time.Time
}

// New creates a pairer with both slots empty
func New(dispatcher Dispatcher, logger zerolog.Logger) *Pairer {
	return &Pairer{
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "pairing").Logger(),
		now:        time.Now,
	}
}

// Handle classifies the event, stores it in its slot and dispatches once
// both slots are occupied. Both slots are empty again when Handle returns
// after a dispatch, whatever its outcome.
func (p *Pairer) Handle(ctx context.Context, event models.WatchEvent) error {
	kind, err := Classify(event.Path)
	if err != nil {
		return err
	}

	s := p.slotFor(kind)
	if s.occupied() {
		return errors.Errorf("%w: %s already present (%s), got %s", ErrSlotOccupied, kind, s.path, event.Path)
	}
	*s = slot{path: event.Path, since: p.now()}

	p.logger.Debug().
		Str("kind", string(kind)).
		Str("path", event.Path).
		Str("event", event.ID).
		Msg("Stored file")

	if !p.xml.occupied() || !p.pdf.occupied() {
		return nil
	}

	pair := models.Pair{
		ID:      ulid.Make().String(),
		XMLPath: p.xml.path,
		PDFPath: p.pdf.path,
	}
	defer p.Reset()

	if _, err := p.dispatcher.Dispatch(ctx, pair); err != nil {
		return errors.Errorf("dispatching pair %s: %w", pair.ID, err)
	}
	return nil
}

// Pending returns the paths currently held; empty strings mean empty slots
func (p *Pairer) Pending() (xmlPath, pdfPath string) {
	return p.xml.path, p.pdf.path
}

// Reset empties both slots
func (p *Pairer) Reset() {
	p.xml = slot{}
	p.pdf = slot{}
}

// CheckStale logs a warning for each half-pair older than maxAge. Each
// occupant is reported once and is never evicted. It returns the number of
// warnings logged.
func (p *Pairer) CheckStale(now time.Time, maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	warned := 0
	for _, kind := range []models.Kind{models.KindXML, models.KindPDF} {
		s := p.slotFor(kind)
		if !s.occupied() || s.warned || now.Sub(s.since) < maxAge {
			continue
		}
		s.warned = true
		warned++
		p.logger.Warn().
			Str("kind", string(kind)).
			Str("path", s.path).
			Dur("waiting", now.Sub(s.since)).
			Msg("Partner file has not arrived")
	}
	return warned
}

func (p *Pairer) slotFor(kind models.Kind) *slot {
	if kind == models.KindXML {
		return &p.xml
	}
	return &p.pdf
}
