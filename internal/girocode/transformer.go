// Package girocode stamps an EPC payment QR code ("GiroCode") for the
// invoice described by a CII XML file onto the matching PDF.
package girocode

import (
	"context"

	"github.com/girowatch/girowatch/internal/config"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// ErrUnsupportedCurrency is returned for invoices not payable in euro
var ErrUnsupportedCurrency = errors.Base("unsupported currency")

// Transformer implements dispatch.Transformer
type Transformer struct {
	cfg     config.GirocodeConfig
	stamper Stamper
	logger  zerolog.Logger
}

// New creates a transformer stamping with pdfcpu
func New(cfg config.GirocodeConfig, logger zerolog.Logger) *Transformer {
	return NewWithStamper(cfg, PDFCPUStamper{}, logger)
}

// NewWithStamper creates a transformer with a custom stamper
func NewWithStamper(cfg config.GirocodeConfig, stamper Stamper, logger zerolog.Logger) *Transformer {
	return &Transformer{
		cfg:     cfg,
		stamper: stamper,
		logger:  logger.With().Str("component", "girocode").Logger(),
	}
}

// Transform reads the invoice, renders its GiroCode and stamps it onto the PDF
func (t *Transformer) Transform(ctx context.Context, pdfPath, xmlPath, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	inv, err := ReadInvoiceFile(xmlPath)
	if err != nil {
		return err
	}
	if inv.Currency != "EUR" {
		return errors.Errorf("%w: %s", ErrUnsupportedCurrency, inv.Currency)
	}

	payment := Payment{
		Name:   t.cfg.RecipientName,
		IBAN:   t.cfg.RecipientIBAN,
		BIC:    t.cfg.RecipientBIC,
		Amount: inv.Amount,
		Text:   FormatText(t.cfg.TextFormat, inv),
	}
	payload, err := payment.Payload()
	if err != nil {
		return err
	}

	png, err := RenderQR(payload, t.cfg.QRScale, t.cfg.QRBorder)
	if err != nil {
		return err
	}

	if err := t.stamper.Stamp(pdfPath, png, outputPath, t.cfg.PageIndex, t.cfg.PlaceholderIndex); err != nil {
		return err
	}

	t.logger.Debug().
		Str("invoice", inv.InvoiceNumber).
		Str("reference", inv.BuyerReference).
		Str("amount", inv.Amount.StringFixed(2)).
		Msg("Stamped GiroCode")
	return nil
}
