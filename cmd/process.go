package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/girowatch/girowatch/internal/dispatch"
	"github.com/girowatch/girowatch/internal/girocode"
	"github.com/girowatch/girowatch/internal/pairing"
	"github.com/girowatch/girowatch/pkg/models"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

var processCmd = &cobra.Command{
	Use:   "process <invoice.xml> <invoice.pdf>",
	Short: "Stamp a GiroCode onto a single pair without watching",
	Long: `Run the transform once for an explicit XML and PDF pair.

The result is written to the configured output directory and recorded in
the journal like any pair the daemon dispatches.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		xmlPath, pdfPath := args[0], args[1]
		if kind, err := pairing.Classify(xmlPath); err != nil || kind != models.KindXML {
			return errors.Errorf("%s is not an %s file", xmlPath, models.KindXML.Extension())
		}
		if kind, err := pairing.Classify(pdfPath); err != nil || kind != models.KindPDF {
			return errors.Errorf("%s is not a %s file", pdfPath, models.KindPDF.Extension())
		}

		logger := newLogger()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		journal, err := openJournal(cfg)
		if err != nil {
			return err
		}
		var j dispatch.Journal
		if journal != nil {
			defer journal.Close()
			j = journal
			for _, path := range args {
				event := &models.WatchEvent{
					ID:         ulid.Make().String(),
					Path:       path,
					Source:     models.SourceManual,
					ReceivedAt: time.Now(),
				}
				if err := journal.CreateEvent(event); err != nil {
					logger.Warn().Err(err).Str("path", path).Msg("Failed to journal event")
				}
			}
		}

		if err := os.MkdirAll(cfg.Output.Directory, 0755); err != nil {
			return errors.Errorf("failed to create output directory: %w", err)
		}

		d := dispatch.New(cfg.Output.Directory, girocode.New(cfg.Girocode, logger), j, logger)
		outputPath, err := d.Dispatch(cmd.Context(), models.Pair{
			ID:      ulid.Make().String(),
			XMLPath: xmlPath,
			PDFPath: pdfPath,
		})
		if err != nil {
			return err
		}

		fmt.Printf("✓ Stamped %s\n", outputPath)
		return nil
	},
}
