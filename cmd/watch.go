package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/girowatch/girowatch/internal/agent"
	"github.com/girowatch/girowatch/internal/config"
	"github.com/girowatch/girowatch/internal/errlog"
	"github.com/girowatch/girowatch/internal/girocode"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the girowatch daemon",
	Long: `Watch the XML and PDF directories and stamp a GiroCode onto every pair.

XML files are reported once their writes have settled; PDF files are
reported when they are renamed within the PDF directory. The daemon runs until
SIGINT or SIGTERM and exits non-zero on the first error.

The PDF directory may contain {date:<strftime>} placeholders. They are
resolved once at startup, so restart the daemon when the date changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		cfg, err := loadConfig()
		if err != nil {
			// the error log path is unknown without a config, use the environment
			errlog.New(logger, os.Getenv("ERROR_LOG_PATH")).Report(err)
			return err
		}
		reporter := errlog.New(logger, cfg.Output.ErrorLogPath)

		if err := run(cmd, cfg); err != nil {
			reporter.Report(err)
			return err
		}
		return nil
	},
}

func run(cmd *cobra.Command, cfg *config.Config) error {
	logger := newLogger()

	journal, err := openJournal(cfg)
	if err != nil {
		return err
	}
	if journal != nil {
		defer journal.Close()
	}

	a, err := agent.New(agent.Options{
		Config:      cfg,
		Transformer: girocode.New(cfg.Girocode, logger),
		Journal:     journal,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("xml", cfg.Watch.XML.Directory).
		Str("pdf", cfg.Watch.PDF.Directory).
		Str("output", cfg.Output.Directory).
		Dur("debounce", cfg.Watch.Debounce).
		Msg("Starting girowatch, press Ctrl+C to stop")

	return a.Run(ctx)
}
