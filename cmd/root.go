package cmd

import (
	"os"
	"path/filepath"

	"github.com/girowatch/girowatch/internal/config"
	"github.com/girowatch/girowatch/internal/store"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

var (
	version = "0.1.0"
	cfgFile string
	envFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "girowatch",
	Short: "Stamp GiroCode payment QR codes onto invoice PDFs as they arrive",
	Long: `girowatch watches a directory of e-invoice XML files and a directory of
invoice PDFs. Whenever an XML file and a PDF have both arrived, it reads the
payment data from the XML, renders an EPC "GiroCode" QR code and stamps it onto
the PDF, writing the result into the output directory.

Pairs are processed strictly one at a time. Any unexpected file or failed
transform stops the daemon.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.girowatch/config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file (default is ./.env if present)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(initCmd)
}

// newLogger builds the process logger
func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

// getConfigDir returns the girowatch config directory
func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".girowatch"), nil
}

// loadConfig reads the config file, the env file and the environment
func loadConfig() (*config.Config, error) {
	opts := config.LoadOptions{
		File:    cfgFile,
		EnvFile: envFile,
	}
	if opts.File == "" {
		if dir, err := getConfigDir(); err == nil {
			opts.File = existing(filepath.Join(dir, "config.yaml"))
		}
	}
	if opts.EnvFile == "" {
		opts.EnvFile = existing(".env")
	}
	return config.Load(opts)
}

// openJournal opens the dispatch journal, or returns nil when none is configured
func openJournal(cfg *config.Config) (*store.Store, error) {
	if cfg.Journal.Path == "" {
		return nil, nil
	}
	s, err := store.New(cfg.Journal.Path)
	if err != nil {
		return nil, errors.Errorf("failed to open journal: %w", err)
	}
	return s, nil
}

func existing(path string) string {
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
