package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/girowatch/girowatch/internal/config"
	"github.com/girowatch/girowatch/internal/store"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

var initDir string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize girowatch",
	Long: `Initialize girowatch in your home directory.

This creates:
  ~/.girowatch/config.yaml    - Configuration file
  ~/.girowatch/inbox/xml/     - Watched XML directory
  ~/.girowatch/inbox/pdf/     - Watched PDF directory
  ~/.girowatch/out/           - Stamped PDFs
  ~/.girowatch/data/          - Dispatch journal
  ~/.girowatch/logs/          - Error log`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configDir := initDir
		if configDir == "" {
			dir, err := getConfigDir()
			if err != nil {
				return err
			}
			configDir = dir
		}

		fmt.Println("🧾 Initializing girowatch...")

		paths := initPaths(configDir)
		for _, dir := range []string{paths.xml, paths.pdf, paths.output, paths.data, paths.logs} {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return errors.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
		fmt.Println("   ✓ Created directories")

		configPath := filepath.Join(configDir, "config.yaml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			if err := os.WriteFile(configPath, []byte(paths.config()), 0644); err != nil {
				return errors.Errorf("failed to create config: %w", err)
			}
			fmt.Println("   ✓ Created config.yaml")
		} else {
			fmt.Println("   ✓ Config exists")
		}

		s, err := store.New(paths.journal)
		if err != nil {
			return errors.Errorf("failed to initialize journal: %w", err)
		}
		s.Close()
		fmt.Println("   ✓ Initialized journal")

		fmt.Println()
		fmt.Println("✅ girowatch initialized!")
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Printf("  1. Set girocode.recipientIban and recipientName in %s\n", configPath)
		fmt.Println("  2. Start the daemon:  girowatch watch")
		fmt.Println("  3. Check status:      girowatch status")

		return nil
	},
}

type layout struct {
	xml, pdf, output, data, logs, journal, errorLog string
}

func initPaths(root string) layout {
	return layout{
		xml:      filepath.Join(root, "inbox", "xml"),
		pdf:      filepath.Join(root, "inbox", "pdf"),
		output:   filepath.Join(root, "out"),
		data:     filepath.Join(root, "data"),
		logs:     filepath.Join(root, "logs"),
		journal:  filepath.Join(root, "data", "journal.db"),
		errorLog: filepath.Join(root, "logs", "error.log"),
	}
}

func (l layout) config() string {
	return fmt.Sprintf(defaultConfig,
		l.xml, l.pdf, config.DefaultDebounce,
		l.output, l.errorLog,
		l.journal,
	)
}

const defaultConfig = `# girowatch Configuration
# Every key can be overridden by the environment, e.g. WATCH_XML_DIRECTORY.

watch:
  xml:
    directory: %s
    pattern: '.*\.xml$'
  pdf:
    # may contain {date:<strftime>}, resolved at startup
    directory: %s
    pattern: '.*\.pdf$'
  patternSyntax: regex  # regex | glob
  debounce: %s

output:
  directory: %s
  errorLog: %s

journal:
  path: %s
  retention: 720h

pairing:
  staleAfter: 0s  # warn about a half-pair waiting longer than this

girocode:
  recipientIban: ""
  recipientBic: ""  # optional within the EEA
  recipientName: ""
  textFormat: "{reference} {invoice}"
  qrScale: 4
  qrBorder: 1               # quiet zone in modules
  pageIndex: 0              # page holding the placeholder image
  placeholderImageIndex: 0  # image on that page replaced by the QR code
`

func init() {
	initCmd.Flags().StringVar(&initDir, "dir", "", "directory to initialize (default is ~/.girowatch)")
}
