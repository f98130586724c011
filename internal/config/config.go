package config

import (
	"bytes"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/ncruces/go-strftime"
	"github.com/spf13/cast"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingSetting is returned when required settings are absent at startup
	ErrMissingSetting = errors.Base("missing required setting")
	// ErrInvalidSetting is returned when a setting cannot be parsed or is out of range
	ErrInvalidSetting = errors.Base("invalid setting")
)

const (
	PatternRegex = "regex"
	PatternGlob  = "glob"

	DefaultDebounce = 200 * time.Millisecond
)

// Config is the immutable process configuration, loaded once at startup
type Config struct {
	Watch    WatchConfig    `yaml:"watch"`
	Output   OutputConfig   `yaml:"output"`
	Journal  JournalConfig  `yaml:"journal"`
	Pairing  PairingConfig  `yaml:"pairing"`
	Girocode GirocodeConfig `yaml:"girocode"`
}

// SourceConfig describes one watched directory
type SourceConfig struct {
	Directory string `yaml:"directory"`
	Pattern   string `yaml:"pattern"`
}

// WatchConfig holds the settings of both watchers
type WatchConfig struct {
	XML           SourceConfig  `yaml:"xml"`
	PDF           SourceConfig  `yaml:"pdf"`
	PatternSyntax string        `yaml:"patternSyntax"`
	Debounce      time.Duration `yaml:"debounce"`
}

// OutputConfig holds where results and fatal errors are written
type OutputConfig struct {
	Directory    string `yaml:"directory"`
	ErrorLogPath string `yaml:"errorLog"`
}

// JournalConfig configures the sqlite dispatch journal. An empty path disables it.
type JournalConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// PairingConfig tunes the pairing state machine
type PairingConfig struct {
	// StaleAfter warns about a half-pair waiting longer than this. Zero disables the check.
	StaleAfter time.Duration `yaml:"staleAfter"`
}

// GirocodeConfig configures the payment QR code stamped onto each PDF.
// RecipientBIC is optional within the EEA. QRBorder is the quiet zone in
// modules. PlaceholderIndex selects the image on page PageIndex that the QR
// code replaces; both are 0-based.
type GirocodeConfig struct {
	RecipientIBAN    string `yaml:"recipientIban"`
	RecipientBIC     string `yaml:"recipientBic"`
	RecipientName    string `yaml:"recipientName"`
	TextFormat       string `yaml:"textFormat"`
	QRScale          int    `yaml:"qrScale"`
	QRBorder         int    `yaml:"qrBorder"`
	PageIndex        int    `yaml:"pageIndex"`
	PlaceholderIndex int    `yaml:"placeholderImageIndex"`
}

// Default returns the configuration used before any file or environment is applied
func Default() *Config {
	return &Config{
		Watch: WatchConfig{
			PatternSyntax: PatternRegex,
			Debounce:      DefaultDebounce,
		},
		Girocode: GirocodeConfig{
			QRScale:  4,
			QRBorder: 1,
		},
	}
}

// LoadOptions controls where Load reads settings from
type LoadOptions struct {
	// File is an optional YAML file
	File string
	// EnvFile is an optional dotenv file. Its values never override the real environment.
	EnvFile string
	// Lookup reads the environment. Defaults to os.LookupEnv.
	Lookup func(key string) (string, bool)
	// Now is used to resolve date templates. Defaults to time.Now().
	Now time.Time
}

// Load builds the configuration from defaults, the YAML file, the dotenv file and the environment
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, errors.Errorf("reading config file: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Errorf("parsing YAML: %w", err)
		}
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if opts.EnvFile != "" {
		values, err := godotenv.Read(opts.EnvFile)
		if err != nil {
			return nil, errors.Errorf("reading env file: %w", err)
		}
		lookup = withFallback(lookup, values)
	}

	for _, b := range cfg.bindings() {
		value, ok := lookup(b.key)
		if !ok {
			continue
		}
		if err := b.apply(value); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	cfg.Watch.XML.Directory = ResolveDirectory(cfg.Watch.XML.Directory, now)
	cfg.Watch.PDF.Directory = ResolveDirectory(cfg.Watch.PDF.Directory, now)

	return cfg, nil
}

// Validate checks required settings and value ranges
func (c *Config) Validate() error {
	required := map[string]string{
		"WATCH_XML_DIRECTORY":     c.Watch.XML.Directory,
		"WATCH_XML_REGEX":         c.Watch.XML.Pattern,
		"WATCH_PDF_DIRECTORY":     c.Watch.PDF.Directory,
		"WATCH_PDF_REGEX":         c.Watch.PDF.Pattern,
		"RESULT_PDF_DIRECTORY":    c.Output.Directory,
		"GIROCODE_RECIPIENT_IBAN": c.Girocode.RecipientIBAN,
		"GIROCODE_RECIPIENT_NAME": c.Girocode.RecipientName,
		"GIROCODE_TEXT_FORMAT":    c.Girocode.TextFormat,
	}
	var missing []string
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.Errorf("%w: %s", ErrMissingSetting, strings.Join(missing, ", "))
	}

	switch c.Watch.PatternSyntax {
	case PatternRegex, PatternGlob:
	default:
		return errors.Errorf("%w: pattern syntax %q (want %s or %s)", ErrInvalidSetting, c.Watch.PatternSyntax, PatternRegex, PatternGlob)
	}
	if c.Watch.Debounce <= 0 {
		return errors.Errorf("%w: debounce must be positive, got %s", ErrInvalidSetting, c.Watch.Debounce)
	}
	if c.Girocode.QRScale <= 0 {
		return errors.Errorf("%w: qr scale must be positive, got %d", ErrInvalidSetting, c.Girocode.QRScale)
	}
	if c.Girocode.QRBorder < 0 {
		return errors.Errorf("%w: qr border must not be negative, got %d", ErrInvalidSetting, c.Girocode.QRBorder)
	}
	if c.Girocode.PageIndex < 0 || c.Girocode.PlaceholderIndex < 0 {
		return errors.Errorf("%w: page and placeholder image index must not be negative", ErrInvalidSetting)
	}
	if c.Journal.Retention < 0 || c.Pairing.StaleAfter < 0 {
		return errors.Errorf("%w: durations must not be negative", ErrInvalidSetting)
	}
	return nil
}

type binding struct {
	key    string
	target any
}

func (c *Config) bindings() []binding {
	return []binding{
		{"WATCH_XML_DIRECTORY", &c.Watch.XML.Directory},
		{"WATCH_XML_REGEX", &c.Watch.XML.Pattern},
		{"WATCH_PDF_DIRECTORY", &c.Watch.PDF.Directory},
		{"WATCH_PDF_REGEX", &c.Watch.PDF.Pattern},
		{"WATCH_PATTERN_SYNTAX", &c.Watch.PatternSyntax},
		{"WATCH_DEBOUNCE", &c.Watch.Debounce},
		{"RESULT_PDF_DIRECTORY", &c.Output.Directory},
		{"ERROR_LOG_PATH", &c.Output.ErrorLogPath},
		{"JOURNAL_PATH", &c.Journal.Path},
		{"JOURNAL_RETENTION", &c.Journal.Retention},
		{"PAIR_STALE_AFTER", &c.Pairing.StaleAfter},
		{"GIROCODE_RECIPIENT_IBAN", &c.Girocode.RecipientIBAN},
		{"GIROCODE_RECIPIENT_BIC", &c.Girocode.RecipientBIC},
		{"GIROCODE_RECIPIENT_NAME", &c.Girocode.RecipientName},
		{"GIROCODE_TEXT_FORMAT", &c.Girocode.TextFormat},
		{"GIROCODE_QR_SCALE", &c.Girocode.QRScale},
		{"GIROCODE_QR_BORDER", &c.Girocode.QRBorder},
		{"GIROCODE_PDF_PAGE_INDEX", &c.Girocode.PageIndex},
		{"GIROCODE_PDF_PAGE_PLACEHOLDER_IMAGE_INDEX", &c.Girocode.PlaceholderIndex},
	}
}

func (b binding) apply(value string) error {
	switch target := b.target.(type) {
	case *string:
		*target = value
	case *int:
		n, err := cast.ToIntE(strings.TrimSpace(value))
		if err != nil {
			return errors.Errorf("%w: %s=%q: %v", ErrInvalidSetting, b.key, value, err)
		}
		*target = n
	case *time.Duration:
		d, err := parseDuration(value)
		if err != nil {
			return errors.Errorf("%w: %s=%q: %v", ErrInvalidSetting, b.key, value, err)
		}
		*target = d
	default:
		return errors.Errorf("unsupported binding type %T for %s", b.target, b.key)
	}
	return nil
}

// parseDuration reads Go durations ("350ms", "1h"). A bare integer is taken
// as milliseconds.
func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return cast.ToDurationE(value)
}

func withFallback(lookup func(string) (string, bool), values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if value, ok := lookup(key); ok {
			return value, true
		}
		value, ok := values[key]
		return value, ok
	}
}

var datePlaceholder = regexp.MustCompile(`\{date(?::([^}]*))?\}`)

// ResolveDirectory expands {date:<strftime>} placeholders against now.
// A bare {date} expands to %Y-%m-%d. The result is fixed for the life of the
// process; a date rollover needs a restart.
func ResolveDirectory(tmpl string, now time.Time) string {
	return datePlaceholder.ReplaceAllStringFunc(tmpl, func(match string) string {
		layout := datePlaceholder.FindStringSubmatch(match)[1]
		if layout == "" {
			layout = "%Y-%m-%d"
		}
		return strftime.Format(layout, now)
	})
}
