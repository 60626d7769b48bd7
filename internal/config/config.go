// Package config provides configuration management for the receipt exporter.
//
// Configuration is read once at startup into an explicit Config value that is
// passed to every component. Nothing below the command reads the environment.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (highest priority)
//  2. External .env file in the working directory
//  3. Embedded .env file (non-secret defaults, included in binary)
//  4. Hard-coded defaults (lowest priority)
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "wmsreceipt/internal/errors"

	"github.com/joho/godotenv"
)

// embeddedEnv contains the .env file embedded at build time.
//
// It only carries portal and relay defaults. Credentials must come from the
// environment or an external .env file.
//
//go:embed .env
var embeddedEnv string

// DefaultReceiptsURL is the receipt list of the WMS admin portal.
const DefaultReceiptsURL = "https://wms.rentrap.com/admin/receipts"

// Config holds all application configuration.
type Config struct {
	// Portal
	ReceiptsURL string // Receipt list page, also the login entry point
	Username    string // WMS_USER
	Password    string // WMS_PASS

	// Mail delivery
	EmailUser       string // Sender address, also the SMTP login
	EmailPass       string // Application-specific SMTP secret
	EmailTo         string // Recipient address
	SMTPHost        string
	SMTPPort        int
	DeliveryEnabled bool // false logs the skip instead of sending

	// Browser
	Headless bool

	// Artifacts
	OutputDir      string // Where wms_<receipt>.csv is written
	DiagnosticsDir string // Where screenshots are written
	SelectorsFile  string // Optional YAML selector profile
	WriteXLSX      bool
	WritePreview   bool
	PreviewFont    string // TrueType font for the preview image

	// Timing
	NavigationTimeout  time.Duration // Page loads
	ProbeTimeout       time.Duration // Each login selector candidate
	SearchProbeTimeout time.Duration // Each search box candidate
	TableProbeTimeout  time.Duration // Each table candidate
	ResultTimeout      time.Duration // Receipt number appearing after search
	SettleDelay        time.Duration // Pause after navigation
	LoginSettleDelay   time.Duration // Pause after submitting the login form

	LogLevel string
}

// LoadConfig resolves every setting from the environment, then an optional
// .env in the working directory, then the embedded .env, and validates the
// result. The process environment is never modified.
//
// Returns:
//   - *Config: Fully populated configuration struct
//   - error: MissingConfigurationError naming every absent required value,
//     or a descriptive error for an invalid value
func LoadConfig() (*Config, error) {
	external, err := godotenv.Read(".env")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	embedded, err := godotenv.Unmarshal(embeddedEnv)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded .env: %w", err)
	}

	cfg := fromLookup(layered(external, embedded))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// layered resolves a key from the process environment first, then from each
// file in order. A variable set to "" in the environment still wins.
func layered(files ...map[string]string) func(string) string {
	return func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		for _, f := range files {
			if v, ok := f[key]; ok {
				return v
			}
		}
		return ""
	}
}

// FromEnv builds a Config from the current environment and hard-coded defaults
// without validating it.
func FromEnv() *Config {
	return fromLookup(os.Getenv)
}

func fromLookup(getenv func(string) string) *Config {
	env := envReader(getenv)
	return &Config{
		ReceiptsURL: env.str("WMS_RECEIPTS_URL", DefaultReceiptsURL),
		Username:    env.get("WMS_USER"),
		Password:    env.get("WMS_PASS"),

		EmailUser:       env.get("EMAIL_USER"),
		EmailPass:       env.get("EMAIL_PASS"),
		EmailTo:         env.get("EMAIL_TO"),
		SMTPHost:        env.str("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:        env.asInt("SMTP_PORT", 587),
		DeliveryEnabled: env.asBool("EMAIL_ENABLED", false),

		Headless: env.asBool("HEADLESS", false),

		OutputDir:      env.str("OUTPUT_DIR", "."),
		DiagnosticsDir: env.str("DIAGNOSTICS_DIR", "."),
		SelectorsFile:  env.get("SELECTORS_FILE"),
		WriteXLSX:      env.asBool("REPORT_XLSX", false),
		WritePreview:   env.asBool("REPORT_PREVIEW", false),
		PreviewFont:    env.get("PREVIEW_FONT"),

		NavigationTimeout:  env.asDuration("NAVIGATION_TIMEOUT", 30*time.Second),
		ProbeTimeout:       env.asDuration("PROBE_TIMEOUT", 2*time.Second),
		SearchProbeTimeout: env.asDuration("SEARCH_PROBE_TIMEOUT", 3*time.Second),
		TableProbeTimeout:  env.asDuration("TABLE_PROBE_TIMEOUT", 5*time.Second),
		ResultTimeout:      env.asDuration("RESULT_TIMEOUT", 15*time.Second),
		SettleDelay:        env.asDuration("SETTLE_DELAY", 2*time.Second),
		LoginSettleDelay:   env.asDuration("LOGIN_SETTLE_DELAY", 5*time.Second),

		LogLevel: env.str("LOG_LEVEL", "info"),
	}
}

// Validate checks that required configuration is present and values are sensible.
//
// All five credentials are required even when delivery is disabled. Every
// absent one is named in the returned MissingConfigurationError.
func (c *Config) Validate() error {
	var missing []string
	for _, req := range []struct {
		name  string
		value string
	}{
		{"WMS_USER", c.Username},
		{"WMS_PASS", c.Password},
		{"EMAIL_USER", c.EmailUser},
		{"EMAIL_PASS", c.EmailPass},
		{"EMAIL_TO", strings.Join(c.Recipients(), ",")},
	} {
		if strings.TrimSpace(req.value) == "" {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return apperrors.NewMissingConfigurationError(missing...)
	}

	if c.ReceiptsURL == "" {
		return fmt.Errorf("WMS_RECEIPTS_URL cannot be empty")
	}
	if c.SMTPPort < 1 || c.SMTPPort > 65535 {
		return fmt.Errorf("SMTP_PORT must be between 1 and 65535, got %d", c.SMTPPort)
	}

	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"NAVIGATION_TIMEOUT", c.NavigationTimeout},
		{"PROBE_TIMEOUT", c.ProbeTimeout},
		{"SEARCH_PROBE_TIMEOUT", c.SearchProbeTimeout},
		{"TABLE_PROBE_TIMEOUT", c.TableProbeTimeout},
		{"RESULT_TIMEOUT", c.ResultTimeout},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %v", d.name, d.value)
		}
	}

	return nil
}

// Recipients splits the comma separated EMAIL_TO list, dropping blank entries.
func (c *Config) Recipients() []string {
	var out []string
	for _, addr := range strings.Split(c.EmailTo, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// envReader reads typed values through a lookup function. Empty values and
// values that fail to parse fall back to the default.
type envReader func(string) string

func (r envReader) get(key string) string {
	return r(key)
}

// str returns the value or a default if not set
func (r envReader) str(key, defaultValue string) string {
	if value := r(key); value != "" {
		return value
	}
	return defaultValue
}

// asInt returns the value as an integer or a default if not set/invalid
func (r envReader) asInt(key string, defaultValue int) int {
	if value := r(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// asBool accepts the strconv.ParseBool spellings and falls back to the default
func (r envReader) asBool(key string, defaultValue bool) bool {
	if value := r(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// asDuration returns the value as a duration or a default if not set/invalid.
//
// Accepts standard Go duration strings like "500ms", "5s", "1m"
func (r envReader) asDuration(key string, defaultValue time.Duration) time.Duration {
	if value := r(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
