package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string

	// Backend selection
	DataBackend  string
	SQLiteDBPath string

	// WhatsApp Cloud API
	WhatsAppAPIURL        string
	WhatsAppAPIVersion    string
	WhatsAppPhoneNumberID string
	WhatsAppToken         string
	WhatsAppAppSecret     string
	WebhookVerifyToken    string

	// Dialogue
	Timezone        string
	StatementLimit  int
	ShortIDAttempts int

	// Webhook processing
	WebhookConcurrency int
	DedupTTL           time.Duration
	DedupSize          int
	RateLimitPerMinute int
	TrustedProxies     []string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataBackend:  getEnv("DATA_BACKEND", BackendSQLite),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/cofrinho.db"),

		WhatsAppAPIURL:        getEnv("WHATSAPP_API_URL", "https://graph.facebook.com"),
		WhatsAppAPIVersion:    getEnv("WHATSAPP_API_VERSION", "v21.0"),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppToken:         getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppAppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),
		WebhookVerifyToken:    getEnv("WEBHOOK_VERIFY_TOKEN", ""),

		Timezone:        getEnv("TIMEZONE", "America/Sao_Paulo"),
		StatementLimit:  getEnvInt("STATEMENT_LIMIT", 10),
		ShortIDAttempts: getEnvInt("SHORT_ID_ATTEMPTS", 5),

		WebhookConcurrency: getEnvInt("WEBHOOK_CONCURRENCY", 8),
		DedupTTL:           getEnvDuration("DEDUP_TTL", 24*time.Hour),
		DedupSize:          getEnvInt("DEDUP_SIZE", 10000),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_RPM", 60),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "cofrinho"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Lançamentos"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
	}
}

// Location resolves Timezone, falling back to UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MirrorEnabled reports whether a spreadsheet mirror is configured.
func (c *Config) MirrorEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the settings shared by every binary and returns one
// error listing every problem found.
func (c *Config) Validate() error {
	return joinProblems(c.problems())
}

func (c *Config) problems() []string {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	validBackends := []string{BackendMemory, BackendSQLite}
	if !slices.Contains(validBackends, c.DataBackend) {
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}
	if c.StatementLimit < 1 || c.StatementLimit > 100 {
		errs = append(errs, fmt.Sprintf("invalid statement limit %d: must be between 1 and 100", c.StatementLimit))
	}
	if c.ShortIDAttempts < 1 || c.ShortIDAttempts > 20 {
		errs = append(errs, fmt.Sprintf("invalid short id attempts %d: must be between 1 and 20", c.ShortIDAttempts))
	}
	if c.WebhookConcurrency < 1 {
		errs = append(errs, fmt.Sprintf("invalid webhook concurrency %d: must be at least 1", c.WebhookConcurrency))
	}
	if c.DedupTTL < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid dedup ttl %v: must be at least 1 minute", c.DedupTTL))
	}
	if c.DedupSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid dedup size %d: must be at least 1", c.DedupSize))
	}
	if c.RateLimitPerMinute < 1 {
		errs = append(errs, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.MirrorEnabled() {
		errs = append(errs, c.mirrorProblems()...)
	}

	return errs
}

// ValidateServer adds the WhatsApp settings the bot server cannot run without.
func (c *Config) ValidateServer() error {
	errs := c.problems()
	if c.WhatsAppPhoneNumberID == "" {
		errs = append(errs, "WHATSAPP_PHONE_NUMBER_ID is required")
	}
	if c.WhatsAppToken == "" {
		errs = append(errs, "WHATSAPP_TOKEN is required")
	}
	if c.WebhookVerifyToken == "" {
		errs = append(errs, "WEBHOOK_VERIFY_TOKEN is required")
	}
	if u, err := url.Parse(c.WhatsAppAPIURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("invalid WhatsApp API URL '%s'", c.WhatsAppAPIURL))
	}
	return joinProblems(errs)
}

// ValidateWorker requires a broker to consume from and a sheet to mirror into.
func (c *Config) ValidateWorker() error {
	errs := c.problems()
	if c.AMQPURL == "" {
		errs = append(errs, "AMQP_URL is required for the worker")
	}
	if !c.MirrorEnabled() {
		errs = append(errs, "GOOGLE_SPREADSHEET_ID is required for the worker")
	}
	return joinProblems(errs)
}

func (c *Config) mirrorProblems() []string {
	var errs []string
	if strings.TrimSpace(c.GoogleSheetName) == "" {
		errs = append(errs, "Google Sheet name is required when a spreadsheet is configured")
	}
	hasJSON := c.GoogleServiceAccountJSON != ""
	hasFile := c.GoogleServiceAccountFile != ""
	if !hasJSON && !hasFile && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		errs = append(errs, "either GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS must be provided for the spreadsheet mirror")
	}
	if hasFile {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errs = append(errs, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	return errs
}

func joinProblems(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
