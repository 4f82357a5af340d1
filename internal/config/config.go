package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAPIURL is the hosted expense API the dashboard talks to.
const DefaultAPIURL = "https://expense-api.up.railway.app"

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	LogLevel           string

	// Expense API
	ExpenseAPIURL string
	APITimeout    time.Duration

	// Sessions
	SessionTTL    time.Duration
	SessionMax    int
	SessionDBPath string
	CookieSecure  bool

	// AMQP (optional, empty URL disables change events)
	AMQPURL      string
	AMQPExchange string

	// Google Sheets export (optional)
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// fileErr records a CONFIG_FILE problem so Validate can report it.
	fileErr error
}

// fileConfig is the YAML shape of CONFIG_FILE. Environment variables win over it.
type fileConfig struct {
	Port               string `yaml:"port"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	LogLevel           string `yaml:"log_level"`
	API                struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"api"`
	Session struct {
		TTL          string `yaml:"ttl"`
		Max          int    `yaml:"max"`
		DBPath       string `yaml:"db_path"`
		CookieSecure *bool  `yaml:"cookie_secure"`
	} `yaml:"session"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	Sheets struct {
		SpreadsheetID      string `yaml:"spreadsheet_id"`
		SheetName          string `yaml:"sheet_name"`
		ServiceAccountFile string `yaml:"service_account_file"`
	} `yaml:"sheets"`
}

func defaults() *Config {
	return &Config{
		Port:               "8080",
		RateLimitPerMinute: 120,
		LogLevel:           "info",
		ExpenseAPIURL:      DefaultAPIURL,
		APITimeout:         15 * time.Second,
		SessionTTL:         24 * time.Hour,
		SessionMax:         1000,
		SessionDBPath:      "./data/sessions.db",
		AMQPExchange:       "expensedash",
		GoogleSheetName:    "Expenses",
	}
}

// Load builds the configuration from defaults, the optional CONFIG_FILE and
// the environment, in that order of precedence (lowest first).
func Load() *Config {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			cfg.fileErr = err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.ExpenseAPIURL = strings.TrimRight(getEnv("EXPENSE_API_URL", cfg.ExpenseAPIURL), "/")
	cfg.APITimeout = getEnvDuration("API_TIMEOUT", cfg.APITimeout)

	cfg.SessionTTL = getEnvDuration("SESSION_TTL", cfg.SessionTTL)
	cfg.SessionMax = getEnvInt("SESSION_MAX", cfg.SessionMax)
	if v, ok := os.LookupEnv("SESSION_DB_PATH"); ok {
		cfg.SessionDBPath = v
	}
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", cfg.CookieSecure)

	cfg.AMQPURL = getEnv("AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", cfg.AMQPExchange)

	cfg.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", cfg.GoogleSpreadsheetID)
	cfg.GoogleSheetName = getEnv("GOOGLE_SHEET_NAME", cfg.GoogleSheetName)
	cfg.GoogleServiceAccountJSON = getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", cfg.GoogleServiceAccountJSON)
	cfg.GoogleServiceAccountFile = getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", cfg.GoogleServiceAccountFile))

	return cfg
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Port, fc.Port)
	setInt(&c.RateLimitPerMinute, fc.RateLimitPerMinute)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.ExpenseAPIURL, fc.API.URL)
	if err := setDuration(&c.APITimeout, fc.API.Timeout); err != nil {
		return fmt.Errorf("api.timeout: %w", err)
	}
	if err := setDuration(&c.SessionTTL, fc.Session.TTL); err != nil {
		return fmt.Errorf("session.ttl: %w", err)
	}
	setInt(&c.SessionMax, fc.Session.Max)
	setString(&c.SessionDBPath, fc.Session.DBPath)
	if fc.Session.CookieSecure != nil {
		c.CookieSecure = *fc.Session.CookieSecure
	}
	setString(&c.AMQPURL, fc.AMQP.URL)
	setString(&c.AMQPExchange, fc.AMQP.Exchange)
	setString(&c.GoogleSpreadsheetID, fc.Sheets.SpreadsheetID)
	setString(&c.GoogleSheetName, fc.Sheets.SheetName)
	setString(&c.GoogleServiceAccountFile, fc.Sheets.ServiceAccountFile)
	return nil
}

// EventsEnabled reports whether expense change events should be published.
func (c *Config) EventsEnabled() bool {
	return c.AMQPURL != ""
}

// ExportEnabled reports whether the Google Sheets export is configured.
func (c *Config) ExportEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if c.fileErr != nil {
		errors = append(errors, c.fileErr.Error())
	}

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate expense API URL
	if parsedURL, err := url.Parse(c.ExpenseAPIURL); err != nil || parsedURL.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid expense API URL '%s': must be an absolute URL", c.ExpenseAPIURL))
	} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid expense API URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
	}

	if c.APITimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid API timeout %v: must be at least 1 second", c.APITimeout))
	} else if c.APITimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid API timeout %v: must be at most 5 minutes", c.APITimeout))
	}

	// Validate sessions
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.SessionMax < 1 {
		errors = append(errors, fmt.Sprintf("invalid session max %d: must be at least 1", c.SessionMax))
	}
	if c.SessionDBPath != "" {
		// Check if directory exists or can be created
		dir := filepath.Dir(c.SessionDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create session database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate Google Sheets export if enabled
	if c.ExportEnabled() {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when GOOGLE_SPREADSHEET_ID is set")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for the sheets export")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// StubConfig configures the development copy of the expense API.
type StubConfig struct {
	Port         string
	JWTSecret    string
	JWTExpiresIn time.Duration
}

// LoadStub reads the dev stub settings from the environment.
func LoadStub() *StubConfig {
	return &StubConfig{
		Port:         getEnv("STUB_PORT", "8090"),
		JWTSecret:    getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTExpiresIn: getEnvDuration("JWT_EXPIRES_IN", 24*time.Hour),
	}
}

// Validate validates the stub configuration.
func (c *StubConfig) Validate() error {
	var errors []string
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid stub port '%s'", c.Port))
	}
	if len(c.JWTSecret) < 8 {
		errors = append(errors, "JWT secret must be at least 8 characters")
	}
	if c.JWTExpiresIn < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid JWT lifetime %v: must be at least 1 minute", c.JWTExpiresIn))
	}
	if len(errors) > 0 {
		return fmt.Errorf("stub configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
