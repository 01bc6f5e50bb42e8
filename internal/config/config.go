package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Env       string
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Inventory InventoryConfig
	Alerts    AlertsConfig
	WhatsApp  WhatsAppConfig
	Sheets    SheetsConfig
	Reporting ReportingConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
	// Transactions wraps billing in a multi-document transaction; requires a replica set.
	Transactions bool
	Timeout      time.Duration
}

// InventoryConfig holds the stock alert thresholds.
type InventoryConfig struct {
	LowStockThreshold int
	ExpiryWindowDays  int
	RemoveSoldOut     bool
}

// AlertsConfig controls the asynchronous alert dispatcher.
type AlertsConfig struct {
	QueueSize   int
	MaxAttempts int
	BaseDelay   time.Duration
	Recipient   string
}

// WhatsAppConfig contains credentials and options for the Meta WhatsApp Cloud API.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	BaseURL       string
	APIVersion    string
}

// Enabled reports whether enough credentials are present to talk to the Cloud API.
func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != "" && c.PhoneNumberID != ""
}

// SheetsConfig contains configuration required to mirror reports into Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// Enabled reports whether the reporting sheet is configured.
func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.SpreadsheetID != ""
}

// ReportingConfig holds scheduler-related settings.
type ReportingConfig struct {
	CronSchedule      string
	SweepCronSchedule string
	Timezone          string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// A missing .env is fine when configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	p := &parser{}

	cfg := &Config{
		Env: getenvWithDefault("APP_ENV", "production"),
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		MongoDB: MongoDBConfig{
			URI:          getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
			DBName:       getenvWithDefault("MONGODB_DB_NAME", "medistock"),
			Transactions: p.bool("MONGODB_TRANSACTIONS", false),
			Timeout:      p.duration("MONGODB_TIMEOUT", 10*time.Second),
		},
		Inventory: InventoryConfig{
			LowStockThreshold: p.int("INVENTORY_LOW_STOCK_THRESHOLD", 10),
			ExpiryWindowDays:  p.int("INVENTORY_EXPIRY_WINDOW_DAYS", 30),
			RemoveSoldOut:     p.bool("INVENTORY_REMOVE_SOLD_OUT", true),
		},
		Alerts: AlertsConfig{
			QueueSize:   p.int("ALERT_QUEUE_SIZE", 64),
			MaxAttempts: p.int("ALERT_MAX_ATTEMPTS", 5),
			BaseDelay:   p.duration("ALERT_BASE_DELAY", 500*time.Millisecond),
			Recipient:   os.Getenv("ALERT_RECIPIENT"),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:   os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			VerifyToken:   os.Getenv("META_VERIFY_TOKEN"),
			BaseURL:       getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_REPORT_ID"),
		},
		Reporting: ReportingConfig{
			CronSchedule:      getenvWithDefault("REPORT_CRON_SCHEDULE", "0 20 * * *"),
			SweepCronSchedule: getenvWithDefault("INVENTORY_SWEEP_CRON", "0 8 * * *"),
			Timezone:          getenvWithDefault("TIMEZONE", "UTC"),
		},
	}

	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch {
	case c.MongoDB.URI == "":
		return errors.New("MONGODB_URI must be provided")
	case c.MongoDB.DBName == "":
		return errors.New("MONGODB_DB_NAME must be provided")
	case c.MongoDB.Timeout <= 0:
		return errors.New("MONGODB_TIMEOUT must be positive")
	}

	if c.Inventory.LowStockThreshold < 0 {
		return errors.New("INVENTORY_LOW_STOCK_THRESHOLD must not be negative")
	}

	if c.Inventory.ExpiryWindowDays <= 0 {
		return errors.New("INVENTORY_EXPIRY_WINDOW_DAYS must be positive")
	}

	switch {
	case c.Alerts.QueueSize <= 0:
		return errors.New("ALERT_QUEUE_SIZE must be positive")
	case c.Alerts.MaxAttempts <= 0:
		return errors.New("ALERT_MAX_ATTEMPTS must be positive")
	case c.Alerts.BaseDelay < 0:
		return errors.New("ALERT_BASE_DELAY must not be negative")
	}

	if c.WhatsApp.Enabled() {
		if c.WhatsApp.BaseURL == "" {
			return errors.New("WHATSAPP_BASE_URL must not be empty")
		}
		if c.WhatsApp.APIVersion == "" {
			return errors.New("WHATSAPP_API_VERSION must not be empty")
		}
		if c.Alerts.Recipient == "" {
			return errors.New("ALERT_RECIPIENT must be provided when WhatsApp delivery is enabled")
		}
	}

	if (c.Sheets.CredentialsPath == "") != (c.Sheets.SpreadsheetID == "") {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_REPORT_ID must be provided together")
	}

	if c.Reporting.CronSchedule == "" {
		return errors.New("REPORT_CRON_SCHEDULE must be provided")
	}

	if c.Reporting.SweepCronSchedule == "" {
		return errors.New("INVENTORY_SWEEP_CRON must be provided")
	}

	if _, err := time.LoadLocation(c.Reporting.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q is invalid: %w", c.Reporting.Timezone, err)
	}

	return nil
}

// Location resolves the reporting timezone, falling back to UTC.
func (c ReportingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parser keeps the first typed-parsing failure so Load can report it once.
type parser struct {
	err error
}

func (p *parser) int(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.fail(fmt.Errorf("%s must be an integer: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) bool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		p.fail(fmt.Errorf("%s must be a boolean: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		p.fail(fmt.Errorf("%s must be a duration: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}
