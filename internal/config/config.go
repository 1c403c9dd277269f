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
)

// Journal backends.
const (
	JournalMemory = "memory"
	JournalSheets = "sheets"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath      string
	SQLiteBusyTimeout time.Duration

	// Ledger
	LockWaitTimeout time.Duration
	PageSize        int
	MaxPageSize     int

	// Auth
	JWTSecret string
	JWTTTL    time.Duration

	// Throttling
	RateLimitPerDay int
	RateLimitBurst  int

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Journal
	JournalBackend      string
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Worker
	DriftCheckInterval    time.Duration
	DriftCheckWindow      time.Duration
	DriftCheckBatchSize   int
	DriftCheckConcurrency int

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8081"),

		SQLiteDBPath:      getEnv("SQLITE_DB_PATH", "./data/familybudget.db"),
		SQLiteBusyTimeout: getEnvDuration("SQLITE_BUSY_TIMEOUT", 5*time.Second),

		LockWaitTimeout: getEnvDuration("LOCK_WAIT_TIMEOUT", 5*time.Second),
		PageSize:        getEnvInt("PAGE_SIZE", 50),
		MaxPageSize:     getEnvInt("MAX_PAGE_SIZE", 500),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTTTL:    getEnvDuration("JWT_TTL", 5*time.Minute),

		RateLimitPerDay: getEnvInt("RATE_LIMIT_PER_DAY", 1000),
		RateLimitBurst:  getEnvInt("RATE_LIMIT_BURST", 100),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "familybudget"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "item_events"),

		JournalBackend:      getEnv("JOURNAL_BACKEND", JournalMemory),
		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Journal"),

		DriftCheckInterval:    getEnvDuration("DRIFT_CHECK_INTERVAL", 10*time.Minute),
		DriftCheckWindow:      getEnvDuration("DRIFT_CHECK_WINDOW", 24*time.Hour),
		DriftCheckBatchSize:   getEnvInt("DRIFT_CHECK_BATCH_SIZE", 200),
		DriftCheckConcurrency: getEnvInt("DRIFT_CHECK_CONCURRENCY", 4),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}
	if c.SQLiteBusyTimeout < 0 {
		errors = append(errors, fmt.Sprintf("invalid SQLite busy timeout %v: must not be negative", c.SQLiteBusyTimeout))
	}

	if c.LockWaitTimeout < 10*time.Millisecond || c.LockWaitTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid lock wait timeout %v: must be between 10ms and 1m", c.LockWaitTimeout))
	}
	if c.PageSize < 1 || c.PageSize > c.MaxPageSize {
		errors = append(errors, fmt.Sprintf("invalid page size %d: must be between 1 and %d", c.PageSize, c.MaxPageSize))
	}

	if len(c.JWTSecret) < 32 {
		errors = append(errors, "JWT secret must be at least 32 characters")
	}
	if c.JWTTTL < time.Minute || c.JWTTTL > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid JWT TTL %v: must be between 1m and 24h", c.JWTTTL))
	}

	if c.RateLimitPerDay < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per day", c.RateLimitPerDay))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	validBackends := []string{JournalMemory, JournalSheets}
	if !slices.Contains(validBackends, c.JournalBackend) {
		errors = append(errors, fmt.Sprintf("invalid journal backend '%s': must be one of %v", c.JournalBackend, validBackends))
	}
	if c.JournalBackend == JournalSheets && c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google Spreadsheet ID is required when using sheets journal backend")
	}

	if c.DriftCheckInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid drift check interval %v: must be at least 1 second", c.DriftCheckInterval))
	} else if c.DriftCheckInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid drift check interval %v: must be at most 24 hours", c.DriftCheckInterval))
	}
	if c.DriftCheckBatchSize < 1 || c.DriftCheckBatchSize > 10000 {
		errors = append(errors, fmt.Sprintf("invalid drift check batch size %d: must be between 1 and 10000", c.DriftCheckBatchSize))
	}
	if c.DriftCheckConcurrency < 1 || c.DriftCheckConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid drift check concurrency %d: must be between 1 and 64", c.DriftCheckConcurrency))
	}

	validFormats := []string{"text", "json", "pretty"}
	if !slices.Contains(validFormats, strings.ToLower(c.LogFormat)) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validFormats))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
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
