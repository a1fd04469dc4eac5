package config

import (
	"fmt"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Backend selection
	DataBackend string

	// Datasets: file names for the file backend, tab titles for sheets,
	// snapshot names for sqlite.
	DataDir     string
	TaxDataset  string
	TipsDataset string

	// Database
	SQLiteDBPath string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Logging
	LogLevel string

	// Downloads and charts per client per minute
	ExportRateLimit int

	// Extra proxy networks whose forwarded headers are trusted
	TrustedProxies []string

	// Rendered chart cache, off unless CHART_CACHE_SIZE is set
	ChartCacheSize int
	ChartCacheTTL  time.Duration
}

var (
	validBackends  = []string{"file", "sheets", "sqlite"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

func Load() *Config {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		DataBackend: getEnv("DATA_BACKEND", "file"),
		DataDir:     getEnv("DATA_DIR", "data"),
		TaxDataset:  getEnv("TAX_DATASET", "CAPSTONEDATA.csv"),
		TipsDataset: getEnv("TIPS_DATASET", "tips.csv"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/finboard.db"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),

		ExportRateLimit: getEnvInt("EXPORT_RATE_LIMIT", 30),

		TrustedProxies: getEnvList("TRUSTED_PROXIES"),

		ChartCacheSize: getEnvInt("CHART_CACHE_SIZE", 0),
		ChartCacheTTL:  getEnvDuration("CHART_CACHE_TTL", 10*time.Minute),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if strings.TrimSpace(c.TaxDataset) == "" {
		errors = append(errors, "tax dataset name cannot be empty")
	}
	if strings.TrimSpace(c.TipsDataset) == "" {
		errors = append(errors, "tips dataset name cannot be empty")
	}

	switch c.DataBackend {
	case "file":
		if info, err := os.Stat(c.DataDir); err != nil {
			errors = append(errors, fmt.Sprintf("data directory '%s' is not accessible: %v", c.DataDir, err))
		} else if !info.IsDir() {
			errors = append(errors, fmt.Sprintf("data directory '%s' is not a directory", c.DataDir))
		}

	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if _, err := os.Stat(c.SQLiteDBPath); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("SQLite snapshot '%s' does not exist: run finboard-import first", c.SQLiteDBPath))
		}

	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets backend")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if !slices.Contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}

	if c.ExportRateLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid export rate limit %d: must be at least 1", c.ExportRateLimit))
	} else if c.ExportRateLimit > 10000 {
		errors = append(errors, fmt.Sprintf("invalid export rate limit %d: must be at most 10000", c.ExportRateLimit))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR such as 10.1.0.0/16", cidr))
		}
	}

	if c.ChartCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid chart cache size %d: must not be negative", c.ChartCacheSize))
	}
	if c.ChartCacheSize > 0 && c.ChartCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid chart cache TTL %v: must be at least 1 second", c.ChartCacheTTL))
	}

	if c.ReadTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid read timeout %v: must be at least 1 second", c.ReadTimeout))
	}
	if c.WriteTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid write timeout %v: must be at least 1 second", c.WriteTimeout))
	}
	if c.ShutdownTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at least 1 second", c.ShutdownTimeout))
	} else if c.ShutdownTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at most 5 minutes", c.ShutdownTimeout))
	}

	// Return combined errors
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

// getEnvList splits a comma separated value, dropping blank items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
