package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// Archival
	ArchiveBatchSize int
	RequireBackup    bool

	// Backup backend selection
	BackupBackend string
	BackupDir     string

	// Google Sheets backup backend
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Worker
	TriggerInterval  time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	ArchiveAPIURL    string
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8085"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/extrato.db"),

		ArchiveBatchSize: getEnvInt("ARCHIVE_BATCH_SIZE", 100),
		RequireBackup:    getEnvBool("REQUIRE_BACKUP", true),

		BackupBackend: getEnv("BACKUP_BACKEND", "csv"),
		BackupDir:     getEnv("BACKUP_DIR", "./data/backups"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "extrato"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "archive_runs"),

		TriggerInterval:  getEnvDuration("TRIGGER_INTERVAL", time.Hour),
		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 5),
		RetryBaseDelay:   getEnvDuration("RETRY_BASE_DELAY", 2*time.Second),
		ArchiveAPIURL:    getEnv("ARCHIVE_API_URL", "http://localhost:8085"),
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

	// Validate SQLite configuration
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		// Check if directory exists or can be created
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate archival configuration
	if c.ArchiveBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid archive batch size %d: must be at least 1", c.ArchiveBatchSize))
	} else if c.ArchiveBatchSize > 10000 {
		errors = append(errors, fmt.Sprintf("invalid archive batch size %d: must be at most 10000", c.ArchiveBatchSize))
	}

	// Validate backup backend
	validBackends := []string{"csv", "sheets", "memory"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.BackupBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid backup backend '%s': must be one of %v", c.BackupBackend, validBackends))
	}

	// Validate CSV backup configuration if backend is csv
	if c.BackupBackend == "csv" {
		if c.BackupDir == "" {
			errors = append(errors, "backup directory cannot be empty when using csv backend")
		} else {
			if _, err := os.Stat(c.BackupDir); os.IsNotExist(err) {
				if err := os.MkdirAll(c.BackupDir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create backup directory '%s': %v", c.BackupDir, err))
				}
			}
		}
	}

	// Validate Google Sheets configuration if backend is sheets
	if c.BackupBackend == "sheets" {
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
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate worker configuration
	if c.TriggerInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid trigger interval %v: must be at least 1 minute", c.TriggerInterval))
	} else if c.TriggerInterval > 7*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid trigger interval %v: must be at most 7 days", c.TriggerInterval))
	}

	if c.RetryMaxAttempts < 1 {
		errors = append(errors, fmt.Sprintf("invalid retry max attempts %d: must be at least 1", c.RetryMaxAttempts))
	} else if c.RetryMaxAttempts > 20 {
		errors = append(errors, fmt.Sprintf("invalid retry max attempts %d: must be at most 20", c.RetryMaxAttempts))
	}

	if c.RetryBaseDelay < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid retry base delay %v: must be at least 100ms", c.RetryBaseDelay))
	}

	if c.ArchiveAPIURL != "" {
		if parsedURL, err := url.Parse(c.ArchiveAPIURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid archive API URL '%s': %v", c.ArchiveAPIURL, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid archive API URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
