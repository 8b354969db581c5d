// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultBatchSize is the number of source rows written per transaction
const DefaultBatchSize = 10000

// Config represents the application configuration. Every value has a default,
// so an empty environment reproduces the fixed directory-relative batch run.
type Config struct {
	// Database connections
	SQLite   *SQLiteConfig
	Postgres *PostgresConfig // nil unless the mirror is enabled

	// Ingestion settings
	DataDir         string
	BatchSize       int
	TrackCoercions  bool
	MetricsTextfile string

	// Postgres mirror
	MirrorEnabled bool
	MirrorSchema  string

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from a .env file (if present) and the environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		SQLite:          LoadSQLiteConfig(),
		DataDir:         getEnv("DATA_DIR", "."),
		BatchSize:       getEnvAsInt("BATCH_SIZE", DefaultBatchSize),
		TrackCoercions:  getEnvAsBool("TRACK_COERCIONS", false),
		MetricsTextfile: getEnv("METRICS_TEXTFILE", ""),
		MirrorEnabled:   getEnvAsBool("PG_MIRROR_ENABLED", false),
		MirrorSchema:    getEnv("PG_MIRROR_SCHEMA", "dbv"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "console"),
	}

	if cfg.MirrorEnabled {
		pgConfig, err := LoadPostgresConfig()
		if err != nil {
			return nil, errors.New("failed to load PostgreSQL configuration: " + err.Error())
		}
		cfg.Postgres = pgConfig
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if c.SQLite == nil {
		return errors.New("sqlite configuration is required")
	}

	if c.DataDir == "" {
		return errors.New("data directory is required")
	}

	if c.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}

	if c.MirrorEnabled && c.Postgres == nil {
		return errors.New("postgreSQL configuration is required when the mirror is enabled")
	}

	if c.MirrorEnabled && c.MirrorSchema == "" {
		return errors.New("mirror schema cannot be empty")
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
