// pkg/config/database.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// SQLiteConfig holds the connection parameters shared by every output database
type SQLiteConfig struct {
	BusyTimeout time.Duration
	JournalMode string
	Synchronous string
}

// PostgresConfig holds PostgreSQL connection parameters
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Statement timeout
	StatementTimeout time.Duration
}

// LoadSQLiteConfig loads SQLite settings from environment variables
func LoadSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		BusyTimeout: time.Duration(getEnvAsInt("SQLITE_BUSY_TIMEOUT_MS", 5000)) * time.Millisecond,
		JournalMode: strings.ToUpper(getEnv("SQLITE_JOURNAL_MODE", "DELETE")),
		Synchronous: strings.ToUpper(getEnv("SQLITE_SYNCHRONOUS", "NORMAL")),
	}
}

// DefaultSQLiteConfig returns the settings used when nothing is configured
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		BusyTimeout: 5 * time.Second,
		JournalMode: "DELETE",
		Synchronous: "NORMAL",
	}
}

// LoadPostgresConfig loads PostgreSQL configuration from environment variables
func LoadPostgresConfig() (*PostgresConfig, error) {
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		return nil, errors.New("POSTGRES_USER environment variable is required")
	}

	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		return nil, errors.New("POSTGRES_PASSWORD environment variable is required")
	}

	database := os.Getenv("POSTGRES_DB")
	if database == "" {
		return nil, errors.New("POSTGRES_DB environment variable is required")
	}

	cfg := &PostgresConfig{
		Host:     getEnv("POSTGRES_HOST", "localhost"),
		Port:     getEnvAsInt("POSTGRES_PORT", 5432),
		User:     user,
		Password: password,
		Database: database,
		SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		MaxOpenConns:     getEnvAsInt("POSTGRES_MAX_OPEN_CONNS", 4),
		MaxIdleConns:     getEnvAsInt("POSTGRES_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime:  time.Duration(getEnvAsInt("POSTGRES_CONN_MAX_LIFETIME_SECONDS", 1800)) * time.Second,
		ConnMaxIdleTime:  time.Duration(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_TIME_SECONDS", 600)) * time.Second,
		StatementTimeout: time.Duration(getEnvAsInt("POSTGRES_STATEMENT_TIMEOUT_SECONDS", 300)) * time.Second,
	}

	return cfg, nil
}

// DSN returns the go-sqlite3 data source name for a database file
func (c *SQLiteConfig) DSN(path string) string {
	params := url.Values{}
	params.Set("_busy_timeout", fmt.Sprintf("%d", c.BusyTimeout.Milliseconds()))
	if c.JournalMode != "" {
		params.Set("_journal_mode", c.JournalMode)
	}
	if c.Synchronous != "" {
		params.Set("_synchronous", c.Synchronous)
	}
	return path + "?" + params.Encode()
}

// ConnectionString returns a formatted PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
