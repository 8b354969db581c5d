// pkg/connector/sqlite.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/config"
)

// SQLiteConnector implements the DatabaseConnector interface for one output database file
type SQLiteConnector struct {
	db     *sqlx.DB
	logger *zap.Logger
	path   string
}

// NewSQLiteConnector opens (creating if needed) the database file at path
func NewSQLiteConnector(ctx context.Context, cfg *config.SQLiteConfig, path string) (*SQLiteConnector, error) {
	logger := zap.L().Named("sqlite-connector")
	if cfg == nil {
		cfg = config.DefaultSQLiteConfig()
	}

	logger.Debug("Opening SQLite database",
		zap.String("path", path),
		zap.String("journalMode", cfg.JournalMode),
		zap.Duration("busyTimeout", cfg.BusyTimeout))

	db, err := sqlx.Open("sqlite3", cfg.DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite connection: %w", err)
	}

	// One writer per file
	ApplyConnectionSettings(db.DB, 1, 1, 0, 0)

	if err := PingWithTimeout(ctx, db.DB, cfg.BusyTimeout+time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open SQLite database %s: %w", path, err)
	}

	return &SQLiteConnector{
		db:     db,
		logger: logger,
		path:   path,
	}, nil
}

// DB returns the underlying database connection
func (c *SQLiteConnector) DB() *sql.DB {
	return c.db.DB
}

// X returns the sqlx handle
func (c *SQLiteConnector) X() *sqlx.DB {
	return c.db
}

// Path returns the database file path
func (c *SQLiteConnector) Path() string {
	return c.path
}

// Validate checks the database file integrity and journal settings
func (c *SQLiteConnector) Validate() error {
	var version string
	if err := c.db.Get(&version, "SELECT sqlite_version()"); err != nil {
		return fmt.Errorf("failed to query SQLite version: %w", err)
	}

	var integrity string
	if err := c.db.Get(&integrity, "PRAGMA quick_check"); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if !strings.EqualFold(integrity, "ok") {
		return fmt.Errorf("integrity check failed: %s", integrity)
	}

	var journal string
	if err := c.db.Get(&journal, "PRAGMA journal_mode"); err != nil {
		return fmt.Errorf("failed to read journal mode: %w", err)
	}

	c.logger.Debug("SQLite database validated",
		zap.String("path", c.path),
		zap.String("version", version),
		zap.String("journalMode", journal))
	return nil
}

// Close closes the database connection
func (c *SQLiteConnector) Close() error {
	LogConnectionStats(c.logger, c.path, c.db.DB)
	return c.db.Close()
}

// ExecWithTimeout executes a statement with a timeout
func (c *SQLiteConnector) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.ExecContext(queryCtx, query, args...)
}

// QueryWithTimeout executes a query with a timeout. The timeout bounds both
// the query and the iteration of its rows.
func (c *SQLiteConnector) QueryWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (*sql.Rows, error) {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	rows, err := c.db.QueryContext(queryCtx, query, args...)
	if err != nil {
		cancel()
		return nil, err
	}
	time.AfterFunc(timeout, cancel)
	return rows, nil
}

// TableExists reports whether a table is present in the database
func (c *SQLiteConnector) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := c.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table)
	if err != nil {
		return false, fmt.Errorf("failed to check if table exists: %w", err)
	}
	return n > 0, nil
}

// IndexNames returns the names of the indexes defined on a table
func (c *SQLiteConnector) IndexNames(ctx context.Context, table string) ([]string, error) {
	var names []string
	err := c.db.SelectContext(ctx, &names,
		"SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ? ORDER BY name", table)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes of %s: %w", table, err)
	}
	return names, nil
}

// DropTable removes a table if it exists
func (c *SQLiteConnector) DropTable(ctx context.Context, table string) error {
	_, err := c.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteSQLite(table)))
	if err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}
	return nil
}

func quoteSQLite(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
