// pkg/connector/postgres.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/config"
)

// PostgresConnector implements the DatabaseConnector interface for the PostgreSQL mirror
type PostgresConnector struct {
	db     *sql.DB
	logger *zap.Logger
	cfg    *config.PostgresConfig
}

// NewPostgresConnector creates and initializes a new PostgreSQL connector
func NewPostgresConnector(ctx context.Context, cfg *config.PostgresConfig) (*PostgresConnector, error) {
	logger := zap.L().Named("postgres-connector")

	logger.Info("Connecting to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.String("user", cfg.User))

	db, err := sql.Open("pgx", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL connection: %w", err)
	}

	// Configure connection pool
	ApplyConnectionSettings(
		db,
		cfg.MaxOpenConns,
		cfg.MaxIdleConns,
		cfg.ConnMaxLifetime,
		cfg.ConnMaxIdleTime,
	)

	if cfg.StatementTimeout > 0 {
		_, err = db.ExecContext(
			ctx,
			fmt.Sprintf("SET statement_timeout = %d", cfg.StatementTimeout.Milliseconds()),
		)
		if err != nil {
			logger.Warn("Failed to set statement timeout", zap.Error(err))
		}
	}

	if err := PingWithTimeout(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	LogConnectionStats(logger, cfg.Database, db)
	return &PostgresConnector{
		db:     db,
		logger: logger,
		cfg:    cfg,
	}, nil
}

// DB returns the underlying database connection
func (c *PostgresConnector) DB() *sql.DB {
	return c.db
}

// Validate verifies the PostgreSQL connection and that the user may create tables
func (c *PostgresConnector) Validate() error {
	var version string
	if err := c.db.QueryRow("SELECT version()").Scan(&version); err != nil {
		return fmt.Errorf("failed to query PostgreSQL version: %w", err)
	}
	c.logger.Info("Connected to PostgreSQL", zap.String("version", version))

	_, err := c.db.Exec(`
		DO $$
		BEGIN
			CREATE TEMP TABLE _permission_check (id serial, test text);
			INSERT INTO _permission_check (test) VALUES ('test');
			DROP TABLE _permission_check;
		EXCEPTION WHEN OTHERS THEN
			RAISE EXCEPTION 'Permission check failed: %', SQLERRM;
		END $$;
	`)
	if err != nil {
		return fmt.Errorf("permission validation failed: %w", err)
	}
	return nil
}

// Close closes the database connection
func (c *PostgresConnector) Close() error {
	c.logger.Info("Closing PostgreSQL connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db)
	return c.db.Close()
}

// EnsureSchema creates a schema if it doesn't exist
func (c *PostgresConnector) EnsureSchema(ctx context.Context, schema string) error {
	_, err := c.ExecWithTimeout(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(schema), 30*time.Second)
	if err != nil {
		return fmt.Errorf("failed to create schema %s: %w", schema, err)
	}
	return nil
}

// ExecWithTimeout executes a query with a timeout
func (c *PostgresConnector) ExecWithTimeout(
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
func (c *PostgresConnector) QueryWithTimeout(
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

// QualifiedName quotes schema.table
func QualifiedName(schema, table string) string {
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}

// TruncateTable removes every row of a table
func (c *PostgresConnector) TruncateTable(ctx context.Context, schema, table string) error {
	_, err := c.ExecWithTimeout(ctx, "TRUNCATE TABLE "+QualifiedName(schema, table), 60*time.Second)
	if err != nil {
		return fmt.Errorf("failed to truncate %s.%s: %w", schema, table, err)
	}
	return nil
}

// BatchInsert inserts rows in multi-row INSERT statements of at most
// batchSize rows. All batches share one transaction, so a failed batch leaves
// the table as it was.
func (c *PostgresConnector) BatchInsert(
	ctx context.Context,
	schema string,
	table string,
	columns []string,
	valueRows [][]interface{},
	batchSize int,
) (n int64, err error) {
	if len(valueRows) == 0 || len(columns) == 0 {
		return 0, nil
	}

	// Postgres caps bind parameters at 65535 per statement
	maxRows := 65535 / len(columns)
	if batchSize <= 0 || batchSize > maxRows {
		batchSize = min(1000, maxRows)
	}

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = pq.QuoteIdentifier(col)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", QualifiedName(schema, table), strings.Join(quoted, ", "))

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin mirror transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for start := 0; start < len(valueRows); start += batchSize {
		batch := valueRows[start:min(start+batchSize, len(valueRows))]

		args := make([]interface{}, 0, len(batch)*len(columns))
		for _, row := range batch {
			if len(row) != len(columns) {
				return 0, fmt.Errorf("row %d has %d values, table %s has %d columns", start, len(row), table, len(columns))
			}
			args = append(args, row...)
		}

		batchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		result, execErr := tx.ExecContext(batchCtx, prefix+valuesClause(len(batch), len(columns)), args...)
		cancel()
		if execErr != nil {
			return 0, fmt.Errorf("batch insert into %s failed at row %d: %w", table, start, execErr)
		}
		if affected, raErr := result.RowsAffected(); raErr == nil {
			n += affected
		} else {
			n += int64(len(batch))
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit mirror insert: %w", err)
	}
	return n, nil
}

// valuesClause renders "($1, $2), ($3, $4)" for rows x width parameters
func valuesClause(rows, width int) string {
	var b strings.Builder
	param := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for col := 0; col < width; col++ {
			if col > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", param)
			param++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// CreateTableIfNotExists creates a table from ready column definitions
func (c *PostgresConnector) CreateTableIfNotExists(
	ctx context.Context,
	schema string,
	table string,
	columnDefs []string,
) error {
	fullTableName := QualifiedName(schema, table)

	var exists bool
	query := `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)
	`
	if err := c.db.QueryRowContext(ctx, query, schema, table).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check if table exists: %w", err)
	}
	if exists {
		c.logger.Debug("Table already exists", zap.String("table", fullTableName))
		return nil
	}

	createSQL := fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", fullTableName, strings.Join(columnDefs, ",\n\t"))
	if _, err := c.ExecWithTimeout(ctx, createSQL, 30*time.Second); err != nil {
		return fmt.Errorf("failed to create table %s: %w", fullTableName, err)
	}

	c.logger.Info("Created table", zap.String("table", fullTableName))
	return nil
}
