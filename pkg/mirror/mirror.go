// pkg/mirror/mirror.go
package mirror

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/config"
	"github.com/dbvcapital/data-ingress/pkg/connector"
	"github.com/dbvcapital/data-ingress/pkg/converter"
	"github.com/dbvcapital/data-ingress/pkg/model"
	"github.com/dbvcapital/data-ingress/pkg/schema"
)

const insertBatchSize = 1000

// Target receives mirrored tables; implemented by connector.PostgresConnector
type Target interface {
	EnsureSchema(ctx context.Context, schema string) error
	CreateTableIfNotExists(ctx context.Context, schema, table string, columnDefs []string) error
	TruncateTable(ctx context.Context, schema, table string) error
	BatchInsert(ctx context.Context, schema, table string, columns []string, rows [][]interface{}, batchSize int) (int64, error)
}

// PostgresMirror copies freshly loaded SQLite tables into PostgreSQL, one
// table per document type
type PostgresMirror struct {
	target        Target
	schema        string
	sqlite        *config.SQLiteConfig
	typeConverter *converter.TypeConverter
	logger        *zap.Logger
}

// New creates a mirror writing into the given PostgreSQL schema
func New(target Target, pgSchema string, sqlite *config.SQLiteConfig, logger *zap.Logger) *PostgresMirror {
	if logger == nil {
		logger = zap.L().Named("mirror")
	}
	return &PostgresMirror{
		target:        target,
		schema:        pgSchema,
		sqlite:        sqlite,
		typeConverter: converter.NewTypeConverter(logger.Named("type-converter")),
		logger:        logger,
	}
}

// Copy replaces <schema>.<document type> with the rows of the definition's
// table in the SQLite file at path
func (m *PostgresMirror) Copy(ctx context.Context, def *schema.Definition, path string) (int64, error) {
	ts := def.TableSchema()

	columns, rows, err := m.readTable(ctx, ts, path)
	if err != nil {
		return 0, err
	}

	// Step 1: make sure the destination exists and is empty
	if err := m.target.EnsureSchema(ctx, m.schema); err != nil {
		return 0, err
	}
	defs, err := m.typeConverter.GenerateColumnDefinitions(ts, converter.DialectPostgres)
	if err != nil {
		return 0, err
	}
	if err := m.target.CreateTableIfNotExists(ctx, m.schema, def.Name, defs); err != nil {
		return 0, err
	}
	if err := m.target.TruncateTable(ctx, m.schema, def.Name); err != nil {
		return 0, err
	}

	// Step 2: copy
	n, err := m.target.BatchInsert(ctx, m.schema, def.Name, columns, rows, insertBatchSize)
	if err != nil {
		return n, fmt.Errorf("failed to mirror %s: %w", def.Name, err)
	}

	m.logger.Info("Mirrored table",
		zap.String("documentType", def.Name),
		zap.String("target", m.schema+"."+def.Name),
		zap.Int64("rows", n))
	return n, nil
}

// readTable returns the table's columns (surrogate id first when declared)
// and its rows converted for PostgreSQL
func (m *PostgresMirror) readTable(ctx context.Context, ts *model.TableSchema, path string) ([]string, [][]interface{}, error) {
	conn, err := connector.NewSQLiteConnector(ctx, m.sqlite, path)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Close()

	columns := ts.ColumnNames()
	types := append([]model.Column(nil), ts.Columns...)
	if ts.SurrogateID {
		columns = append([]string{converter.SurrogateIDColumn}, columns...)
		types = append([]model.Column{{Name: converter.SurrogateIDColumn, Type: model.TypeInteger}}, types...)
	}

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = converter.QuoteIdentifier(col)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), converter.QuoteIdentifier(ts.Table))

	rows, err := conn.X().QueryxContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s from %s: %w", ts.Table, path, err)
	}
	defer rows.Close()

	var out [][]interface{}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			if values[i], err = m.typeConverter.ConvertValue(v, types[i].Type, types[i].Name); err != nil {
				return nil, nil, err
			}
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return columns, out, nil
}
