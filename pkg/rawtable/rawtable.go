// pkg/rawtable/rawtable.go
package rawtable

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/connector"
	"github.com/dbvcapital/data-ingress/pkg/converter"
	"github.com/dbvcapital/data-ingress/pkg/model"
)

// ChunkSize is the number of rows inserted per transaction
const ChunkSize = 1000

// TableSpec is a table whose column types are not declared up front: the
// values are text and the types are inferred from them
type TableSpec struct {
	Name        string
	Columns     []string
	Rows        [][]string
	SurrogateID bool
	Indexes     []model.Index // created only when their column exists
}

// Writer replaces whole tables with inferred-type copies of text grids
type Writer struct {
	typeConverter *converter.TypeConverter
	logger        *zap.Logger
}

// NewWriter creates a writer. Empty cells are stored as NULL in every column type.
func NewWriter(logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.L().Named("rawtable")
	}
	cfg := converter.DefaultConfig()
	cfg.EmptyTextAsNull = true
	return &Writer{
		typeConverter: converter.NewTypeConverterWithConfig(logger.Named("type-converter"), cfg),
		logger:        logger,
	}
}

// InferTypes infers one column type per column: whole numbers are INTEGER,
// other numbers REAL, anything else TEXT. Empty cells do not vote.
func InferTypes(columns []string, rows [][]string) []model.ColumnType {
	types := make([]model.ColumnType, len(columns))
	for i := range types {
		types[i] = model.TypeText
	}
	if len(columns) == 0 || len(rows) == 0 {
		return types
	}

	records := make([][]string, 0, len(rows)+1)
	records = append(records, columns)
	for _, row := range rows {
		records = append(records, fitRow(row, len(columns)))
	}

	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.NaNValues([]string{""}))
	if df.Err != nil {
		return types
	}

	for i, t := range df.Types() {
		if i >= len(types) {
			break
		}
		switch t {
		case series.Int:
			types[i] = model.TypeInteger
		case series.Float:
			types[i] = model.TypeReal
		}
	}
	return types
}

// Write drops and recreates spec.Name in db and fills it. It returns the
// number of rows inserted.
func (w *Writer) Write(ctx context.Context, db *sql.DB, spec TableSpec) (int64, error) {
	if spec.Name == "" {
		return 0, errors.New("table name is required")
	}
	if len(spec.Columns) == 0 {
		return 0, fmt.Errorf("table %s has no columns", spec.Name)
	}

	types := InferTypes(spec.Columns, spec.Rows)
	ts := &model.TableSchema{
		Table:       spec.Name,
		SurrogateID: spec.SurrogateID,
		Columns:     make([]model.Column, len(spec.Columns)),
	}
	present := make(map[string]bool, len(spec.Columns))
	for i, name := range spec.Columns {
		ts.Columns[i] = model.Column{Name: name, Type: types[i]}
		present[name] = true
	}
	for _, idx := range spec.Indexes {
		if present[idx.Column] {
			ts.Indexes = append(ts.Indexes, idx)
		}
	}

	// Step 1: replace the table
	createSQL, err := w.typeConverter.CreateTableSQL(ts, converter.DialectSQLite, converter.QuoteIdentifier(ts.Table))
	if err != nil {
		return 0, err
	}
	if err := connector.ExecStatements(ctx, db,
		"DROP TABLE IF EXISTS "+converter.QuoteIdentifier(ts.Table),
		createSQL,
	); err != nil {
		return 0, err
	}

	// Step 2: insert in chunks
	insertSQL := w.typeConverter.InsertSQL(converter.QuoteIdentifier(ts.Table), spec.Columns, converter.DialectSQLite)
	var total int64
	for start := 0; start < len(spec.Rows); start += ChunkSize {
		end := min(start+ChunkSize, len(spec.Rows))
		n, err := w.insertChunk(ctx, db, insertSQL, ts.Columns, spec.Rows[start:end])
		total += n
		if err != nil {
			return total, fmt.Errorf("failed to write %s: %w", ts.Table, err)
		}
		w.logger.Debug("Inserted chunk",
			zap.String("table", ts.Table),
			zap.Int64("rows", total),
			zap.Int("of", len(spec.Rows)))
	}

	// Step 3: indexes
	if err := connector.ExecStatements(ctx, db, w.typeConverter.CreateIndexSQL(ts)...); err != nil {
		return total, err
	}

	w.logger.Info("Table written",
		zap.String("table", ts.Table),
		zap.Int("columns", len(ts.Columns)),
		zap.Int64("rows", total),
		zap.Int("indexes", len(ts.Indexes)))
	return total, nil
}

func (w *Writer) insertChunk(
	ctx context.Context,
	db *sql.DB,
	insertSQL string,
	columns []model.Column,
	rows [][]string,
) (inserted int64, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				w.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]interface{}, len(columns))
	for _, row := range rows {
		row = fitRow(row, len(columns))
		for i, col := range columns {
			if args[i], err = w.typeConverter.ConvertValue(row[i], col.Type, col.Name); err != nil {
				return 0, err
			}
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("failed to insert row: %w", err)
		}
		inserted++
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// fitRow pads or truncates a row to width
func fitRow(row []string, width int) []string {
	if len(row) == width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}
