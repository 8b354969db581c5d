// pkg/cleaner/cleaner.go
package cleaner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/locale"
	"github.com/dbvcapital/data-ingress/pkg/mapper"
	"github.com/dbvcapital/data-ingress/pkg/model"
	"github.com/dbvcapital/data-ingress/pkg/schema"
)

// TrackingTable receives the coercions of a load when tracking is enabled
const TrackingTable = "ingest_coercions"

// DataCleaner turns mapped text rows into typed rows for one document type
type DataCleaner struct {
	def    *schema.Definition
	logger *zap.Logger

	columns []string
	specs   []*schema.ColumnSpec
	sources []int // position in the mapped row, or -1 for derived columns
	derived []int // output position of the date column a derived column reads
}

// Batch is the cleaned form of a batch of source rows
type Batch struct {
	Rows       [][]interface{}
	Operations []model.CleaningOperation
	Dropped    int
}

// NewDataCleaner prepares a cleaner for the columns a plan produces. Derived
// columns are included when their source column is present.
func NewDataCleaner(def *schema.Definition, plan *mapper.Plan, logger *zap.Logger) (*DataCleaner, error) {
	if def == nil {
		return nil, errors.New("definition cannot be nil")
	}
	if plan == nil {
		return nil, errors.New("plan cannot be nil")
	}
	if logger == nil {
		logger = zap.L().Named("cleaner")
	}

	mapped := make(map[string]int, plan.Width())
	for i, col := range plan.Columns() {
		mapped[col] = i
	}

	c := &DataCleaner{def: def, logger: logger}
	output := make(map[string]int)
	for i := range def.Columns {
		spec := &def.Columns[i]
		if spec.Derived() {
			continue
		}
		pos, ok := mapped[spec.Name]
		if !ok {
			continue
		}
		output[spec.Name] = len(c.columns)
		c.columns = append(c.columns, spec.Name)
		c.specs = append(c.specs, spec)
		c.sources = append(c.sources, pos)
		c.derived = append(c.derived, -1)
	}

	// Derived columns follow their declaration among the table columns
	for i := range def.Columns {
		spec := &def.Columns[i]
		if !spec.Derived() {
			continue
		}
		from, ok := output[spec.DerivedFrom]
		if !ok {
			logger.Warn("Derived column skipped, source column absent",
				zap.String("column", spec.Name),
				zap.String("derivedFrom", spec.DerivedFrom))
			continue
		}
		c.columns = append(c.columns, spec.Name)
		c.specs = append(c.specs, spec)
		c.sources = append(c.sources, -1)
		c.derived = append(c.derived, from)
	}

	return c, nil
}

// Columns returns the produced columns, in row order
func (c *DataCleaner) Columns() []string {
	return append([]string(nil), c.columns...)
}

// ColumnTypes returns the declared types of the produced columns
func (c *DataCleaner) ColumnTypes() []model.Column {
	cols := make([]model.Column, len(c.specs))
	for i, spec := range c.specs {
		cols[i] = model.Column{Name: spec.Name, Type: spec.Type}
	}
	return cols
}

// CleanBatch cleans mapped rows. firstRow is the 1-based source row number of
// rows[0]. Rows missing a required column are dropped.
func (c *DataCleaner) CleanBatch(rows [][]string, firstRow int) *Batch {
	batch := &Batch{Rows: make([][]interface{}, 0, len(rows))}

	for i, row := range rows {
		cleaned, ops, keep := c.cleanSingleRow(row, firstRow+i)
		batch.Operations = append(batch.Operations, ops...)
		if !keep {
			batch.Dropped++
			continue
		}
		batch.Rows = append(batch.Rows, cleaned)
	}

	if batch.Dropped > 0 {
		c.logger.Debug("Dropped rows without required values",
			zap.String("documentType", c.def.Name),
			zap.Int("dropped", batch.Dropped))
	}
	return batch
}

// cleanSingleRow returns the typed row, its coercions and whether it is kept
func (c *DataCleaner) cleanSingleRow(row []string, rowNumber int) ([]interface{}, []model.CleaningOperation, bool) {
	out := make([]interface{}, len(c.columns))
	dates := make([]cellResult, len(c.columns))
	var operations []model.CleaningOperation

	for i, spec := range c.specs {
		if c.sources[i] < 0 {
			continue
		}
		raw := ""
		if c.sources[i] < len(row) {
			raw = row[c.sources[i]]
		}
		res := cleanValue(raw, spec, model.CleaningContext{
			TableName:  c.def.Table,
			ColumnName: spec.Name,
			RowNumber:  rowNumber,
		})
		out[i] = res.value
		dates[i] = res
		if res.op != nil {
			operations = append(operations, *res.op)
		}
	}

	for i, spec := range c.specs {
		if c.sources[i] >= 0 {
			continue
		}
		if src := dates[c.derived[i]]; src.dated && spec.Transform == schema.TransformMonth {
			out[i] = locale.FormatMonth(src.date)
		}
	}

	for i, spec := range c.specs {
		if spec.Required && out[i] == nil {
			return nil, operations, false
		}
	}
	return out, operations, true
}

// EnsureTrackingTable creates the coercion table inside the output database
func (c *DataCleaner) EnsureTrackingTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+TrackingTable+` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			table_name TEXT NOT NULL,
			column_name TEXT NOT NULL,
			source_row INTEGER NOT NULL,
			original_value TEXT,
			new_value TEXT,
			cleaning_operation TEXT NOT NULL,
			cleaning_reason TEXT NOT NULL,
			cleaned_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create tracking table: %w", err)
	}
	return nil
}

// RecordCleaningOperations batch inserts cleaning operations into the tracking table
func (c *DataCleaner) RecordCleaningOperations(ctx context.Context, db *sql.DB, runID string, operations []model.CleaningOperation) (err error) {
	if len(operations) == 0 {
		return nil
	}

	// Begin transaction
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				c.logger.Error("Failed to rollback transaction",
					zap.Error(rbErr),
					zap.Error(err))
			}
		}
	}()

	// Prepare statement
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO `+TrackingTable+`
		(run_id, table_name, column_name, source_row, original_value, new_value,
		 cleaning_operation, cleaning_reason, cleaned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, op := range operations {
		if _, err = stmt.ExecContext(ctx,
			runID,
			op.TableName,
			op.ColumnName,
			op.RowNumber,
			op.OriginalValue,
			op.NewValue,
			op.CleaningOperation,
			op.CleaningReason,
			op.CleanedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("failed to insert cleaning operation: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	c.logger.Debug("Recorded cleaning operations", zap.Int("count", len(operations)))
	return nil
}
