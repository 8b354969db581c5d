package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/cleaner"
	"github.com/dbvcapital/data-ingress/pkg/config"
	"github.com/dbvcapital/data-ingress/pkg/connector"
	"github.com/dbvcapital/data-ingress/pkg/converter"
	"github.com/dbvcapital/data-ingress/pkg/mapper"
	"github.com/dbvcapital/data-ingress/pkg/source"
)

// windows ERROR_SHARING_VIOLATION
const errSharingViolation = syscall.Errno(32)

// TableLoader loads one source file into its SQLite output table
type TableLoader struct {
	cfg           *config.Config
	factory       *connector.ConnectorFactory
	typeConverter *converter.TypeConverter
	verifier      *Verifier
	errorHandler  *ErrorHandler
	metrics       *LoadMetrics
	logger        *zap.Logger

	// removeFile deletes the previous output; replaced in tests
	removeFile func(string) error
}

// NewTableLoader creates a loader with its own verifier and error handler
func NewTableLoader(cfg *config.Config, logger *zap.Logger) *TableLoader {
	if logger == nil {
		logger = zap.L().Named("loader")
	}
	return &TableLoader{
		cfg:           cfg,
		factory:       connector.NewConnectorFactory(cfg, logger.Named("connector")),
		typeConverter: converter.NewTypeConverter(logger.Named("type-converter")),
		verifier:      NewVerifier(logger.Named("verifier")),
		errorHandler:  NewErrorHandler(logger),
		metrics:       NewLoadMetrics(logger.Named("metrics")),
		logger:        logger,
		removeFile:    os.Remove,
	}
}

// WithMetrics shares a metrics collector with the loader
func (l *TableLoader) WithMetrics(m *LoadMetrics) *TableLoader {
	l.metrics = m
	return l
}

// WithErrorHandler shares an error handler with the loader
func (l *TableLoader) WithErrorHandler(h *ErrorHandler) *TableLoader {
	l.errorHandler = h
	return l
}

// Load replaces the job's output table with the content of its source file.
// It never returns an error: failures are recorded on the result and leave
// no partial table behind.
func (l *TableLoader) Load(ctx context.Context, job LoadJob) *LoadResult {
	result := NewLoadResult(job)
	def := job.Definition
	if def == nil {
		l.fail(result, job, errors.New("load job without document type"))
		return result
	}

	logger := l.logger.With(
		zap.String("documentType", def.Name),
		zap.String("jobID", job.ID))

	// Step 1: open the source and align its header before touching the output
	reader, err := source.Open(job.SourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			result.AddWarning(ErrSourceMissing.Error())
			result.Complete(StatusSkipped)
			l.metrics.RecordLoad(result)
			return result
		}
		l.fail(result, job, readError(fmt.Errorf("failed to open %s: %w", job.SourcePath, err)))
		return result
	}
	defer reader.Close()

	result.Encoding = reader.Encoding()
	if reader.Encoding() != source.EncodingUTF8 {
		logger.Info("Decoding source", zap.String("encoding", reader.Encoding()))
	}

	plan, err := def.ColumnMap().Plan(reader.Header())
	if err != nil {
		if errors.Is(err, mapper.ErrNoMappedColumns) {
			err = fmt.Errorf("%s: none of the expected headers found in %s (wrong file, separator or encoding?): %w",
				def.Name, job.SourcePath, err)
		}
		l.fail(result, job, err)
		return result
	}
	if missing := plan.Missing(); len(missing) > 0 {
		result.Missing = missing
		result.AddWarning(fmt.Sprintf("columns not found in source: %s", strings.Join(missing, ", ")))
	}

	dataCleaner, err := cleaner.NewDataCleaner(def, plan, logger.Named("cleaner"))
	if err != nil {
		l.fail(result, job, err)
		return result
	}
	result.Columns = dataCleaner.Columns()

	// Step 2: clear the previous output
	if err := l.prepareTarget(job); err != nil {
		l.fail(result, job, err)
		return result
	}

	// Step 3: open, create the table and stream the batches
	conn, err := l.factory.CreateSQLiteConnector(ctx, job.OutputPath)
	if err != nil {
		l.fail(result, job, writeError(err))
		l.cleanup(ctx, job, nil, logger)
		return result
	}

	if err := l.loadInto(ctx, conn, job, reader, plan, dataCleaner, result, logger); err != nil {
		l.fail(result, job, err)
		l.cleanup(ctx, job, conn, logger)
		return result
	}

	if err := conn.Close(); err != nil {
		l.fail(result, job, writeError(fmt.Errorf("failed to close %s: %w", job.OutputPath, err)))
		l.cleanup(ctx, job, nil, logger)
		return result
	}

	result.Complete(StatusSuccess)
	l.metrics.RecordLoad(result)

	logger.Info("Load completed",
		zap.String("output", job.OutputPath),
		zap.Int64("rowsWritten", result.RowsWritten),
		zap.Int64("rowsDropped", result.RowsDropped),
		zap.Int("coercions", result.Coercions),
		zap.Int("batches", result.Batches),
		zap.Duration("duration", result.Duration))
	return result
}

// prepareTarget removes the previous output file, or keeps it when the
// database holds tables of other loads
func (l *TableLoader) prepareTarget(job LoadJob) error {
	if job.Definition.PreserveDatabase {
		return nil
	}
	err := l.removeFile(job.OutputPath)
	switch {
	case err == nil, errors.Is(err, fs.ErrNotExist):
		return nil
	case isBusy(err):
		return fmt.Errorf("%w: %s: %v", ErrResourceBusy, job.OutputPath, err)
	default:
		return writeError(fmt.Errorf("failed to remove %s: %w", job.OutputPath, err))
	}
}

// isBusy reports whether a removal failed because another process holds the file
func isBusy(err error) bool {
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EBUSY) {
		return true
	}
	var errno syscall.Errno
	return runtime.GOOS == "windows" && errors.As(err, &errno) && errno == errSharingViolation
}

func (l *TableLoader) loadInto(
	ctx context.Context,
	conn *connector.SQLiteConnector,
	job LoadJob,
	reader *source.Reader,
	plan *mapper.Plan,
	dataCleaner *cleaner.DataCleaner,
	result *LoadResult,
	logger *zap.Logger,
) error {
	def := job.Definition
	ts := def.TableSchema()
	db := conn.DB()

	if err := connector.ExecStatements(ctx, db, l.typeConverter.BulkLoadPragmas()...); err != nil {
		return writeError(err)
	}

	if def.PreserveDatabase {
		if err := conn.DropTable(ctx, ts.Table); err != nil {
			return writeError(err)
		}
	}

	createSQL, err := l.typeConverter.CreateTableSQL(ts, converter.DialectSQLite, converter.QuoteIdentifier(ts.Table))
	if err != nil {
		return err
	}
	if err := connector.ExecStatements(ctx, db, createSQL); err != nil {
		return writeError(err)
	}
	if err := connector.ExecStatements(ctx, db, l.typeConverter.CreateIndexSQL(ts)...); err != nil {
		return writeError(err)
	}
	if l.cfg.TrackCoercions {
		if err := dataCleaner.EnsureTrackingTable(ctx, db); err != nil {
			return writeError(err)
		}
	}

	insertSQL := l.typeConverter.InsertSQL(converter.QuoteIdentifier(ts.Table), dataCleaner.Columns(), converter.DialectSQLite)
	columnTypes := dataCleaner.ColumnTypes()
	batchSize := l.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultBatchSize
	}

	rowNumber := 1
	for {
		rows, err := reader.Next(batchSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return readError(err)
		}
		result.RowsRead += int64(len(rows))

		mapped := make([][]string, len(rows))
		for i, row := range rows {
			mapped[i] = plan.Apply(row)
		}

		batch := dataCleaner.CleanBatch(mapped, rowNumber)
		rowNumber += len(rows)

		values := make([][]interface{}, len(batch.Rows))
		for i, row := range batch.Rows {
			if values[i], err = l.typeConverter.ConvertRow(row, columnTypes); err != nil {
				return writeError(err)
			}
		}

		written, err := l.insertBatch(ctx, db, ts.Table, insertSQL, values, result.Batches == 0)
		if err != nil {
			return writeError(err)
		}

		if l.cfg.TrackCoercions {
			if err := dataCleaner.RecordCleaningOperations(ctx, db, job.RunID, batch.Operations); err != nil {
				return writeError(err)
			}
		}

		result.Batches++
		result.RowsWritten += written
		result.RowsDropped += int64(batch.Dropped)
		result.Coercions += len(batch.Operations)
		l.metrics.RecordBatch(def.Name, batch.Operations)

		logger.Info("Processed batch",
			zap.String("table", ts.Table),
			zap.Int("batch", result.Batches),
			zap.Int64("rowsWritten", written),
			zap.Int64("totalRows", result.RowsWritten),
			zap.Int("coercions", len(batch.Operations)))
	}

	if n := reader.Adjusted(); n > 0 {
		result.AddWarning(fmt.Sprintf("%d rows did not match the header width and were padded or truncated", n))
	}

	approx, err := source.CountLines(job.SourcePath)
	if err != nil {
		logger.Debug("Could not count source lines", zap.Error(err))
	}
	logger.Info("Source processed",
		zap.Strings("columns", result.Columns),
		zap.Int("approxLines", approx),
		zap.Int64("rowsRead", result.RowsRead))

	// Step 4: indexes and planner statistics, then verification
	stmts := append(l.typeConverter.CreateIndexSQL(ts), l.typeConverter.AnalyzeTableForOptimization(ts)...)
	if err := connector.ExecStatements(ctx, db, stmts...); err != nil {
		return writeError(err)
	}

	if _, err := l.verifier.Verify(ctx, conn, ts, result.RowsWritten); err != nil {
		return verificationError(err)
	}
	return nil
}

// insertBatch writes one batch in a single transaction with a prepared statement
func (l *TableLoader) insertBatch(
	ctx context.Context,
	db *sql.DB,
	table string,
	insertSQL string,
	rows [][]interface{},
	truncate bool,
) (inserted int64, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				l.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	if truncate {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+converter.QuoteIdentifier(table)); err != nil {
			return 0, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err = stmt.ExecContext(ctx, row...); err != nil {
			return inserted, fmt.Errorf("failed to insert row: %w", err)
		}
		inserted++
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// cleanup removes whatever a failed load left behind
func (l *TableLoader) cleanup(ctx context.Context, job LoadJob, conn *connector.SQLiteConnector, logger *zap.Logger) {
	if job.Definition.PreserveDatabase {
		if conn != nil {
			if err := conn.DropTable(ctx, job.Definition.Table); err != nil {
				logger.Warn("Failed to drop partial table", zap.Error(err))
			}
			conn.Close()
		}
		return
	}

	if conn != nil {
		conn.Close()
	}
	if err := l.removeFile(job.OutputPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Failed to remove partial output", zap.String("output", job.OutputPath), zap.Error(err))
	}
}

// fail records err on the result and marks it failed
func (l *TableLoader) fail(result *LoadResult, job LoadJob, err error) {
	record := NewErrorRecord(err, l.errorHandler.CategorizeError(err))
	if job.Definition != nil {
		record = record.WithTable(job.OutputPath, job.Definition.Table)
	}
	l.errorHandler.RecordError(record)
	result.AddError(record)
	result.Complete(StatusFailed)
	l.metrics.RecordLoad(result)
}
