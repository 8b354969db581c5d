package ingest

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/mapper"
)

var (
	// ErrResourceBusy is returned when the output file is held by another program
	ErrResourceBusy = errors.New("output database is in use; close the program using the file and run again")
	// ErrSourceMissing is returned when a document type's source file does not exist
	ErrSourceMissing = errors.New("file not found")
)

// ErrorCategory classifies load failures
type ErrorCategory int

const (
	ErrorCategoryNone ErrorCategory = iota
	ErrorCategoryWarning
	ErrorCategorySourceMissing
	ErrorCategoryConfiguration
	ErrorCategoryResourceBusy
	ErrorCategoryRead
	ErrorCategoryWrite
	ErrorCategoryVerification
	ErrorCategoryInternal
)

// String returns a string representation of the error category
func (ec ErrorCategory) String() string {
	switch ec {
	case ErrorCategoryNone:
		return "None"
	case ErrorCategoryWarning:
		return "Warning"
	case ErrorCategorySourceMissing:
		return "SourceMissing"
	case ErrorCategoryConfiguration:
		return "Configuration"
	case ErrorCategoryResourceBusy:
		return "ResourceBusy"
	case ErrorCategoryRead:
		return "Read"
	case ErrorCategoryWrite:
		return "Write"
	case ErrorCategoryVerification:
		return "Verification"
	case ErrorCategoryInternal:
		return "Internal"
	default:
		return fmt.Sprintf("Unknown(%d)", ec)
	}
}

// Retryable reports whether running the same load again may succeed
// without changing the input
func (ec ErrorCategory) Retryable() bool {
	return ec == ErrorCategoryResourceBusy
}

// ErrorRecord represents a single error during a load
type ErrorRecord struct {
	Category   ErrorCategory
	TableName  string
	RowNumber  int
	ColumnName string
	Error      error
	Message    string // Derived from Error but stored for serialization
	Timestamp  time.Time
}

// NewErrorRecord creates a new error record with current timestamp
func NewErrorRecord(err error, category ErrorCategory) ErrorRecord {
	record := ErrorRecord{
		Category:  category,
		Error:     err,
		Timestamp: time.Now(),
	}
	if err != nil {
		record.Message = err.Error()
	}
	return record
}

// WithTable adds table information to the error record
func (r ErrorRecord) WithTable(output, table string) ErrorRecord {
	r.TableName = fmt.Sprintf("%s:%s", output, table)
	return r
}

// WithRow adds the 1-based source row number
func (r ErrorRecord) WithRow(row int) ErrorRecord {
	r.RowNumber = row
	return r
}

// WithColumn adds column information to the error record
func (r ErrorRecord) WithColumn(columnName string) ErrorRecord {
	r.ColumnName = columnName
	return r
}

// String returns a formatted error message
func (r ErrorRecord) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] ", r.Category))

	if r.TableName != "" {
		sb.WriteString(fmt.Sprintf("Table: %s ", r.TableName))
	}
	if r.RowNumber > 0 {
		sb.WriteString(fmt.Sprintf("Row: %d ", r.RowNumber))
	}
	if r.ColumnName != "" {
		sb.WriteString(fmt.Sprintf("Column: %s ", r.ColumnName))
	}

	if r.Error != nil {
		sb.WriteString(fmt.Sprintf("Error: %s", r.Error.Error()))
	} else if r.Message != "" {
		sb.WriteString(fmt.Sprintf("Error: %s", r.Message))
	}

	return sb.String()
}

// ErrorHandler categorizes and tallies load errors across a run
type ErrorHandler struct {
	logger       *zap.Logger
	errorCounts  map[ErrorCategory]int
	sampleErrors map[ErrorCategory][]ErrorRecord
	tableErrors  map[string]int
	mu           sync.Mutex
	maxSamples   int
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger,
		errorCounts:  make(map[ErrorCategory]int),
		sampleErrors: make(map[ErrorCategory][]ErrorRecord),
		tableErrors:  make(map[string]int),
		maxSamples:   5,
	}
}

// CategorizeError determines the category of an error
func (eh *ErrorHandler) CategorizeError(err error) ErrorCategory {
	var category ErrorCategory

	switch {
	case err == nil:
		return ErrorCategoryNone
	case errors.Is(err, ErrSourceMissing):
		category = ErrorCategorySourceMissing
	case errors.Is(err, ErrResourceBusy):
		category = ErrorCategoryResourceBusy
	case errors.Is(err, mapper.ErrNoMappedColumns):
		category = ErrorCategoryConfiguration
	case errors.Is(err, errVerification):
		category = ErrorCategoryVerification
	case errors.Is(err, errRead):
		category = ErrorCategoryRead
	case errors.Is(err, errWrite):
		category = ErrorCategoryWrite
	default:
		category = ErrorCategoryInternal
	}

	if eh.logger != nil {
		eh.logger.Debug("Categorized error",
			zap.String("error", err.Error()),
			zap.String("category", category.String()))
	}
	return category
}

// RecordError saves an error occurrence
func (eh *ErrorHandler) RecordError(record ErrorRecord) {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	eh.errorCounts[record.Category]++

	samples := eh.sampleErrors[record.Category]
	if len(samples) < eh.maxSamples {
		eh.sampleErrors[record.Category] = append(samples, record)
	}

	if record.TableName != "" {
		eh.tableErrors[record.TableName]++
	}

	if eh.logger != nil {
		logLevel := zap.ErrorLevel
		switch record.Category {
		case ErrorCategoryWarning, ErrorCategorySourceMissing:
			logLevel = zap.WarnLevel
		}

		eh.logger.Log(logLevel, "Load error",
			zap.String("category", record.Category.String()),
			zap.String("table", record.TableName),
			zap.String("error", record.Message),
			zap.Bool("retryable", record.Category.Retryable()))
	}
}

// GetErrorSummary returns a copy of the error counts by category
func (eh *ErrorHandler) GetErrorSummary() map[ErrorCategory]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	summary := make(map[ErrorCategory]int)
	for category, count := range eh.errorCounts {
		summary[category] = count
	}
	return summary
}

// GetErrorSamples returns sample errors for each category
func (eh *ErrorHandler) GetErrorSamples() map[ErrorCategory][]ErrorRecord {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	samples := make(map[ErrorCategory][]ErrorRecord)
	for category, records := range eh.sampleErrors {
		categorySamples := make([]ErrorRecord, len(records))
		copy(categorySamples, records)
		samples[category] = categorySamples
	}
	return samples
}

// GetTableErrorCounts returns error counts by table
func (eh *ErrorHandler) GetTableErrorCounts() map[string]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	tableCounts := make(map[string]int)
	for table, count := range eh.tableErrors {
		tableCounts[table] = count
	}
	return tableCounts
}

// Stage errors wrapped around driver and I/O failures so that CategorizeError
// can tell them apart
var (
	errRead         = errors.New("read failed")
	errWrite        = errors.New("write failed")
	errVerification = errors.New("verification failed")
)

// stageError joins a stage marker with the underlying error
type stageError struct {
	stage error
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }

func (e *stageError) Unwrap() []error { return []error{e.stage, e.err} }

func readError(err error) error         { return &stageError{stage: errRead, err: err} }
func writeError(err error) error        { return &stageError{stage: errWrite, err: err} }
func verificationError(err error) error { return &stageError{stage: errVerification, err: err} }
