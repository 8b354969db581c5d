package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/connector"
	"github.com/dbvcapital/data-ingress/pkg/converter"
	"github.com/dbvcapital/data-ingress/pkg/model"
)

// Verifier checks a freshly loaded table against what the loader wrote
type Verifier struct {
	logger  *zap.Logger
	timeout time.Duration
}

// VerificationReport is the outcome of Verify
type VerificationReport struct {
	Table          string
	ExpectedRows   int64
	ActualRows     int64
	MissingIndexes []string
}

// OK reports whether the table matched expectations
func (r *VerificationReport) OK() bool {
	return r.ExpectedRows == r.ActualRows && len(r.MissingIndexes) == 0
}

// NewVerifier creates a new verifier
func NewVerifier(logger *zap.Logger) *Verifier {
	return &Verifier{
		logger:  logger,
		timeout: time.Minute,
	}
}

// WithTimeout sets a custom timeout for verification queries
func (v *Verifier) WithTimeout(timeout time.Duration) *Verifier {
	v.timeout = timeout
	return v
}

// VerifyRowCount compares the table's row count with the number of rows written
func (v *Verifier) VerifyRowCount(
	ctx context.Context,
	db *connector.SQLiteConnector,
	table string,
	expected int64,
) (bool, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	var actual int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", converter.QuoteIdentifier(table))
	if err := db.X().GetContext(ctx, &actual, query); err != nil {
		return false, 0, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}

	matches := actual == expected
	if !matches {
		v.logger.Warn("Row count mismatch",
			zap.String("table", table),
			zap.Int64("expected", expected),
			zap.Int64("actual", actual),
			zap.Int64("difference", expected-actual))
	}
	return matches, actual, nil
}

// VerifyIndexes returns the declared indexes missing from the table
func (v *Verifier) VerifyIndexes(
	ctx context.Context,
	db *connector.SQLiteConnector,
	ts *model.TableSchema,
) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	present, err := db.IndexNames(ctx, ts.Table)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(present))
	for _, name := range present {
		have[name] = true
	}

	var missing []string
	for _, idx := range ts.Indexes {
		if !have[idx.Name] {
			missing = append(missing, idx.Name)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

// Verify runs every check and fails when any does not hold
func (v *Verifier) Verify(
	ctx context.Context,
	db *connector.SQLiteConnector,
	ts *model.TableSchema,
	expectedRows int64,
) (*VerificationReport, error) {
	report := &VerificationReport{Table: ts.Table, ExpectedRows: expectedRows}

	_, actual, err := v.VerifyRowCount(ctx, db, ts.Table, expectedRows)
	if err != nil {
		return report, err
	}
	report.ActualRows = actual

	missing, err := v.VerifyIndexes(ctx, db, ts)
	if err != nil {
		return report, err
	}
	report.MissingIndexes = missing

	if !report.OK() {
		return report, fmt.Errorf("table %s: %d rows (expected %d), missing indexes %v",
			ts.Table, report.ActualRows, report.ExpectedRows, report.MissingIndexes)
	}

	v.logger.Debug("Table verified",
		zap.String("table", ts.Table),
		zap.Int64("rows", actual),
		zap.Int("indexes", len(ts.Indexes)))
	return report, nil
}
