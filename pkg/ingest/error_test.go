package ingest

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/mapper"
)

func TestCategorizeError(t *testing.T) {
	eh := NewErrorHandler(zap.NewNop())

	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ErrorCategoryNone},
		{"busy", fmt.Errorf("%w: out.db: permission denied", ErrResourceBusy), ErrorCategoryResourceBusy},
		{"source missing", ErrSourceMissing, ErrorCategorySourceMissing},
		{"no mapped columns", fmt.Errorf("feebased: %w", mapper.ErrNoMappedColumns), ErrorCategoryConfiguration},
		{"read", readError(errors.New("bare quote")), ErrorCategoryRead},
		{"write", writeError(errors.New("disk full")), ErrorCategoryWrite},
		{"verification", verificationError(errors.New("3 rows (expected 4)")), ErrorCategoryVerification},
		{"unknown", errors.New("boom"), ErrorCategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eh.CategorizeError(tt.err); got != tt.want {
				t.Errorf("CategorizeError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStageErrorKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := writeError(fmt.Errorf("failed to insert row: %w", cause))

	if !errors.Is(err, cause) {
		t.Error("stage error should unwrap to its cause")
	}
	if err.Error() != "failed to insert row: disk full" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestErrorRecordString(t *testing.T) {
	r := NewErrorRecord(errors.New("bad value"), ErrorCategoryWrite).
		WithTable("DBV Capital_FeeBased.db", "dados").
		WithRow(7).
		WithColumn("pl")

	got := r.String()
	for _, want := range []string{"[Write]", "Table: DBV Capital_FeeBased.db:dados", "Row: 7", "Column: pl", "Error: bad value"} {
		if !strings.Contains(got, want) {
			t.Errorf("String() = %q, missing %q", got, want)
		}
	}
}

func TestErrorHandlerTallies(t *testing.T) {
	eh := NewErrorHandler(zap.NewNop())
	for i := 0; i < 7; i++ {
		eh.RecordError(NewErrorRecord(errors.New("x"), ErrorCategoryWrite).WithTable("a.db", "dados"))
	}
	eh.RecordError(NewErrorRecord(ErrResourceBusy, ErrorCategoryResourceBusy))

	summary := eh.GetErrorSummary()
	if summary[ErrorCategoryWrite] != 7 || summary[ErrorCategoryResourceBusy] != 1 {
		t.Errorf("summary = %v", summary)
	}
	if n := len(eh.GetErrorSamples()[ErrorCategoryWrite]); n != 5 {
		t.Errorf("samples = %d, want 5", n)
	}
	if n := eh.GetTableErrorCounts()["a.db:dados"]; n != 7 {
		t.Errorf("table errors = %d", n)
	}
	if !ErrorCategoryResourceBusy.Retryable() || ErrorCategoryWrite.Retryable() {
		t.Error("only busy outputs are retryable")
	}
}

func TestRunSummary(t *testing.T) {
	ok := &LoadResult{DocumentType: "feebased", Status: StatusSuccess, RowsWritten: 3, RowsDropped: 1, Coercions: 2}
	skipped := &LoadResult{DocumentType: "mesarv", Status: StatusSkipped}

	failed := &LoadResult{DocumentType: "receitas"}
	failed.AddError(NewErrorRecord(errors.New("boom"), ErrorCategoryInternal))
	failed.Complete(StatusSuccess)

	s := NewRunSummary("run-1")
	s.AddResult(ok)
	s.AddResult(skipped)
	if s.ExitCode() != 0 {
		t.Error("no failure yet")
	}
	s.AddResult(failed)
	s.Complete()

	if failed.Status != StatusFailed {
		t.Error("a result with errors must complete as failed")
	}
	if s.TotalRows != 3 || s.TotalDropped != 1 || s.Coercions != 2 {
		t.Errorf("totals = %d/%d/%d", s.TotalRows, s.TotalDropped, s.Coercions)
	}
	if s.ExitCode() != 1 || s.Failed["receitas"] == nil {
		t.Errorf("Failed = %v", s.Failed)
	}
	if s.Result("mesarv") != skipped || s.Result("nope") != nil {
		t.Error("Result lookup")
	}
}
