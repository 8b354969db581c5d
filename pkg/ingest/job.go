package ingest

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dbvcapital/data-ingress/pkg/schema"
)

// LoadJob represents the load of one source file into its output database
type LoadJob struct {
	ID         string // Unique job identifier
	RunID      string // Identifier shared by the jobs of one orchestrator run
	Definition *schema.Definition
	SourcePath string
	OutputPath string
	CreatedAt  time.Time
}

// NewLoadJob creates a load job with a fresh id
func NewLoadJob(def *schema.Definition, sourcePath, outputPath string) LoadJob {
	return LoadJob{
		ID:         uuid.New().String(),
		Definition: def,
		SourcePath: sourcePath,
		OutputPath: outputPath,
		CreatedAt:  time.Now(),
	}
}

// WithRunID sets the run identifier and returns the modified job
func (j LoadJob) WithRunID(runID string) LoadJob {
	j.RunID = runID
	return j
}

// DocumentType returns the document type name
func (j LoadJob) DocumentType() string {
	if j.Definition == nil {
		return ""
	}
	return j.Definition.Name
}

// FullName returns the output file and table the job writes
func (j LoadJob) FullName() string {
	if j.Definition == nil {
		return j.OutputPath
	}
	return fmt.Sprintf("%s:%s", j.OutputPath, j.Definition.Table)
}

// LoadStatus is the outcome of a load
type LoadStatus int

const (
	StatusSuccess LoadStatus = iota
	StatusSkipped
	StatusFailed
)

func (s LoadStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// LoadResult represents the result of a load
type LoadResult struct {
	JobID        string
	DocumentType string
	SourcePath   string
	OutputPath   string
	Table        string
	Status       LoadStatus
	Encoding     string
	Columns      []string
	Missing      []string // declared headers absent from the source
	RowsRead     int64
	RowsWritten  int64
	RowsDropped  int64
	Coercions    int
	Batches      int
	Errors       []ErrorRecord
	Warnings     []string
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
}

// NewLoadResult initializes a load result for a job
func NewLoadResult(job LoadJob) *LoadResult {
	r := &LoadResult{
		JobID:        job.ID,
		DocumentType: job.DocumentType(),
		SourcePath:   job.SourcePath,
		OutputPath:   job.OutputPath,
		StartTime:    time.Now(),
		Errors:       make([]ErrorRecord, 0),
		Warnings:     make([]string, 0),
	}
	if job.Definition != nil {
		r.Table = job.Definition.Table
	}
	return r
}

// Complete marks the load as finished and calculates duration. A result
// that collected errors is failed whatever status is passed.
func (r *LoadResult) Complete(status LoadStatus) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	r.Status = status
	if len(r.Errors) > 0 {
		r.Status = StatusFailed
	}
}

// AddError adds an error to the result
func (r *LoadResult) AddError(err ErrorRecord) {
	r.Errors = append(r.Errors, err)
}

// AddWarning adds a warning to the result
func (r *LoadResult) AddWarning(warning string) {
	r.Warnings = append(r.Warnings, warning)
}

// Err returns the first error of a failed result
func (r *LoadResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0].Error
}

// RunSummary represents the outcome of an orchestrator run
type RunSummary struct {
	RunID        string
	Results      []*LoadResult
	Succeeded    []string
	Skipped      []string
	Failed       map[string]error
	TotalRows    int64
	TotalDropped int64
	Coercions    int
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
}

// NewRunSummary initializes a new run summary
func NewRunSummary(runID string) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		StartTime: time.Now(),
		Succeeded: make([]string, 0),
		Skipped:   make([]string, 0),
		Failed:    make(map[string]error),
	}
}

// AddResult incorporates a load result into the summary
func (s *RunSummary) AddResult(result *LoadResult) {
	s.Results = append(s.Results, result)
	switch result.Status {
	case StatusSuccess:
		s.Succeeded = append(s.Succeeded, result.DocumentType)
		s.TotalRows += result.RowsWritten
		s.TotalDropped += result.RowsDropped
		s.Coercions += result.Coercions
	case StatusSkipped:
		s.Skipped = append(s.Skipped, result.DocumentType)
	default:
		if err := result.Err(); err != nil {
			s.Failed[result.DocumentType] = err
		} else {
			s.Failed[result.DocumentType] = fmt.Errorf("unknown error")
		}
	}
}

// Complete marks the run as complete and calculates duration
func (s *RunSummary) Complete() {
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// Result returns the result of a document type, or nil
func (s *RunSummary) Result(docType string) *LoadResult {
	for _, r := range s.Results {
		if r.DocumentType == docType {
			return r
		}
	}
	return nil
}

// ExitCode is 0 when nothing failed and 1 otherwise
func (s *RunSummary) ExitCode() int {
	if len(s.Failed) > 0 {
		return 1
	}
	return 0
}
