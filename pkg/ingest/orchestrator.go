package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/config"
	"github.com/dbvcapital/data-ingress/pkg/schema"
)

// Mirror copies a loaded table elsewhere after a successful load
type Mirror interface {
	Copy(ctx context.Context, def *schema.Definition, path string) (int64, error)
}

// Orchestrator runs the loads of every document type, one after another
type Orchestrator struct {
	cfg          *config.Config
	definitions  []*schema.Definition
	loader       *TableLoader
	mirror       Mirror
	metrics      *LoadMetrics
	errorHandler *ErrorHandler
	logger       *zap.Logger
}

// NewOrchestrator creates an orchestrator over the registry's document types
func NewOrchestrator(cfg *config.Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.L().Named("orchestrator")
	}
	metrics := NewLoadMetrics(logger.Named("metrics"))
	errorHandler := NewErrorHandler(logger)

	return &Orchestrator{
		cfg:          cfg,
		definitions:  schema.Default().Ordered(),
		loader:       NewTableLoader(cfg, logger.Named("loader")).WithMetrics(metrics).WithErrorHandler(errorHandler),
		metrics:      metrics,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// WithDefinitions restricts the run to the given document types, in order
func (o *Orchestrator) WithDefinitions(defs []*schema.Definition) *Orchestrator {
	o.definitions = defs
	return o
}

// WithMirror enables copying each successful load
func (o *Orchestrator) WithMirror(m Mirror) *Orchestrator {
	o.mirror = m
	return o
}

// Metrics returns the run's metrics collector
func (o *Orchestrator) Metrics() *LoadMetrics {
	return o.metrics
}

// ErrorHandler returns the run's error handler
func (o *Orchestrator) ErrorHandler() *ErrorHandler {
	return o.errorHandler
}

// Run loads every document type whose source file exists. It never fails:
// per-type outcomes are in the returned summary.
func (o *Orchestrator) Run(ctx context.Context) *RunSummary {
	summary := NewRunSummary(uuid.New().String())

	o.logger.Info("Starting ingestion run",
		zap.String("runID", summary.RunID),
		zap.String("dataDir", o.cfg.DataDir),
		zap.Int("documentTypes", len(o.definitions)))

	for _, def := range o.definitions {
		job := NewLoadJob(def,
			filepath.Join(o.cfg.DataDir, def.Source),
			filepath.Join(o.cfg.DataDir, def.Output)).WithRunID(summary.RunID)

		result := o.runOne(ctx, job)
		summary.AddResult(result)
	}

	summary.Complete()
	o.metrics.Complete()

	if o.cfg.MetricsTextfile != "" {
		if err := o.metrics.WriteTextfile(o.cfg.MetricsTextfile); err != nil {
			o.logger.Warn("Failed to write metrics", zap.Error(err))
		}
	}

	o.logSummary(summary)
	return summary
}

// runOne loads a single document type, turning a missing file into a skip
// and a panic into a failure
func (o *Orchestrator) runOne(ctx context.Context, job LoadJob) (result *LoadResult) {
	logger := o.logger.With(zap.String("documentType", job.DocumentType()))

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic while loading %s: %v", job.DocumentType(), r)
			logger.Error("Recovered from panic", zap.Error(err), zap.ByteString("stack", debug.Stack()))
			result = NewLoadResult(job)
			record := NewErrorRecord(err, ErrorCategoryInternal).WithTable(job.OutputPath, job.Definition.Table)
			o.errorHandler.RecordError(record)
			result.AddError(record)
			result.Complete(StatusFailed)
			o.metrics.RecordLoad(result)
		}
	}()

	if _, err := os.Stat(job.SourcePath); errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Skipping document type, file not found", zap.String("source", job.SourcePath))
		result = NewLoadResult(job)
		result.AddWarning(ErrSourceMissing.Error())
		result.Complete(StatusSkipped)
		o.metrics.RecordLoad(result)
		return result
	}

	logger.Info("Loading", zap.String("source", job.SourcePath), zap.String("output", job.OutputPath))
	result = o.loader.Load(ctx, job)

	if result.Status == StatusSuccess && o.mirror != nil {
		if n, err := o.mirror.Copy(ctx, job.Definition, job.OutputPath); err != nil {
			logger.Warn("Mirror failed", zap.Error(err))
			result.AddWarning(fmt.Sprintf("mirror failed: %v", err))
		} else {
			logger.Debug("Mirrored", zap.Int64("rows", n))
		}
	}
	return result
}

func (o *Orchestrator) logSummary(s *RunSummary) {
	for _, r := range s.Results {
		fields := []zap.Field{
			zap.String("documentType", r.DocumentType),
			zap.String("status", r.Status.String()),
			zap.Int64("rows", r.RowsWritten),
			zap.Int("coercions", r.Coercions),
			zap.Strings("warnings", r.Warnings),
		}
		if err := r.Err(); err != nil {
			fields = append(fields, zap.Error(err))
		}
		o.logger.Info("Load result", fields...)
	}

	o.logger.Info("Ingestion run finished",
		zap.String("runID", s.RunID),
		zap.Int("succeeded", len(s.Succeeded)),
		zap.Int("skipped", len(s.Skipped)),
		zap.Int("failed", len(s.Failed)),
		zap.Int64("rows", s.TotalRows),
		zap.Duration("duration", s.Duration))
	o.logger.Debug(o.metrics.GenerateMetricsReport())
}
