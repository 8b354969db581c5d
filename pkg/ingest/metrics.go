package ingest

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/model"
)

// LoadMetrics collects per-run load metrics on a private registry
type LoadMetrics struct {
	mu        sync.Mutex
	logger    *zap.Logger
	registry  *prometheus.Registry
	StartTime time.Time
	EndTime   time.Time

	loads        *prometheus.CounterVec
	rowsWritten  *prometheus.CounterVec
	rowsDropped  *prometheus.CounterVec
	batches      *prometheus.CounterVec
	coercions    *prometheus.CounterVec
	loadDuration *prometheus.HistogramVec

	// Plain tallies for the end-of-run report
	byStatus map[LoadStatus]int
	rows     int64
}

// NewLoadMetrics creates the collectors and registers them
func NewLoadMetrics(logger *zap.Logger) *LoadMetrics {
	registry := prometheus.NewRegistry()

	m := &LoadMetrics{
		logger:    logger,
		registry:  registry,
		StartTime: time.Now(),
		byStatus:  make(map[LoadStatus]int),

		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbv_ingest_loads_total",
			Help: "Loads by document type and outcome",
		}, []string{"document_type", "status"}),

		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbv_ingest_rows_written_total",
			Help: "Rows written to output tables",
		}, []string{"document_type"}),

		rowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbv_ingest_rows_dropped_total",
			Help: "Rows dropped for lacking a required value",
		}, []string{"document_type"}),

		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbv_ingest_batches_total",
			Help: "Batches committed",
		}, []string{"document_type"}),

		coercions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbv_ingest_coercions_total",
			Help: "Cell values coerced to missing or zero",
		}, []string{"document_type", "column"}),

		loadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dbv_ingest_load_duration_seconds",
			Help:    "Duration of a document type load",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"document_type"}),
	}

	registry.MustRegister(m.loads, m.rowsWritten, m.rowsDropped, m.batches, m.coercions, m.loadDuration)
	return m
}

// Registry exposes the collectors for gathering
func (m *LoadMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordBatch counts one committed batch and its coercions
func (m *LoadMetrics) RecordBatch(docType string, ops []model.CleaningOperation) {
	m.batches.WithLabelValues(docType).Inc()
	for _, op := range ops {
		m.coercions.WithLabelValues(docType, op.ColumnName).Inc()
	}
}

// RecordLoad records a finished load
func (m *LoadMetrics) RecordLoad(result *LoadResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byStatus[result.Status]++
	m.loads.WithLabelValues(result.DocumentType, result.Status.String()).Inc()
	if result.Status == StatusSkipped {
		return
	}

	m.rows += result.RowsWritten
	m.rowsWritten.WithLabelValues(result.DocumentType).Add(float64(result.RowsWritten))
	m.rowsDropped.WithLabelValues(result.DocumentType).Add(float64(result.RowsDropped))
	m.loadDuration.WithLabelValues(result.DocumentType).Observe(result.Duration.Seconds())
}

// Complete marks the end of the run
func (m *LoadMetrics) Complete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndTime = time.Now()
}

// WriteTextfile writes the metrics in the node exporter textfile format
func (m *LoadMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	m.logger.Debug("Wrote metrics textfile", zap.String("path", path))
	return nil
}

// formatDuration formats a duration to a human-readable string
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// GenerateMetricsReport creates a short text report of the run
func (m *LoadMetrics) GenerateMetricsReport() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := m.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	duration := end.Sub(m.StartTime)

	var sb strings.Builder
	sb.WriteString("Ingestion Metrics Report\n")
	sb.WriteString("========================\n")
	sb.WriteString(fmt.Sprintf("Duration:      %s\n", formatDuration(duration)))
	sb.WriteString(fmt.Sprintf("Rows written:  %d\n", m.rows))

	statuses := make([]LoadStatus, 0, len(m.byStatus))
	for s := range m.byStatus {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	for _, s := range statuses {
		sb.WriteString(fmt.Sprintf("Loads %-8s %d\n", s.String()+":", m.byStatus[s]))
	}
	return sb.String()
}
