// pkg/workbook/workbook.go
package workbook

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/config"
	"github.com/dbvcapital/data-ingress/pkg/rawtable"
	"github.com/dbvcapital/data-ingress/pkg/schema"
)

// utf8BOM is written ahead of CSVs meant to be opened in Excel
const utf8BOM = "\ufeff"

// Sheet is one worksheet read as text: a header and rectangular rows
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string
}

// ReadSheet reads a worksheet's raw cell values. Rows are padded to the
// widest row, blank header cells are named "Unnamed: <n>" and rows with no
// value at all are skipped.
func ReadSheet(f *excelize.File, name string) (*Sheet, error) {
	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", name, err)
	}

	sheet := &Sheet{Name: name}
	if len(rows) == 0 {
		return sheet, nil
	}

	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}

	sheet.Header = pad(rows[0], width)
	for i, label := range sheet.Header {
		if strings.TrimSpace(label) == "" {
			sheet.Header[i] = fmt.Sprintf("Unnamed: %d", i)
		}
	}
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		sheet.Rows = append(sheet.Rows, pad(row, width))
	}
	return sheet, nil
}

// ExportFirstSheet converts the first worksheet of an xlsx file to a UTF-8
// CSV and returns the number of data rows written
func ExportFirstSheet(xlsxPath, csvPath string) (int, error) {
	f, err := excelize.OpenFile(xlsxPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", xlsxPath, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return 0, fmt.Errorf("%s has no sheets", xlsxPath)
	}

	sheet, err := ReadSheet(f, sheets[0])
	if err != nil {
		return 0, err
	}
	if err := WriteCSV(csvPath, sheet.Header, sheet.Rows, false); err != nil {
		return 0, err
	}
	return len(sheet.Rows), nil
}

// WriteCSV writes a header and rows as comma separated UTF-8, optionally
// prefixed with a byte order mark
func WriteCSV(path string, header []string, rows [][]string, bom bool) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	if bom {
		if _, err := file.WriteString(utf8BOM); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Report lists what an export did per file
type Report struct {
	Converted []string
	Skipped   []string
	Failed    map[string]error
}

func newReport() *Report {
	return &Report{Failed: make(map[string]error)}
}

// Exporter converts the workbooks found in the data directory
type Exporter struct {
	dataDir     string
	sqlite      *config.SQLiteConfig
	definitions []*schema.Definition
	writer      *rawtable.Writer
	logger      *zap.Logger
}

// NewExporter creates an exporter over the registry's document types
func NewExporter(cfg *config.Config, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.L().Named("workbook")
	}
	return &Exporter{
		dataDir:     cfg.DataDir,
		sqlite:      cfg.SQLite,
		definitions: schema.Default().Ordered(),
		writer:      rawtable.NewWriter(logger.Named("rawtable")),
		logger:      logger,
	}
}

// WithDefinitions restricts the export to the given document types
func (e *Exporter) WithDefinitions(defs []*schema.Definition) *Exporter {
	e.definitions = defs
	return e
}

// ExportAll converts every document type's workbook to its source CSV.
// Missing workbooks are skipped; a failed conversion does not stop the others.
func (e *Exporter) ExportAll() *Report {
	report := newReport()

	for _, def := range e.definitions {
		if def.Workbook == "" {
			continue
		}
		xlsxPath := filepath.Join(e.dataDir, def.Workbook)
		csvPath := filepath.Join(e.dataDir, def.Source)
		logger := e.logger.With(zap.String("workbook", def.Workbook))

		if _, err := os.Stat(xlsxPath); errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Workbook not found, skipping")
			report.Skipped = append(report.Skipped, def.Workbook)
			continue
		}

		n, err := ExportFirstSheet(xlsxPath, csvPath)
		if err != nil {
			logger.Error("Conversion failed", zap.Error(err))
			report.Failed[def.Workbook] = err
			continue
		}

		logger.Info("Workbook converted", zap.String("csv", csvPath), zap.Int("rows", n))
		report.Converted = append(report.Converted, def.Workbook)
	}
	return report
}

func pad(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
