// pkg/nps/nps.go
package nps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/config"
	"github.com/dbvcapital/data-ingress/pkg/connector"
	"github.com/dbvcapital/data-ingress/pkg/model"
	"github.com/dbvcapital/data-ingress/pkg/rawtable"
	"github.com/dbvcapital/data-ingress/pkg/source"
	"github.com/dbvcapital/data-ingress/pkg/workbook"
)

// File names of the survey pipeline, relative to the data directory
const (
	WorkbookName = "DBV Capital_NPS.xlsm"
	CSVName      = "DBV Capital_NPS.csv"
	DatabaseName = "DBV Capital_NPS.db"
	Table        = "nps"

	// OriginColumn records the sheet each survey row came from
	OriginColumn = "planilha_origem"
)

// Indexes are created on the survey table when their column is present
var Indexes = []model.Index{
	{Name: "idx_survey_id", Column: "SurveyID"},
	{Name: "idx_id_usuario", Column: "Id_Usuario"},
	{Name: "idx_customer_id", Column: "CustomerID"},
	{Name: "idx_codigo_assessor", Column: "CodigoAssessor"},
	{Name: "idx_status", Column: "Status"},
	{Name: "idx_planilha_origem", Column: OriginColumn},
}

// ExportResult describes a workbook export
type ExportResult struct {
	Sheets     []string
	SheetCSVs  []string
	Columns    []string
	Rows       int
	Unreadable map[string]error
}

// LoadResult describes a survey table load
type LoadResult struct {
	Columns []string
	Rows    int64
}

// Pipeline converts the survey workbook to CSV and the CSV to SQLite
type Pipeline struct {
	sqlite *config.SQLiteConfig
	writer *rawtable.Writer
	logger *zap.Logger
}

// NewPipeline creates a survey pipeline
func NewPipeline(cfg *config.Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.L().Named("nps")
	}
	return &Pipeline{
		sqlite: cfg.SQLite,
		writer: rawtable.NewWriter(logger.Named("rawtable")),
		logger: logger,
	}
}

// ExportWorkbook reads every sheet of the workbook, tags each row with its
// sheet name and writes the combined CSV (union of the sheets' columns in
// first-seen order). With more than one sheet each one is also written to
// its own CSV next to csvPath. CSVs carry a UTF-8 byte order mark.
func (p *Pipeline) ExportWorkbook(xlsmPath, csvPath string) (*ExportResult, error) {
	f, err := excelize.OpenFile(xlsmPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", xlsmPath, err)
	}
	defer f.Close()

	names := f.GetSheetList()
	p.logger.Info("Reading workbook", zap.String("workbook", xlsmPath), zap.Strings("sheets", names))

	result := &ExportResult{Unreadable: make(map[string]error)}
	var sheets []*workbook.Sheet
	for _, name := range names {
		sheet, err := workbook.ReadSheet(f, name)
		if err != nil {
			p.logger.Warn("Skipping unreadable sheet", zap.String("sheet", name), zap.Error(err))
			result.Unreadable[name] = err
			continue
		}
		tagOrigin(sheet)

		if len(names) > 1 {
			sheetCSV := filepath.Join(filepath.Dir(csvPath), SheetCSVName(name))
			if err := workbook.WriteCSV(sheetCSV, sheet.Header, sheet.Rows, true); err != nil {
				return result, err
			}
			result.SheetCSVs = append(result.SheetCSVs, sheetCSV)
		}

		p.logger.Info("Sheet read",
			zap.String("sheet", name),
			zap.Int("rows", len(sheet.Rows)),
			zap.Int("columns", len(sheet.Header)))
		result.Sheets = append(result.Sheets, name)
		sheets = append(sheets, sheet)
	}

	if len(sheets) == 0 {
		return result, fmt.Errorf("no readable sheet in %s", xlsmPath)
	}

	header, rows := combine(sheets)
	if err := workbook.WriteCSV(csvPath, header, rows, true); err != nil {
		return result, err
	}
	result.Columns = header
	result.Rows = len(rows)

	p.logger.Info("Survey CSV written",
		zap.String("csv", csvPath),
		zap.Int("rows", result.Rows),
		zap.Int("columns", len(header)))
	return result, nil
}

// SheetCSVName is the per-sheet CSV file name of a multi-sheet workbook
func SheetCSVName(sheet string) string {
	return fmt.Sprintf("DBV Capital_NPS_%s.csv", strings.ReplaceAll(sheet, " ", "_"))
}

// tagOrigin appends the origin column to a sheet
func tagOrigin(sheet *workbook.Sheet) {
	if len(sheet.Header) == 0 {
		return
	}
	sheet.Header = append(mangleDuplicates(sheet.Header), OriginColumn)
	for i := range sheet.Rows {
		sheet.Rows[i] = append(sheet.Rows[i], sheet.Name)
	}
}

// combine stacks sheets over the union of their columns; cells of columns a
// sheet lacks are empty
func combine(sheets []*workbook.Sheet) ([]string, [][]string) {
	var header []string
	position := make(map[string]int)
	for _, sheet := range sheets {
		for _, col := range sheet.Header {
			if _, ok := position[col]; !ok {
				position[col] = len(header)
				header = append(header, col)
			}
		}
	}

	var rows [][]string
	for _, sheet := range sheets {
		for _, row := range sheet.Rows {
			out := make([]string, len(header))
			for i, col := range sheet.Header {
				out[position[col]] = row[i]
			}
			rows = append(rows, out)
		}
	}
	return header, rows
}

// Load replaces the survey database with the content of the combined CSV
func (p *Pipeline) Load(ctx context.Context, csvPath, dbPath string) (*LoadResult, error) {
	reader, err := source.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", csvPath, err)
	}
	defer reader.Close()

	columns := SanitizeColumns(reader.Header())
	var rows [][]string
	for {
		batch, err := reader.Next(config.DefaultBatchSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
	}
	p.logger.Info("Survey CSV read",
		zap.String("csv", csvPath),
		zap.String("encoding", reader.Encoding()),
		zap.Int("rows", len(rows)),
		zap.Strings("columns", columns))

	if err := os.Remove(dbPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove %s (is it open in another program?): %w", dbPath, err)
	}

	conn, err := connector.NewSQLiteConnector(ctx, p.sqlite, dbPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	n, err := p.writer.Write(ctx, conn.DB(), rawtable.TableSpec{
		Name:        Table,
		Columns:     columns,
		Rows:        rows,
		SurrogateID: true,
		Indexes:     Indexes,
	})
	if err != nil {
		return nil, err
	}

	var count int64
	if err := conn.X().GetContext(ctx, &count, "SELECT COUNT(*) FROM "+Table); err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", Table, err)
	}
	if count != n {
		return nil, fmt.Errorf("table %s has %d rows, inserted %d", Table, count, n)
	}

	p.logger.Info("Survey table written",
		zap.String("database", dbPath),
		zap.String("table", Table),
		zap.Int64("rows", n))
	return &LoadResult{Columns: columns, Rows: n}, nil
}
