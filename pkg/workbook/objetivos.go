// pkg/workbook/objetivos.go
package workbook

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/connector"
	"github.com/dbvcapital/data-ingress/pkg/locale"
	"github.com/dbvcapital/data-ingress/pkg/rawtable"
)

const (
	ObjetivosWorkbook = "DBV Capital_Objetivos.xlsx"
	ObjetivosDatabase = "DBV Capital_Objetivos.db"
)

// SheetExport names the CSV a goal sheet is exported to
type SheetExport struct {
	Sheet string
	CSV   string
}

// ObjetivosSheets are the goal sheets exported from the Objetivos workbook, in order
var ObjetivosSheets = []SheetExport{
	{Sheet: "Objetivos_PJ1", CSV: "DBV Capital_Objetivo_PJ1.csv"},
	{Sheet: "Saúde", CSV: "DBV Capital_Saude.csv"},
	{Sheet: "Consórcio", CSV: "DBV Capital_Consorcio.csv"},
	{Sheet: "Vida", CSV: "DBV Capital_Vida.csv"},
	{Sheet: "AutoRE", CSV: "DBV Capital_AutoRE.csv"},
	{Sheet: "Financiamento", CSV: "DBV Capital_Financiamento.csv"},
	{Sheet: "Crédito", CSV: "DBV Capital_Credito.csv"},
	{Sheet: "Câmbio", CSV: "DBV Capital_Cambio.csv"},
}

// ExportObjetivosSheets exports every goal sheet of the Objetivos workbook
// to its CSV, with normalised column names, and replaces the sheet's table
// in the Objetivos database. Other tables in that database are kept.
func (e *Exporter) ExportObjetivosSheets(ctx context.Context) (*Report, error) {
	report := newReport()
	xlsxPath := filepath.Join(e.dataDir, ObjetivosWorkbook)

	if _, err := os.Stat(xlsxPath); errors.Is(err, fs.ErrNotExist) {
		e.logger.Warn("Workbook not found, skipping", zap.String("workbook", ObjetivosWorkbook))
		report.Skipped = append(report.Skipped, ObjetivosWorkbook)
		return report, nil
	}

	f, err := excelize.OpenFile(xlsxPath)
	if err != nil {
		return report, fmt.Errorf("failed to open %s: %w", xlsxPath, err)
	}
	defer f.Close()

	available := make(map[string]bool)
	for _, name := range f.GetSheetList() {
		available[name] = true
	}

	// Step 1: read and export the CSVs
	var sheets []*Sheet
	for _, export := range ObjetivosSheets {
		if !available[export.Sheet] {
			e.logger.Warn("Sheet not found, skipping",
				zap.String("workbook", ObjetivosWorkbook),
				zap.String("sheet", export.Sheet))
			report.Skipped = append(report.Skipped, export.Sheet)
			continue
		}

		sheet, err := ReadSheet(f, export.Sheet)
		if err != nil {
			report.Failed[export.Sheet] = err
			continue
		}
		sheet.Header = locale.NormalizeColumns(sheet.Header)

		csvPath := filepath.Join(e.dataDir, export.CSV)
		if err := WriteCSV(csvPath, sheet.Header, sheet.Rows, false); err != nil {
			report.Failed[export.Sheet] = err
			continue
		}
		e.logger.Info("Sheet exported",
			zap.String("sheet", export.Sheet),
			zap.String("csv", csvPath),
			zap.Int("rows", len(sheet.Rows)))
		sheets = append(sheets, sheet)
	}

	if len(sheets) == 0 {
		return report, nil
	}

	// Step 2: one table per sheet in the shared database
	dbPath := filepath.Join(e.dataDir, ObjetivosDatabase)
	conn, err := connector.NewSQLiteConnector(ctx, e.sqlite, dbPath)
	if err != nil {
		return report, err
	}
	defer conn.Close()

	for _, sheet := range sheets {
		if len(sheet.Header) == 0 {
			e.logger.Warn("Empty sheet, no table written", zap.String("sheet", sheet.Name))
			report.Converted = append(report.Converted, sheet.Name)
			continue
		}

		table := locale.NormalizeIdentifier(sheet.Name)
		n, err := e.writer.Write(ctx, conn.DB(), rawtable.TableSpec{
			Name:    table,
			Columns: sheet.Header,
			Rows:    sheet.Rows,
		})
		if err != nil {
			report.Failed[sheet.Name] = err
			continue
		}
		e.logger.Info("Sheet table written",
			zap.String("database", dbPath),
			zap.String("table", table),
			zap.Int64("rows", n))
		report.Converted = append(report.Converted, sheet.Name)
	}
	return report, nil
}
