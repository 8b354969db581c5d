package workbook

import (
	"context"
	"database/sql"
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/config"
	"github.com/dbvcapital/data-ingress/pkg/schema"
)

// writeWorkbook saves a workbook whose sheets are given in order as rows of cells
func writeWorkbook(t *testing.T, path string, sheets []string, data map[string][][]interface{}) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, name := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				t.Fatal(err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			t.Fatal(err)
		}
		for r, row := range data[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatal(err)
			}
			row := row
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return records
}

func testConfig(dir string) *config.Config {
	return &config.Config{SQLite: config.DefaultSQLiteConfig(), DataDir: dir}
}

func TestExportFirstSheet(t *testing.T) {
	dir := t.TempDir()
	xlsx := filepath.Join(dir, "in.xlsx")
	writeWorkbook(t, xlsx, []string{"Dados", "Outra"}, map[string][][]interface{}{
		"Dados": {
			{"Código Cliente", "Taxa Contratação", nil, "P/L"},
			{"1", 0.015, nil, 1234.56},
			{},
			{"2", "2,00%"},
		},
		"Outra": {{"ignored"}},
	})

	csvPath := filepath.Join(dir, "out.csv")
	n, err := ExportFirstSheet(xlsx, csvPath)
	if err != nil {
		t.Fatalf("ExportFirstSheet failed: %v", err)
	}
	if n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}

	want := [][]string{
		{"Código Cliente", "Taxa Contratação", "Unnamed: 2", "P/L"},
		{"1", "0.015", "", "1234.56"},
		{"2", "2,00%", "", ""},
	}
	if got := readCSV(t, csvPath); !reflect.DeepEqual(got, want) {
		t.Errorf("csv = %q\nwant %q", got, want)
	}
}

func TestExportAll(t *testing.T) {
	dir := t.TempDir()
	reg := schema.Default()
	feebased, _ := reg.Lookup("feebased")
	receitas, _ := reg.Lookup("receitas")

	writeWorkbook(t, filepath.Join(dir, feebased.Workbook), []string{"Plan1"}, map[string][][]interface{}{
		"Plan1": {{"Código Cliente", "Nome Cliente"}, {"1", "Ana"}},
	})

	report := NewExporter(testConfig(dir), zap.NewNop()).
		WithDefinitions([]*schema.Definition{feebased, receitas}).
		ExportAll()

	if !reflect.DeepEqual(report.Converted, []string{feebased.Workbook}) {
		t.Errorf("Converted = %v", report.Converted)
	}
	if !reflect.DeepEqual(report.Skipped, []string{receitas.Workbook}) {
		t.Errorf("Skipped = %v", report.Skipped)
	}
	if len(report.Failed) != 0 {
		t.Errorf("Failed = %v", report.Failed)
	}

	got := readCSV(t, filepath.Join(dir, feebased.Source))
	if len(got) != 2 || got[1][1] != "Ana" {
		t.Errorf("csv = %q", got)
	}
}

func TestExportObjetivosSheets(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	writeWorkbook(t, filepath.Join(dir, ObjetivosWorkbook), []string{"Objetivos_PJ1", "Saúde", "Resumo"}, map[string][][]interface{}{
		"Objetivos_PJ1": {
			{"Assessor", "Meta Mensal", "Meta Mensal"},
			{"A1", 1000, 2000},
			{"A2", 1500.5, nil},
		},
		"Saúde": {
			{"Nome do Cliente", "Prêmio"},
			{"Ana", 10},
		},
		"Resumo": {{"x"}},
	})

	// A table loaded from the Objetivos CSV must survive the export
	dbPath := filepath.Join(dir, ObjetivosDatabase)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TABLE objetivos (id INTEGER PRIMARY KEY, data TEXT)`); err != nil {
		t.Fatal(err)
	}

	report, err := NewExporter(testConfig(dir), zap.NewNop()).ExportObjetivosSheets(ctx)
	if err != nil {
		t.Fatalf("ExportObjetivosSheets failed: %v", err)
	}
	if !reflect.DeepEqual(report.Converted, []string{"Objetivos_PJ1", "Saúde"}) {
		t.Errorf("Converted = %v", report.Converted)
	}
	if len(report.Skipped) != 6 {
		t.Errorf("Skipped = %v, want the 6 absent sheets", report.Skipped)
	}

	header := readCSV(t, filepath.Join(dir, "DBV Capital_Objetivo_PJ1.csv"))[0]
	if !reflect.DeepEqual(header, []string{"assessor", "meta_mensal", "meta_mensal_2"}) {
		t.Errorf("PJ1 header = %v", header)
	}
	if header := readCSV(t, filepath.Join(dir, "DBV Capital_Saude.csv"))[0]; !reflect.DeepEqual(header, []string{"nome_do_cliente", "premio"}) {
		t.Errorf("Saude header = %v", header)
	}

	tests := []struct {
		table string
		rows  int
	}{
		{"objetivos_pj1", 2},
		{"saude", 1},
		{"objetivos", 0},
	}
	for _, tt := range tests {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM "` + tt.table + `"`).Scan(&n); err != nil {
			t.Errorf("table %s: %v", tt.table, err)
			continue
		}
		if n != tt.rows {
			t.Errorf("table %s has %d rows, want %d", tt.table, n, tt.rows)
		}
	}

	var meta float64
	if err := db.QueryRow(`SELECT meta_mensal FROM objetivos_pj1 WHERE assessor = 'A2'`).Scan(&meta); err != nil {
		t.Fatal(err)
	}
	if meta != 1500.5 {
		t.Errorf("meta_mensal = %v", meta)
	}
}

func TestExportObjetivosWithoutWorkbook(t *testing.T) {
	report, err := NewExporter(testConfig(t.TempDir()), zap.NewNop()).ExportObjetivosSheets(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(report.Skipped, []string{ObjetivosWorkbook}) {
		t.Errorf("Skipped = %v", report.Skipped)
	}
}
