package nps

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/config"
)

func TestSanitizeColumn(t *testing.T) {
	tests := []struct {
		name  string
		index int
		want  string
	}{
		{"Survey ID", 0, "SurveyID"},
		{"Id do Usuario", 1, "Id_Usuario"},
		{"Customer-ID", 2, "CustomerID"},
		{"Codigo Assessor", 3, "CodigoAssessor"},
		{"Nota (0-10)", 4, "Nota_0_10"},
		{"Unnamed: 5", 5, "Col_5"},
		{"Data/Hora.Resposta", 6, "Data_Hora_Resposta"},
		{"  Comentário  ", 7, "Comentário"},
		{"???", 8, "col_8"},
		{"2024 Nota", 9, "col_2024_Nota"},
		{"Status", 10, "Status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeColumn(tt.name, tt.index); got != tt.want {
				t.Errorf("SanitizeColumn(%q, %d) = %q, want %q", tt.name, tt.index, got, tt.want)
			}
		})
	}
}

func TestSanitizeColumnsDeduplicates(t *testing.T) {
	got := SanitizeColumns([]string{"Nota", "Nota!", "Nota"})
	want := []string{"Nota", "Nota_2", "Nota_3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SanitizeColumns = %v, want %v", got, want)
	}
}

func writeSurveyWorkbook(t *testing.T, path string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Respostas 2024"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.NewSheet("Detratores"); err != nil {
		t.Fatal(err)
	}

	sheets := map[string][][]interface{}{
		"Respostas 2024": {
			{"Survey ID", "Nota", "Status"},
			{"S1", 10, "Respondida"},
			{"S2", 9, "Respondida"},
		},
		"Detratores": {
			{"Survey ID", "Nota", "Motivo"},
			{"S3", 3, "Atendimento"},
		},
	}
	for name, rows := range sheets {
		for r, row := range rows {
			cell, _ := excelize.CoordinatesToCellName(1, r+1)
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

func TestPipeline(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	xlsm := filepath.Join(dir, "survey.xlsx")
	writeSurveyWorkbook(t, xlsm)

	p := NewPipeline(&config.Config{SQLite: config.DefaultSQLiteConfig(), DataDir: dir}, zap.NewNop())

	csvPath := filepath.Join(dir, CSVName)
	export, err := p.ExportWorkbook(xlsm, csvPath)
	if err != nil {
		t.Fatalf("ExportWorkbook failed: %v", err)
	}
	if export.Rows != 3 {
		t.Errorf("Rows = %d, want 3", export.Rows)
	}
	wantCols := []string{"Survey ID", "Nota", "Status", OriginColumn, "Motivo"}
	if !reflect.DeepEqual(export.Columns, wantCols) {
		t.Errorf("Columns = %v, want %v", export.Columns, wantCols)
	}
	if len(export.SheetCSVs) != 2 {
		t.Fatalf("SheetCSVs = %v", export.SheetCSVs)
	}
	if filepath.Base(export.SheetCSVs[0]) != "DBV Capital_NPS_Respostas_2024.csv" {
		t.Errorf("sheet csv = %s", export.SheetCSVs[0])
	}

	raw, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}) {
		t.Error("combined CSV should start with a UTF-8 BOM")
	}

	dbPath := filepath.Join(dir, DatabaseName)
	for run := 0; run < 2; run++ {
		result, err := p.Load(ctx, csvPath, dbPath)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if result.Rows != 3 {
			t.Errorf("Rows = %d, want 3", result.Rows)
		}
		wantSQL := []string{"SurveyID", "Nota", "Status", OriginColumn, "Motivo"}
		if !reflect.DeepEqual(result.Columns, wantSQL) {
			t.Errorf("Columns = %v, want %v", result.Columns, wantSQL)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var count int
	var origin string
	if err := db.QueryRow(`SELECT COUNT(*) FROM nps`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow(`SELECT planilha_origem FROM nps WHERE SurveyID = 'S3'`).Scan(&origin); err != nil {
		t.Fatal(err)
	}
	if count != 3 || origin != "Detratores" {
		t.Errorf("count = %d, origin = %q", count, origin)
	}

	var motivo sql.NullString
	if err := db.QueryRow(`SELECT Motivo FROM nps WHERE SurveyID = 'S1'`).Scan(&motivo); err != nil {
		t.Fatal(err)
	}
	if motivo.Valid {
		t.Errorf("Motivo should be NULL for rows of the first sheet, got %q", motivo.String)
	}

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = 'nps' AND sql IS NOT NULL ORDER BY name`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatal(err)
		}
		indexes = append(indexes, name)
	}
	want := []string{"idx_planilha_origem", "idx_status", "idx_survey_id"}
	if !reflect.DeepEqual(indexes, want) {
		t.Errorf("indexes = %v, want %v", indexes, want)
	}
}

func TestCombine(t *testing.T) {
	header, rows := combine(nil)
	if header != nil || rows != nil {
		t.Errorf("combine(nil) = %v, %v", header, rows)
	}
}

func TestMangleDuplicates(t *testing.T) {
	got := mangleDuplicates([]string{"Nota", "Nota", "Status", "Nota"})
	want := []string{"Nota", "Nota.1", "Status", "Nota.2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mangleDuplicates = %v, want %v", got, want)
	}
}
