package ingest

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/config"
	"github.com/dbvcapital/data-ingress/pkg/mapper"
	"github.com/dbvcapital/data-ingress/pkg/schema"
)

const feeBasedCSV = "Código Cliente,Nome Cliente,Taxa Contratação\n" +
	"1,Ana,\"1,50%\"\n" +
	"2,Bruno,\"2,00%\"\n" +
	"3,Carla,-\n"

func testConfig(dir string) *config.Config {
	return &config.Config{
		SQLite:         config.DefaultSQLiteConfig(),
		DataDir:        dir,
		BatchSize:      2,
		TrackCoercions: true,
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

func lookup(t *testing.T, docType string) *schema.Definition {
	t.Helper()
	def, err := schema.Default().Lookup(docType)
	if err != nil {
		t.Fatal(err)
	}
	return def
}

// writeSource writes the definition's source CSV into dir and returns the job
func writeSource(t *testing.T, dir string, def *schema.Definition, content string) LoadJob {
	t.Helper()
	src := filepath.Join(dir, def.Source)
	if err := os.WriteFile(src, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return NewLoadJob(def, src, filepath.Join(dir, def.Output)).WithRunID("test-run")
}

func openOutput(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM "` + table + `"`).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestLoadFeeBased(t *testing.T) {
	dir := t.TempDir()
	job := writeSource(t, dir, lookup(t, "feebased"), feeBasedCSV)

	loader := NewTableLoader(testConfig(dir), zap.NewNop())
	result := loader.Load(context.Background(), job)

	if result.Status != StatusSuccess {
		t.Fatalf("Status = %v, err = %v", result.Status, result.Err())
	}
	if result.RowsRead != 3 || result.RowsWritten != 3 || result.RowsDropped != 0 {
		t.Errorf("rows read/written/dropped = %d/%d/%d", result.RowsRead, result.RowsWritten, result.RowsDropped)
	}
	if result.Batches != 2 {
		t.Errorf("Batches = %d, want 2", result.Batches)
	}
	if len(result.Missing) == 0 || len(result.Warnings) == 0 {
		t.Errorf("expected missing-column warning, got %v", result.Warnings)
	}

	db := openOutput(t, job.OutputPath)
	rows, err := db.Query(`SELECT codigo_cliente, taxa_contratacao, pl FROM dados ORDER BY id`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()

	want := []struct {
		codigo string
		taxa   float64
	}{{"1", 0.015}, {"2", 0.02}, {"3", 0.0}}

	i := 0
	for rows.Next() {
		var codigo string
		var taxa float64
		var pl sql.NullFloat64
		if err := rows.Scan(&codigo, &taxa, &pl); err != nil {
			t.Fatal(err)
		}
		if i >= len(want) {
			t.Fatalf("unexpected row %d", i)
		}
		if codigo != want[i].codigo || math.Abs(taxa-want[i].taxa) > 1e-12 {
			t.Errorf("row %d = (%s, %v), want (%s, %v)", i, codigo, taxa, want[i].codigo, want[i].taxa)
		}
		if pl.Valid {
			t.Errorf("row %d: pl should be NULL, got %v", i, pl.Float64)
		}
		i++
	}
	if i != len(want) {
		t.Fatalf("got %d rows, want %d", i, len(want))
	}

	var indexes int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_%'`).Scan(&indexes); err != nil {
		t.Fatal(err)
	}
	if indexes != 4 {
		t.Errorf("indexes = %d, want 4", indexes)
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	job := writeSource(t, dir, lookup(t, "feebased"), feeBasedCSV)
	loader := NewTableLoader(testConfig(dir), zap.NewNop())

	for run := 1; run <= 2; run++ {
		result := loader.Load(context.Background(), job)
		if result.Status != StatusSuccess {
			t.Fatalf("run %d: %v", run, result.Err())
		}
	}

	db := openOutput(t, job.OutputPath)
	if n := countRows(t, db, "dados"); n != 3 {
		t.Errorf("rows after two runs = %d, want 3", n)
	}
}

func TestLoadTracksCoercions(t *testing.T) {
	dir := t.TempDir()
	job := writeSource(t, dir, lookup(t, "feebased"), "Código Cliente,P/L,Data Contratação\n"+
		"1,\"1.234,56\",2024-03-15\n"+
		"2,abc,ontem\n")

	result := NewTableLoader(testConfig(dir), zap.NewNop()).Load(context.Background(), job)
	if result.Status != StatusSuccess {
		t.Fatalf("Load failed: %v", result.Err())
	}
	if result.Coercions != 2 {
		t.Errorf("Coercions = %d, want 2", result.Coercions)
	}

	db := openOutput(t, job.OutputPath)
	if n := countRows(t, db, "ingest_coercions"); n != 2 {
		t.Errorf("tracked coercions = %d, want 2", n)
	}
}

func TestLoadDropsRowsWithoutRequiredValue(t *testing.T) {
	dir := t.TempDir()
	job := writeSource(t, dir, lookup(t, "clientes"), "XP 1,Nome,Código DBV\n"+
		"123.0,Ana,10.0\n"+
		"456,Bruno,\n"+
		"789,Carla,30\n")

	result := NewTableLoader(testConfig(dir), zap.NewNop()).Load(context.Background(), job)
	if result.Status != StatusSuccess {
		t.Fatalf("Load failed: %v", result.Err())
	}
	if result.RowsWritten != 2 || result.RowsDropped != 1 {
		t.Errorf("written/dropped = %d/%d, want 2/1", result.RowsWritten, result.RowsDropped)
	}

	db := openOutput(t, job.OutputPath)
	var xp, codigo string
	if err := db.QueryRow(`SELECT xp_1, codigo_dbv FROM clientes ORDER BY id LIMIT 1`).Scan(&xp, &codigo); err != nil {
		t.Fatal(err)
	}
	if xp != "123" || codigo != "10" {
		t.Errorf("first row = (%s, %s), want (123, 10)", xp, codigo)
	}
}

func TestLoadSkipsMissingSource(t *testing.T) {
	dir := t.TempDir()
	def := lookup(t, "feebased")
	job := NewLoadJob(def, filepath.Join(dir, def.Source), filepath.Join(dir, def.Output))

	result := NewTableLoader(testConfig(dir), zap.NewNop()).Load(context.Background(), job)
	if result.Status != StatusSkipped {
		t.Fatalf("Status = %v, want skipped", result.Status)
	}
	if _, err := os.Stat(job.OutputPath); !errors.Is(err, fs.ErrNotExist) {
		t.Error("no output should be created for a missing source")
	}
}

func TestLoadOutputBusy(t *testing.T) {
	dir := t.TempDir()
	job := writeSource(t, dir, lookup(t, "feebased"), feeBasedCSV)

	existing := []byte("held open by another program")
	if err := os.WriteFile(job.OutputPath, existing, 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewTableLoader(testConfig(dir), zap.NewNop())
	loader.removeFile = func(path string) error {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrPermission}
	}

	result := loader.Load(context.Background(), job)
	if result.Status != StatusFailed {
		t.Fatalf("Status = %v, want failed", result.Status)
	}
	if !errors.Is(result.Err(), ErrResourceBusy) {
		t.Errorf("err = %v, want ErrResourceBusy", result.Err())
	}
	if got := result.Errors[0].Category; got != ErrorCategoryResourceBusy {
		t.Errorf("Category = %v", got)
	}

	got, err := os.ReadFile(job.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, existing) {
		t.Error("busy output file was modified")
	}
}

func TestLoadNoMappedColumns(t *testing.T) {
	dir := t.TempDir()
	job := writeSource(t, dir, lookup(t, "feebased"), "foo;bar\n1;2\n")

	existing := []byte("previous output")
	if err := os.WriteFile(job.OutputPath, existing, 0o644); err != nil {
		t.Fatal(err)
	}

	result := NewTableLoader(testConfig(dir), zap.NewNop()).Load(context.Background(), job)
	if result.Status != StatusFailed {
		t.Fatalf("Status = %v, want failed", result.Status)
	}
	if !errors.Is(result.Err(), mapper.ErrNoMappedColumns) {
		t.Errorf("err = %v, want ErrNoMappedColumns", result.Err())
	}
	if got := result.Errors[0].Category; got != ErrorCategoryConfiguration {
		t.Errorf("Category = %v", got)
	}

	if got, _ := os.ReadFile(job.OutputPath); !bytes.Equal(got, existing) {
		t.Error("output should be left untouched on a configuration error")
	}
}

func TestLoadPreservesSharedDatabase(t *testing.T) {
	dir := t.TempDir()
	def := lookup(t, "objetivos")
	job := writeSource(t, dir, def, "Data,AUC Total,Receita Mensal\n"+
		"2024-03-01,\"1.000,50\",10\n"+
		"2024-03-02,\"2.000,00\",\n")

	// A sheet table written by the workbook export lives in the same file
	db := openOutput(t, job.OutputPath)
	if _, err := db.Exec(`CREATE TABLE saude (data TEXT, valor REAL); INSERT INTO saude VALUES ('2024-03-01', 1.5)`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	loader := NewTableLoader(testConfig(dir), zap.NewNop())
	for run := 1; run <= 2; run++ {
		if result := loader.Load(context.Background(), job); result.Status != StatusSuccess {
			t.Fatalf("run %d: %v", run, result.Err())
		}
	}

	db = openOutput(t, job.OutputPath)
	if n := countRows(t, db, "saude"); n != 1 {
		t.Errorf("saude rows = %d, want 1", n)
	}
	if n := countRows(t, db, "objetivos"); n != 2 {
		t.Errorf("objetivos rows = %d, want 2", n)
	}

	var auc float64
	if err := db.QueryRow(`SELECT auc_total FROM objetivos ORDER BY id LIMIT 1`).Scan(&auc); err != nil {
		t.Fatal(err)
	}
	if auc != 1000.5 {
		t.Errorf("auc_total = %v, want 1000.5", auc)
	}
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"permission", &fs.PathError{Op: "remove", Err: fs.ErrPermission}, true},
		{"not exist", &fs.PathError{Op: "remove", Err: fs.ErrNotExist}, false},
		{"other", errors.New("disk on fire"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBusy(tt.err); got != tt.want {
				t.Errorf("isBusy(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
