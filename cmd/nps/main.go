// cmd/nps/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/config"
	"github.com/dbvcapital/data-ingress/pkg/nps"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	pipeline := nps.NewPipeline(cfg, logger.Named("nps"))
	xlsmPath := filepath.Join(cfg.DataDir, nps.WorkbookName)
	csvPath := filepath.Join(cfg.DataDir, nps.CSVName)
	dbPath := filepath.Join(cfg.DataDir, nps.DatabaseName)

	// Step 1: workbook to CSV, when the workbook is present
	if _, err := os.Stat(xlsmPath); errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Survey workbook not found, loading the existing CSV", zap.String("workbook", xlsmPath))
	} else if _, err := pipeline.ExportWorkbook(xlsmPath, csvPath); err != nil {
		logger.Error("Survey workbook export failed (is the file open or corrupted?)", zap.Error(err))
	}

	// Step 2: CSV to SQLite
	if _, err := os.Stat(csvPath); errors.Is(err, fs.ErrNotExist) {
		logger.Error("Survey CSV not found", zap.String("csv", csvPath))
		return
	}
	result, err := pipeline.Load(context.Background(), csvPath, dbPath)
	if err != nil {
		logger.Error("Survey load failed", zap.Error(err))
		return
	}
	logger.Info("Done", zap.String("database", dbPath), zap.Int64("rows", result.Rows))
}
