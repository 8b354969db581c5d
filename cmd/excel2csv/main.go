// cmd/excel2csv/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/config"
	"github.com/dbvcapital/data-ingress/pkg/workbook"
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

	exporter := workbook.NewExporter(cfg, logger.Named("workbook"))

	report := exporter.ExportAll()
	logReport(logger, "Workbooks", report)

	sheets, err := exporter.ExportObjetivosSheets(context.Background())
	if err != nil {
		logger.Error("Goal sheets export failed", zap.Error(err))
	}
	if sheets != nil {
		logReport(logger, "Goal sheets", sheets)
	}
}

func logReport(logger *zap.Logger, what string, r *workbook.Report) {
	for name, err := range r.Failed {
		logger.Error("Conversion failed", zap.String("file", name), zap.Error(err))
	}
	logger.Info(what+" processed",
		zap.Strings("converted", r.Converted),
		zap.Strings("skipped", r.Skipped),
		zap.Int("failed", len(r.Failed)))
}
