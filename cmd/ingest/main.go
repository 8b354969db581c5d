// cmd/ingest/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/config"
	"github.com/dbvcapital/data-ingress/pkg/connector"
	"github.com/dbvcapital/data-ingress/pkg/ingest"
	"github.com/dbvcapital/data-ingress/pkg/mirror"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orchestrator := ingest.NewOrchestrator(cfg, logger.Named("ingest"))

	if cfg.MirrorEnabled {
		pg, err := connector.NewConnectorFactory(cfg, logger.Named("connector")).CreatePostgresConnector(ctx)
		if err != nil {
			logger.Warn("PostgreSQL mirror unavailable, loading SQLite outputs only", zap.Error(err))
		} else {
			defer pg.Close()
			orchestrator.WithMirror(mirror.New(pg, cfg.MirrorSchema, cfg.SQLite, logger.Named("mirror")))
		}
	}

	summary := orchestrator.Run(ctx)

	for docType, err := range summary.Failed {
		logger.Error("Document type failed", zap.String("documentType", docType), zap.Error(err))
	}
	logger.Info("Done",
		zap.Int("succeeded", len(summary.Succeeded)),
		zap.Int("skipped", len(summary.Skipped)),
		zap.Int("failed", len(summary.Failed)),
		zap.Int("exitCode", summary.ExitCode()))
}
