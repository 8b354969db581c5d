// pkg/connector/factory.go
package connector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dbvcapital/data-ingress/pkg/config"
)

// ConnectorFactory creates database connectors
type ConnectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(cfg *config.Config, logger *zap.Logger) *ConnectorFactory {
	if logger == nil {
		logger = zap.L().Named("connector-factory")
	}
	return &ConnectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateSQLiteConnector opens the output database at path
func (f *ConnectorFactory) CreateSQLiteConnector(ctx context.Context, path string) (*SQLiteConnector, error) {
	connector, err := NewSQLiteConnector(ctx, f.cfg.SQLite, path)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite connector: %w", err)
	}
	return connector, nil
}

// CreatePostgresConnector creates a new PostgreSQL connector for the mirror
func (f *ConnectorFactory) CreatePostgresConnector(ctx context.Context) (*PostgresConnector, error) {
	if f.cfg.Postgres == nil {
		return nil, errors.New("postgres is not configured")
	}
	f.logger.Info("Creating PostgreSQL connector")

	connector, err := NewPostgresConnector(ctx, f.cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connector: %w", err)
	}

	if err := connector.Validate(); err != nil {
		connector.Close()
		return nil, err
	}
	return connector, nil
}
