package main

import (
	"context"

	"github.com/autom8ter/sql2hub"
)

// setup loads the config and builds the logger every command shares
func setup(configPath string) (*sql2hub.Config, sql2hub.Logger, error) {
	cfg, err := sql2hub.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := sql2hub.NewLogger(cfg.Level(), map[string]any{
		"service": "sql2hub",
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Debug(context.Background(), cfg.String(), nil)
	return cfg, logger, nil
}

// openExecutor opens the database directly for the commands that do not publish
func openExecutor(ctx context.Context, cfg *sql2hub.Config, logger sql2hub.Logger) (*sql2hub.Executor, func(), error) {
	db, err := sql2hub.OpenDB(ctx, cfg.Driver, cfg.ConnectionString)
	if err != nil {
		return nil, nil, err
	}
	executor, err := sql2hub.NewExecutor(sql2hub.DBConnector{DB: db}, cfg.Query, cfg.MaxBatchSize, sql2hub.WithLogger(logger))
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return executor, func() {
		_ = executor.Close()
		_ = db.Close()
	}, nil
}
