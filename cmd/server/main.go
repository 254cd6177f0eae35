// Package main runs the operations HTTP server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dharsanguruparan/amenagements/internal/api"
	"github.com/dharsanguruparan/amenagements/internal/config"
	"github.com/dharsanguruparan/amenagements/internal/database"
	"github.com/dharsanguruparan/amenagements/internal/logging"
	"github.com/dharsanguruparan/amenagements/internal/repository"
	"github.com/dharsanguruparan/amenagements/internal/s3storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", logging.Err(err))
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect database", logging.Err(err))
		os.Exit(1)
	}
	defer pool.Close()
	files, err := s3storage.New(cfg)
	if err != nil {
		logger.Error("init storage", logging.Err(err))
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv := api.New(cfg, repository.New(pool), files, reg, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped", logging.Err(err))
		os.Exit(1)
	}
}
