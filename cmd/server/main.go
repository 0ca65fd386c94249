package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/pgxbridge/internal/api"
	"github.com/pgxbridge/internal/config"
	"github.com/pgxbridge/internal/database"
	"github.com/pgxbridge/internal/feedback"
	"github.com/pgxbridge/internal/metrics"
	"github.com/pgxbridge/internal/reference"
	"github.com/pgxbridge/internal/repository"
	"github.com/pgxbridge/internal/service"
	"github.com/pgxbridge/pkg/external"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := config.NewLogger(cfg.Logging)

	// The reference table is the heart of annotation; refusing to start
	// without it beats serving unannotated results.
	table, err := reference.Load(cfg.Reference.Path, logger)
	if err != nil {
		logger.WithError(err).WithField("path", cfg.Reference.Path).Fatal("Failed to load CPIC reference table")
	}

	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := api.Deps{
		Config:  cfg,
		Logger:  logger,
		Table:   table,
		Metrics: m,
	}

	pipelineOpts := []service.PipelineOption{
		service.WithMetrics(m),
		service.WithAnnotatorOptions(service.WithLookupCacheSize(cfg.Reference.LookupCacheSize)),
	}

	if cfg.Redis.Enabled {
		cache, err := external.NewRedisResultCache(cfg.Redis, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to redis")
		}
		defer cache.Close()
		pipelineOpts = append(pipelineOpts, service.WithResultCache(cache))
	}

	if cfg.Database.Enabled {
		if cfg.Database.MigrationsPath != "" {
			if err := database.RunMigrations(cfg.Database, logger); err != nil {
				logger.WithError(err).Fatal("Failed to run database migrations")
			}
		}
		db, err := database.NewConnection(ctx, cfg.Database, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to database")
		}
		defer db.Close()
		deps.Runs = repository.NewRunRepository(db.Pool, logger)
		deps.DBPing = db.Health
	}

	var store feedback.Store
	switch cfg.Feedback.Backend {
	case "postgres":
		store, err = feedback.NewPostgresStoreFromURL(database.PostgresURL(cfg.Database))
	default:
		store, err = feedback.NewSQLiteStore(cfg.Feedback.SQLitePath)
	}
	if err != nil {
		logger.WithError(err).WithField("backend", cfg.Feedback.Backend).Fatal("Failed to open feedback store")
	}
	defer store.Close()
	deps.Feedback = store

	if cfg.Azure.Endpoint != "" && cfg.Azure.APIKey != "" {
		layout, err := external.NewAzureLayoutClient(cfg.Azure, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to build document intelligence client")
		}
		deps.Text = layout
		logger.Info("Document intelligence text extraction enabled")
	}

	extractor, err := external.NewAnthropicExtractor(cfg.Anthropic, logger)
	switch {
	case err == nil:
		deps.Candidates = extractor
		logger.Info("LLM candidate extraction enabled")
	case errors.Is(err, external.ErrAPIKeyRequired):
		logger.Info("LLM candidate extraction disabled (no API key)")
	default:
		logger.WithError(err).Fatal("Failed to build llm extractor")
	}

	deps.Pipeline = service.NewPipeline(table, logger, pipelineOpts...)

	server := api.NewServer(deps)
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server shutdown failed")
	}
	logger.Info("Server stopped")
}
