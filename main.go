package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/datakiln/ingest-engine/migrations"
	"github.com/datakiln/ingest-engine/pkg/config"
	"github.com/datakiln/ingest-engine/pkg/database"
	"github.com/datakiln/ingest-engine/pkg/handlers"
	"github.com/datakiln/ingest-engine/pkg/logging"
	"github.com/datakiln/ingest-engine/pkg/middleware"
	"github.com/datakiln/ingest-engine/pkg/repositories"
	"github.com/datakiln/ingest-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Int64("max_file_size_bytes", cfg.Ingest.MaxFileSizeBytes),
		zap.Int("workers", cfg.Ingest.Workers),
	)

	ctx := context.Background()

	// Ingestion history is optional: runs without Postgres when no host is set.
	var history repositories.IngestionRepository
	var db *database.DB
	if cfg.Database.Host != "" {
		connStr := cfg.Database.ConnectionString()

		sqlDB, err := sql.Open("pgx", connStr)
		if err != nil {
			logger.Fatal("Failed to open migration connection", zap.Error(err))
		}
		if err := database.RunMigrations(sqlDB, migrations.Files, logger); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		_ = sqlDB.Close()

		db, err = database.NewConnection(ctx, connStr, cfg.Database.MaxConnections)
		if err != nil {
			logger.Fatal("Failed to connect to database",
				zap.String("conn", logging.SanitizeConnectionString(connStr)),
				zap.Error(err))
		}
		defer db.Close()

		history = repositories.NewIngestionRepository(db)
		logger.Info("Ingestion history enabled",
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.Database))
	}

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		logger.Info("Result cache enabled",
			zap.String("host", cfg.Redis.Host),
			zap.Int("ttl_seconds", cfg.Redis.TTLSeconds))
	}

	validator := services.NewValidationService(cfg.Ingest)
	inferencer := services.NewTypeInferenceService(cfg.Ingest)
	processor := services.NewFormatProcessor(validator, inferencer, cfg.Ingest, logger)
	coordinator := services.NewBatchCoordinator(processor, cfg.Ingest, logger)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, db, logger)
	healthHandler.RegisterRoutes(mux)

	ingestHandler := handlers.NewIngestHandler(
		processor,
		coordinator,
		history,
		redisClient,
		time.Duration(cfg.Redis.TTLSeconds)*time.Second,
		logger,
	)
	ingestHandler.RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting ingest-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
