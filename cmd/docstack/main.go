package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/docstack/docstack/pkg/api"
	"github.com/docstack/docstack/pkg/audit"
	"github.com/docstack/docstack/pkg/authz"
	"github.com/docstack/docstack/pkg/config"
	"github.com/docstack/docstack/pkg/docs"
	"github.com/docstack/docstack/pkg/middleware"
	"github.com/docstack/docstack/pkg/observability"
	"github.com/docstack/docstack/pkg/projects"
	"github.com/docstack/docstack/pkg/storage"
	"github.com/docstack/docstack/pkg/storage/postgres"
	"github.com/docstack/docstack/pkg/users"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	// Tracing
	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry")
		os.Exit(1)
	}

	// Metrics
	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	// Database
	db, err := postgres.Connect(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}
	logger.Info("Database ready")

	// Blob storage
	blobs, err := storage.NewS3BlobStore(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize blob storage")
		os.Exit(1)
	}
	logger.Info("Blob storage ready", "bucket", cfg.Storage.S3Bucket)

	// Redis (distributed rate limiting, health checks)
	var redisClient *redis.Client
	if cfg.Storage.RedisURL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.RedisURL,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		defer redisClient.Close()
	}

	// Audit pipeline: fan out to the configured sinks, delivered
	// asynchronously so request handling never blocks on the trail.
	var sinks []audit.Logger
	if cfg.Audit.DBEnabled {
		dbLogger, err := audit.NewDBLogger(db)
		if err != nil {
			logger.WithError(err).Error("Failed to initialize audit DB logger")
			os.Exit(1)
		}
		sinks = append(sinks, dbLogger)
	}
	if cfg.Audit.FilePath != "" {
		fileLogger, err := audit.NewFileLogger(audit.FileLoggerConfig{
			BasePath: cfg.Audit.FilePath,
			Rotate:   true,
			MaxSize:  cfg.Audit.FileMaxSize,
			MaxFiles: cfg.Audit.FileMaxFiles,
		})
		if err != nil {
			logger.WithError(err).Error("Failed to initialize audit file logger")
			os.Exit(1)
		}
		sinks = append(sinks, fileLogger)
	}
	var auditLog audit.Logger = audit.NopLogger{}
	if len(sinks) > 0 {
		auditLog = audit.NewAsyncLogger(audit.NewMultiLogger(sinks...), cfg.Audit.BufferSize, logger, metrics)
	}

	// Services
	decider := authz.NewDecider(authz.NewScopeResolver(db), metrics)
	docsService := docs.NewService(db, blobs, decider, auditLog, logger, metrics)
	projectsService := projects.NewService(db, blobs, decider, auditLog, logger)
	usersService := users.NewService(db, decider, auditLog, logger)

	// Orphaned blob reconciler
	reconciler := docs.NewReconciler(db, blobs, auditLog, logger, metrics, cfg.Reconciler.GracePeriod)
	if cfg.Reconciler.Enabled {
		if err := reconciler.Start(cfg.Reconciler.Schedule); err != nil {
			logger.WithError(err).Error("Failed to start reconciler")
			os.Exit(1)
		}
		logger.Info("Reconciler started", "schedule", cfg.Reconciler.Schedule)
	}

	// Rate limiting
	var rateLimit func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.Distributed {
			rateLimit = middleware.NewDistributedRateLimitMiddleware(redisClient, logger, metrics).Handler
		} else {
			rateLimit = middleware.NewRateLimitMiddleware(metrics).Handler
		}
	}

	// API server
	server := api.NewServer(api.Deps{
		DB:        db,
		Docs:      docsService,
		Projects:  projectsService,
		Users:     usersService,
		Logger:    logger,
		Metrics:   metrics,
		RateLimit: rateLimit,
	})

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics server on a separate port for probes
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient, blobs))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:        cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:     healthMux,
		ReadTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	if cfg.Reconciler.Enabled {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			reconciler.Stop()
			return nil
		})
	}
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return auditLog.Close()
	})
	if otelProviders != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	go func() {
		logger.Info("Health server listening", "addr", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	go func() {
		logger.Info("API server listening", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown completed with errors")
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}
