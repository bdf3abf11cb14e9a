package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	prodhttp "github.com/mes-platform/production-service/internal/api/http"
	"github.com/mes-platform/production-service/internal/application"
	"github.com/mes-platform/production-service/internal/config"
	"github.com/mes-platform/production-service/internal/domain"
	"github.com/mes-platform/production-service/internal/infrastructure/catalog"
	mongoRepo "github.com/mes-platform/production-service/internal/infrastructure/mongodb"
	"github.com/mes-platform/production-service/pkg/cloudevents"
	"github.com/mes-platform/production-service/pkg/idempotency"
	"github.com/mes-platform/production-service/pkg/kafka"
	"github.com/mes-platform/production-service/pkg/logging"
	"github.com/mes-platform/production-service/pkg/metrics"
	"github.com/mes-platform/production-service/pkg/middleware"
	"github.com/mes-platform/production-service/pkg/mongodb"
	"github.com/mes-platform/production-service/pkg/outbox"
	"github.com/mes-platform/production-service/pkg/resilience"
	"github.com/mes-platform/production-service/pkg/tracing"
)

const serviceName = "production-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.DefaultConfig(serviceName)).WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}

	// Setup logger
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(cfg.LogLevel)
	logConfig.Environment = cfg.Environment
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting Production Service API")
	ctx := context.Background()

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = cfg.OTLPEndpoint
	tracingConfig.Environment = cfg.Environment
	tracingConfig.Enabled = cfg.TracingEnabled

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		// Continue without tracing
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint)
	}

	// Initialize Prometheus metrics
	m := metrics.New(metrics.DefaultConfig(serviceName))
	logger.Info("Metrics initialized")

	// Initialize MongoDB, waiting out a replica set that is still electing
	var mongoClient *mongodb.Client
	err = resilience.Retry(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) error {
		var connErr error
		mongoClient, connErr = mongodb.NewClient(ctx, cfg.MongoDB)
		if connErr != nil {
			logger.WithError(connErr).Warn("MongoDB not reachable yet")
		}
		return connErr
	})
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(context.Background())
	logger.Info("Connected to MongoDB", "database", cfg.MongoDB.Database)

	db := mongoClient.Database()
	eventFactory := cloudevents.NewEventFactory(cloudevents.SourceProduction)

	// Initialize repositories
	jobRepo := mongoRepo.NewProductionJobRepository(db, eventFactory, m, logger)
	haltRepo := mongoRepo.NewHaltRecordRepository(db, eventFactory, m, logger)
	if err := jobRepo.GetOutboxRepository().EnsureIndexes(); err != nil {
		logger.WithError(err).Warn("Failed to create outbox indexes")
	}

	var catalogRepo domain.CatalogRepository
	switch cfg.CatalogSource {
	case config.CatalogSourceFile:
		fileRepo, err := catalog.NewFileRepository(cfg.CatalogFile)
		if err != nil {
			logger.WithError(err).Error("Failed to load catalog file", "path", cfg.CatalogFile)
			os.Exit(1)
		}
		catalogRepo = fileRepo
		logger.Info("Catalog loaded from file", "path", cfg.CatalogFile)
	default:
		catalogRepo = mongoRepo.NewCatalogRepository(db, m, logger)
		logger.Info("Catalog served from MongoDB")
	}

	readiness := map[string]func(context.Context) error{
		"mongodb": mongoClient.HealthCheck,
	}

	// Start outbox publisher
	if cfg.KafkaEnabled {
		kafkaProducer := kafka.NewProducer(cfg.Kafka)
		instrumentedProducer := kafka.NewInstrumentedProducer(kafkaProducer, m, logger)
		defer instrumentedProducer.Close()
		logger.Info("Kafka producer initialized", "brokers", cfg.Kafka.Brokers)

		outboxPublisher := outbox.NewPublisher(
			jobRepo.GetOutboxRepository(),
			instrumentedProducer,
			logger,
			m,
			&outbox.PublisherConfig{
				PollInterval: cfg.OutboxInterval,
				BatchSize:    100,
			},
		)
		if err := outboxPublisher.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start outbox publisher")
			os.Exit(1)
		}
		defer outboxPublisher.Stop()
		readiness["outbox"] = func(context.Context) error {
			if !outboxPublisher.IsRunning() {
				return errors.New("outbox publisher stopped")
			}
			return nil
		}
		logger.Info("Outbox publisher started")
	} else {
		logger.Warn("Kafka disabled, events stay in the outbox")
	}

	// Application services
	catalogService := application.NewCatalogService(catalogRepo, logger)
	trackerService := application.NewTrackerService(jobRepo, catalogService, nil, m, logger)
	ledgerService := application.NewHaltLedgerService(haltRepo, m, logger)

	loadCtx, cancelLoad := context.WithTimeout(ctx, 30*time.Second)
	if err := trackerService.Load(loadCtx); err != nil {
		// The board loads lazily on the first request
		logger.WithError(err).Warn("Failed to load production board")
	}
	cancelLoad()

	if cfg.PurgeSchedule != "" {
		scheduler, err := application.NewPurgeScheduler(cfg.PurgeSchedule, trackerService, logger)
		if err != nil {
			logger.WithError(err).Error("Failed to create purge scheduler")
			os.Exit(1)
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info("Purge scheduled", "schedule", cfg.PurgeSchedule, "next", scheduler.Next())
	}

	// Setup Gin router with middleware
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig(serviceName, logger))
	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.Tracing(serviceName))

	// Health check endpoints
	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, readiness))

	// Metrics endpoint
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	// Retried creates replay their first response
	var guards []gin.HandlerFunc
	if cfg.IdempotencyRetention > 0 {
		guards = append(guards, idempotency.Middleware(&idempotency.Config{
			Store:       idempotency.NewMongoStore(db, cfg.IdempotencyLockTimeout),
			ServiceName: serviceName,
			Logger:      logger,
			Metrics:     m,
			Retention:   cfg.IdempotencyRetention,
		}))
	}

	// Setup routes
	prodhttp.SetupRoutes(router, prodhttp.NewHandlers(trackerService, ledgerService, catalogService, logger), guards...)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", cfg.ServerAddr)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}
