package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/school/feeledger/docs"
	eventapp "github.com/school/feeledger/internal/application/event"
	feesapp "github.com/school/feeledger/internal/application/fees"
	"github.com/school/feeledger/internal/infrastructure/auth"
	"github.com/school/feeledger/internal/infrastructure/cache"
	"github.com/school/feeledger/internal/infrastructure/config"
	"github.com/school/feeledger/internal/infrastructure/event"
	"github.com/school/feeledger/internal/infrastructure/logger"
	"github.com/school/feeledger/internal/infrastructure/persistence"
	"github.com/school/feeledger/internal/infrastructure/printing"
	"github.com/school/feeledger/internal/infrastructure/storage"
	"github.com/school/feeledger/internal/infrastructure/telemetry"
	"github.com/school/feeledger/internal/interfaces/http/handler"
	"github.com/school/feeledger/internal/interfaces/http/middleware"
	"github.com/school/feeledger/internal/interfaces/http/router"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

//	@title			Fee Ledger API
//	@version		1.0
//	@description	Student fee billing, payment ledger and receipts

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		TimeFormat:  logger.DefaultTimeFormat,
		Service:     cfg.App.Name,
		Environment: cfg.App.Env,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx := context.Background()

	// Telemetry: traces, metrics, log export and continuous profiling
	otelCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}
	tracerProvider, err := telemetry.NewTracerProvider(ctx, otelCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Config:         otelCfg,
		ExportInterval: cfg.Telemetry.MetricsInterval,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	logCfg := otelCfg
	logCfg.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.LogExportEnabled
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, logCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	log = loggerProvider.Bridge(log, cfg.Telemetry.ServiceName, zapcore.InfoLevel)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingServer,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() && tracerProvider.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
		if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down log exporter", zap.Error(err))
		}
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()
	meter := meterProvider.Meter("feeledger")

	log.Info("Starting fee ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("currency", cfg.Ledger.Currency),
	)

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Database.SlowQuery),
	)
	db, err := persistence.Open(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := telemetry.InstrumentDB(db.DB, telemetry.DBTracingConfig{
		Enabled:    cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL: cfg.Telemetry.DBLogFullSQL,
		DBName:     cfg.Database.DBName,
	}, log); err != nil {
		log.Fatal("Failed to instrument database", zap.Error(err))
	}
	if reg, err := telemetry.RegisterPoolMetrics(meter, db.SQL); err != nil {
		log.Warn("Failed to register connection pool metrics", zap.Error(err))
	} else if reg != nil {
		defer func() { _ = reg.Unregister() }()
	}
	log.Info("Database connected successfully")

	// Idempotency store shared by the HTTP Idempotency-Key guard and the
	// event subscribers
	idempotencyStore, err := cache.NewIdempotencyStoreFactory(cfg.Redis, cache.WithLogger(log)).CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	if closer, ok := idempotencyStore.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				log.Error("Error closing idempotency store", zap.Error(err))
			}
		}()
	}

	// Outbox: repositories write events in the same transaction as the
	// ledger change; the processor delivers them to the bus afterwards
	eventSerializer := event.NewEventSerializer()
	event.RegisterFeeEvents(eventSerializer)
	outboxPublisher := event.NewOutboxPublisher(eventSerializer)
	outboxRepo := event.NewGormOutboxRepository(db.DB)

	eventBus := event.NewInMemoryEventBus(log)
	auditHandler := event.NewIdempotentHandler(event.NewAuditHandler(log), idempotencyStore,
		event.IdempotencyConfig{TTL: cfg.Event.IdempotencyTTL}, log)
	eventBus.Subscribe(auditHandler)
	log.Info("Event handlers registered", zap.Strings("audit_events", auditHandler.EventTypes()))

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	if cfg.Event.ProcessorEnabled {
		processorConfig := event.DefaultOutboxProcessorConfig()
		processorConfig.BatchSize = cfg.Event.BatchSize
		processorConfig.PollInterval = cfg.Event.PollInterval
		processorConfig.MaxRetries = cfg.Event.MaxRetries
		processorConfig.CleanupRetention = cfg.Event.CleanupRetention
		processorConfig.ProcessingTimeout = cfg.Event.ProcessingTimeout

		outboxProcessor := event.NewOutboxProcessor(outboxRepo, eventBus, eventSerializer, processorConfig, log)
		if err := outboxProcessor.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		defer func() {
			if err := outboxProcessor.Stop(context.Background()); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
		log.Info("Outbox processor started",
			zap.Int("batch_size", processorConfig.BatchSize),
			zap.Duration("poll_interval", processorConfig.PollInterval),
		)
	}

	// Ledger services
	ledgerMetrics, err := telemetry.NewLedgerMetrics(meter)
	if err != nil {
		log.Fatal("Failed to register ledger metrics", zap.Error(err))
	}
	opts := []feesapp.Option{
		feesapp.WithLogger(log),
		feesapp.WithMetrics(ledgerMetrics),
		feesapp.WithSettings(feesapp.Settings{
			ReceiptMaxAttempts:   cfg.Ledger.ReceiptMaxAttempts,
			ReferenceMaxAttempts: cfg.Ledger.ReferenceMaxAttempts,
			BillNumberAttempts:   cfg.Ledger.BillNumberAttempts,
			Currency:             cfg.Ledger.Currency,
			SchoolName:           cfg.Ledger.SchoolName,
			SchoolAddress:        cfg.Ledger.SchoolAddress,
		}),
	}

	referenceRepo := persistence.NewGormReferenceRepository(db.DB)
	feeStructureRepo := persistence.NewGormFeeStructureRepository(db.DB, outboxPublisher)
	billRepo := persistence.NewGormBillRepository(db.DB, outboxPublisher)
	ledgerRepo := persistence.NewGormLedgerRepository(db.DB, outboxPublisher, cfg.Ledger.LockTimeout)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	receiptRepo := persistence.NewGormReceiptRepository(db.DB, outboxPublisher)

	catalogService := feesapp.NewCatalogService(referenceRepo, feeStructureRepo, opts...)
	billService := feesapp.NewBillService(referenceRepo, feeStructureRepo, billRepo, opts...)
	ledgerService := feesapp.NewLedgerService(ledgerRepo, opts...)
	paymentService := feesapp.NewPaymentService(paymentRepo, billRepo, opts...)
	receiptService := feesapp.NewReceiptService(receiptRepo, paymentRepo, billRepo, opts...)
	outboxService := eventapp.NewOutboxService(outboxRepo, log)

	// Export archive (optional)
	if cfg.Storage.Enabled {
		archive, err := storage.NewS3ExportArchive(&cfg.Storage,
			storage.WithLogger(log),
			storage.WithPresignExpiration(cfg.Storage.PresignExpiration),
		)
		if err != nil {
			log.Fatal("Failed to initialize export archive", zap.Error(err))
		}
		bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := archive.EnsureBucket(bucketCtx); err != nil {
			log.Warn("Export bucket is not ready", zap.String("bucket", archive.Bucket()), zap.Error(err))
		}
		cancel()
		paymentService.SetArchiver(archive, cfg.Storage.ExportPrefix)
		log.Info("Payment export archive enabled", zap.String("bucket", archive.Bucket()))
	}

	// Receipt PDF rendering (optional)
	if cfg.Printing.Enabled {
		chrome, err := printing.NewChromedpRenderer(&printing.ChromedpConfig{
			DefaultTimeout: cfg.Printing.RenderTimeout,
			RemoteURL:      cfg.Printing.ChromeURL,
			NoSandbox:      cfg.Printing.NoSandbox,
			Logger:         log,
		})
		if err != nil {
			log.Fatal("Failed to initialize PDF renderer", zap.Error(err))
		}
		defer func() {
			if err := chrome.Close(); err != nil {
				log.Error("Error closing PDF renderer", zap.Error(err))
			}
		}()
		receiptRenderer, err := printing.NewReceiptPDFRenderer(chrome,
			printing.WithLocale(cfg.Printing.Locale),
			printing.WithRenderTimeout(cfg.Printing.RenderTimeout),
			printing.WithReceiptLogger(log),
		)
		if err != nil {
			log.Fatal("Failed to initialize receipt renderer", zap.Error(err))
		}
		receiptService.SetRenderer(receiptRenderer)
		log.Info("Receipt PDF rendering enabled", zap.Bool("remote_chrome", cfg.Printing.ChromeURL != ""))
	}

	// Health checks
	checks := map[string]handler.Pinger{"database": db}
	if pinger, ok := idempotencyStore.(interface{ Ping(context.Context) error }); ok {
		checks["redis"] = handler.PingFunc(pinger.Ping)
	}

	// Identity
	var jwtService *auth.JWTService
	if cfg.JWT.Secret != "" {
		jwtService = auth.NewJWTService(cfg.JWT)
	}
	if cfg.JWT.AllowHeaderIdentity {
		log.Warn("X-User-ID header identity is enabled; do not use outside development")
	}

	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins

	engine, err := router.NewEngine(router.Config{
		Logger:    log,
		Meter:     meter,
		Tracing:   middleware.TracingConfig{ServiceName: cfg.Telemetry.ServiceName, Enabled: cfg.Telemetry.Enabled},
		Profiling: middleware.ProfilingConfig{Enabled: profiler.IsEnabled(), SkipPaths: router.PublicPaths},
		CORS:      cors,
		Security:  middleware.DefaultSecurityConfig(),
		Auth: middleware.AuthConfig{
			JWTService:          jwtService,
			AllowHeaderIdentity: cfg.JWT.AllowHeaderIdentity,
			Logger:              log,
		},
		Swagger: middleware.SwaggerConfig{
			Enabled:    cfg.HTTP.SwaggerEnabled,
			AllowedIPs: cfg.HTTP.SwaggerAllowedIPs,
		},
		MaxBodySize:      cfg.HTTP.MaxBodySize,
		RequestTimeout:   cfg.HTTP.RequestTimeout,
		TrustedProxies:   cfg.HTTP.TrustedProxies,
		IdempotencyStore: idempotencyStore,
		IdempotencyTTL:   cfg.Ledger.IdempotencyTTL,
	}, router.Handlers{
		Bill:         handler.NewBillHandler(billService, paymentService),
		Payment:      handler.NewPaymentHandler(ledgerService, paymentService, receiptService),
		Receipt:      handler.NewReceiptHandler(receiptService),
		FeeStructure: handler.NewFeeStructureHandler(catalogService),
		Health:       handler.NewHealthHandler(checks),
		System: handler.NewSystemHandler(handler.SystemInfo{
			Name:          cfg.App.Name,
			Environment:   cfg.App.Env,
			School:        cfg.Ledger.SchoolName,
			Currency:      cfg.Ledger.Currency,
			PDFReceipts:   cfg.Printing.Enabled,
			ExportArchive: cfg.Storage.Enabled,
		}),
		Outbox:       handler.NewOutboxHandler(outboxService),
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
