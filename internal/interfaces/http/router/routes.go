package router

import (
	"fmt"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/school/feeledger/internal/infrastructure/logger"
	"github.com/school/feeledger/internal/interfaces/http/handler"
	"github.com/school/feeledger/internal/interfaces/http/middleware"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Handlers groups the HTTP handlers served by the API
type Handlers struct {
	Bill         *handler.BillHandler
	Payment      *handler.PaymentHandler
	Receipt      *handler.ReceiptHandler
	FeeStructure *handler.FeeStructureHandler
	Health       *handler.HealthHandler
	System       *handler.SystemHandler
	Outbox       *handler.OutboxHandler
}

// Config assembles the engine's middleware stack
type Config struct {
	Logger         *zap.Logger
	Meter          metric.Meter
	Tracing        middleware.TracingConfig
	Profiling      middleware.ProfilingConfig
	CORS           middleware.CORSConfig
	Security       middleware.SecurityConfig
	Auth           middleware.AuthConfig
	Swagger        middleware.SwaggerConfig
	MaxBodySize    int64
	RequestTimeout time.Duration
	TrustedProxies []string

	// IdempotencyStore guards POST /bills and POST /payments. Nil disables
	// Idempotency-Key handling.
	IdempotencyStore shared.IdempotencyStore
	IdempotencyTTL   time.Duration
}

// PublicPaths are served without a resolved identity
var PublicPaths = []string{
	"/health",
	"/api/v1/health",
	"/api/v1/system/ping",
	"/api/v1/system/info",
}

// NewEngine builds the gin engine with the full middleware stack and every
// route registered
func NewEngine(cfg Config, h Handlers) (*gin.Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if err := middleware.SetupValidator(); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	engine := gin.New()
	if len(cfg.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			cfg.Logger.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	httpMetrics, err := middleware.HTTPMetrics(cfg.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create http metrics: %w", err)
	}

	engine.Use(logger.Recovery(cfg.Logger))
	engine.Use(middleware.RequestID())
	engine.Use(logger.AccessLog(cfg.Logger))
	tracing := cfg.Tracing
	tracing.SkipPaths = append(slices.Clone(tracing.SkipPaths), "/health", "/api/v1/health")
	engine.Use(middleware.Tracing(tracing))
	engine.Use(middleware.SpanStatus())
	engine.Use(httpMetrics)
	engine.Use(middleware.CORSWithConfig(cfg.CORS))
	engine.Use(middleware.SecureWithConfig(cfg.Security))
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}
	engine.Use(middleware.Timeout(cfg.RequestTimeout))

	if h.Health != nil {
		engine.GET("/health", h.Health.Check)
	}
	// The document itself is registered by importing the docs package
	engine.GET("/swagger/*any", middleware.SwaggerGuard(cfg.Swagger), ginSwagger.WrapHandler(swaggerFiles.Handler))

	authCfg := cfg.Auth
	if authCfg.Logger == nil {
		authCfg.Logger = cfg.Logger
	}
	authCfg.SkipPaths = append(append([]string{}, authCfg.SkipPaths...), PublicPaths...)

	r := NewRouter(engine, WithAPIVersion("v1"))
	r.Use(
		middleware.Auth(authCfg),
		middleware.SpanIdentity(),
		middleware.ProfilingWithConfig(cfg.Profiling),
	)

	idempotent := middleware.Idempotency(middleware.IdempotencyConfig{
		Store:  cfg.IdempotencyStore,
		TTL:    cfg.IdempotencyTTL,
		Logger: cfg.Logger,
	})

	r.Mount(ledgerGroups(h, idempotent)...).Setup()
	for _, rt := range r.Routes() {
		cfg.Logger.Debug("Route registered", zap.String("method", rt.Method), zap.String("path", rt.Path))
	}

	return engine, nil
}

func ledgerGroups(h Handlers, idempotent gin.HandlerFunc) []*RouteGroup {
	var groups []*RouteGroup

	if h.Health != nil {
		health := NewGroup("/health")
		health.GET("", h.Health.Check)
		groups = append(groups, health)
	}

	if h.Bill != nil {
		bills := NewGroup("/bills")
		bills.POST("", idempotent, h.Bill.Generate)
		bills.GET("", h.Bill.List)
		bills.GET("/:id", h.Bill.GetByID)
		bills.GET("/:id/payments", h.Bill.ListPayments)
		groups = append(groups, bills)
	}

	if h.Payment != nil {
		payments := NewGroup("/payments")
		payments.POST("", idempotent, h.Payment.Record)
		payments.GET("", h.Payment.List)
		payments.GET("/export", h.Payment.Export)
		payments.POST("/export/archive", h.Payment.Archive)
		payments.GET("/:id", h.Payment.GetByID)
		payments.POST("/:id/receipt", h.Payment.IssueReceipt)
		groups = append(groups, payments)
	}

	if h.Receipt != nil {
		receipts := NewGroup("/receipts")
		receipts.GET("/:id", h.Receipt.GetByID)
		receipts.GET("/:id/pdf", h.Receipt.PDF)
		groups = append(groups, receipts)
	}

	if h.FeeStructure != nil {
		catalog := NewGroup("/fee-structures")
		catalog.GET("", h.FeeStructure.Lookup)
		catalog.POST("", h.FeeStructure.Create)
		catalog.GET("/:id", h.FeeStructure.GetByID)
		groups = append(groups, catalog)
	}

	if h.System != nil || h.Outbox != nil {
		system := NewGroup("/system")
		if h.System != nil {
			system.GET("/info", h.System.GetSystemInfo)
			system.GET("/ping", h.System.Ping)
		}
		if h.Outbox != nil {
			outbox := system.Group("/outbox")
			outbox.GET("/stats", h.Outbox.Stats)
			outbox.GET("/dead", h.Outbox.ListDead)
			outbox.GET("/:id", h.Outbox.GetEntry)
			outbox.POST("/:id/retry", h.Outbox.RetryDead)
		}
		groups = append(groups, system)
	}

	return groups
}
