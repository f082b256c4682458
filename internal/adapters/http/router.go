// Package http wires every handler and middleware into a single Gin
// engine.
//
// Pattern: Composition Root — every dependency is assembled here, each
// handler receives only the stores/services it needs, and middleware is
// layered onto the route groups it applies to.
package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentwallet/core/internal/adapters/http/common"
	"github.com/agentwallet/core/internal/adapters/http/handlers"
	"github.com/agentwallet/core/internal/adapters/http/middleware"
	"github.com/agentwallet/core/internal/application/admission"
	"github.com/agentwallet/core/internal/application/audit"
	"github.com/agentwallet/core/internal/application/crossagent"
	"github.com/agentwallet/core/internal/application/deadman"
	"github.com/agentwallet/core/internal/application/killswitch"
	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/application/rules"
	"github.com/agentwallet/core/internal/application/spawn"
)

// RouterConfig configures the HTTP layer independently of its domain
// wiring (handed in separately via Services).
type RouterConfig struct {
	Logger         *slog.Logger
	Pool           *pgxpool.Pool
	Version        string
	BuildTime      string
	Environment    string
	AllowedOrigins []string
}

// DefaultRouterConfig is the development default.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		Logger:         slog.Default(),
		Version:        "dev",
		BuildTime:      "unknown",
		Environment:    "development",
		AllowedOrigins: []string{"*"},
	}
}

// Services bundles every store and application service a handler needs.
// The container constructs this once at startup.
type Services struct {
	Owners        ports.OwnerStore
	Agents        ports.AgentStore
	Wallets       ports.WalletStore
	Rules         ports.RuleStore
	Transactions  ports.TransactionStore
	KillSwitches  ports.KillSwitchStore
	DeadMan       ports.DeadManStore
	Lineages      ports.LineageStore
	CrossAgent    ports.CrossAgentStore
	Admission     *admission.Controller
	KillSwitchSvc *killswitch.Service
	DeadManSvc    *deadman.Service
	SpawnGovernor *spawn.Governor
	CrossAgentGov *crossagent.Governor
	AuditRecorder *audit.Recorder
}

// RouterBuilder assembles the Gin engine step by step.
type RouterBuilder struct {
	config   *RouterConfig
	services *Services
}

// NewRouterBuilder constructs a builder.
func NewRouterBuilder(config *RouterConfig, services *Services) *RouterBuilder {
	if config == nil {
		config = DefaultRouterConfig()
	}
	return &RouterBuilder{config: config, services: services}
}

// Build produces a configured *gin.Engine.
func (b *RouterBuilder) Build() *gin.Engine {
	if b.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handlers.SetupValidator()

	// Global middleware, order matters: recovery first so nothing below
	// it can crash the process; metrics/logging last so they see the
	// fully-dressed request.
	router.Use(middleware.Recovery(&middleware.RecoveryConfig{
		Logger:           b.config.Logger,
		EnableStackTrace: b.config.Environment != "production",
	}))
	router.Use(middleware.RequestID())
	if b.config.Environment == "production" {
		router.Use(middleware.CORS(middleware.ProductionCORSConfig(b.config.AllowedOrigins)))
	} else {
		router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	}
	router.Use(middleware.Logging(&middleware.LoggingConfig{
		Logger:    b.config.Logger,
		SkipPaths: []string{"/health", "/live", "/ready", "/metrics"},
	}))
	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
	router.Use(middleware.Metrics())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.NewHealthHandler(b.config.Pool, b.config.Version, b.config.BuildTime).RegisterRoutes(router)

	v1 := router.Group("/api/v1")

	authCfg := &middleware.AuthConfig{OwnerStore: b.services.Owners, AgentStore: b.services.Agents}

	public := v1.Group("")
	authed := v1.Group("")
	authed.Use(middleware.AnyAuth(authCfg))

	ownerHandler := handlers.NewOwnerHandler(b.services.Owners)
	ownerHandler.RegisterRoutes(public, authed)

	handlers.NewAgentHandler(b.services.Agents).RegisterRoutes(authed)
	handlers.NewWalletHandler(b.services.Wallets, b.services.Admission).RegisterRoutes(authed)
	limitGovernor := rules.NewLimitGovernor(b.services.Wallets, b.services.Rules, b.services.Lineages)
	handlers.NewRuleHandler(b.services.Rules, limitGovernor).RegisterRoutes(authed)

	txGroup := authed.Group("")
	txGroup.Use(middleware.TransactionRateLimit())
	handlers.NewTransactionHandler(b.services.Admission, b.services.Transactions).RegisterRoutes(txGroup)

	handlers.NewKillSwitchHandler(b.services.KillSwitches, b.services.Wallets, b.services.KillSwitchSvc).RegisterRoutes(authed)
	handlers.NewDeadManHandler(b.services.DeadMan, b.services.DeadManSvc).RegisterRoutes(authed)
	handlers.NewSpawnHandler(b.services.SpawnGovernor, b.services.Lineages).RegisterRoutes(authed)
	handlers.NewCrossAgentHandler(b.services.CrossAgentGov, b.services.CrossAgent).RegisterRoutes(authed)
	handlers.NewAuditHandler(b.services.AuditRecorder).RegisterRoutes(authed)

	router.NoRoute(func(c *gin.Context) {
		common.Error(c, 404, &common.APIError{
			Code:    common.ErrCodeNotFound,
			Message: "endpoint not found",
			Details: map[string]interface{}{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			},
		})
	})

	return router
}

// NewRouter is a convenience constructor for the common case.
func NewRouter(config *RouterConfig, services *Services) *gin.Engine {
	return NewRouterBuilder(config, services).Build()
}
