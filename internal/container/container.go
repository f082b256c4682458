// Package container is the application's Composition Root: every
// dependency — database, cache, message bus, stores, application
// services, and the HTTP layer — is constructed exactly once, here, and
// handed down rather than reached for globally.
package container

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	agwhttp "github.com/agentwallet/core/internal/adapters/http"
	"github.com/agentwallet/core/internal/application/admission"
	"github.com/agentwallet/core/internal/application/audit"
	"github.com/agentwallet/core/internal/application/crossagent"
	"github.com/agentwallet/core/internal/application/deadman"
	"github.com/agentwallet/core/internal/application/killswitch"
	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/application/rules"
	"github.com/agentwallet/core/internal/application/spawn"
	"github.com/agentwallet/core/internal/config"
	memorycache "github.com/agentwallet/core/internal/infrastructure/cache/memory"
	rediscache "github.com/agentwallet/core/internal/infrastructure/cache/redis"
	"github.com/agentwallet/core/internal/infrastructure/messaging/nats"
	"github.com/agentwallet/core/internal/infrastructure/persistence/postgres"
	"github.com/agentwallet/core/internal/infrastructure/rail"
)

// Container owns every long-lived dependency of the running process.
type Container struct {
	config *config.Config
	logger *slog.Logger

	pool        *pgxpool.Pool
	redisClient *redis.Client
	natsConn    *nats.Publisher

	stores    stores
	services  services
	drainLoop *nats.DrainLoop

	httpServer *agwhttp.Server

	sweepCancel context.CancelFunc
	drainCancel context.CancelFunc
}

// stores bundles every ports.*Store implementation, all backed by the
// same pgxpool.Pool and composable inside one postgres.UnitOfWork.
type stores struct {
	owners       ports.OwnerStore
	agents       ports.AgentStore
	wallets      ports.WalletStore
	rules        ports.RuleStore
	transactions ports.TransactionStore
	killSwitches ports.KillSwitchStore
	deadMan      ports.DeadManStore
	lineages     ports.LineageStore
	crossAgent   ports.CrossAgentStore
	audit        ports.AuditStore
	outbox       *postgres.OutboxRepository
	uowFactory   ports.UnitOfWorkFactory
}

// services bundles every application-layer service built on top of
// stores.
type services struct {
	rulesEngine   *rules.Engine
	killSwitchSvc *killswitch.Service
	deadManSvc    *deadman.Service
	admission     *admission.Controller
	spawnGovernor *spawn.Governor
	crossAgentGov *crossagent.Governor
	auditRecorder *audit.Recorder
}

// New builds a Container from cfg: connects to Postgres (and, if
// configured, Redis and NATS), wires every store and application
// service, and assembles the HTTP server. It does not start anything —
// call Run for that.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Container{config: cfg, logger: logger}

	if err := c.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	c.initStores()

	cache := c.initCache(ctx)

	publisher, err := c.initMessaging(logger)
	if err != nil {
		return nil, fmt.Errorf("init messaging: %w", err)
	}

	c.initServices(publisher, cache)
	c.initHTTP()

	return c, nil
}

func (c *Container) initDatabase(ctx context.Context) error {
	pool, err := postgres.NewConnectionPool(ctx, postgres.Config{
		Host:            c.config.Database.Host,
		Port:            c.config.Database.Port,
		Database:        c.config.Database.Database,
		User:            c.config.Database.User,
		Password:        c.config.Database.Password,
		SSLMode:         c.config.Database.SSLMode,
		MaxConns:        c.config.Database.MaxConnections,
		MinConns:        c.config.Database.MinConnections,
		MaxConnLifetime: c.config.Database.MaxConnLifetime,
		MaxConnIdleTime: c.config.Database.MaxConnIdleTime,
	})
	if err != nil {
		return err
	}
	c.pool = pool
	return nil
}

func (c *Container) initStores() {
	c.stores = stores{
		owners:       postgres.NewOwnerRepository(c.pool),
		agents:       postgres.NewAgentRepository(c.pool),
		wallets:      postgres.NewWalletRepository(c.pool),
		rules:        postgres.NewRuleRepository(c.pool),
		transactions: postgres.NewTransactionRepository(c.pool),
		killSwitches: postgres.NewKillSwitchRepository(c.pool),
		deadMan:      postgres.NewDeadManRepository(c.pool),
		lineages:     postgres.NewLineageRepository(c.pool),
		crossAgent:   postgres.NewCrossAgentRepository(c.pool),
		audit:        postgres.NewAuditRepository(c.pool),
		outbox:       postgres.NewOutboxRepository(c.pool),
		uowFactory:   postgres.NewUnitOfWorkFactory(c.pool),
	}
}

// initCache wires the Dead-Man Switch's heartbeat/freeze cache. A
// configured Redis address gets a real client for cross-instance
// coordination (§4.6); otherwise the in-process memory cache degrades to
// single-instance-only enforcement, never a hard failure.
func (c *Container) initCache(ctx context.Context) ports.DeadManCache {
	if c.config.Redis.Addr == "" {
		c.logger.Warn("no redis address configured, dead-man cache is single-instance only")
		return memorycache.NewHeartbeatCache()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     c.config.Redis.Addr,
		Password: c.config.Redis.Password,
		DB:       c.config.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		c.logger.Warn("redis unreachable, falling back to in-process dead-man cache",
			slog.String("error", err.Error()))
		return memorycache.NewHeartbeatCache()
	}

	c.redisClient = client
	return rediscache.NewHeartbeatCache(client)
}

// initMessaging connects to NATS and builds the outbox drain loop (Run
// starts it). The
// outbox (c.stores.outbox) is the system of record regardless. An event
// whose NATS publish returns an error is marked FAILED in the outbox, and
// the drain loop does not pick FAILED events up again.
func (c *Container) initMessaging(logger *slog.Logger) (ports.EventPublisher, error) {
	publisher, err := nats.Connect(nats.Config{
		URL:           c.config.NATS.URL,
		SubjectPrefix: c.config.NATS.SubjectPrefix,
		ReconnectWait: c.config.NATS.ReconnectWait,
		MaxReconnects: c.config.NATS.MaxReconnects,
	}, logger)
	if err != nil {
		return nil, err
	}
	c.natsConn = publisher

	c.drainLoop = nats.NewDrainLoop(c.stores.outbox, publisher, 2*time.Second, 50, logger)

	// Application code publishes to the outbox, never to NATS directly —
	// the drain loop above is the only thing that talks to c.natsConn.
	return c.stores.outbox, nil
}

func (c *Container) initServices(publisher ports.EventPublisher, cache ports.DeadManCache) {
	c.services.rulesEngine = rules.New(c.stores.transactions)

	c.services.killSwitchSvc = killswitch.New(
		c.stores.killSwitches, c.stores.wallets, c.stores.transactions,
		c.stores.uowFactory, publisher,
	)

	c.services.deadManSvc = deadman.New(
		c.stores.deadMan, c.stores.agents, c.stores.lineages,
		c.stores.rules, c.stores.wallets, c.stores.transactions,
		cache, publisher, c.stores.uowFactory,
	)

	c.services.auditRecorder = audit.New(c.stores.audit)

	c.services.admission = admission.New(
		c.stores.wallets, c.stores.transactions, c.stores.rules,
		c.stores.uowFactory, publisher, c.services.auditRecorder,
		c.services.deadManSvc, c.services.killSwitchSvc, c.services.rulesEngine,
		rail.NewNoopRail(),
	)

	c.services.spawnGovernor = spawn.New(
		c.stores.agents, c.stores.lineages, c.stores.uowFactory,
		publisher, c.services.auditRecorder,
	)

	c.services.crossAgentGov = crossagent.New(
		c.stores.crossAgent, c.stores.uowFactory, publisher, c.services.auditRecorder,
	)
}

func (c *Container) initHTTP() {
	routerCfg := &agwhttp.RouterConfig{
		Logger:         c.logger,
		Pool:           c.pool,
		Version:        c.config.App.Version,
		BuildTime:      c.config.App.BuildTime,
		Environment:    c.config.App.Environment,
		AllowedOrigins: c.config.CORS.AllowedOrigins,
	}

	router := agwhttp.NewRouter(routerCfg, &agwhttp.Services{
		Owners:        c.stores.owners,
		Agents:        c.stores.agents,
		Wallets:       c.stores.wallets,
		Rules:         c.stores.rules,
		Transactions:  c.stores.transactions,
		KillSwitches:  c.stores.killSwitches,
		DeadMan:       c.stores.deadMan,
		Lineages:      c.stores.lineages,
		CrossAgent:    c.stores.crossAgent,
		Admission:     c.services.admission,
		KillSwitchSvc: c.services.killSwitchSvc,
		DeadManSvc:    c.services.deadManSvc,
		SpawnGovernor: c.services.spawnGovernor,
		CrossAgentGov: c.services.crossAgentGov,
		AuditRecorder: c.services.auditRecorder,
	})

	serverCfg := &agwhttp.ServerConfig{
		Host:            c.config.Server.Host,
		Port:            fmt.Sprintf("%d", c.config.Server.Port),
		ReadTimeout:     c.config.Server.ReadTimeout,
		WriteTimeout:    c.config.Server.WriteTimeout,
		IdleTimeout:     c.config.Server.IdleTimeout,
		ShutdownTimeout: c.config.Server.ShutdownTimeout,
		Logger:          c.logger,
	}

	c.httpServer = agwhttp.NewServer(serverCfg, router)
}

// Run starts the outbox drain loop, the dead-man sweep loop, and the
// HTTP server, blocking until the HTTP server exits (on a shutdown
// signal or a fatal error).
func (c *Container) Run() error {
	bgCtx, drainCancel := context.WithCancel(context.Background())
	c.drainCancel = drainCancel
	go c.drainLoop.Run(bgCtx)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	c.sweepCancel = sweepCancel
	go c.runSweepLoop(sweepCtx)

	c.logger.Info("starting AgentWallet API server",
		slog.String("version", c.config.App.Version),
		slog.String("environment", c.config.App.Environment),
		slog.String("address", c.config.Server.Address()),
	)

	return c.httpServer.Run()
}

// runSweepLoop periodically invokes the Dead-Man Switch's background
// sweep (§4.6: catches agents that stopped heartbeating without anyone
// calling Evaluate for them).
func (c *Container) runSweepLoop(ctx context.Context) {
	interval := c.config.DeadMan.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.services.deadManSvc.Sweep(ctx); err != nil {
				c.logger.Error("dead-man sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Shutdown gracefully stops the HTTP server, the background loops, and
// the messaging/cache/database connections, in that order.
func (c *Container) Shutdown(ctx context.Context) error {
	c.logger.Info("shutting down container")

	var errs []error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.drainCancel != nil {
		c.drainCancel()
	}
	if c.sweepCancel != nil {
		c.sweepCancel()
	}

	if c.natsConn != nil {
		c.natsConn.Close()
	}

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}

	if c.pool != nil {
		done := make(chan struct{})
		go func() {
			c.pool.Close()
			close(done)
		}()
		select {
		case <-done:
			c.logger.Info("database connection closed")
		case <-ctx.Done():
			c.logger.Warn("database close timed out")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	c.logger.Info("container shutdown complete")
	return nil
}

// Config exposes the loaded configuration (used by main and tests).
func (c *Container) Config() *config.Config { return c.config }

// Pool exposes the connection pool (used by tests and migrations).
func (c *Container) Pool() *pgxpool.Pool { return c.pool }
