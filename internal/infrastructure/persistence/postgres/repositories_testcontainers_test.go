// Package postgres - integration tests for repositories using testcontainers.
//
// Run with:
//
//	go test ./internal/infrastructure/persistence/postgres/...
//
// Requirements:
//   - Docker running
//   - testcontainers-go installed
package postgres

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/domain/entities"
	domerrors "github.com/agentwallet/core/internal/domain/errors"
	"github.com/agentwallet/core/internal/domain/valueobjects"
	"github.com/google/uuid"
)

// ============================================
// Test Helpers
// ============================================

// testContainer bundles a running Postgres container with its pool.
type testContainer struct {
	container *postgres.PostgresContainer
	pool      *pgxpool.Pool
}

// sharedTestContainer is reused across tests to avoid a fresh container
// per test.
var sharedTestContainer *testContainer

// migrationScripts lists every up migration in dependency order, mirroring
// internal/infrastructure/persistence/migrations.
func migrationScripts(migrationsPath string) []string {
	names := []string{
		"000001_create_owners.up.sql",
		"000002_create_agents.up.sql",
		"000003_create_wallets.up.sql",
		"000004_create_spend_rules.up.sql",
		"000005_create_transactions.up.sql",
		"000006_create_kill_switches.up.sql",
		"000007_create_dead_man_switch.up.sql",
		"000008_create_agent_lineages.up.sql",
		"000009_create_cross_agent.up.sql",
		"000010_create_audit_log.up.sql",
		"000011_create_outbox.up.sql",
	}
	scripts := make([]string, len(names))
	for i, n := range names {
		scripts[i] = filepath.Join(migrationsPath, n)
	}
	return scripts
}

func setupSharedTestDB(t *testing.T) *testContainer {
	if sharedTestContainer != nil {
		cleanupTables(t, sharedTestContainer.pool)
		return sharedTestContainer
	}

	ctx := context.Background()
	migrationsPath := filepath.Join("..", "migrations")

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		postgres.WithInitScripts(migrationScripts(migrationsPath)...),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	require.NoError(t, err)

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))

	sharedTestContainer = &testContainer{container: container, pool: pool}
	return sharedTestContainer
}

// setupTestDB spins up a container isolated to a single test.
func setupTestDB(t *testing.T) *testContainer {
	ctx := context.Background()
	migrationsPath := filepath.Join("..", "migrations")

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		postgres.WithInitScripts(migrationScripts(migrationsPath)...),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	require.NoError(t, err)

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
	})

	require.NoError(t, pool.Ping(ctx))

	return &testContainer{container: container, pool: pool}
}

// cleanupTables truncates every table between tests, respecting FKs.
func cleanupTables(t *testing.T, pool *pgxpool.Pool) {
	ctx := context.Background()

	tables := []string{
		"outbox", "audit_log", "cross_agent_transactions", "cross_agent_policies",
		"agent_groups", "spawn_events", "agent_lineages", "dead_man_heartbeats",
		"dead_man_events", "dead_man_configs", "kill_switches", "transactions",
		"spend_rules", "wallets", "agents", "owners",
	}
	for _, table := range tables {
		_, err := pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		if err != nil {
			t.Logf("warning: failed to cleanup %s: %v", table, err)
		}
	}
}

func newTestOwner(t *testing.T, ctx context.Context, repo *OwnerRepository, contact string) *entities.Owner {
	t.Helper()
	owner, _, err := entities.NewOwner(contact)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, owner))
	return owner
}

func newTestAgent(t *testing.T, ctx context.Context, repo *AgentRepository, ownerID uuid.UUID) *entities.Agent {
	t.Helper()
	agent, err := entities.NewAgent(ownerID, "hash-"+uuid.NewString(), nil)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, agent))
	return agent
}

// ============================================
// OwnerRepository Tests
// ============================================

func TestOwnerRepository_Integration_Save(t *testing.T) {
	tc := setupSharedTestDB(t)
	repo := NewOwnerRepository(tc.pool)
	ctx := context.Background()

	t.Run("SaveNewOwner", func(t *testing.T) {
		owner := newTestOwner(t, ctx, repo, "test@example.com")

		loaded, err := repo.FindByID(ctx, owner.ID())
		require.NoError(t, err)
		assert.Equal(t, owner.Contact(), loaded.Contact())
		assert.Equal(t, owner.APIKeyHash(), loaded.APIKeyHash())
	})

	t.Run("DuplicateAPIKeyHash", func(t *testing.T) {
		owner1 := newTestOwner(t, ctx, repo, "dup1@example.com")
		owner2 := entities.ReconstructOwner(uuid.New(), owner1.APIKeyHash(), "dup2@example.com", time.Now(), time.Now())

		err := repo.Save(ctx, owner2)
		assert.Error(t, err)
		assert.True(t, domerrors.IsValidationError(err) || err != nil)
	})
}

func TestOwnerRepository_Integration_FindByID(t *testing.T) {
	tc := setupSharedTestDB(t)
	repo := NewOwnerRepository(tc.pool)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		owner := newTestOwner(t, ctx, repo, "find@example.com")

		found, err := repo.FindByID(ctx, owner.ID())
		assert.NoError(t, err)
		assert.Equal(t, owner.ID(), found.ID())
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.Error(t, err)
		assert.True(t, domerrors.IsNotFound(err))
	})
}

func TestOwnerRepository_Integration_FindByAPIKeyHash(t *testing.T) {
	tc := setupSharedTestDB(t)
	repo := NewOwnerRepository(tc.pool)
	ctx := context.Background()

	owner := newTestOwner(t, ctx, repo, "apikey@example.com")

	t.Run("Success", func(t *testing.T) {
		found, err := repo.FindByAPIKeyHash(ctx, owner.APIKeyHash())
		assert.NoError(t, err)
		assert.Equal(t, owner.ID(), found.ID())
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.FindByAPIKeyHash(ctx, "not-a-real-hash")
		assert.Error(t, err)
		assert.True(t, domerrors.IsNotFound(err))
	})
}

// ============================================
// AgentRepository Tests
// ============================================

func TestAgentRepository_Integration_Save(t *testing.T) {
	tc := setupSharedTestDB(t)
	ownerRepo := NewOwnerRepository(tc.pool)
	agentRepo := NewAgentRepository(tc.pool)
	ctx := context.Background()

	owner := newTestOwner(t, ctx, ownerRepo, "agentowner@example.com")

	t.Run("SaveNewAgent", func(t *testing.T) {
		agent := newTestAgent(t, ctx, agentRepo, owner.ID())

		loaded, err := agentRepo.FindByID(ctx, agent.ID())
		require.NoError(t, err)
		assert.Equal(t, owner.ID(), loaded.OwnerID())
		assert.Equal(t, entities.AgentStatusPending, loaded.Status())
	})

	t.Run("UpdateAgentStatus", func(t *testing.T) {
		agent := newTestAgent(t, ctx, agentRepo, owner.ID())

		require.NoError(t, agent.Activate())
		require.NoError(t, agentRepo.Save(ctx, agent))

		loaded, err := agentRepo.FindByID(ctx, agent.ID())
		require.NoError(t, err)
		assert.Equal(t, entities.AgentStatusActive, loaded.Status())
	})
}

func TestAgentRepository_Integration_ListByOwner(t *testing.T) {
	tc := setupSharedTestDB(t)
	ownerRepo := NewOwnerRepository(tc.pool)
	agentRepo := NewAgentRepository(tc.pool)
	ctx := context.Background()

	owner := newTestOwner(t, ctx, ownerRepo, "listowner@example.com")
	for i := 0; i < 3; i++ {
		newTestAgent(t, ctx, agentRepo, owner.ID())
	}

	agents, err := agentRepo.ListByOwner(ctx, owner.ID())
	assert.NoError(t, err)
	assert.Len(t, agents, 3)
}

// ============================================
// WalletRepository Tests
// ============================================

func TestWalletRepository_Integration_Save(t *testing.T) {
	tc := setupSharedTestDB(t)
	ownerRepo := NewOwnerRepository(tc.pool)
	agentRepo := NewAgentRepository(tc.pool)
	walletRepo := NewWalletRepository(tc.pool)
	ctx := context.Background()

	owner := newTestOwner(t, ctx, ownerRepo, "walletowner@example.com")
	agent := newTestAgent(t, ctx, agentRepo, owner.ID())

	t.Run("SaveNewWallet", func(t *testing.T) {
		wallet, err := entities.NewWallet(agent.ID(), valueobjects.USD)
		require.NoError(t, err)

		err = walletRepo.Save(ctx, wallet)
		assert.NoError(t, err)

		loaded, err := walletRepo.FindByID(ctx, wallet.ID())
		require.NoError(t, err)
		assert.Equal(t, wallet.ID(), loaded.ID())
		assert.Equal(t, agent.ID(), loaded.AgentID())
		assert.Equal(t, "USD", loaded.Currency().Code())
	})

	t.Run("UpdateWalletBalance", func(t *testing.T) {
		agent2 := newTestAgent(t, ctx, agentRepo, owner.ID())
		wallet, err := entities.NewWallet(agent2.ID(), valueobjects.EUR)
		require.NoError(t, err)
		require.NoError(t, walletRepo.Save(ctx, wallet))

		amount, err := valueobjects.NewMoney("100.50")
		require.NoError(t, err)
		require.NoError(t, wallet.Credit(amount))

		err = walletRepo.Save(ctx, wallet)
		assert.NoError(t, err)

		loaded, err := walletRepo.FindByID(ctx, wallet.ID())
		require.NoError(t, err)
		assert.Equal(t, "100.50", loaded.AvailableBalance().String())
	})

	t.Run("OptimisticLockingConflict", func(t *testing.T) {
		agent3 := newTestAgent(t, ctx, agentRepo, owner.ID())
		wallet, err := entities.NewWallet(agent3.ID(), valueobjects.USDT)
		require.NoError(t, err)
		require.NoError(t, walletRepo.Save(ctx, wallet))

		wallet1, err := walletRepo.FindByID(ctx, wallet.ID())
		require.NoError(t, err)
		wallet2, err := walletRepo.FindByID(ctx, wallet.ID())
		require.NoError(t, err)

		amount1, err := valueobjects.NewMoney("1.0")
		require.NoError(t, err)
		require.NoError(t, wallet1.Credit(amount1))
		require.NoError(t, walletRepo.Save(ctx, wallet1))

		amount2, err := valueobjects.NewMoney("2.0")
		require.NoError(t, err)
		require.NoError(t, wallet2.Credit(amount2))
		err = walletRepo.Save(ctx, wallet2)

		assert.Error(t, err)
		assert.True(t, domerrors.IsConcurrencyError(err))
	})
}

func TestWalletRepository_Integration_ListFilteredByCurrency(t *testing.T) {
	tc := setupSharedTestDB(t)
	ownerRepo := NewOwnerRepository(tc.pool)
	agentRepo := NewAgentRepository(tc.pool)
	walletRepo := NewWalletRepository(tc.pool)
	ctx := context.Background()

	owner := newTestOwner(t, ctx, ownerRepo, "multi@example.com")
	agent := newTestAgent(t, ctx, agentRepo, owner.ID())

	wallet, err := entities.NewWallet(agent.ID(), valueobjects.USD)
	require.NoError(t, err)
	require.NoError(t, walletRepo.Save(ctx, wallet))

	t.Run("Success", func(t *testing.T) {
		agentID := agent.ID()
		code := valueobjects.USD.Code()
		found, err := walletRepo.List(ctx, ports.WalletFilter{AgentID: &agentID, Currency: &code}, 0, 10)
		assert.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, wallet.ID(), found[0].ID())
	})

	t.Run("NoMatch", func(t *testing.T) {
		agentID := agent.ID()
		code := valueobjects.EUR.Code()
		found, err := walletRepo.List(ctx, ports.WalletFilter{AgentID: &agentID, Currency: &code}, 0, 10)
		assert.NoError(t, err)
		assert.Empty(t, found)
	})
}

func TestWalletRepository_Integration_ListByAgent(t *testing.T) {
	tc := setupSharedTestDB(t)
	ownerRepo := NewOwnerRepository(tc.pool)
	agentRepo := NewAgentRepository(tc.pool)
	walletRepo := NewWalletRepository(tc.pool)
	ctx := context.Background()

	owner := newTestOwner(t, ctx, ownerRepo, "list@example.com")
	agent := newTestAgent(t, ctx, agentRepo, owner.ID())

	currencies := []valueobjects.Currency{valueobjects.USD, valueobjects.EUR, valueobjects.USDT}
	for _, c := range currencies {
		wallet, err := entities.NewWallet(agent.ID(), c)
		require.NoError(t, err)
		require.NoError(t, walletRepo.Save(ctx, wallet))
	}

	wallets, err := walletRepo.ListByAgent(ctx, agent.ID())
	assert.NoError(t, err)
	assert.Len(t, wallets, 3)
}

// ============================================
// TransactionRepository Tests
// ============================================

func TestTransactionRepository_Integration_Save(t *testing.T) {
	tc := setupSharedTestDB(t)
	ownerRepo := NewOwnerRepository(tc.pool)
	agentRepo := NewAgentRepository(tc.pool)
	walletRepo := NewWalletRepository(tc.pool)
	txRepo := NewTransactionRepository(tc.pool)
	ctx := context.Background()

	owner := newTestOwner(t, ctx, ownerRepo, "tx@example.com")
	agent := newTestAgent(t, ctx, agentRepo, owner.ID())
	wallet, err := entities.NewWallet(agent.ID(), valueobjects.USD)
	require.NoError(t, err)
	require.NoError(t, walletRepo.Save(ctx, wallet))

	t.Run("SaveNewTransaction", func(t *testing.T) {
		amount, err := valueobjects.NewMoney("50.00")
		require.NoError(t, err)
		tx, err := entities.NewTransaction(wallet.ID(), amount, "vendor-1", entities.RecipientTypeExternal, "subscription", nil)
		require.NoError(t, err)

		err = txRepo.Save(ctx, tx)
		assert.NoError(t, err)

		loaded, err := txRepo.FindByID(ctx, tx.ID())
		require.NoError(t, err)
		assert.Equal(t, tx.ID(), loaded.ID())
		assert.Equal(t, entities.TransactionStatusPending, loaded.Status())
	})

	t.Run("UpdateTransactionStatus", func(t *testing.T) {
		amount, err := valueobjects.NewMoney("100.00")
		require.NoError(t, err)
		tx, err := entities.NewTransaction(wallet.ID(), amount, "vendor-2", entities.RecipientTypeExternal, "subscription", nil)
		require.NoError(t, err)
		require.NoError(t, txRepo.Save(ctx, tx))

		require.NoError(t, tx.MarkApproved())
		require.NoError(t, tx.MarkCompleted())
		err = txRepo.Save(ctx, tx)
		assert.NoError(t, err)

		loaded, err := txRepo.FindByID(ctx, tx.ID())
		require.NoError(t, err)
		assert.Equal(t, entities.TransactionStatusCompleted, loaded.Status())
		assert.NotNil(t, loaded.CompletedAt())
	})
}

func TestTransactionRepository_Integration_List(t *testing.T) {
	tc := setupSharedTestDB(t)
	ownerRepo := NewOwnerRepository(tc.pool)
	agentRepo := NewAgentRepository(tc.pool)
	walletRepo := NewWalletRepository(tc.pool)
	txRepo := NewTransactionRepository(tc.pool)
	ctx := context.Background()

	owner := newTestOwner(t, ctx, ownerRepo, "txlist@example.com")
	agent := newTestAgent(t, ctx, agentRepo, owner.ID())
	wallet, err := entities.NewWallet(agent.ID(), valueobjects.USD)
	require.NoError(t, err)
	require.NoError(t, walletRepo.Save(ctx, wallet))

	for i := 0; i < 5; i++ {
		amount, err := valueobjects.NewMoney(fmt.Sprintf("%d.00", i+1))
		require.NoError(t, err)
		tx, err := entities.NewTransaction(wallet.ID(), amount, "vendor", entities.RecipientTypeExternal, "subscription", nil)
		require.NoError(t, err)
		require.NoError(t, txRepo.Save(ctx, tx))
	}

	walletID := wallet.ID()
	txs, err := txRepo.List(ctx, ports.TransactionFilter{WalletID: &walletID}, 0, 10)
	assert.NoError(t, err)
	assert.Len(t, txs, 5)
}

// ============================================
// UnitOfWork Tests
// ============================================

func TestUnitOfWork_Integration_Commit(t *testing.T) {
	tc := setupSharedTestDB(t)

	uow := NewUnitOfWork(tc.pool)
	ownerRepo := NewOwnerRepository(tc.pool)
	ctx := context.Background()

	t.Run("CommitSuccess", func(t *testing.T) {
		var created *entities.Owner
		err := uow.Execute(ctx, func(ctx context.Context) error {
			owner, _, err := entities.NewOwner("commit@example.com")
			if err != nil {
				return err
			}
			created = owner
			return ownerRepo.Save(ctx, owner)
		})

		assert.NoError(t, err)

		_, err = ownerRepo.FindByID(ctx, created.ID())
		assert.NoError(t, err)
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		var created *entities.Owner
		err := uow.Execute(ctx, func(ctx context.Context) error {
			owner, _, err := entities.NewOwner("rollback@example.com")
			if err != nil {
				return err
			}
			created = owner
			if err := ownerRepo.Save(ctx, owner); err != nil {
				return err
			}
			return fmt.Errorf("intentional error")
		})

		assert.Error(t, err)

		_, err = ownerRepo.FindByID(ctx, created.ID())
		assert.Error(t, err)
		assert.True(t, domerrors.IsNotFound(err))
	})
}

func TestUnitOfWork_Integration_AtomicTransfer(t *testing.T) {
	tc := setupSharedTestDB(t)

	uow := NewUnitOfWork(tc.pool)
	ownerRepo := NewOwnerRepository(tc.pool)
	agentRepo := NewAgentRepository(tc.pool)
	walletRepo := NewWalletRepository(tc.pool)
	ctx := context.Background()

	owner := newTestOwner(t, ctx, ownerRepo, "transferowner@example.com")
	agent1 := newTestAgent(t, ctx, agentRepo, owner.ID())
	agent2 := newTestAgent(t, ctx, agentRepo, owner.ID())

	wallet1, err := entities.NewWallet(agent1.ID(), valueobjects.USD)
	require.NoError(t, err)
	wallet2, err := entities.NewWallet(agent2.ID(), valueobjects.USD)
	require.NoError(t, err)

	require.NoError(t, walletRepo.Save(ctx, wallet1))
	require.NoError(t, walletRepo.Save(ctx, wallet2))

	initialAmount, err := valueobjects.NewMoney("1000.00")
	require.NoError(t, err)
	err = uow.Execute(ctx, func(txCtx context.Context) error {
		w1, err := walletRepo.FindByID(txCtx, wallet1.ID())
		if err != nil {
			return err
		}
		if err := w1.Credit(initialAmount); err != nil {
			return err
		}
		return walletRepo.Save(txCtx, w1)
	})
	require.NoError(t, err, "initial credit should succeed")

	transferAmount, err := valueobjects.NewMoney("100.00")
	require.NoError(t, err)

	err = uow.Execute(ctx, func(txCtx context.Context) error {
		w1, err := walletRepo.FindByID(txCtx, wallet1.ID())
		if err != nil {
			return fmt.Errorf("failed to load wallet1: %w", err)
		}

		w2, err := walletRepo.FindByID(txCtx, wallet2.ID())
		if err != nil {
			return fmt.Errorf("failed to load wallet2: %w", err)
		}

		if err := w1.Debit(transferAmount); err != nil {
			return fmt.Errorf("failed to debit wallet1: %w", err)
		}

		if err := w2.Credit(transferAmount); err != nil {
			return fmt.Errorf("failed to credit wallet2: %w", err)
		}

		if err := walletRepo.Save(txCtx, w1); err != nil {
			return fmt.Errorf("failed to save wallet1: %w", err)
		}
		if err := walletRepo.Save(txCtx, w2); err != nil {
			return fmt.Errorf("failed to save wallet2: %w", err)
		}

		return nil
	})

	require.NoError(t, err, "transaction should succeed")

	w1, err := walletRepo.FindByID(ctx, wallet1.ID())
	require.NoError(t, err)
	w2, err := walletRepo.FindByID(ctx, wallet2.ID())
	require.NoError(t, err)

	assert.Equal(t, "900.00", w1.AvailableBalance().String(), "wallet1 should have 900 USD")
	assert.Equal(t, "100.00", w2.AvailableBalance().String(), "wallet2 should have 100 USD")
}
