//go:build integration

// Package postgres - integration tests against a real Postgres instance.
//
// Run with:
//   go test -tags=integration ./internal/infrastructure/persistence/postgres/...
//
// Requirements:
//   - a running Postgres (docker-compose up -d)
//   - migrations applied (internal/infrastructure/persistence/migrations)
//
// Environment variables:
//   - TEST_DB_HOST (default: localhost)
//   - TEST_DB_PORT (default: 5432)
//   - TEST_DB_NAME (default: agentwallet_test)
//   - TEST_DB_USER (default: postgres)
//   - TEST_DB_PASSWORD (default: postgres)
package postgres

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/domain/entities"
	"github.com/agentwallet/core/internal/domain/valueobjects"
)

// testPool is shared by every test in this file.
var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()
	cfg := getTestConfig()

	pool, err := NewConnectionPool(ctx, cfg)
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	testPool = pool

	code := m.Run()

	pool.Close()
	os.Exit(code)
}

func getTestConfig() Config {
	cfg := DefaultConfig()

	if host := os.Getenv("TEST_DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("TEST_DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if name := os.Getenv("TEST_DB_NAME"); name != "" {
		cfg.Database = name
	} else {
		cfg.Database = "agentwallet_test"
	}
	if user := os.Getenv("TEST_DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("TEST_DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	cfg.SSLMode = "disable"

	return cfg
}

func cleanupTables(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	tables := []string{
		"outbox", "audit_log", "cross_agent_transactions", "cross_agent_policies",
		"agent_groups", "spawn_events", "agent_lineages", "dead_man_heartbeats",
		"dead_man_events", "dead_man_configs", "kill_switches", "transactions",
		"spend_rules", "wallets", "agents", "owners",
	}
	for _, table := range tables {
		if _, err := testPool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			t.Logf("warning: failed to truncate %s: %v", table, err)
		}
	}
}

func seedOwner(t *testing.T, ctx context.Context) *entities.Owner {
	t.Helper()
	owner, _, err := entities.NewOwner("owner@integration.test")
	require.NoError(t, err)
	require.NoError(t, NewOwnerRepository(testPool).Save(ctx, owner))
	return owner
}

func seedAgent(t *testing.T, ctx context.Context, ownerID uuid.UUID) *entities.Agent {
	t.Helper()
	agent, err := entities.NewAgent(ownerID, "hashed-key-"+uuid.NewString(), map[string]string{"env": "test"})
	require.NoError(t, err)
	require.NoError(t, NewAgentRepository(testPool).Save(ctx, agent))
	return agent
}

func seedWallet(t *testing.T, ctx context.Context, agentID uuid.UUID) *entities.Wallet {
	t.Helper()
	wallet, err := entities.NewWallet(agentID, valueobjects.USD)
	require.NoError(t, err)
	require.NoError(t, NewWalletRepository(testPool).Save(ctx, wallet))
	return wallet
}

func TestOwnerRepository_Integration_SaveAndFind(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	repo := NewOwnerRepository(testPool)

	owner := seedOwner(t, ctx)

	found, err := repo.FindByID(ctx, owner.ID())
	require.NoError(t, err)
	assert.Equal(t, owner.Contact(), found.Contact())

	byKey, err := repo.FindByAPIKeyHash(ctx, owner.APIKeyHash())
	require.NoError(t, err)
	assert.Equal(t, owner.ID(), byKey.ID())
}

func TestOwnerRepository_Integration_DuplicateAPIKeyHash(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	repo := NewOwnerRepository(testPool)

	owner1 := seedOwner(t, ctx)

	// Reconstruct a second owner sharing owner1's api key hash to exercise
	// the unique constraint directly, bypassing NewOwner's random key.
	owner2 := entities.ReconstructOwner(uuid.New(), owner1.APIKeyHash(), "two@integration.test", time.Now(), time.Now())

	err := repo.Save(ctx, owner2)
	assert.Error(t, err)
}

func TestAgentRepository_Integration_SaveAndLifecycle(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	owner := seedOwner(t, ctx)
	agent := seedAgent(t, ctx, owner.ID())

	repo := NewAgentRepository(testPool)
	require.NoError(t, agent.Activate())
	require.NoError(t, repo.Save(ctx, agent))

	found, err := repo.FindByID(ctx, agent.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.AgentStatusActive, found.Status())

	byOwner, err := repo.ListByOwner(ctx, owner.ID())
	require.NoError(t, err)
	assert.Len(t, byOwner, 1)
}

func TestWalletRepository_Integration_SaveAndOptimisticLock(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	owner := seedOwner(t, ctx)
	agent := seedAgent(t, ctx, owner.ID())
	wallet := seedWallet(t, ctx, agent.ID())

	repo := NewWalletRepository(testPool)

	loaded, err := repo.FindByIDForUpdate(ctx, wallet.ID())
	require.NoError(t, err)

	amount, err := valueobjects.NewMoney("50.00")
	require.NoError(t, err)
	require.NoError(t, loaded.Credit(amount))
	require.NoError(t, repo.Save(ctx, loaded))

	// A second in-memory copy built from the pre-credit snapshot still
	// carries the old balance_version, so saving it must lose the race
	// against the row loaded+saved above.
	stale := entities.ReconstructWallet(
		wallet.ID(), wallet.AgentID(), wallet.Currency(), wallet.Status(),
		wallet.AvailableBalance(), wallet.HeldBalance(), wallet.BalanceVersion(),
		wallet.CreatedAt(), wallet.UpdatedAt(),
	)
	require.NoError(t, stale.Credit(amount))
	err = repo.Save(ctx, stale)
	assert.Error(t, err)
}

func TestWalletRepository_Integration_DuplicateCurrency(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	owner := seedOwner(t, ctx)
	agent := seedAgent(t, ctx, owner.ID())
	_ = seedWallet(t, ctx, agent.ID())

	second, err := entities.NewWallet(agent.ID(), valueobjects.USD)
	require.NoError(t, err)

	err = NewWalletRepository(testPool).Save(ctx, second)
	assert.Error(t, err)
}

func TestTransactionRepository_Integration_SaveAndList(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	owner := seedOwner(t, ctx)
	agent := seedAgent(t, ctx, owner.ID())
	wallet := seedWallet(t, ctx, agent.ID())

	amount, err := valueobjects.NewMoney("25.00")
	require.NoError(t, err)
	tx, err := entities.NewTransaction(wallet.ID(), amount, "vendor-1", entities.RecipientTypeExternal, "subscription", nil)
	require.NoError(t, err)

	repo := NewTransactionRepository(testPool)
	require.NoError(t, repo.Save(ctx, tx))

	found, err := repo.FindByID(ctx, tx.ID())
	require.NoError(t, err)
	assert.Equal(t, tx.Amount().Cents(), found.Amount().Cents())

	walletID := wallet.ID()
	list, err := repo.List(ctx, ports.TransactionFilter{WalletID: &walletID}, 0, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestTransactionRepository_Integration_SumCompletedSince(t *testing.T) {
	cleanupTables(t)
	ctx := context.Background()
	owner := seedOwner(t, ctx)
	agent := seedAgent(t, ctx, owner.ID())
	wallet := seedWallet(t, ctx, agent.ID())

	amount, err := valueobjects.NewMoney("10.00")
	require.NoError(t, err)
	tx, err := entities.NewTransaction(wallet.ID(), amount, "vendor-1", entities.RecipientTypeExternal, "subscription", nil)
	require.NoError(t, err)
	require.NoError(t, tx.MarkApproved())
	require.NoError(t, tx.MarkCompleted())

	repo := NewTransactionRepository(testPool)
	require.NoError(t, repo.Save(ctx, tx))

	sum, err := repo.SumCompletedSince(ctx, wallet.ID(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.NotEmpty(t, sum)
}
