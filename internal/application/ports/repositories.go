// Package ports defines the interfaces (ports) for external dependencies.
// Implementations live in the Infrastructure Layer.
//
// SOLID:
// - DIP: the application depends on abstractions, not concrete drivers
// - ISP: each interface focuses on a single aggregate
// - SRP: a store is responsible for persistence only
//
// Pattern: Repository + Ports & Adapters (Hexagonal Architecture). One
// store interface per aggregate (§4.2) — every other component talks to
// the database only through these; no business logic lives here.
package ports

import (
	"context"
	"time"

	"github.com/agentwallet/core/internal/domain/entities"
	"github.com/google/uuid"
)

// OwnerStore persists Owner aggregates.
type OwnerStore interface {
	Save(ctx context.Context, owner *entities.Owner) error
	FindByID(ctx context.Context, id uuid.UUID) (*entities.Owner, error)
	FindByAPIKeyHash(ctx context.Context, apiKeyHash string) (*entities.Owner, error)
}

// AgentStore persists Agent aggregates.
type AgentStore interface {
	Save(ctx context.Context, agent *entities.Agent) error
	FindByID(ctx context.Context, id uuid.UUID) (*entities.Agent, error)
	FindByAPIKeyHash(ctx context.Context, apiKeyHash string) (*entities.Agent, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*entities.Agent, error)
}

// WalletStore persists Wallet aggregates with optimistic-locked Save.
type WalletStore interface {
	// Save inserts a new wallet (version 0) or updates an existing one,
	// checking the balance version against the stored row — a mismatch
	// returns a ConcurrencyError so the caller can retry.
	Save(ctx context.Context, wallet *entities.Wallet) error

	FindByID(ctx context.Context, id uuid.UUID) (*entities.Wallet, error)

	// FindByIDForUpdate locks the row (SELECT ... FOR UPDATE) for the
	// duration of the enclosing transaction — the per-wallet mutual
	// exclusion required by spec.md §5.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entities.Wallet, error)

	ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*entities.Wallet, error)

	// List returns wallets matching filter with pagination.
	List(ctx context.Context, filter WalletFilter, offset, limit int) ([]*entities.Wallet, error)
}

// WalletFilter narrows a wallet query.
type WalletFilter struct {
	AgentID  *uuid.UUID
	Currency *string
	Status   *entities.WalletStatus
}

// RuleStore persists SpendRule aggregates.
type RuleStore interface {
	Save(ctx context.Context, rule *entities.SpendRule) error
	FindByID(ctx context.Context, id uuid.UUID) (*entities.SpendRule, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// ListActiveByWallet returns active rules ordered by descending
	// priority, as the Rules Engine requires (§4.4).
	ListActiveByWallet(ctx context.Context, walletID uuid.UUID) ([]*entities.SpendRule, error)

	// ListByWallet returns every rule on the wallet regardless of status.
	ListByWallet(ctx context.Context, walletID uuid.UUID) ([]*entities.SpendRule, error)
}

// TransactionFilter narrows a transaction query.
type TransactionFilter struct {
	WalletID       *uuid.UUID
	Status         *entities.TransactionStatus
	Since          *time.Time
	Until          *time.Time
	Category       *string
	ExcludeDeposit bool
}

// TransactionStore persists Transaction aggregates.
type TransactionStore interface {
	Save(ctx context.Context, tx *entities.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*entities.Transaction, error)
	List(ctx context.Context, filter TransactionFilter, offset, limit int) ([]*entities.Transaction, error)

	// SumCompletedSince returns the sum of amounts over Completed,
	// non-deposit transactions on walletID with createdAt >= since — the
	// spend(wallet, since) primitive of §4.4.
	SumCompletedSince(ctx context.Context, walletID uuid.UUID, since time.Time) (string, error)

	// ListPendingOlderThan returns Pending transactions created more than
	// age ago. No background job in this module calls it.
	ListPendingOlderThan(ctx context.Context, age time.Duration) ([]*entities.Transaction, error)
}

// KillSwitchStore persists KillSwitch aggregates.
type KillSwitchStore interface {
	Save(ctx context.Context, ks *entities.KillSwitch) error
	FindByID(ctx context.Context, id uuid.UUID) (*entities.KillSwitch, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListActiveByWallet(ctx context.Context, walletID uuid.UUID) ([]*entities.KillSwitch, error)
}

// DeadManStore persists DeadManSwitchConfig and DeadManSwitchEvent rows.
type DeadManStore interface {
	SaveConfig(ctx context.Context, cfg *entities.DeadManSwitchConfig) error
	FindConfig(ctx context.Context, agentID uuid.UUID) (*entities.DeadManSwitchConfig, error)

	// ListConfiguredAgents returns every agent id with a config, used by
	// the background sweep to build its snapshot.
	ListConfiguredAgents(ctx context.Context) ([]uuid.UUID, error)

	SaveEvent(ctx context.Context, event *entities.DeadManSwitchEvent) error
	FindUnresolvedEvent(ctx context.Context, agentID uuid.UUID) (*entities.DeadManSwitchEvent, error)
	ListEventsByAgent(ctx context.Context, agentID uuid.UUID) ([]*entities.DeadManSwitchEvent, error)

	// SaveHeartbeat / LastHeartbeat persist the durable fallback for the
	// in-process heartbeat map (rebuildable per spec.md §5/§9).
	SaveHeartbeat(ctx context.Context, agentID uuid.UUID, at time.Time) error
	LastHeartbeat(ctx context.Context, agentID uuid.UUID) (*time.Time, error)
}

// LineageStore persists AgentLineage and SpawnEvent rows.
type LineageStore interface {
	Save(ctx context.Context, lineage *entities.AgentLineage) error
	FindByAgentID(ctx context.Context, agentID uuid.UUID) (*entities.AgentLineage, error)
	ListByRoot(ctx context.Context, rootID uuid.UUID) ([]*entities.AgentLineage, error)
	SaveSpawnEvent(ctx context.Context, event *entities.SpawnEvent) error
}

// CrossAgentStore persists CrossAgentPolicy, CrossAgentTransaction and
// AgentGroup rows.
type CrossAgentStore interface {
	SavePolicy(ctx context.Context, policy *entities.CrossAgentPolicy) error
	FindPolicyByID(ctx context.Context, id uuid.UUID) (*entities.CrossAgentPolicy, error)
	DeletePolicy(ctx context.Context, id uuid.UUID) error

	// ResolvePolicies returns every enabled policy for sourceAgentID,
	// across all specificity tiers, for the resolution step of §4.8.
	ResolvePolicies(ctx context.Context, sourceAgentID uuid.UUID) ([]*entities.CrossAgentPolicy, error)

	SaveTransaction(ctx context.Context, tx *entities.CrossAgentTransaction) error
	FindTransactionByID(ctx context.Context, id uuid.UUID) (*entities.CrossAgentTransaction, error)

	// SumAuthorizedSince sums authorized cross-agent transaction amounts
	// from sourceAgentID to targetAgentID (or to all targets when
	// targetAgentID is nil) since the given time.
	SumAuthorizedSince(ctx context.Context, sourceAgentID uuid.UUID, targetAgentID *uuid.UUID, since time.Time) (string, error)

	// CounterpartyTrustScore computes settled/total cross-agent
	// transactions with targetAgentID as recipient.
	CounterpartyTrustScore(ctx context.Context, targetAgentID uuid.UUID) (float64, error)

	SaveGroup(ctx context.Context, group *entities.AgentGroup) error
	FindGroupByID(ctx context.Context, id uuid.UUID) (*entities.AgentGroup, error)
	ListGroupsContaining(ctx context.Context, agentID uuid.UUID) ([]*entities.AgentGroup, error)
}

// AuditFilter narrows an audit-log export/summary query.
type AuditFilter struct {
	AgentID  *uuid.UUID
	Resource *string
	Since    *time.Time
	Until    *time.Time
}

// AuditStore persists the append-only AuditLogEntry stream.
type AuditStore interface {
	Append(ctx context.Context, entry *entities.AuditLogEntry) error
	List(ctx context.Context, filter AuditFilter, offset, limit int) ([]*entities.AuditLogEntry, error)

	// CountByDecision supports the audit summary read (SPEC_FULL.md §13).
	CountByDecision(ctx context.Context, agentID uuid.UUID, since time.Time) (map[string]int, error)
}
