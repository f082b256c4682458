// Package postgres - CrossAgentRepository implementation.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/domain/entities"
	domainErrors "github.com/agentwallet/core/internal/domain/errors"
	"github.com/agentwallet/core/internal/domain/valueobjects"
)

var _ ports.CrossAgentStore = (*CrossAgentRepository)(nil)

// CrossAgentRepository implements ports.CrossAgentStore across
// cross_agent_policies, cross_agent_transactions and agent_groups.
type CrossAgentRepository struct {
	pool *pgxpool.Pool
}

// NewCrossAgentRepository constructs a CrossAgentRepository.
func NewCrossAgentRepository(pool *pgxpool.Pool) *CrossAgentRepository {
	return &CrossAgentRepository{pool: pool}
}

func (r *CrossAgentRepository) getQuerier(ctx context.Context) querier {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// SavePolicy upserts a cross-agent policy.
func (r *CrossAgentRepository) SavePolicy(ctx context.Context, policy *entities.CrossAgentPolicy) error {
	q := r.getQuerier(ctx)

	paymentTypesJSON, err := json.Marshal(policy.AllowedPaymentTypes())
	if err != nil {
		return fmt.Errorf("marshal allowed payment types: %w", err)
	}

	query := `
		INSERT INTO cross_agent_policies (
			id, owner_id, source_agent_id, target_agent_id, target_agent_group,
			max_per_transaction, max_daily_to_target, max_daily_all_agents,
			allowed_payment_types, require_human_approval_above,
			require_mutual_policy, settlement_mode, min_counterparty_trust_score, enabled,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			max_per_transaction = EXCLUDED.max_per_transaction,
			max_daily_to_target = EXCLUDED.max_daily_to_target,
			max_daily_all_agents = EXCLUDED.max_daily_all_agents,
			allowed_payment_types = EXCLUDED.allowed_payment_types,
			require_human_approval_above = EXCLUDED.require_human_approval_above,
			require_mutual_policy = EXCLUDED.require_mutual_policy,
			settlement_mode = EXCLUDED.settlement_mode,
			min_counterparty_trust_score = EXCLUDED.min_counterparty_trust_score,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at
	`
	_, err = q.Exec(ctx, query,
		policy.ID(), policy.OwnerID(), policy.SourceAgentID(), policy.TargetAgentID(), policy.TargetAgentGroup(),
		policy.MaxPerTransaction(), policy.MaxDailyToTarget(), policy.MaxDailyAllAgents(),
		paymentTypesJSON, policy.RequireHumanApprovalAbove(),
		policy.RequireMutualPolicy(), string(policy.SettlementMode()), policy.MinCounterpartyTrustScore(), policy.Enabled(),
		policy.CreatedAt(), policy.UpdatedAt(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domainErrors.NewDomainError("AGENT_NOT_FOUND", "agent not found", err)
		}
		return fmt.Errorf("save cross agent policy: %w", err)
	}
	return nil
}

const crossAgentPolicyColumns = `id, owner_id, source_agent_id, target_agent_id, target_agent_group, max_per_transaction, max_daily_to_target, max_daily_all_agents, allowed_payment_types, require_human_approval_above, require_mutual_policy, settlement_mode, min_counterparty_trust_score, enabled, created_at, updated_at`

func scanCrossAgentPolicy(row pgx.Row) (*entities.CrossAgentPolicy, error) {
	var (
		id, ownerID, sourceAgentID               uuid.UUID
		targetAgentID, targetAgentGroup          *uuid.UUID
		maxPerTransaction, maxDailyToTarget      string
		maxDailyAllAgents                        string
		paymentTypesJSON                         []byte
		requireHumanApprovalAbove                string
		requireMutualPolicy                      bool
		settlementMode                           string
		minCounterpartyTrustScore                float64
		enabled                                  bool
		createdAt, updatedAt                     time.Time
	)
	err := row.Scan(
		&id, &ownerID, &sourceAgentID, &targetAgentID, &targetAgentGroup,
		&maxPerTransaction, &maxDailyToTarget, &maxDailyAllAgents,
		&paymentTypesJSON, &requireHumanApprovalAbove,
		&requireMutualPolicy, &settlementMode, &minCounterpartyTrustScore, &enabled,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrEntityNotFound
		}
		return nil, fmt.Errorf("scan cross agent policy: %w", err)
	}
	return hydrateCrossAgentPolicy(id, ownerID, sourceAgentID, targetAgentID, targetAgentGroup,
		maxPerTransaction, maxDailyToTarget, maxDailyAllAgents, paymentTypesJSON, requireHumanApprovalAbove,
		requireMutualPolicy, settlementMode, minCounterpartyTrustScore, enabled, createdAt, updatedAt)
}

func hydrateCrossAgentPolicy(
	id, ownerID, sourceAgentID uuid.UUID,
	targetAgentID, targetAgentGroup *uuid.UUID,
	maxPerTransaction, maxDailyToTarget, maxDailyAllAgents string,
	paymentTypesJSON []byte,
	requireHumanApprovalAbove string,
	requireMutualPolicy bool,
	settlementMode string,
	minCounterpartyTrustScore float64,
	enabled bool,
	createdAt, updatedAt time.Time,
) (*entities.CrossAgentPolicy, error) {
	var paymentTypes []string
	if len(paymentTypesJSON) > 0 {
		if err := json.Unmarshal(paymentTypesJSON, &paymentTypes); err != nil {
			return nil, fmt.Errorf("unmarshal allowed payment types: %w", err)
		}
	}
	return entities.ReconstructCrossAgentPolicy(
		id, ownerID, sourceAgentID, targetAgentID, targetAgentGroup,
		maxPerTransaction, maxDailyToTarget, maxDailyAllAgents,
		paymentTypes, requireHumanApprovalAbove,
		requireMutualPolicy, entities.SettlementMode(settlementMode), minCounterpartyTrustScore, enabled,
		createdAt, updatedAt,
	), nil
}

// FindPolicyByID loads a cross-agent policy by id.
func (r *CrossAgentRepository) FindPolicyByID(ctx context.Context, id uuid.UUID) (*entities.CrossAgentPolicy, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + crossAgentPolicyColumns + ` FROM cross_agent_policies WHERE id = $1`
	return scanCrossAgentPolicy(q.QueryRow(ctx, query, id))
}

// DeletePolicy removes a cross-agent policy.
func (r *CrossAgentRepository) DeletePolicy(ctx context.Context, id uuid.UUID) error {
	q := r.getQuerier(ctx)
	result, err := q.Exec(ctx, `DELETE FROM cross_agent_policies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete cross agent policy: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domainErrors.ErrEntityNotFound
	}
	return nil
}

// ResolvePolicies returns every enabled policy for sourceAgentID, across
// all specificity tiers (exact target, group, wildcard) — the caller
// picks the most specific match per §4.8 step 1.
func (r *CrossAgentRepository) ResolvePolicies(ctx context.Context, sourceAgentID uuid.UUID) ([]*entities.CrossAgentPolicy, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + crossAgentPolicyColumns + ` FROM cross_agent_policies WHERE source_agent_id = $1 AND enabled = true`

	rows, err := q.Query(ctx, query, sourceAgentID)
	if err != nil {
		return nil, fmt.Errorf("resolve cross agent policies: %w", err)
	}
	defer rows.Close()

	var out []*entities.CrossAgentPolicy
	for rows.Next() {
		var (
			id, ownerID, srcID               uuid.UUID
			targetAgentID, targetAgentGroup  *uuid.UUID
			maxPerTransaction, maxDaily      string
			maxDailyAllAgents                string
			paymentTypesJSON                 []byte
			requireHumanApprovalAbove        string
			requireMutualPolicy              bool
			settlementMode                   string
			minCounterpartyTrustScore        float64
			enabled                          bool
			createdAt, updatedAt             time.Time
		)
		if err := rows.Scan(&id, &ownerID, &srcID, &targetAgentID, &targetAgentGroup,
			&maxPerTransaction, &maxDaily, &maxDailyAllAgents,
			&paymentTypesJSON, &requireHumanApprovalAbove,
			&requireMutualPolicy, &settlementMode, &minCounterpartyTrustScore, &enabled,
			&createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan cross agent policy row: %w", err)
		}
		policy, err := hydrateCrossAgentPolicy(id, ownerID, srcID, targetAgentID, targetAgentGroup,
			maxPerTransaction, maxDaily, maxDailyAllAgents, paymentTypesJSON, requireHumanApprovalAbove,
			requireMutualPolicy, settlementMode, minCounterpartyTrustScore, enabled, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, policy)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cross agent policy rows: %w", err)
	}
	return out, nil
}

// SaveTransaction upserts a cross-agent transaction.
func (r *CrossAgentRepository) SaveTransaction(ctx context.Context, tx *entities.CrossAgentTransaction) error {
	q := r.getQuerier(ctx)

	query := `
		INSERT INTO cross_agent_transactions (
			id, source_agent_id, target_agent_id, amount, payment_type,
			authorized, authorization_method, settlement_status, requires_human, policy_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			authorized = EXCLUDED.authorized,
			authorization_method = EXCLUDED.authorization_method,
			settlement_status = EXCLUDED.settlement_status,
			requires_human = EXCLUDED.requires_human,
			policy_id = EXCLUDED.policy_id
	`
	_, err := q.Exec(ctx, query,
		tx.ID(), tx.SourceAgentID(), tx.TargetAgentID(), tx.Amount(), tx.PaymentType(),
		tx.Authorized(), string(tx.AuthorizationMethod()), string(tx.SettlementStatus()), tx.RequiresHuman(), tx.PolicyID(), tx.CreatedAt(),
	)
	if err != nil {
		return fmt.Errorf("save cross agent transaction: %w", err)
	}
	return nil
}

const crossAgentTransactionColumns = `id, source_agent_id, target_agent_id, amount, payment_type, authorized, authorization_method, settlement_status, requires_human, policy_id, created_at`

func scanCrossAgentTransaction(row pgx.Row) (*entities.CrossAgentTransaction, error) {
	var (
		id, sourceAgentID, targetAgentID uuid.UUID
		amount, paymentType              string
		authorized                       bool
		authorizationMethod              string
		settlementStatus                 string
		requiresHuman                    bool
		policyID                         *uuid.UUID
		createdAt                        time.Time
	)
	err := row.Scan(&id, &sourceAgentID, &targetAgentID, &amount, &paymentType,
		&authorized, &authorizationMethod, &settlementStatus, &requiresHuman, &policyID, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrEntityNotFound
		}
		return nil, fmt.Errorf("scan cross agent transaction: %w", err)
	}
	return entities.ReconstructCrossAgentTransaction(
		id, sourceAgentID, targetAgentID, amount, paymentType,
		authorized, entities.AuthorizationMethod(authorizationMethod), entities.SettlementStatus(settlementStatus),
		requiresHuman, policyID, createdAt,
	), nil
}

// FindTransactionByID loads a cross-agent transaction by id.
func (r *CrossAgentRepository) FindTransactionByID(ctx context.Context, id uuid.UUID) (*entities.CrossAgentTransaction, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + crossAgentTransactionColumns + ` FROM cross_agent_transactions WHERE id = $1`
	return scanCrossAgentTransaction(q.QueryRow(ctx, query, id))
}

// SumAuthorizedSince sums authorized cross-agent transaction amounts from
// sourceAgentID, optionally narrowed to a single targetAgentID.
func (r *CrossAgentRepository) SumAuthorizedSince(ctx context.Context, sourceAgentID uuid.UUID, targetAgentID *uuid.UUID, since time.Time) (string, error) {
	q := r.getQuerier(ctx)

	var query string
	var rows pgx.Row
	if targetAgentID != nil {
		query = `SELECT COALESCE(SUM(amount), 0) FROM cross_agent_transactions WHERE source_agent_id = $1 AND target_agent_id = $2 AND authorized = true AND created_at >= $3`
		rows = q.QueryRow(ctx, query, sourceAgentID, *targetAgentID, since)
	} else {
		query = `SELECT COALESCE(SUM(amount), 0) FROM cross_agent_transactions WHERE source_agent_id = $1 AND authorized = true AND created_at >= $2`
		rows = q.QueryRow(ctx, query, sourceAgentID, since)
	}

	var cents int64
	if err := rows.Scan(&cents); err != nil {
		return "", fmt.Errorf("sum authorized cross agent transactions: %w", err)
	}
	sum, err := valueobjects.NewMoneyFromCents(cents)
	if err != nil {
		return "", fmt.Errorf("build sum money: %w", err)
	}
	return sum.String(), nil
}

// CounterpartyTrustScore computes settled/total cross-agent transactions
// with targetAgentID as recipient, the signal behind a policy's
// minCounterpartyTrustScore gate (§4.8 step 3).
func (r *CrossAgentRepository) CounterpartyTrustScore(ctx context.Context, targetAgentID uuid.UUID) (float64, error) {
	q := r.getQuerier(ctx)
	query := `
		SELECT
			COUNT(*) FILTER (WHERE settlement_status = 'settled'),
			COUNT(*)
		FROM cross_agent_transactions
		WHERE target_agent_id = $1
	`
	var settled, total int64
	if err := q.QueryRow(ctx, query, targetAgentID).Scan(&settled, &total); err != nil {
		return 0, fmt.Errorf("compute counterparty trust score: %w", err)
	}
	if total == 0 {
		return 1.0, nil
	}
	return float64(settled) / float64(total), nil
}

// SaveGroup upserts an agent group.
func (r *CrossAgentRepository) SaveGroup(ctx context.Context, group *entities.AgentGroup) error {
	q := r.getQuerier(ctx)

	agentIDsJSON, err := json.Marshal(group.AgentIDs())
	if err != nil {
		return fmt.Errorf("marshal agent ids: %w", err)
	}

	query := `
		INSERT INTO agent_groups (id, owner_id, name, agent_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			agent_ids = EXCLUDED.agent_ids,
			updated_at = EXCLUDED.updated_at
	`
	_, err = q.Exec(ctx, query, group.ID(), group.OwnerID(), group.Name(), agentIDsJSON, group.CreatedAt(), group.UpdatedAt())
	if err != nil {
		return fmt.Errorf("save agent group: %w", err)
	}
	return nil
}

const agentGroupColumns = `id, owner_id, name, agent_ids, created_at, updated_at`

func scanAgentGroup(row pgx.Row) (*entities.AgentGroup, error) {
	var (
		id, ownerID          uuid.UUID
		name                 string
		agentIDsJSON         []byte
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&id, &ownerID, &name, &agentIDsJSON, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrEntityNotFound
		}
		return nil, fmt.Errorf("scan agent group: %w", err)
	}
	return hydrateAgentGroup(id, ownerID, name, agentIDsJSON, createdAt, updatedAt)
}

func hydrateAgentGroup(id, ownerID uuid.UUID, name string, agentIDsJSON []byte, createdAt, updatedAt time.Time) (*entities.AgentGroup, error) {
	var agentIDs []uuid.UUID
	if len(agentIDsJSON) > 0 {
		if err := json.Unmarshal(agentIDsJSON, &agentIDs); err != nil {
			return nil, fmt.Errorf("unmarshal agent ids: %w", err)
		}
	}
	return entities.ReconstructAgentGroup(id, ownerID, name, agentIDs, createdAt, updatedAt), nil
}

// FindGroupByID loads an agent group by id.
func (r *CrossAgentRepository) FindGroupByID(ctx context.Context, id uuid.UUID) (*entities.AgentGroup, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + agentGroupColumns + ` FROM agent_groups WHERE id = $1`
	return scanAgentGroup(q.QueryRow(ctx, query, id))
}

// ListGroupsContaining returns every group agentID belongs to, the
// candidates for group-tier policy resolution (§4.8 step 1b).
func (r *CrossAgentRepository) ListGroupsContaining(ctx context.Context, agentID uuid.UUID) ([]*entities.AgentGroup, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + agentGroupColumns + ` FROM agent_groups WHERE agent_ids @> $1`

	memberJSON, err := json.Marshal([]uuid.UUID{agentID})
	if err != nil {
		return nil, fmt.Errorf("marshal agent id filter: %w", err)
	}

	rows, err := q.Query(ctx, query, memberJSON)
	if err != nil {
		return nil, fmt.Errorf("list groups containing agent: %w", err)
	}
	defer rows.Close()

	var out []*entities.AgentGroup
	for rows.Next() {
		var (
			id, ownerID          uuid.UUID
			name                 string
			agentIDsJSON         []byte
			createdAt, updatedAt time.Time
		)
		if err := rows.Scan(&id, &ownerID, &name, &agentIDsJSON, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan agent group row: %w", err)
		}
		group, err := hydrateAgentGroup(id, ownerID, name, agentIDsJSON, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent group rows: %w", err)
	}
	return out, nil
}
