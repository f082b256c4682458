// Package postgres - RuleRepository implementation.
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
)

var _ ports.RuleStore = (*RuleRepository)(nil)

// RuleRepository implements ports.RuleStore. params is stored as JSONB.
type RuleRepository struct {
	pool *pgxpool.Pool
}

// NewRuleRepository constructs a RuleRepository.
func NewRuleRepository(pool *pgxpool.Pool) *RuleRepository {
	return &RuleRepository{pool: pool}
}

func (r *RuleRepository) getQuerier(ctx context.Context) querier {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// Save upserts a spend rule.
func (r *RuleRepository) Save(ctx context.Context, rule *entities.SpendRule) error {
	q := r.getQuerier(ctx)

	paramsJSON, err := json.Marshal(rule.Params())
	if err != nil {
		return fmt.Errorf("marshal rule params: %w", err)
	}

	query := `
		INSERT INTO spend_rules (id, wallet_id, kind, params, active, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			params = EXCLUDED.params,
			active = EXCLUDED.active,
			priority = EXCLUDED.priority,
			updated_at = EXCLUDED.updated_at
	`
	_, err = q.Exec(ctx, query,
		rule.ID(), rule.WalletID(), string(rule.Kind()), paramsJSON, rule.Active(), rule.Priority(),
		rule.CreatedAt(), rule.UpdatedAt(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domainErrors.NewDomainError("WALLET_NOT_FOUND", "wallet not found", err)
		}
		return fmt.Errorf("save spend rule: %w", err)
	}
	return nil
}

const ruleColumns = `id, wallet_id, kind, params, active, priority, created_at, updated_at`

func scanRule(row pgx.Row) (*entities.SpendRule, error) {
	var (
		id, walletID         uuid.UUID
		kind                 string
		paramsJSON           []byte
		active               bool
		priority             int
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&id, &walletID, &kind, &paramsJSON, &active, &priority, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrEntityNotFound
		}
		return nil, fmt.Errorf("scan spend rule: %w", err)
	}
	return hydrateRule(id, walletID, kind, paramsJSON, active, priority, createdAt, updatedAt)
}

func hydrateRule(id, walletID uuid.UUID, kind string, paramsJSON []byte, active bool, priority int, createdAt, updatedAt time.Time) (*entities.SpendRule, error) {
	var params entities.RuleParams
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &params); err != nil {
			return nil, fmt.Errorf("unmarshal rule params: %w", err)
		}
	}
	return entities.ReconstructSpendRule(id, walletID, entities.RuleKind(kind), params, active, priority, createdAt, updatedAt), nil
}

// FindByID loads a spend rule by id.
func (r *RuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.SpendRule, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + ruleColumns + ` FROM spend_rules WHERE id = $1`
	return scanRule(q.QueryRow(ctx, query, id))
}

// Delete removes a spend rule.
func (r *RuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q := r.getQuerier(ctx)
	result, err := q.Exec(ctx, `DELETE FROM spend_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete spend rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domainErrors.ErrEntityNotFound
	}
	return nil
}

func (r *RuleRepository) listByWallet(ctx context.Context, walletID uuid.UUID, activeOnly bool) ([]*entities.SpendRule, error) {
	q := r.getQuerier(ctx)

	query := `SELECT ` + ruleColumns + ` FROM spend_rules WHERE wallet_id = $1`
	if activeOnly {
		query += ` AND active = true`
	}
	query += ` ORDER BY priority DESC, created_at ASC`

	rows, err := q.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("list spend rules: %w", err)
	}
	defer rows.Close()

	var rules []*entities.SpendRule
	for rows.Next() {
		var (
			id, wID              uuid.UUID
			kind                 string
			paramsJSON           []byte
			active               bool
			priority             int
			createdAt, updatedAt time.Time
		)
		if err := rows.Scan(&id, &wID, &kind, &paramsJSON, &active, &priority, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan spend rule row: %w", err)
		}
		rule, err := hydrateRule(id, wID, kind, paramsJSON, active, priority, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spend rule rows: %w", err)
	}
	return rules, nil
}

// ListActiveByWallet returns active rules ordered by descending priority,
// as the Rules Engine requires.
func (r *RuleRepository) ListActiveByWallet(ctx context.Context, walletID uuid.UUID) ([]*entities.SpendRule, error) {
	return r.listByWallet(ctx, walletID, true)
}

// ListByWallet returns every rule on the wallet regardless of status.
func (r *RuleRepository) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]*entities.SpendRule, error) {
	return r.listByWallet(ctx, walletID, false)
}
