// Package postgres - KillSwitchRepository implementation.
package postgres

import (
	"context"
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

var _ ports.KillSwitchStore = (*KillSwitchRepository)(nil)

// KillSwitchRepository implements ports.KillSwitchStore.
type KillSwitchRepository struct {
	pool *pgxpool.Pool
}

// NewKillSwitchRepository constructs a KillSwitchRepository.
func NewKillSwitchRepository(pool *pgxpool.Pool) *KillSwitchRepository {
	return &KillSwitchRepository{pool: pool}
}

func (r *KillSwitchRepository) getQuerier(ctx context.Context) querier {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// Save upserts a kill switch.
func (r *KillSwitchRepository) Save(ctx context.Context, ks *entities.KillSwitch) error {
	q := r.getQuerier(ctx)

	query := `
		INSERT INTO kill_switches (
			id, wallet_id, kind, threshold, window_hours, active, triggered,
			triggered_at, reset_at, current_value, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			active = EXCLUDED.active,
			triggered = EXCLUDED.triggered,
			triggered_at = EXCLUDED.triggered_at,
			reset_at = EXCLUDED.reset_at,
			current_value = EXCLUDED.current_value,
			updated_at = EXCLUDED.updated_at
	`
	_, err := q.Exec(ctx, query,
		ks.ID(), ks.WalletID(), string(ks.Kind()), ks.Threshold(), ks.WindowHours(),
		ks.Active(), ks.Triggered(), ks.TriggeredAt(), ks.ResetAt(), ks.CurrentValue(),
		ks.CreatedAt(), ks.UpdatedAt(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domainErrors.NewDomainError("WALLET_NOT_FOUND", "wallet not found", err)
		}
		return fmt.Errorf("save kill switch: %w", err)
	}
	return nil
}

const killSwitchColumns = `id, wallet_id, kind, threshold, window_hours, active, triggered, triggered_at, reset_at, current_value, created_at, updated_at`

func scanKillSwitch(row pgx.Row) (*entities.KillSwitch, error) {
	var (
		id, walletID         uuid.UUID
		kind                 string
		threshold            string
		windowHours          int
		active, triggered    bool
		triggeredAt, resetAt *time.Time
		currentValue         string
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&id, &walletID, &kind, &threshold, &windowHours, &active, &triggered,
		&triggeredAt, &resetAt, &currentValue, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrEntityNotFound
		}
		return nil, fmt.Errorf("scan kill switch: %w", err)
	}
	return entities.ReconstructKillSwitch(
		id, walletID, entities.KillSwitchKind(kind), threshold, windowHours,
		active, triggered, triggeredAt, resetAt, currentValue, createdAt, updatedAt,
	), nil
}

// FindByID loads a kill switch by id.
func (r *KillSwitchRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.KillSwitch, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + killSwitchColumns + ` FROM kill_switches WHERE id = $1`
	return scanKillSwitch(q.QueryRow(ctx, query, id))
}

// Delete removes a kill switch.
func (r *KillSwitchRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q := r.getQuerier(ctx)
	result, err := q.Exec(ctx, `DELETE FROM kill_switches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete kill switch: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domainErrors.ErrEntityNotFound
	}
	return nil
}

// ListActiveByWallet returns active kill switches on walletID, the set
// evaluated on every admission (§4.5).
func (r *KillSwitchRepository) ListActiveByWallet(ctx context.Context, walletID uuid.UUID) ([]*entities.KillSwitch, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + killSwitchColumns + ` FROM kill_switches WHERE wallet_id = $1 AND active = true ORDER BY created_at ASC`

	rows, err := q.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("list active kill switches: %w", err)
	}
	defer rows.Close()

	var switches []*entities.KillSwitch
	for rows.Next() {
		var (
			id, wID              uuid.UUID
			kind                 string
			threshold            string
			windowHours          int
			active, triggered    bool
			triggeredAt, resetAt *time.Time
			currentValue         string
			createdAt, updatedAt time.Time
		)
		if err := rows.Scan(&id, &wID, &kind, &threshold, &windowHours, &active, &triggered,
			&triggeredAt, &resetAt, &currentValue, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan kill switch row: %w", err)
		}
		switches = append(switches, entities.ReconstructKillSwitch(
			id, wID, entities.KillSwitchKind(kind), threshold, windowHours,
			active, triggered, triggeredAt, resetAt, currentValue, createdAt, updatedAt,
		))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kill switch rows: %w", err)
	}
	return switches, nil
}
