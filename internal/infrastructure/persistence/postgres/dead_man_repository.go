// Package postgres - DeadManRepository implementation.
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

var _ ports.DeadManStore = (*DeadManRepository)(nil)

// DeadManRepository implements ports.DeadManStore across three tables:
// dead_man_configs, dead_man_events, dead_man_heartbeats.
type DeadManRepository struct {
	pool *pgxpool.Pool
}

// NewDeadManRepository constructs a DeadManRepository.
func NewDeadManRepository(pool *pgxpool.Pool) *DeadManRepository {
	return &DeadManRepository{pool: pool}
}

func (r *DeadManRepository) getQuerier(ctx context.Context) querier {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// SaveConfig upserts an agent's dead-man switch configuration.
func (r *DeadManRepository) SaveConfig(ctx context.Context, cfg *entities.DeadManSwitchConfig) error {
	q := r.getQuerier(ctx)

	query := `
		INSERT INTO dead_man_configs (
			agent_id, heartbeat_interval_seconds, missed_heartbeat_threshold,
			anomaly_window_minutes, anomaly_spend_multiplier, anomaly_tx_count_multiplier,
			max_tx_per_minute, max_unique_vendors_per_hour,
			on_anomaly, on_missed_heartbeat, on_manual_trigger,
			cascade_to_children, recovery_requires_human, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (agent_id) DO UPDATE SET
			heartbeat_interval_seconds = EXCLUDED.heartbeat_interval_seconds,
			missed_heartbeat_threshold = EXCLUDED.missed_heartbeat_threshold,
			anomaly_window_minutes = EXCLUDED.anomaly_window_minutes,
			anomaly_spend_multiplier = EXCLUDED.anomaly_spend_multiplier,
			anomaly_tx_count_multiplier = EXCLUDED.anomaly_tx_count_multiplier,
			max_tx_per_minute = EXCLUDED.max_tx_per_minute,
			max_unique_vendors_per_hour = EXCLUDED.max_unique_vendors_per_hour,
			on_anomaly = EXCLUDED.on_anomaly,
			on_missed_heartbeat = EXCLUDED.on_missed_heartbeat,
			on_manual_trigger = EXCLUDED.on_manual_trigger,
			cascade_to_children = EXCLUDED.cascade_to_children,
			recovery_requires_human = EXCLUDED.recovery_requires_human,
			updated_at = EXCLUDED.updated_at
	`
	_, err := q.Exec(ctx, query,
		cfg.AgentID(), cfg.HeartbeatIntervalSeconds(), cfg.MissedHeartbeatThreshold(),
		cfg.AnomalyWindowMinutes(), cfg.AnomalySpendMultiplier(), cfg.AnomalyTxCountMultiplier(),
		cfg.MaxTxPerMinute(), cfg.MaxUniqueVendorsPerHour(),
		string(cfg.OnAnomaly()), string(cfg.OnMissedHeartbeat()), string(cfg.OnManualTrigger()),
		cfg.CascadeToChildren(), cfg.RecoveryRequiresHuman(), cfg.CreatedAt(), cfg.UpdatedAt(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domainErrors.NewDomainError("AGENT_NOT_FOUND", "agent not found", err)
		}
		return fmt.Errorf("save dead man config: %w", err)
	}
	return nil
}

const deadManConfigColumns = `agent_id, heartbeat_interval_seconds, missed_heartbeat_threshold, anomaly_window_minutes, anomaly_spend_multiplier, anomaly_tx_count_multiplier, max_tx_per_minute, max_unique_vendors_per_hour, on_anomaly, on_missed_heartbeat, on_manual_trigger, cascade_to_children, recovery_requires_human, created_at, updated_at`

func scanDeadManConfig(row pgx.Row) (*entities.DeadManSwitchConfig, error) {
	var (
		agentID                                       uuid.UUID
		heartbeatIntervalSeconds, missedHeartbeatThreshold int
		anomalyWindowMinutes                          int
		anomalySpendMultiplier, anomalyTxCountMultiplier float64
		maxTxPerMinute, maxUniqueVendorsPerHour       int
		onAnomaly, onMissedHeartbeat, onManualTrigger string
		cascadeToChildren, recoveryRequiresHuman      bool
		createdAt, updatedAt                          time.Time
	)
	err := row.Scan(
		&agentID, &heartbeatIntervalSeconds, &missedHeartbeatThreshold,
		&anomalyWindowMinutes, &anomalySpendMultiplier, &anomalyTxCountMultiplier,
		&maxTxPerMinute, &maxUniqueVendorsPerHour,
		&onAnomaly, &onMissedHeartbeat, &onManualTrigger,
		&cascadeToChildren, &recoveryRequiresHuman, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrEntityNotFound
		}
		return nil, fmt.Errorf("scan dead man config: %w", err)
	}
	return entities.ReconstructDeadManSwitchConfig(
		agentID, heartbeatIntervalSeconds, missedHeartbeatThreshold, anomalyWindowMinutes,
		anomalySpendMultiplier, anomalyTxCountMultiplier, maxTxPerMinute, maxUniqueVendorsPerHour,
		entities.DeadManAction(onAnomaly), entities.DeadManAction(onMissedHeartbeat), entities.DeadManAction(onManualTrigger),
		cascadeToChildren, recoveryRequiresHuman, createdAt, updatedAt,
	), nil
}

// FindConfig loads an agent's dead-man switch configuration.
func (r *DeadManRepository) FindConfig(ctx context.Context, agentID uuid.UUID) (*entities.DeadManSwitchConfig, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + deadManConfigColumns + ` FROM dead_man_configs WHERE agent_id = $1`
	return scanDeadManConfig(q.QueryRow(ctx, query, agentID))
}

// ListConfiguredAgents returns every agent id with a dead-man config.
func (r *DeadManRepository) ListConfiguredAgents(ctx context.Context) ([]uuid.UUID, error) {
	q := r.getQuerier(ctx)
	rows, err := q.Query(ctx, `SELECT agent_id FROM dead_man_configs`)
	if err != nil {
		return nil, fmt.Errorf("list configured agents: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan agent id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent ids: %w", err)
	}
	return ids, nil
}

// SaveEvent upserts a dead-man switch event.
func (r *DeadManRepository) SaveEvent(ctx context.Context, event *entities.DeadManSwitchEvent) error {
	q := r.getQuerier(ctx)

	detailsJSON, err := json.Marshal(event.Details())
	if err != nil {
		return fmt.Errorf("marshal dead man event details: %w", err)
	}
	cascadedJSON, err := json.Marshal(event.CascadedTo())
	if err != nil {
		return fmt.Errorf("marshal cascaded to: %w", err)
	}

	query := `
		INSERT INTO dead_man_events (
			id, agent_id, trigger_type, action_taken, details, cascaded_to, resolved, resolved_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			resolved = EXCLUDED.resolved,
			resolved_at = EXCLUDED.resolved_at
	`
	_, err = q.Exec(ctx, query,
		event.ID(), event.AgentID(), string(event.TriggerType()), string(event.ActionTaken()),
		detailsJSON, cascadedJSON, event.Resolved(), event.ResolvedAt(), event.CreatedAt(),
	)
	if err != nil {
		return fmt.Errorf("save dead man event: %w", err)
	}
	return nil
}

const deadManEventColumns = `id, agent_id, trigger_type, action_taken, details, cascaded_to, resolved, resolved_at, created_at`

func scanDeadManEvent(row pgx.Row) (*entities.DeadManSwitchEvent, error) {
	var (
		id, agentID             uuid.UUID
		triggerType, actionTaken string
		detailsJSON, cascadedJSON []byte
		resolved                bool
		resolvedAt              *time.Time
		createdAt               time.Time
	)
	err := row.Scan(&id, &agentID, &triggerType, &actionTaken, &detailsJSON, &cascadedJSON, &resolved, &resolvedAt, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrEntityNotFound
		}
		return nil, fmt.Errorf("scan dead man event: %w", err)
	}
	return hydrateDeadManEvent(id, agentID, triggerType, actionTaken, detailsJSON, cascadedJSON, resolved, resolvedAt, createdAt)
}

func hydrateDeadManEvent(id, agentID uuid.UUID, triggerType, actionTaken string, detailsJSON, cascadedJSON []byte, resolved bool, resolvedAt *time.Time, createdAt time.Time) (*entities.DeadManSwitchEvent, error) {
	details := map[string]interface{}{}
	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &details); err != nil {
			return nil, fmt.Errorf("unmarshal dead man event details: %w", err)
		}
	}
	var cascadedTo []uuid.UUID
	if len(cascadedJSON) > 0 {
		if err := json.Unmarshal(cascadedJSON, &cascadedTo); err != nil {
			return nil, fmt.Errorf("unmarshal cascaded to: %w", err)
		}
	}
	return entities.ReconstructDeadManSwitchEvent(
		id, agentID, entities.DeadManTriggerType(triggerType), entities.DeadManAction(actionTaken),
		details, cascadedTo, resolved, resolvedAt, createdAt,
	), nil
}

// FindUnresolvedEvent returns the agent's oldest unresolved freeze/terminate
// event, if any — used to decide whether recovery is possible.
func (r *DeadManRepository) FindUnresolvedEvent(ctx context.Context, agentID uuid.UUID) (*entities.DeadManSwitchEvent, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + deadManEventColumns + ` FROM dead_man_events WHERE agent_id = $1 AND resolved = false ORDER BY created_at ASC LIMIT 1`
	return scanDeadManEvent(q.QueryRow(ctx, query, agentID))
}

// ListEventsByAgent returns every dead-man event recorded for agentID.
func (r *DeadManRepository) ListEventsByAgent(ctx context.Context, agentID uuid.UUID) ([]*entities.DeadManSwitchEvent, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + deadManEventColumns + ` FROM dead_man_events WHERE agent_id = $1 ORDER BY created_at DESC`

	rows, err := q.Query(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("list dead man events: %w", err)
	}
	defer rows.Close()

	var out []*entities.DeadManSwitchEvent
	for rows.Next() {
		var (
			id, aID                  uuid.UUID
			triggerType, actionTaken string
			detailsJSON, cascadedJSON []byte
			resolved                 bool
			resolvedAt               *time.Time
			createdAt                time.Time
		)
		if err := rows.Scan(&id, &aID, &triggerType, &actionTaken, &detailsJSON, &cascadedJSON, &resolved, &resolvedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan dead man event row: %w", err)
		}
		event, err := hydrateDeadManEvent(id, aID, triggerType, actionTaken, detailsJSON, cascadedJSON, resolved, resolvedAt, createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead man event rows: %w", err)
	}
	return out, nil
}

// SaveHeartbeat records the durable fallback heartbeat timestamp for
// agentID, upserted on every liveness ping.
func (r *DeadManRepository) SaveHeartbeat(ctx context.Context, agentID uuid.UUID, at time.Time) error {
	q := r.getQuerier(ctx)
	query := `
		INSERT INTO dead_man_heartbeats (agent_id, last_heartbeat_at)
		VALUES ($1, $2)
		ON CONFLICT (agent_id) DO UPDATE SET last_heartbeat_at = EXCLUDED.last_heartbeat_at
	`
	_, err := q.Exec(ctx, query, agentID, at)
	if err != nil {
		return fmt.Errorf("save heartbeat: %w", err)
	}
	return nil
}

// LastHeartbeat returns the most recent heartbeat recorded for agentID,
// or nil if none has ever been recorded.
func (r *DeadManRepository) LastHeartbeat(ctx context.Context, agentID uuid.UUID) (*time.Time, error) {
	q := r.getQuerier(ctx)
	var at time.Time
	err := q.QueryRow(ctx, `SELECT last_heartbeat_at FROM dead_man_heartbeats WHERE agent_id = $1`, agentID).Scan(&at)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find last heartbeat: %w", err)
	}
	return &at, nil
}
