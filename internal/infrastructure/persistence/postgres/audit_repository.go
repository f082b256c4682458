// Package postgres - AuditRepository implementation.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/domain/entities"
)

var _ ports.AuditStore = (*AuditRepository)(nil)

// AuditRepository implements ports.AuditStore. Entries are append-only;
// there is no Update or Delete.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) getQuerier(ctx context.Context) querier {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// Append writes a new audit log entry.
func (r *AuditRepository) Append(ctx context.Context, entry *entities.AuditLogEntry) error {
	q := r.getQuerier(ctx)

	reasoningJSON, err := json.Marshal(entry.Reasoning())
	if err != nil {
		return fmt.Errorf("marshal audit reasoning: %w", err)
	}

	query := `
		INSERT INTO audit_log (id, agent_id, action, resource, resource_id, decision, reasoning, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = q.Exec(ctx, query,
		entry.ID(), entry.AgentID(), entry.Action(), entry.Resource(), entry.ResourceID(),
		string(entry.Decision()), reasoningJSON, entry.Timestamp(),
	)
	if err != nil {
		return fmt.Errorf("append audit log entry: %w", err)
	}
	return nil
}

// List returns audit log entries matching filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter ports.AuditFilter, offset, limit int) ([]*entities.AuditLogEntry, error) {
	q := r.getQuerier(ctx)

	query := `SELECT id, agent_id, action, resource, resource_id, decision, reasoning, timestamp FROM audit_log WHERE 1=1`
	var args []interface{}
	argIdx := 1

	if filter.AgentID != nil {
		query += fmt.Sprintf(" AND agent_id = $%d", argIdx)
		args = append(args, *filter.AgentID)
		argIdx++
	}
	if filter.Resource != nil {
		query += fmt.Sprintf(" AND resource = $%d", argIdx)
		args = append(args, *filter.Resource)
		argIdx++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *filter.Since)
		argIdx++
	}
	if filter.Until != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, *filter.Until)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY timestamp DESC OFFSET $%d LIMIT $%d", argIdx, argIdx+1)
	args = append(args, offset, limit)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit log entries: %w", err)
	}
	defer rows.Close()

	var out []*entities.AuditLogEntry
	for rows.Next() {
		var (
			id            uuid.UUID
			agentID       *uuid.UUID
			action        string
			resource      string
			resourceID    string
			decision      string
			reasoningJSON []byte
			timestamp     time.Time
		)
		if err := rows.Scan(&id, &agentID, &action, &resource, &resourceID, &decision, &reasoningJSON, &timestamp); err != nil {
			return nil, fmt.Errorf("scan audit log row: %w", err)
		}
		reasoning := map[string]interface{}{}
		if len(reasoningJSON) > 0 {
			if err := json.Unmarshal(reasoningJSON, &reasoning); err != nil {
				return nil, fmt.Errorf("unmarshal audit reasoning: %w", err)
			}
		}
		out = append(out, entities.ReconstructAuditLogEntry(id, agentID, action, resource, resourceID, entities.AuditDecision(decision), reasoning, timestamp))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log rows: %w", err)
	}
	return out, nil
}

// CountByDecision tallies agentID's audit entries since a cutoff, grouped
// by decision, for the audit summary read.
func (r *AuditRepository) CountByDecision(ctx context.Context, agentID uuid.UUID, since time.Time) (map[string]int, error) {
	q := r.getQuerier(ctx)
	query := `SELECT decision, COUNT(*) FROM audit_log WHERE agent_id = $1 AND timestamp >= $2 GROUP BY decision`

	rows, err := q.Query(ctx, query, agentID, since)
	if err != nil {
		return nil, fmt.Errorf("count audit log by decision: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var decision string
		var count int
		if err := rows.Scan(&decision, &count); err != nil {
			return nil, fmt.Errorf("scan audit decision count: %w", err)
		}
		counts[strings.ToLower(decision)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit decision counts: %w", err)
	}
	return counts, nil
}
