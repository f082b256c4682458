// Package postgres - LineageRepository implementation.
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

var _ ports.LineageStore = (*LineageRepository)(nil)

// LineageRepository implements ports.LineageStore across agent_lineages
// and spawn_events.
type LineageRepository struct {
	pool *pgxpool.Pool
}

// NewLineageRepository constructs a LineageRepository.
func NewLineageRepository(pool *pgxpool.Pool) *LineageRepository {
	return &LineageRepository{pool: pool}
}

func (r *LineageRepository) getQuerier(ctx context.Context) querier {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// Save upserts a lineage node.
func (r *LineageRepository) Save(ctx context.Context, lineage *entities.AgentLineage) error {
	q := r.getQuerier(ctx)

	childrenJSON, err := json.Marshal(lineage.ChildrenIDs())
	if err != nil {
		return fmt.Errorf("marshal children ids: %w", err)
	}
	policyJSON, err := json.Marshal(lineage.SpawnPolicy())
	if err != nil {
		return fmt.Errorf("marshal spawn policy: %w", err)
	}

	query := `
		INSERT INTO agent_lineages (
			agent_id, parent_id, root_id, depth, children_ids, status, spawn_policy, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (agent_id) DO UPDATE SET
			children_ids = EXCLUDED.children_ids,
			status = EXCLUDED.status,
			spawn_policy = EXCLUDED.spawn_policy,
			updated_at = EXCLUDED.updated_at
	`
	_, err = q.Exec(ctx, query,
		lineage.AgentID(), lineage.ParentID(), lineage.RootID(), lineage.Depth(),
		childrenJSON, string(lineage.Status()), policyJSON, lineage.CreatedAt(), lineage.UpdatedAt(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domainErrors.NewDomainError("AGENT_NOT_FOUND", "agent not found", err)
		}
		return fmt.Errorf("save agent lineage: %w", err)
	}
	return nil
}

const lineageColumns = `agent_id, parent_id, root_id, depth, children_ids, status, spawn_policy, created_at, updated_at`

func scanLineage(row pgx.Row) (*entities.AgentLineage, error) {
	var (
		agentID, rootID      uuid.UUID
		parentID             *uuid.UUID
		depth                int
		childrenJSON         []byte
		status               string
		policyJSON           []byte
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&agentID, &parentID, &rootID, &depth, &childrenJSON, &status, &policyJSON, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrEntityNotFound
		}
		return nil, fmt.Errorf("scan agent lineage: %w", err)
	}
	return hydrateLineage(agentID, parentID, rootID, depth, childrenJSON, status, policyJSON, createdAt, updatedAt)
}

func hydrateLineage(agentID uuid.UUID, parentID *uuid.UUID, rootID uuid.UUID, depth int, childrenJSON []byte, status string, policyJSON []byte, createdAt, updatedAt time.Time) (*entities.AgentLineage, error) {
	var childrenIDs []uuid.UUID
	if len(childrenJSON) > 0 {
		if err := json.Unmarshal(childrenJSON, &childrenIDs); err != nil {
			return nil, fmt.Errorf("unmarshal children ids: %w", err)
		}
	}
	var policy entities.SpawnPolicy
	if len(policyJSON) > 0 {
		if err := json.Unmarshal(policyJSON, &policy); err != nil {
			return nil, fmt.Errorf("unmarshal spawn policy: %w", err)
		}
	}
	return entities.ReconstructAgentLineage(agentID, parentID, rootID, depth, childrenIDs, entities.LineageStatus(status), policy, createdAt, updatedAt), nil
}

// FindByAgentID loads the lineage node for agentID.
func (r *LineageRepository) FindByAgentID(ctx context.Context, agentID uuid.UUID) (*entities.AgentLineage, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + lineageColumns + ` FROM agent_lineages WHERE agent_id = $1`
	return scanLineage(q.QueryRow(ctx, query, agentID))
}

// ListByRoot returns every node in the tree rooted at rootID, for cascade
// operations (§4.6/§4.7).
func (r *LineageRepository) ListByRoot(ctx context.Context, rootID uuid.UUID) ([]*entities.AgentLineage, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + lineageColumns + ` FROM agent_lineages WHERE root_id = $1 ORDER BY depth ASC`

	rows, err := q.Query(ctx, query, rootID)
	if err != nil {
		return nil, fmt.Errorf("list lineage by root: %w", err)
	}
	defer rows.Close()

	var out []*entities.AgentLineage
	for rows.Next() {
		var (
			agentID, rID         uuid.UUID
			parentID             *uuid.UUID
			depth                int
			childrenJSON         []byte
			status               string
			policyJSON           []byte
			createdAt, updatedAt time.Time
		)
		if err := rows.Scan(&agentID, &parentID, &rID, &depth, &childrenJSON, &status, &policyJSON, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan lineage row: %w", err)
		}
		lineage, err := hydrateLineage(agentID, parentID, rID, depth, childrenJSON, status, policyJSON, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, lineage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lineage rows: %w", err)
	}
	return out, nil
}

// SaveSpawnEvent records a spawn attempt's outcome.
func (r *LineageRepository) SaveSpawnEvent(ctx context.Context, event *entities.SpawnEvent) error {
	q := r.getQuerier(ctx)

	policyJSON, err := json.Marshal(event.InheritedPolicy())
	if err != nil {
		return fmt.Errorf("marshal inherited policy: %w", err)
	}

	query := `
		INSERT INTO spawn_events (id, parent_id, child_id, depth, inherited_policy, authorized, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = q.Exec(ctx, query, event.ID(), event.ParentID(), event.ChildID(), event.Depth(), policyJSON, event.Authorized(), event.CreatedAt())
	if err != nil {
		return fmt.Errorf("save spawn event: %w", err)
	}
	return nil
}
