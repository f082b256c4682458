// Package postgres - AgentRepository implementation.
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

var _ ports.AgentStore = (*AgentRepository)(nil)

// AgentRepository implements ports.AgentStore. metadata is stored as JSONB.
type AgentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository constructs an AgentRepository.
func NewAgentRepository(pool *pgxpool.Pool) *AgentRepository {
	return &AgentRepository{pool: pool}
}

func (r *AgentRepository) getQuerier(ctx context.Context) querier {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// Save upserts an agent.
func (r *AgentRepository) Save(ctx context.Context, agent *entities.Agent) error {
	q := r.getQuerier(ctx)

	metadataJSON, err := json.Marshal(agent.Metadata())
	if err != nil {
		return fmt.Errorf("marshal agent metadata: %w", err)
	}

	query := `
		INSERT INTO agents (id, owner_id, api_key_hash, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
	`
	_, err = q.Exec(ctx, query,
		agent.ID(), agent.OwnerID(), agent.APIKeyHash(), string(agent.Status()), metadataJSON,
		agent.CreatedAt(), agent.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err, "agents_api_key_hash_unique") {
			return domainErrors.NewDomainError("API_KEY_COLLISION", "generated API key collided, retry", err)
		}
		if isForeignKeyViolation(err) {
			return domainErrors.NewDomainError("OWNER_NOT_FOUND", "owner not found", err)
		}
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

const agentColumns = `id, owner_id, api_key_hash, status, metadata, created_at, updated_at`

func scanAgent(row pgx.Row) (*entities.Agent, error) {
	var (
		id, ownerID          uuid.UUID
		apiKeyHash, status   string
		metadataJSON         []byte
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&id, &ownerID, &apiKeyHash, &status, &metadataJSON, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrEntityNotFound
		}
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	return hydrateAgent(id, ownerID, apiKeyHash, status, metadataJSON, createdAt, updatedAt)
}

func hydrateAgent(id, ownerID uuid.UUID, apiKeyHash, status string, metadataJSON []byte, createdAt, updatedAt time.Time) (*entities.Agent, error) {
	metadata := map[string]string{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, fmt.Errorf("unmarshal agent metadata: %w", err)
		}
	}
	return entities.ReconstructAgent(id, ownerID, apiKeyHash, entities.AgentStatus(status), metadata, createdAt, updatedAt), nil
}

// FindByID loads an agent by id.
func (r *AgentRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.Agent, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1`
	return scanAgent(q.QueryRow(ctx, query, id))
}

// FindByAPIKeyHash loads an agent by the sha256 hash of its plaintext API key.
func (r *AgentRepository) FindByAPIKeyHash(ctx context.Context, apiKeyHash string) (*entities.Agent, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + agentColumns + ` FROM agents WHERE api_key_hash = $1`
	return scanAgent(q.QueryRow(ctx, query, apiKeyHash))
}

// ListByOwner returns every agent owned by ownerID.
func (r *AgentRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*entities.Agent, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + agentColumns + ` FROM agents WHERE owner_id = $1 ORDER BY created_at ASC`

	rows, err := q.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list agents by owner: %w", err)
	}
	defer rows.Close()

	var agents []*entities.Agent
	for rows.Next() {
		var (
			id, aOwnerID         uuid.UUID
			apiKeyHash, status   string
			metadataJSON         []byte
			createdAt, updatedAt time.Time
		)
		if err := rows.Scan(&id, &aOwnerID, &apiKeyHash, &status, &metadataJSON, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		agent, err := hydrateAgent(id, aOwnerID, apiKeyHash, status, metadataJSON, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent rows: %w", err)
	}
	return agents, nil
}
