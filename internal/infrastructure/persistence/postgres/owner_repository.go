// Package postgres - OwnerRepository implementation.
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

var _ ports.OwnerStore = (*OwnerRepository)(nil)

// OwnerRepository implements ports.OwnerStore.
type OwnerRepository struct {
	pool *pgxpool.Pool
}

// NewOwnerRepository constructs an OwnerRepository.
func NewOwnerRepository(pool *pgxpool.Pool) *OwnerRepository {
	return &OwnerRepository{pool: pool}
}

func (r *OwnerRepository) getQuerier(ctx context.Context) querier {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// Save upserts an owner.
func (r *OwnerRepository) Save(ctx context.Context, owner *entities.Owner) error {
	q := r.getQuerier(ctx)

	query := `
		INSERT INTO owners (id, api_key_hash, contact, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			api_key_hash = EXCLUDED.api_key_hash,
			contact = EXCLUDED.contact,
			updated_at = EXCLUDED.updated_at
	`
	_, err := q.Exec(ctx, query,
		owner.ID(), owner.APIKeyHash(), owner.Contact(), owner.CreatedAt(), owner.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err, "owners_api_key_hash_unique") {
			return domainErrors.NewDomainError("API_KEY_COLLISION", "generated API key collided, retry", err)
		}
		return fmt.Errorf("save owner: %w", err)
	}
	return nil
}

const ownerColumns = `id, api_key_hash, contact, created_at, updated_at`

func scanOwner(row pgx.Row) (*entities.Owner, error) {
	var (
		id                   uuid.UUID
		apiKeyHash, contact  string
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&id, &apiKeyHash, &contact, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrEntityNotFound
		}
		return nil, fmt.Errorf("scan owner: %w", err)
	}
	return entities.ReconstructOwner(id, apiKeyHash, contact, createdAt, updatedAt), nil
}

// FindByID loads an owner by id.
func (r *OwnerRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.Owner, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + ownerColumns + ` FROM owners WHERE id = $1`
	return scanOwner(q.QueryRow(ctx, query, id))
}

// FindByAPIKeyHash loads an owner by the sha256 hash of its plaintext API key.
func (r *OwnerRepository) FindByAPIKeyHash(ctx context.Context, apiKeyHash string) (*entities.Owner, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + ownerColumns + ` FROM owners WHERE api_key_hash = $1`
	return scanOwner(q.QueryRow(ctx, query, apiKeyHash))
}
