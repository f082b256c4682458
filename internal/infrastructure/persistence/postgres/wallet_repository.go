// Package postgres - WalletRepository implementation with optimistic locking.
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
	"github.com/agentwallet/core/internal/domain/valueobjects"
)

var _ ports.WalletStore = (*WalletRepository)(nil)

// WalletRepository implements ports.WalletStore.
//
// Money is stored as BIGINT cents; the balance_version column backs the
// entity's optimistic lock.
type WalletRepository struct {
	pool *pgxpool.Pool
}

// NewWalletRepository constructs a WalletRepository.
func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

func (r *WalletRepository) getQuerier(ctx context.Context) querier {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// Save inserts a new wallet (version 0) or updates an existing one under
// optimistic locking.
func (r *WalletRepository) Save(ctx context.Context, wallet *entities.Wallet) error {
	q := r.getQuerier(ctx)

	if wallet.BalanceVersion() == 0 {
		return r.insert(ctx, q, wallet)
	}
	return r.update(ctx, q, wallet)
}

func (r *WalletRepository) insert(ctx context.Context, q querier, wallet *entities.Wallet) error {
	query := `
		INSERT INTO wallets (
			id, agent_id, currency, status,
			available_balance, held_balance, balance_version,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := q.Exec(ctx, query,
		wallet.ID(),
		wallet.AgentID(),
		wallet.Currency().Code(),
		string(wallet.Status()),
		wallet.AvailableBalance().Cents(),
		wallet.HeldBalance().Cents(),
		wallet.BalanceVersion(),
		wallet.CreatedAt(),
		wallet.UpdatedAt(),
	)

	if err != nil {
		if isUniqueViolation(err, "wallets_agent_currency_unique") {
			return domainErrors.NewDomainError(
				"WALLET_ALREADY_EXISTS",
				fmt.Sprintf("wallet for currency %s already exists", wallet.Currency().Code()),
				err,
			)
		}
		if isForeignKeyViolation(err) {
			return domainErrors.NewDomainError("AGENT_NOT_FOUND", "agent not found", err)
		}
		return fmt.Errorf("insert wallet: %w", err)
	}

	return nil
}

func (r *WalletRepository) update(ctx context.Context, q querier, wallet *entities.Wallet) error {
	query := `
		UPDATE wallets SET
			status = $2,
			available_balance = $3,
			held_balance = $4,
			balance_version = $5,
			updated_at = $6
		WHERE id = $1 AND balance_version = $7
	`

	// The entity's version has already been incremented after the
	// operation that produced this Save call, so the row we expect to
	// find still carries the previous version.
	expectedVersion := wallet.BalanceVersion() - 1

	result, err := q.Exec(ctx, query,
		wallet.ID(),
		string(wallet.Status()),
		wallet.AvailableBalance().Cents(),
		wallet.HeldBalance().Cents(),
		wallet.BalanceVersion(),
		wallet.UpdatedAt(),
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domainErrors.NewConcurrencyError(
			"Wallet",
			wallet.ID().String(),
			fmt.Sprintf("wallet was modified by another transaction (expected version: %d)", expectedVersion),
		)
	}

	return nil
}

const walletColumns = `id, agent_id, currency, status, available_balance, held_balance, balance_version, created_at, updated_at`

// FindByID loads a wallet by id.
func (r *WalletRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.Wallet, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`
	return r.scanWallet(q.QueryRow(ctx, query, id))
}

// FindByIDForUpdate loads a wallet, locking its row for the duration of
// the enclosing transaction.
func (r *WalletRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entities.Wallet, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1 FOR UPDATE`
	return r.scanWallet(q.QueryRow(ctx, query, id))
}

// ListByAgent returns every wallet owned by agentID.
func (r *WalletRepository) ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*entities.Wallet, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE agent_id = $1 ORDER BY created_at ASC`

	rows, err := q.Query(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("list wallets by agent: %w", err)
	}
	defer rows.Close()

	return r.scanWallets(rows)
}

// List returns wallets matching filter with pagination.
func (r *WalletRepository) List(ctx context.Context, filter ports.WalletFilter, offset, limit int) ([]*entities.Wallet, error) {
	q := r.getQuerier(ctx)

	query := `SELECT ` + walletColumns + ` FROM wallets WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if filter.AgentID != nil {
		query += fmt.Sprintf(" AND agent_id = $%d", argNum)
		args = append(args, *filter.AgentID)
		argNum++
	}
	if filter.Currency != nil {
		query += fmt.Sprintf(" AND currency = $%d", argNum)
		args = append(args, *filter.Currency)
		argNum++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(*filter.Status))
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC OFFSET $%d LIMIT $%d", argNum, argNum+1)
	args = append(args, offset, limit)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	return r.scanWallets(rows)
}

func (r *WalletRepository) scanWallet(row pgx.Row) (*entities.Wallet, error) {
	var (
		id, agentID               uuid.UUID
		currencyCode, statusStr   string
		availableCents, heldCents int64
		balanceVersion            int64
		createdAt, updatedAt      time.Time
	)

	err := row.Scan(
		&id, &agentID, &currencyCode, &statusStr,
		&availableCents, &heldCents, &balanceVersion,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrEntityNotFound
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}

	return hydrateWallet(id, agentID, currencyCode, statusStr, availableCents, heldCents, balanceVersion, createdAt, updatedAt)
}

func (r *WalletRepository) scanWallets(rows pgx.Rows) ([]*entities.Wallet, error) {
	var wallets []*entities.Wallet

	for rows.Next() {
		var (
			id, agentID               uuid.UUID
			currencyCode, statusStr   string
			availableCents, heldCents int64
			balanceVersion            int64
			createdAt, updatedAt      time.Time
		)

		err := rows.Scan(
			&id, &agentID, &currencyCode, &statusStr,
			&availableCents, &heldCents, &balanceVersion,
			&createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}

		wallet, err := hydrateWallet(id, agentID, currencyCode, statusStr, availableCents, heldCents, balanceVersion, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, wallet)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet rows: %w", err)
	}

	return wallets, nil
}

func hydrateWallet(id, agentID uuid.UUID, currencyCode, statusStr string, availableCents, heldCents, balanceVersion int64, createdAt, updatedAt time.Time) (*entities.Wallet, error) {
	currency, err := valueobjects.NewCurrency(currencyCode)
	if err != nil {
		return nil, fmt.Errorf("invalid currency in database: %w", err)
	}
	available, err := valueobjects.NewMoneyFromCents(availableCents)
	if err != nil {
		return nil, fmt.Errorf("invalid available balance in database: %w", err)
	}
	held, err := valueobjects.NewMoneyFromCents(heldCents)
	if err != nil {
		return nil, fmt.Errorf("invalid held balance in database: %w", err)
	}

	return entities.ReconstructWallet(
		id, agentID, currency, entities.WalletStatus(statusStr),
		available, held, balanceVersion, createdAt, updatedAt,
	), nil
}
