// Package postgres - TransactionRepository implementation.
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

var _ ports.TransactionStore = (*TransactionRepository)(nil)

// TransactionRepository implements ports.TransactionStore.
//
// Amount is stored as BIGINT cents; ruleCheckResults and metadata are
// stored as JSONB.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository constructs a TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func (r *TransactionRepository) getQuerier(ctx context.Context) querier {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// Save upserts a transaction.
func (r *TransactionRepository) Save(ctx context.Context, tx *entities.Transaction) error {
	q := r.getQuerier(ctx)

	ruleResultsJSON, err := json.Marshal(tx.RuleCheckResults())
	if err != nil {
		return fmt.Errorf("marshal rule check results: %w", err)
	}
	metadataJSON, err := json.Marshal(tx.Metadata())
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO transactions (
			id, wallet_id, amount, recipient_id, recipient_type, category,
			status, rule_check_results, metadata, failure_reason,
			created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			rule_check_results = EXCLUDED.rule_check_results,
			metadata = EXCLUDED.metadata,
			failure_reason = EXCLUDED.failure_reason,
			completed_at = EXCLUDED.completed_at
	`
	_, err = q.Exec(ctx, query,
		tx.ID(),
		tx.WalletID(),
		tx.Amount().Cents(),
		tx.RecipientID(),
		string(tx.RecipientType()),
		tx.Category(),
		string(tx.Status()),
		ruleResultsJSON,
		metadataJSON,
		tx.FailureReason(),
		tx.CreatedAt(),
		tx.CompletedAt(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domainErrors.NewDomainError("WALLET_NOT_FOUND", "wallet not found", err)
		}
		return fmt.Errorf("save transaction: %w", err)
	}
	return nil
}

const transactionColumns = `id, wallet_id, amount, recipient_id, recipient_type, category, status, rule_check_results, metadata, failure_reason, created_at, completed_at`

func scanTransaction(row pgx.Row) (*entities.Transaction, error) {
	var (
		id, walletID                   uuid.UUID
		amountCents                    int64
		recipientID, recipientType     string
		category, status               string
		ruleResultsJSON, metadataJSON  []byte
		failureReason                  string
		createdAt                      time.Time
		completedAt                    *time.Time
	)

	err := row.Scan(
		&id, &walletID, &amountCents, &recipientID, &recipientType, &category,
		&status, &ruleResultsJSON, &metadataJSON, &failureReason,
		&createdAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrEntityNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	return hydrateTransaction(id, walletID, amountCents, recipientID, recipientType, category, status, ruleResultsJSON, metadataJSON, failureReason, createdAt, completedAt)
}

func hydrateTransaction(id, walletID uuid.UUID, amountCents int64, recipientID, recipientType, category, status string, ruleResultsJSON, metadataJSON []byte, failureReason string, createdAt time.Time, completedAt *time.Time) (*entities.Transaction, error) {
	amount, err := valueobjects.NewMoneyFromCents(amountCents)
	if err != nil {
		return nil, fmt.Errorf("invalid amount in database: %w", err)
	}

	var ruleResults []entities.RuleCheckResult
	if len(ruleResultsJSON) > 0 {
		if err := json.Unmarshal(ruleResultsJSON, &ruleResults); err != nil {
			return nil, fmt.Errorf("unmarshal rule check results: %w", err)
		}
	}

	metadata := map[string]interface{}{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return entities.ReconstructTransaction(
		id, walletID, amount, recipientID, entities.RecipientType(recipientType), category,
		entities.TransactionStatus(status), ruleResults, metadata, failureReason,
		createdAt, completedAt,
	), nil
}

// FindByID loads a transaction by id.
func (r *TransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.Transaction, error) {
	q := r.getQuerier(ctx)
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(q.QueryRow(ctx, query, id))
}

// List returns transactions matching filter with pagination. A limit <= 0
// returns every matching row.
func (r *TransactionRepository) List(ctx context.Context, filter ports.TransactionFilter, offset, limit int) ([]*entities.Transaction, error) {
	q := r.getQuerier(ctx)

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if filter.WalletID != nil {
		query += fmt.Sprintf(" AND wallet_id = $%d", argNum)
		args = append(args, *filter.WalletID)
		argNum++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(*filter.Status))
		argNum++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argNum)
		args = append(args, *filter.Since)
		argNum++
	}
	if filter.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argNum)
		args = append(args, *filter.Until)
		argNum++
	}
	if filter.Category != nil {
		query += fmt.Sprintf(" AND category = $%d", argNum)
		args = append(args, *filter.Category)
		argNum++
	}
	if filter.ExcludeDeposit {
		query += " AND category <> 'deposit'"
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC OFFSET $%d", argNum)
	args = append(args, offset)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum+1)
		args = append(args, limit)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*entities.Transaction
	for rows.Next() {
		var (
			id, walletID                   uuid.UUID
			amountCents                    int64
			recipientID, recipientType     string
			category, status               string
			ruleResultsJSON, metadataJSON  []byte
			failureReason                  string
			createdAt                      time.Time
			completedAt                    *time.Time
		)
		if err := rows.Scan(
			&id, &walletID, &amountCents, &recipientID, &recipientType, &category,
			&status, &ruleResultsJSON, &metadataJSON, &failureReason,
			&createdAt, &completedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		tx, err := hydrateTransaction(id, walletID, amountCents, recipientID, recipientType, category, status, ruleResultsJSON, metadataJSON, failureReason, createdAt, completedAt)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}

	return transactions, nil
}

// SumCompletedSince sums Completed, non-deposit transaction amounts on
// walletID since the given time — the spend(wallet, since) primitive.
func (r *TransactionRepository) SumCompletedSince(ctx context.Context, walletID uuid.UUID, since time.Time) (string, error) {
	q := r.getQuerier(ctx)
	query := `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE wallet_id = $1 AND status = $2 AND category <> 'deposit' AND created_at >= $3
	`
	var cents int64
	err := q.QueryRow(ctx, query, walletID, string(entities.TransactionStatusCompleted), since).Scan(&cents)
	if err != nil {
		return "", fmt.Errorf("sum completed transactions: %w", err)
	}
	sum, err := valueobjects.NewMoneyFromCents(cents)
	if err != nil {
		return "", fmt.Errorf("invalid summed amount: %w", err)
	}
	return sum.String(), nil
}

// ListPendingOlderThan returns Pending transactions older than age. No
// background job in this module calls it.
func (r *TransactionRepository) ListPendingOlderThan(ctx context.Context, age time.Duration) ([]*entities.Transaction, error) {
	q := r.getQuerier(ctx)
	cutoff := time.Now().Add(-age)
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE status = $1 AND created_at < $2 ORDER BY created_at ASC`

	rows, err := q.Query(ctx, query, string(entities.TransactionStatusPending), cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale pending transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*entities.Transaction
	for rows.Next() {
		tx, err := scanTransactionRow(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending transaction rows: %w", err)
	}
	return transactions, nil
}

func scanTransactionRow(rows pgx.Rows) (*entities.Transaction, error) {
	var (
		id, walletID                   uuid.UUID
		amountCents                    int64
		recipientID, recipientType     string
		category, status               string
		ruleResultsJSON, metadataJSON  []byte
		failureReason                  string
		createdAt                      time.Time
		completedAt                    *time.Time
	)
	if err := rows.Scan(
		&id, &walletID, &amountCents, &recipientID, &recipientType, &category,
		&status, &ruleResultsJSON, &metadataJSON, &failureReason,
		&createdAt, &completedAt,
	); err != nil {
		return nil, fmt.Errorf("scan transaction row: %w", err)
	}
	return hydrateTransaction(id, walletID, amountCents, recipientID, recipientType, category, status, ruleResultsJSON, metadataJSON, failureReason, createdAt, completedAt)
}
