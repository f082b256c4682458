// Package postgres - OutboxRepository implements the Transactional Outbox
// pattern: an event is written to the outbox table in the same
// transaction as the triggering business write, and a separate drain
// loop (internal/infrastructure/messaging/nats) publishes it afterward,
// marking it published or failed.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/domain/events"
)

var _ ports.OutboxRepository = (*OutboxRepository)(nil)
var _ ports.EventPublisher = (*OutboxRepository)(nil)

// OutboxRepository implements ports.OutboxRepository and ports.EventPublisher.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository constructs an OutboxRepository.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) getQuerier(ctx context.Context) querier {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// Save writes event to the outbox table. Must run in the same
// transaction as the business write that produced it.
func (r *OutboxRepository) Save(ctx context.Context, event events.DomainEvent) error {
	q := r.getQuerier(ctx)

	payload, err := serializeEvent(event)
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}

	aggregateType := getAggregateType(event.EventType())

	query := `
		INSERT INTO outbox (
			id, aggregate_type, aggregate_id, event_type, event_version,
			payload, status, partition_key, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = q.Exec(ctx, query,
		event.EventID(),
		aggregateType,
		event.AggregateID(),
		event.EventType(),
		1,
		payload,
		"PENDING",
		event.AggregateID().String(),
		event.OccurredAt(),
	)
	if err != nil {
		return fmt.Errorf("save event to outbox: %w", err)
	}

	return nil
}

// FindUnpublished returns up to limit not-yet-published events. The rows
// are locked (FOR UPDATE SKIP LOCKED) only for the enclosing transaction;
// called outside one, the lock ends when the query returns.
func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]events.DomainEvent, error) {
	q := r.getQuerier(ctx)

	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	rows, err := q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("find unpublished events: %w", err)
	}
	defer rows.Close()

	var domainEvents []events.DomainEvent
	for rows.Next() {
		var (
			id                       uuid.UUID
			aggregateType, eventType string
			aggregateID              uuid.UUID
			payload                  []byte
			createdAt                time.Time
		)

		if err := rows.Scan(&id, &aggregateType, &aggregateID, &eventType, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}

		event, err := deserializeEvent(eventType, payload, id, aggregateID, createdAt)
		if err != nil {
			// A corrupt payload shouldn't block the rest of the batch.
			continue
		}

		domainEvents = append(domainEvents, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}

	return domainEvents, nil
}

// Publish implements ports.EventPublisher by writing to the outbox; the
// NATS drain loop is what actually delivers the event downstream.
func (r *OutboxRepository) Publish(ctx context.Context, event events.DomainEvent) error {
	return r.Save(ctx, event)
}

// PublishBatch writes every event in evts to the outbox.
func (r *OutboxRepository) PublishBatch(ctx context.Context, evts []events.DomainEvent) error {
	for _, event := range evts {
		if err := r.Save(ctx, event); err != nil {
			return fmt.Errorf("publish event %s: %w", event.EventType(), err)
		}
	}
	return nil
}

// MarkPublished marks an event as successfully published.
func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	q := r.getQuerier(ctx)

	eventUUID, err := uuid.Parse(eventID)
	if err != nil {
		return fmt.Errorf("invalid event id: %w", err)
	}

	query := `
		UPDATE outbox
		SET status = 'PUBLISHED', published_at = $2
		WHERE id = $1 AND status = 'PENDING'
	`
	result, err := q.Exec(ctx, query, eventUUID, time.Now())
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	if result.RowsAffected() == 0 {
		return errors.New("event not found or already published")
	}

	return nil
}

// MarkFailed marks an event as failed after a delivery attempt.
func (r *OutboxRepository) MarkFailed(ctx context.Context, eventID string, reason string) error {
	q := r.getQuerier(ctx)

	eventUUID, err := uuid.Parse(eventID)
	if err != nil {
		return fmt.Errorf("invalid event id: %w", err)
	}

	query := `
		UPDATE outbox
		SET status = 'FAILED', failed_at = $2, last_error = $3, retry_count = retry_count + 1
		WHERE id = $1
	`
	_, err = q.Exec(ctx, query, eventUUID, time.Now(), reason)
	if err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}

	return nil
}

// MarkForRetry returns a failed event to PENDING, capped at 5 attempts.
func (r *OutboxRepository) MarkForRetry(ctx context.Context, eventID string) error {
	q := r.getQuerier(ctx)

	eventUUID, err := uuid.Parse(eventID)
	if err != nil {
		return fmt.Errorf("invalid event id: %w", err)
	}

	query := `
		UPDATE outbox
		SET status = 'PENDING', failed_at = NULL, last_error = NULL
		WHERE id = $1 AND status = 'FAILED' AND retry_count < 5
	`
	result, err := q.Exec(ctx, query, eventUUID)
	if err != nil {
		return fmt.Errorf("mark event for retry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return errors.New("event not found, not failed, or max retries exceeded")
	}

	return nil
}

// CleanupPublished deletes published events older than olderThan.
func (r *OutboxRepository) CleanupPublished(ctx context.Context, olderThan time.Duration) (int64, error) {
	q := r.getQuerier(ctx)

	cutoff := time.Now().Add(-olderThan)
	query := `DELETE FROM outbox WHERE status = 'PUBLISHED' AND published_at < $1`

	result, err := q.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup published events: %w", err)
	}

	return result.RowsAffected(), nil
}

func serializeEvent(event events.DomainEvent) ([]byte, error) {
	return json.Marshal(event)
}

// deserializeEvent wraps a stored payload in a genericEvent — the drain
// loop only needs EventType/AggregateID/Payload to publish downstream, not
// the original concrete struct.
func deserializeEvent(eventType string, payload []byte, eventID, aggregateID uuid.UUID, occurredAt time.Time) (events.DomainEvent, error) {
	return &genericEvent{
		id:          eventID,
		eventType:   eventType,
		occurredAt:  occurredAt,
		aggregateID: aggregateID,
		payload:     payload,
	}, nil
}

// genericEvent is the outbox's replay shape for an event whose concrete
// Go type has been erased by the JSON round-trip.
type genericEvent struct {
	id          uuid.UUID
	eventType   string
	occurredAt  time.Time
	aggregateID uuid.UUID
	payload     []byte
}

func (e *genericEvent) EventID() uuid.UUID     { return e.id }
func (e *genericEvent) EventType() string      { return e.eventType }
func (e *genericEvent) OccurredAt() time.Time  { return e.occurredAt }
func (e *genericEvent) AggregateID() uuid.UUID { return e.aggregateID }
func (e *genericEvent) Payload() []byte        { return e.payload }

// getAggregateType classifies an event type's dotted prefix
// ("wallet.credited" -> "Wallet") into the aggregate it belongs to.
func getAggregateType(eventType string) string {
	prefix, _, found := strings.Cut(eventType, ".")
	if !found {
		return "Unknown"
	}
	switch prefix {
	case "admission":
		return "Transaction"
	case "wallet":
		return "Wallet"
	case "killswitch":
		return "KillSwitch"
	case "deadman":
		return "Agent"
	case "agent":
		return "AgentLineage"
	case "crossagent":
		return "CrossAgentTransaction"
	default:
		return "Unknown"
	}
}
