// Package ports - EventPublisher publishes domain events. Application code
// never talks to NATS directly; it depends on this interface only
// (Dependency Inversion).
package ports

import (
	"context"

	"github.com/agentwallet/core/internal/domain/events"
)

// EventPublisher is the contract for publishing domain events.
//
// Implementations: the Postgres transactional outbox (system of record,
// §4.3), fanning out to NATS (SPEC_FULL.md §11) for dashboard/alerting
// consumers. Consumers must be idempotent — delivery is at-least-once.
type EventPublisher interface {
	// Publish publishes a single event.
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch publishes several events as one call. If any event in
	// the batch fails, the whole batch fails (batch-level atomicity).
	PublishBatch(ctx context.Context, evts []events.DomainEvent) error
}

// EventSubscriber is the contract for consuming published events (e.g.
// the NATS fan-out consumer feeding a dashboard).
type EventSubscriber interface {
	// Subscribe registers a handler for an event type (e.g. "wallet.credited").
	Subscribe(eventType string, handler EventHandler) error

	// Start begins consuming events (blocking call; run in its own goroutine).
	Start(ctx context.Context) error

	// Stop stops consumption.
	Stop(ctx context.Context) error
}

// EventHandler processes one consumed event.
type EventHandler func(ctx context.Context, event events.DomainEvent) error

// OutboxRepository implements the Transactional Outbox pattern: the event
// is written to an outbox table in the same transaction as the business
// write, and a separate drain loop publishes it afterward. This is what
// makes an admission's audit trail and event delivery durable even if the
// process crashes between commit and publish.
type OutboxRepository interface {
	// Save writes an event to the outbox table. MUST run in the same
	// transaction as the triggering business write.
	Save(ctx context.Context, event events.DomainEvent) error

	// FindUnpublished returns up to limit not-yet-published events, used
	// by the drain loop.
	FindUnpublished(ctx context.Context, limit int) ([]events.DomainEvent, error)

	// MarkPublished marks an event as successfully published.
	MarkPublished(ctx context.Context, eventID string) error

	// MarkFailed marks an event as failed after repeated delivery attempts.
	MarkFailed(ctx context.Context, eventID string, reason string) error
}
