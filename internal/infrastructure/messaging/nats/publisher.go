// Package nats fans domain events out to NATS subjects for
// dashboard/alerting consumers. It is not the system of record — the
// Postgres outbox is (§4.3) — this package only drains the outbox and
// republishes what is already durably committed there.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/domain/events"
)

// Config configures the connection and subject naming.
type Config struct {
	URL           string
	SubjectPrefix string
	ReconnectWait time.Duration
	MaxReconnects int
}

// Publisher implements ports.EventPublisher by publishing directly to
// NATS. It is used by the outbox drain loop (DrainLoop), never by
// application code directly — application code depends on
// ports.EventPublisher, which the outbox repository itself satisfies by
// writing to the PENDING queue this drain loop consumes.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// Connect dials NATS with the configured reconnect policy.
func Connect(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []nats.Option{
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &Publisher{conn: conn, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

// Close drains and closes the underlying connection.
func (p *Publisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("nats drain failed", slog.String("error", err.Error()))
	}
}

// subject maps an event type ("wallet.credited") to
// "<prefix>.audit.<resource>" (§11): the resource is the dotted prefix of
// the event type, so every consumer subscribes per-aggregate rather than
// per-exact-event.
func (p *Publisher) subject(eventType string) string {
	resource := eventType
	for i, r := range eventType {
		if r == '.' {
			resource = eventType[:i]
			break
		}
	}
	return fmt.Sprintf("%s.audit.%s", p.prefix, resource)
}

type envelope struct {
	EventID     string          `json:"eventId"`
	EventType   string          `json:"eventType"`
	AggregateID string          `json:"aggregateId"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Payload     json.RawMessage `json:"payload"`
}

// Publish publishes a single event to its resource subject.
func (p *Publisher) Publish(ctx context.Context, event events.DomainEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventType(), err)
	}

	data, err := json.Marshal(envelope{
		EventID:     event.EventID().String(),
		EventType:   event.EventType(),
		AggregateID: event.AggregateID().String(),
		OccurredAt:  event.OccurredAt(),
		Payload:     payload,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope for %s: %w", event.EventType(), err)
	}

	if err := p.conn.Publish(p.subject(event.EventType()), data); err != nil {
		return fmt.Errorf("publish %s: %w", event.EventType(), err)
	}
	return nil
}

// PublishBatch publishes every event; the first failure aborts the batch
// (matches ports.EventPublisher's documented batch-level atomicity — the
// caller treats a batch as all-or-nothing for retry purposes, even though
// NATS itself has no transactional publish).
func (p *Publisher) PublishBatch(ctx context.Context, evts []events.DomainEvent) error {
	for _, event := range evts {
		if err := p.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

var _ ports.EventPublisher = (*Publisher)(nil)
