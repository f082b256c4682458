package nats

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentwallet/core/internal/application/ports"
)

// DrainLoop polls the transactional outbox and republishes each pending
// event to NATS, marking it published or failed. Run exactly one
// instance per process. FindUnpublished is called outside a transaction,
// so its FOR UPDATE SKIP LOCKED row lock ends with the query; instances
// running in several processes can publish the same event more than once.
type DrainLoop struct {
	outbox    ports.OutboxRepository
	publisher *Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewDrainLoop constructs a drain loop. interval is how often an empty
// poll backs off; batchSize caps how many events one poll republishes.
func NewDrainLoop(outbox ports.OutboxRepository, publisher *Publisher, interval time.Duration, batchSize int, logger *slog.Logger) *DrainLoop {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DrainLoop{outbox: outbox, publisher: publisher, interval: interval, batchSize: batchSize, logger: logger}
}

// Run blocks, draining the outbox on a ticker until ctx is cancelled.
func (d *DrainLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.drainOnce(ctx); err != nil {
				d.logger.Error("outbox drain failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (d *DrainLoop) drainOnce(ctx context.Context) error {
	pending, err := d.outbox.FindUnpublished(ctx, d.batchSize)
	if err != nil {
		return err
	}

	for _, event := range pending {
		if err := d.publisher.Publish(ctx, event); err != nil {
			d.logger.Warn("event publish failed, marking as failed",
				slog.String("event_type", event.EventType()),
				slog.String("event_id", event.EventID().String()),
				slog.String("error", err.Error()),
			)
			if markErr := d.outbox.MarkFailed(ctx, event.EventID().String(), err.Error()); markErr != nil {
				d.logger.Error("mark event failed also failed", slog.String("error", markErr.Error()))
			}
			continue
		}

		if err := d.outbox.MarkPublished(ctx, event.EventID().String()); err != nil {
			d.logger.Error("mark event published failed",
				slog.String("event_id", event.EventID().String()),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}
