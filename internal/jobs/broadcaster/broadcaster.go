package broadcaster

import (
	"context"
	"log/slog"
	"time"

	"github.com/v-starostin/tacbridge/internal/metrics"
	"github.com/v-starostin/tacbridge/internal/model"
)

const batchSize = 100

type Outbox interface {
	Pending(ctx context.Context, limit int) ([]model.Conversion, error)
	MarkPublished(ctx context.Context, seq uint64) error
}

type Publisher interface {
	Publish(ctx context.Context, event model.Event) error
	Close() error
}

type Broadcaster struct {
	logger    *slog.Logger
	outbox    Outbox
	publisher Publisher
	interval  time.Duration
	metrics   *metrics.Metrics
}

func New(logger *slog.Logger, outbox Outbox, publisher Publisher, interval time.Duration, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{
		logger:    logger,
		outbox:    outbox,
		publisher: publisher,
		interval:  interval,
		metrics:   m,
	}
}

// Run flushes the outbox every interval until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	b.logger.Info("Broadcaster started", slog.Duration("interval", b.interval))

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Broadcaster stopped")
			return
		case <-ticker.C:
			if _, err := b.Flush(ctx); err != nil && ctx.Err() == nil {
				b.logger.Info("Flush outbox error", slog.String("error", err.Error()))
			}
		}
	}
}

// Flush publishes pending conversions in order and returns how many were
// published. It stops at the first publish failure; that entry and the ones
// after it stay pending.
func (b *Broadcaster) Flush(ctx context.Context) (int, error) {
	pending, err := b.outbox.Pending(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	for i, c := range pending {
		err := b.publisher.Publish(ctx, model.NewEvent(c))
		b.metrics.ObservePublish(err)
		if err != nil {
			return i, err
		}

		if err := b.outbox.MarkPublished(ctx, c.Seq); err != nil {
			return i, err
		}
		b.logger.Debug("Conversion published", slog.Uint64("seq", c.Seq))
	}

	return len(pending), nil
}

func (b *Broadcaster) Close() error {
	return b.publisher.Close()
}
