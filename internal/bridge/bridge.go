package bridge

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math/bits"
	"time"

	"github.com/google/uuid"

	"github.com/v-starostin/tacbridge/internal/guard"
	"github.com/v-starostin/tacbridge/internal/metrics"
	"github.com/v-starostin/tacbridge/internal/model"
)

const DefaultRate uint64 = 100

var (
	ErrTransferRejected   = errors.New("transfer rejected")
	ErrReentrantCall      = guard.ErrReentrantCall
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
)

// Ledger is the part of the source asset ledger the bridge relies on.
// TransferFrom moves amount from one account to another on behalf of the
// receiver; false means the ledger declined the transfer.
type Ledger interface {
	TransferFrom(ctx context.Context, from, to uuid.UUID, amount uint64) (bool, error)
}

// Journal appends records to the audit log. The stored record, with its
// sequence number and timestamp, is returned.
type Journal interface {
	Append(ctx context.Context, c model.Conversion) (model.Conversion, error)
}

// Store runs fn in a transaction: every change made through the ledger and
// journal passed to fn is committed together when fn returns nil and
// discarded otherwise.
type Store interface {
	Atomic(ctx context.Context, fn func(ctx context.Context, ledger Ledger, journal Journal) error) error
	Conversions(ctx context.Context, filter model.ConversionFilter) iter.Seq2[model.Conversion, error]
}

// Config is fixed for the lifetime of a Bridge.
type Config struct {
	Rate    uint64
	Custody uuid.UUID
}

type Bridge struct {
	logger  *slog.Logger
	cfg     Config
	store   Store
	guard   *guard.Guard
	metrics *metrics.Metrics
}

func New(logger *slog.Logger, cfg Config, store Store, m *metrics.Metrics) *Bridge {
	return &Bridge{
		logger:  logger,
		cfg:     cfg,
		store:   store,
		guard:   guard.New(),
		metrics: m,
	}
}

func (b *Bridge) Rate() uint64 {
	return b.cfg.Rate
}

// Custody returns the account that receives the converted source units.
func (b *Bridge) Custody() uuid.UUID {
	return b.cfg.Custody
}

func (b *Bridge) Ledger() Store {
	return b.store
}

// Convert takes amount source units from caller and records amount*rate
// target units for it. Zero is a valid amount.
func (b *Bridge) Convert(ctx context.Context, caller uuid.UUID, amount uint64) (model.Conversion, error) {
	start := time.Now()

	var conv model.Conversion
	err := b.guard.Do(func() error {
		return b.store.Atomic(ctx, func(ctx context.Context, ledger Ledger, journal Journal) error {
			ok, err := ledger.TransferFrom(ctx, caller, b.cfg.Custody, amount)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrTransferRejected, err)
			}
			if !ok {
				return ErrTransferRejected
			}

			target, err := applyRate(amount, b.cfg.Rate)
			if err != nil {
				return err
			}

			conv, err = journal.Append(ctx, model.Conversion{
				Caller:       caller,
				SourceAmount: amount,
				TargetAmount: target,
				Rate:         b.cfg.Rate,
			})
			return err
		})
	})

	result := resultOf(err)
	b.metrics.ObserveConversion(result, amount, conv.TargetAmount, time.Since(start))

	if err != nil {
		b.logger.Info("Conversion failed",
			slog.String("caller", caller.String()),
			slog.Uint64("amount", amount),
			slog.String("result", result),
			slog.String("error", err.Error()),
		)
		return model.Conversion{}, err
	}

	b.logger.Info("Conversion completed",
		slog.Uint64("seq", conv.Seq),
		slog.String("caller", caller.String()),
		slog.Uint64("source_amount", conv.SourceAmount),
		slog.Uint64("target_amount", conv.TargetAmount),
	)

	return conv, nil
}

// Conversions reads the audit log in append order. Every range over the
// returned sequence reads the store again.
func (b *Bridge) Conversions(ctx context.Context, filter model.ConversionFilter) iter.Seq2[model.Conversion, error] {
	return b.store.Conversions(ctx, filter)
}

func applyRate(amount, rate uint64) (uint64, error) {
	hi, lo := bits.Mul64(amount, rate)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d * %d", ErrArithmeticOverflow, amount, rate)
	}
	return lo, nil
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrReentrantCall):
		return metrics.ResultReentrant
	case errors.Is(err, ErrTransferRejected):
		return metrics.ResultRejected
	case errors.Is(err, ErrArithmeticOverflow):
		return metrics.ResultOverflow
	default:
		return metrics.ResultError
	}
}
