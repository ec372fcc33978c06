package tracker

import (
	"context"
	"errors"
	"time"

	"raffleengine/internal/draw"
	"raffleengine/internal/logger"
	"raffleengine/internal/raffle"
	"raffleengine/internal/storage"

	"go.uber.org/zap"
)

type Config struct {
	Interval      time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// Tracker follows the engine's event outbox and drives the work no caller
// is waiting on: automatic draws, refund payouts, expired raffles and
// stuck draws.
type Tracker struct {
	ctx       context.Context
	engine    *raffle.Engine
	storage   storage.Storage
	oracle    draw.Oracle
	fulfiller RefundFulfiller
	config    Config
}

type Func[T any] func() (T, error)

// boundedRetry calls fn until it succeeds, the attempts run out or ctx is
// done.
func boundedRetry[T any](
	ctx context.Context,
	attempts int,
	delay time.Duration,
	fn Func[T],
) (T, error) {
	var result T
	var err error

	for attempt := 1; ; attempt++ {
		result, err = fn()
		if err == nil || attempt >= attempts || errors.Is(err, context.Canceled) {
			return result, err
		}

		logger.Debug("retry", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func NewTracker(ctx context.Context, engine *raffle.Engine, store storage.Storage, oracle draw.Oracle, fulfiller RefundFulfiller, config Config) *Tracker {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = DefaultRetryAttempts
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultRetryDelay
	}

	logger.Debug("tracker initialization... done",
		zap.Duration("interval", config.Interval),
		zap.Int("retry attempts", config.RetryAttempts),
	)
	return &Tracker{
		ctx:       ctx,
		engine:    engine,
		storage:   store,
		oracle:    oracle,
		fulfiller: fulfiller,
		config:    config,
	}
}

// Run makes one pass: parked events, new outbox events, then the sweeps.
// Every stage runs even when an earlier one failed; the failures are
// returned together.
func (t *Tracker) Run() error {
	logger.Debug("tracker: retrying parked events")
	parked := t.processParked()

	logger.Debug("tracker: processing events")
	events := t.processEvents()

	if err := t.ctx.Err(); err != nil {
		return err
	}

	logger.Debug("tracker: sweeping")
	return errors.Join(parked, events, t.sweep())
}

// Loop calls Run every interval until the tracker context is done. A failed
// pass is logged and retried on the next tick.
func (t *Tracker) Loop() {
	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		if err := t.Run(); err != nil && t.ctx.Err() == nil {
			logger.Error("tracker pass failed", zap.Error(err))
		}

		select {
		case <-t.ctx.Done():
			t.Finalize()
			return
		case <-ticker.C:
		}
	}
}

func (t *Tracker) Finalize() {
	logger.Info("tracker stopped")
}
