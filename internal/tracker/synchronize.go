package tracker

import (
	"errors"

	"raffleengine/internal/blockchain"
	"raffleengine/internal/draw"
	"raffleengine/internal/logger"
	"raffleengine/internal/raffle"
	"raffleengine/internal/storage"

	"go.uber.org/zap"
)

// processEvents handles outbox events after the tracker cursor. The cursor
// moves past every event; one that failed for a reason worth retrying is
// parked and picked up again by processParked.
func (t *Tracker) processEvents() error {
	var failures []error

	for {
		var cursor uint64
		var events []*storage.Event

		err := t.storage.View(t.ctx, func(tx storage.Tx) error {
			var err error
			if cursor, err = tx.GetEventCursor(Consumer); err != nil {
				return err
			}
			events, err = tx.ListEvents(cursor, GlobalLimitWindowSize)
			return err
		})
		if err != nil {
			logger.Debug("cannot get pending events, exiting...")
			return errors.Join(append(failures, err)...)
		}

		for _, event := range events {
			if err := t.ctx.Err(); err != nil {
				return err
			}

			var parked *storage.ParkedEvent
			if err := t.handleEvent(event); err != nil {
				if t.ctx.Err() != nil {
					return err
				}
				if settled(err) {
					logger.Warn("process events: event skipped", zap.Uint64("seq", event.Seq), zap.String("kind", event.Kind), zap.Error(err))
				} else {
					logger.Warn("process events: event parked", zap.Uint64("seq", event.Seq), zap.String("kind", event.Kind), zap.Error(err))
					parked = &storage.ParkedEvent{Consumer: Consumer, Seq: event.Seq, Attempts: 1, LastError: err.Error()}
					failures = append(failures, err)
				}
			}

			err = t.storage.Update(t.ctx, func(tx storage.Tx) error {
				if parked != nil {
					if err := tx.ParkEvent(parked); err != nil {
						return err
					}
				}
				return tx.SaveEventCursor(&storage.EventCursor{Consumer: Consumer, Seq: event.Seq})
			})
			if err != nil {
				return errors.Join(append(failures, err)...)
			}
		}

		if len(events) < GlobalLimitWindowSize {
			return errors.Join(failures...)
		}
	}
}

// processParked retries parked events, oldest first. An event leaves the
// queue once it is handled or the engine rejects it for good.
func (t *Tracker) processParked() error {
	var parked []*storage.ParkedEvent
	err := t.storage.View(t.ctx, func(tx storage.Tx) error {
		var err error
		parked, err = tx.ListParkedEvents(Consumer, GlobalLimitWindowSize)
		return err
	})
	if err != nil {
		logger.Debug("cannot get parked events, exiting...")
		return err
	}

	var failures []error
	for _, entry := range parked {
		if err := t.ctx.Err(); err != nil {
			return err
		}

		var event *storage.Event
		err := t.storage.View(t.ctx, func(tx storage.Tx) error {
			var err error
			event, err = tx.GetEvent(entry.Seq)
			return err
		})
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			failures = append(failures, err)
			continue
		}

		var handleErr error
		if event != nil {
			handleErr = t.handleEvent(event)
		}
		if err := t.ctx.Err(); err != nil {
			return err
		}

		retry := handleErr != nil && !settled(handleErr)
		err = t.storage.Update(t.ctx, func(tx storage.Tx) error {
			if !retry {
				return tx.DeleteParkedEvent(Consumer, entry.Seq)
			}
			entry.Attempts++
			entry.LastError = handleErr.Error()
			return tx.ParkEvent(entry)
		})
		if err != nil {
			failures = append(failures, err)
			continue
		}

		if retry {
			logger.Warn("process parked: event still failing", zap.Uint64("seq", entry.Seq), zap.Uint32("attempts", entry.Attempts), zap.Error(handleErr))
			failures = append(failures, handleErr)
		} else {
			logger.Debug("process parked: event done", zap.Uint64("seq", entry.Seq))
		}
	}
	return errors.Join(failures...)
}

// settled reports whether retrying err would give the same answer.
func settled(err error) bool {
	switch raffle.KindOf(err) {
	case raffle.Validation, raffle.Authorization, raffle.State:
		return true
	}
	return false
}

func (t *Tracker) handleEvent(event *storage.Event) error {
	decoded, err := blockchain.DecodeEvent(event.Kind, event.Payload)
	if err != nil {
		logger.Error("process events: undecodable event", zap.Uint64("seq", event.Seq), zap.String("kind", event.Kind), zap.Error(err))
		return nil
	}

	switch e := decoded.(type) {
	case blockchain.ThresholdReached:
		return t.onThresholdReached(e)
	case blockchain.RandomnessRequested:
		return t.onRandomnessRequested(e)
	case blockchain.RefundTicketsRequested:
		return t.onRefundTicketsRequested(e)
	case blockchain.WinnerSelected:
		logger.Info("winner selected", zap.Stringer("raffle", e.Raffle), zap.Uint64("winner", e.Winner))
	case blockchain.DrawRecovered:
		logger.Warn("draw recovered", zap.Stringer("raffle", e.Raffle), zap.String("request", e.RequestID))
	default:
		logger.Debug("process events: nothing to do", zap.String("kind", event.Kind))
	}
	return nil
}

func (t *Tracker) onThresholdReached(event blockchain.ThresholdReached) error {
	current, err := t.engine.GetRaffle(t.ctx, event.Raffle)
	if err != nil {
		return err
	}
	if !current.AutoDraw {
		logger.Debug("threshold reached: waiting for organizer draw", zap.Stringer("raffle", event.Raffle))
		return nil
	}

	_, err = t.engine.RequestAutoDraw(t.ctx, event.Raffle)
	return err
}

func (t *Tracker) onRandomnessRequested(event blockchain.RandomnessRequested) error {
	current, err := t.engine.GetRaffle(t.ctx, event.Raffle)
	if err != nil {
		return err
	}
	if current.Status != storage.Drawing || current.DrawRequestID != event.RequestID {
		logger.Debug("randomness requested: request no longer outstanding", zap.Stringer("raffle", event.Raffle), zap.String("request", event.RequestID))
		return nil
	}

	request := draw.Request{
		Raffle:          event.Raffle,
		RequestID:       event.RequestID,
		RequiredTickets: current.RequiredTickets,
	}
	result, err := boundedRetry(t.ctx, t.config.RetryAttempts, t.config.RetryDelay,
		func() (draw.Result, error) {
			return t.oracle.Draw(t.ctx, request)
		},
	)
	if err != nil {
		logger.Debug("randomness requested: oracle failed, exiting...", zap.Stringer("raffle", event.Raffle), zap.Error(err))
		return err
	}

	_, err = t.engine.ApplyDrawResult(t.ctx, event.Raffle, event.RequestID, result)
	if !errors.Is(err, raffle.ErrDrawAborted) {
		return err
	}

	if !current.AutoDraw {
		logger.Warn("draw aborted, organizer must request again", zap.Stringer("raffle", event.Raffle))
		return nil
	}

	_, err = t.engine.RequestAutoDraw(t.ctx, event.Raffle)
	return err
}

func (t *Tracker) onRefundTicketsRequested(event blockchain.RefundTicketsRequested) error {
	var obligation *storage.RefundObligation
	err := t.storage.View(t.ctx, func(tx storage.Tx) error {
		var err error
		obligation, err = tx.GetObligation(event.Obligation)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		logger.Warn("refund requested: obligation missing", zap.String("obligation", event.Obligation))
		return nil
	}
	if err != nil {
		return err
	}

	return t.fulfil(obligation)
}

func (t *Tracker) fulfil(obligation *storage.RefundObligation) error {
	if obligation.Fulfilled {
		return nil
	}

	if err := t.fulfiller.Fulfill(t.ctx, obligation); err != nil {
		logger.Debug("fulfil obligation: cannot pay refund, exiting...", zap.String("obligation", obligation.ID), zap.Error(err))
		return err
	}

	err := t.engine.FulfillObligation(t.ctx, obligation.ID)
	if errors.Is(err, raffle.ErrAlreadyRefunded) {
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("refund fulfilled",
		zap.Stringer("raffle", obligation.Raffle),
		zap.Stringer("owner", obligation.Owner),
		zap.Uint64("amount", obligation.Amount),
	)
	return nil
}
