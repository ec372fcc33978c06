package tracker

import (
	"errors"
	"slices"

	"raffleengine/internal/blockchain"
	"raffleengine/internal/logger"
	"raffleengine/internal/storage"

	"go.uber.org/zap"
)

// sweep runs every sweep, each raffle on its own, so one failing raffle
// holds up nothing else.
func (t *Tracker) sweep() error {
	refunds := t.sweepRefunds()
	draws := t.sweepStuckDraws()
	obligations := t.sweepObligations()

	deleted, err := t.engine.PruneNonces(t.ctx)
	if err != nil {
		logger.Debug("cannot prune nonces")
	}
	if deleted > 0 {
		logger.Debug("pruned expired nonces", zap.Int64("deleted", deleted))
	}
	return errors.Join(refunds, draws, obligations, err)
}

// sweepRefunds refunds every outstanding ticket of raffles that missed
// their deadline, and of refunding raffles with tickets left.
func (t *Tracker) sweepRefunds() error {
	expired, err := t.engine.ExpiredSelling(t.ctx, GlobalLimitWindowSize)
	if err != nil {
		logger.Debug("cannot get expired raffles, exiting...")
		return err
	}

	refunding, err := t.engine.ListRaffles(t.ctx, storage.Refunding, 0)
	if err != nil {
		logger.Debug("cannot get refunding raffles, exiting...")
		return err
	}

	var failures []error
	for _, candidate := range append(expired, refunding...) {
		if err := t.refundRaffle(candidate.ID); err != nil {
			if !settled(err) {
				logger.Warn("sweep refunds: raffle failed", zap.Stringer("raffle", candidate.ID), zap.Error(err))
				failures = append(failures, err)
				continue
			}
			logger.Warn("sweep refunds: raffle skipped", zap.Stringer("raffle", candidate.ID), zap.Error(err))
		}
	}
	return errors.Join(failures...)
}

func (t *Tracker) refundRaffle(id blockchain.Address) error {
	tickets, err := t.engine.ListTickets(t.ctx, id)
	if err != nil {
		return err
	}

	var pending []blockchain.Address
	for _, ticket := range tickets {
		if !ticket.Refunded {
			pending = append(pending, ticket.ID)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	logger.Info("refunding raffle", zap.Stringer("raffle", id), zap.Int("tickets", len(pending)))
	for batch := range slices.Chunk(pending, t.engine.Config().MaxBatchSize) {
		if _, err := t.engine.RefundBatch(t.ctx, id, batch); err != nil {
			logger.Debug("refund raffle: batch failed", zap.Stringer("raffle", id), zap.Int("tickets", len(batch)), zap.Error(err))
			return err
		}
	}
	return nil
}

func (t *Tracker) sweepStuckDraws() error {
	stuck, err := t.engine.StuckDraws(t.ctx, GlobalLimitWindowSize)
	if err != nil {
		logger.Debug("cannot get stuck draws, exiting...")
		return err
	}

	var failures []error
	for _, candidate := range stuck {
		if _, err := t.engine.RecoverDraw(t.ctx, candidate.ID); err != nil {
			if !settled(err) {
				failures = append(failures, err)
				continue
			}
			logger.Warn("sweep stuck draws: raffle skipped", zap.Stringer("raffle", candidate.ID), zap.Error(err))
		}
	}
	return errors.Join(failures...)
}

// sweepObligations retries obligations whose event was skipped.
func (t *Tracker) sweepObligations() error {
	pending, err := t.engine.PendingObligations(t.ctx, GlobalLimitWindowSize)
	if err != nil {
		logger.Debug("cannot get pending obligations, exiting...")
		return err
	}

	var failures []error
	for _, obligation := range pending {
		if err := t.fulfil(obligation); err != nil {
			logger.Warn("sweep obligations: obligation failed", zap.String("obligation", obligation.ID), zap.Error(err))
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}
