package raffle

import (
	"context"
	"errors"
	"time"

	"raffleengine/internal/blockchain"
	"raffleengine/internal/draw"
	"raffleengine/internal/logger"
	"raffleengine/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestDraw asks the randomness service for a winner. Only the organizer
// may request, and only while the raffle is Drawing.
func (e *Engine) RequestDraw(ctx context.Context, caller, id Address) (draw.Request, error) {
	return e.requestDraw(ctx, id, func(raffle *storage.Raffle) error {
		if raffle.Organizer != caller {
			return ErrUnauthorized
		}
		return nil
	})
}

// RequestAutoDraw is the worker path for raffles created with auto draw.
func (e *Engine) RequestAutoDraw(ctx context.Context, id Address) (draw.Request, error) {
	return e.requestDraw(ctx, id, func(raffle *storage.Raffle) error {
		if !raffle.AutoDraw {
			return ErrAutoDrawDisabled
		}
		return nil
	})
}

// requestDraw issues a fresh request id. A result for any earlier request
// of the same raffle is refused afterwards.
func (e *Engine) requestDraw(ctx context.Context, id Address, allowed func(*storage.Raffle) error) (draw.Request, error) {
	var request draw.Request

	err := e.storage.Update(ctx, func(tx storage.Tx) error {
		raffle, err := loadRaffle(tx, id)
		if err != nil {
			return err
		}
		if err := allowed(raffle); err != nil {
			return err
		}
		if raffle.Status != storage.Drawing {
			return ErrWrongStatus
		}

		raffle.DrawRequestID = uuid.NewString()
		raffle.DrawRequestedAt = e.now().Unix()
		if err := tx.SaveRaffle(raffle); err != nil {
			return err
		}

		request = draw.Request{
			Raffle:          raffle.ID,
			RequestID:       raffle.DrawRequestID,
			RequiredTickets: raffle.RequiredTickets,
		}

		return e.emit(tx, blockchain.RandomnessRequested{
			Raffle:    raffle.ID,
			Supply:    raffle.RequiredTickets,
			RequestID: raffle.DrawRequestID,
		})
	})
	if err != nil {
		return draw.Request{}, err
	}

	logger.Debug("request draw... done", zap.Stringer("raffle", id), zap.String("request", request.RequestID))
	return request, nil
}

// Settle completes a drawing raffle with a winner chosen by the draw
// authority.
func (e *Engine) Settle(ctx context.Context, caller, id Address, winner uint64) (*storage.Raffle, error) {
	if caller != e.config.DrawAuthority || caller.IsZero() {
		return nil, ErrUnauthorized
	}

	var raffle *storage.Raffle
	err := e.storage.Update(ctx, func(tx storage.Tx) error {
		var err error
		if raffle, err = loadRaffle(tx, id); err != nil {
			return err
		}
		return e.complete(tx, raffle, winner)
	})
	if err != nil {
		return nil, err
	}
	return raffle, nil
}

// ApplyDrawResult applies the answer to the outstanding draw request. An
// aborted draw leaves the raffle in Drawing so the draw can be requested
// again.
func (e *Engine) ApplyDrawResult(ctx context.Context, id Address, requestID string, result draw.Result) (*storage.Raffle, error) {
	var raffle *storage.Raffle

	err := e.storage.Update(ctx, func(tx storage.Tx) error {
		var err error
		if raffle, err = loadRaffle(tx, id); err != nil {
			return err
		}
		if raffle.Status != storage.Drawing {
			return ErrWrongStatus
		}
		if raffle.DrawRequestID == "" || raffle.DrawRequestID != requestID {
			return ErrUnknownDrawRequest
		}
		if result.Aborted {
			return ErrDrawAborted
		}
		return e.complete(tx, raffle, result.Winner)
	})
	if err != nil {
		if errors.Is(err, ErrDrawAborted) {
			logger.Warn("draw aborted", zap.Stringer("raffle", id), zap.String("request", requestID), zap.String("reason", result.Reason))
		}
		return nil, err
	}
	return raffle, nil
}

func (e *Engine) complete(tx storage.Tx, raffle *storage.Raffle, winner uint64) error {
	if raffle.Status != storage.Drawing {
		return ErrWrongStatus
	}
	if winner == 0 || winner > raffle.RequiredTickets {
		return ErrInvalidWinner
	}

	raffle.WinnerTicket = winner
	raffle.Status = storage.Completed
	raffle.DrawRequestID = ""
	if err := tx.SaveRaffle(raffle); err != nil {
		return err
	}

	logger.Info("winner selected", zap.Stringer("raffle", raffle.ID), zap.Uint64("winner", winner))
	return e.emit(tx, blockchain.WinnerSelected{Raffle: raffle.ID, Winner: winner})
}

// RecoverDraw moves a raffle whose draw never completed to Refunding. It is
// only available when a recovery timeout is configured, and only once the
// raffle has been drawing for longer than that timeout.
func (e *Engine) RecoverDraw(ctx context.Context, id Address) (*storage.Raffle, error) {
	if e.config.DrawRecoveryTimeout <= 0 {
		return nil, ErrDrawRecoveryDisabled
	}

	var raffle *storage.Raffle
	err := e.storage.Update(ctx, func(tx storage.Tx) error {
		var err error
		if raffle, err = loadRaffle(tx, id); err != nil {
			return err
		}
		if raffle.Status != storage.Drawing {
			return ErrWrongStatus
		}

		since := time.Unix(max(raffle.DrawingSince, raffle.DrawRequestedAt), 0)
		if e.now().Sub(since) <= e.config.DrawRecoveryTimeout {
			return ErrDrawNotStuck
		}

		request := raffle.DrawRequestID
		raffle.Status = storage.Refunding
		raffle.DrawRecovered = true
		raffle.DrawRequestID = ""
		if err := tx.SaveRaffle(raffle); err != nil {
			return err
		}

		return e.emit(tx, blockchain.DrawRecovered{Raffle: raffle.ID, RequestID: request})
	})
	if err != nil {
		return nil, err
	}

	logger.Warn("draw recovered, raffle refunding", zap.Stringer("raffle", id))
	return raffle, nil
}

// StuckDraws lists drawing raffles eligible for RecoverDraw.
func (e *Engine) StuckDraws(ctx context.Context, limit int) ([]*storage.Raffle, error) {
	if e.config.DrawRecoveryTimeout <= 0 {
		return nil, nil
	}

	drawing, err := e.ListRaffles(ctx, storage.Drawing, 0)
	if err != nil {
		return nil, err
	}

	now := e.now()
	var stuck []*storage.Raffle
	for _, raffle := range drawing {
		since := time.Unix(max(raffle.DrawingSince, raffle.DrawRequestedAt), 0)
		if now.Sub(since) > e.config.DrawRecoveryTimeout {
			stuck = append(stuck, raffle)
		}
		if limit > 0 && len(stuck) == limit {
			break
		}
	}
	return stuck, nil
}
