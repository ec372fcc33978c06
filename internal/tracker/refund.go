package tracker

import (
	"context"
	"errors"
	"fmt"

	"raffleengine/internal/escrow"
	"raffleengine/internal/logger"
	"raffleengine/internal/raffle"
	"raffleengine/internal/storage"

	"go.uber.org/zap"
)

var ErrNoRefundDestination = errors.New("tracker: ticket has no refund destination")

// RefundFulfiller pays out a refund obligation. Fulfill runs again for an
// obligation whose payout succeeded but which could not be marked fulfilled.
type RefundFulfiller interface {
	Fulfill(ctx context.Context, obligation *storage.RefundObligation) error
}

// EscrowRefunder returns the ticket price from the raffle escrow to the
// account the ticket was paid from.
type EscrowRefunder struct {
	engine  *raffle.Engine
	gateway escrow.Gateway
}

func NewEscrowRefunder(engine *raffle.Engine, gateway escrow.Gateway) *EscrowRefunder {
	return &EscrowRefunder{engine: engine, gateway: gateway}
}

func (r *EscrowRefunder) Fulfill(ctx context.Context, obligation *storage.RefundObligation) error {
	if obligation.Amount == 0 {
		// ticket-join entries paid with burned assets
		logger.Info("refund obligation carries no payment", zap.String("obligation", obligation.ID), zap.Stringer("owner", obligation.Owner))
		return nil
	}

	ticket, err := r.engine.GetTicket(ctx, obligation.Ticket)
	if err != nil {
		return err
	}
	if ticket.Source.IsZero() {
		return fmt.Errorf("%w: %s", ErrNoRefundDestination, ticket.ID)
	}

	current, err := r.engine.GetRaffle(ctx, obligation.Raffle)
	if err != nil {
		return err
	}

	return r.gateway.TransferChecked(ctx, escrow.Transfer{
		From:      current.Escrow,
		To:        ticket.Source,
		Mint:      current.Mint,
		Amount:    obligation.Amount,
		Decimals:  current.Decimals,
		Authority: current.ID,
	})
}
