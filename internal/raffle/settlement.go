package raffle

import (
	"context"
	"errors"
	"fmt"

	"raffleengine/internal/blockchain"
	"raffleengine/internal/escrow"
	"raffleengine/internal/logger"
	"raffleengine/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ownedTicket loads a ticket of raffle held by caller.
func ownedTicket(tx storage.Tx, raffle *storage.Raffle, caller, id Address) (*storage.Ticket, error) {
	ticket, err := loadTicket(tx, id)
	if err != nil {
		return nil, err
	}
	if ticket.Raffle != raffle.ID {
		return nil, ErrWrongRaffle
	}
	if ticket.Owner != caller {
		return nil, ErrUnauthorized
	}
	return ticket, nil
}

// ClaimWin marks the caller's ticket holding the winning number. It moves
// no funds; a claimed win is required before the prize can be claimed.
func (e *Engine) ClaimWin(ctx context.Context, caller, raffleID, ticketID Address) (*storage.Ticket, error) {
	var ticket *storage.Ticket

	err := e.storage.Update(ctx, func(tx storage.Tx) error {
		raffle, err := loadRaffle(tx, raffleID)
		if err != nil {
			return err
		}
		if raffle.Status != storage.Completed {
			return ErrWrongStatus
		}

		if ticket, err = ownedTicket(tx, raffle, caller, ticketID); err != nil {
			return err
		}
		if ticket.ClaimedWin {
			return ErrAlreadyClaimedWin
		}
		if !ticket.Contains(raffle.WinnerTicket) {
			return ErrNotWinningTicket
		}

		ticket.ClaimedWin = true
		if err := tx.SaveTicket(ticket); err != nil {
			return err
		}

		return e.emit(tx, blockchain.WinClaimed{Raffle: raffle.ID, Winner: caller, Ticket: raffle.WinnerTicket})
	})
	if err != nil {
		return nil, err
	}

	logger.Info("claim win... done", zap.Stringer("raffle", raffleID), zap.Stringer("winner", caller))
	return ticket, nil
}

type PrizeRequest struct {
	Mint Address
	// Source is the organizer's account holding the prize.
	Source Address
	// Escrow holds the prize until it is claimed. It must be owned by the
	// raffle address.
	Escrow Address
}

// SetPrize moves a single non-divisible prize token into the raffle's prize
// escrow. A prize can be set once.
func (e *Engine) SetPrize(ctx context.Context, caller, raffleID Address, request PrizeRequest) (*storage.Raffle, error) {
	var raffle *storage.Raffle

	err := e.storage.Update(ctx, func(tx storage.Tx) error {
		var err error
		if raffle, err = loadRaffle(tx, raffleID); err != nil {
			return err
		}
		if raffle.Organizer != caller {
			return ErrUnauthorized
		}
		if raffle.PrizeSet {
			return ErrPrizeAlreadySet
		}
		if raffle.Status == storage.Refunding {
			return ErrWrongStatus
		}
		// proceeds are swept from the raffle escrow, so the prize needs its own
		if request.Escrow == raffle.Escrow {
			return ErrInvalidEscrow
		}

		decimals, err := e.gateway.Decimals(ctx, request.Mint)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTransferRejected, err)
		}
		if decimals != 0 {
			return ErrPrizeMustBeNft
		}

		account, err := e.gateway.Account(ctx, request.Escrow)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEscrow, err)
		}
		if account.Mint != request.Mint || account.Owner != raffle.ID {
			return ErrInvalidEscrow
		}

		raffle.PrizeSet = true
		raffle.PrizeMint = request.Mint
		raffle.PrizeEscrow = request.Escrow
		if err := tx.SaveRaffle(raffle); err != nil {
			return err
		}

		if err := e.emit(tx, blockchain.PrizeSet{Raffle: raffle.ID, Mint: request.Mint}); err != nil {
			return err
		}

		return e.transfer(ctx, escrow.Transfer{
			From:      request.Source,
			To:        request.Escrow,
			Mint:      request.Mint,
			Amount:    1,
			Decimals:  0,
			Authority: caller,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info("set prize... done", zap.Stringer("raffle", raffleID), zap.Stringer("mint", request.Mint))
	return raffle, nil
}

// ClaimPrize pays the prize to the winner after the win was claimed.
func (e *Engine) ClaimPrize(ctx context.Context, caller, raffleID, ticketID, destination Address) (*storage.Raffle, error) {
	var raffle *storage.Raffle

	err := e.storage.Update(ctx, func(tx storage.Tx) error {
		var err error
		if raffle, err = loadRaffle(tx, raffleID); err != nil {
			return err
		}
		if raffle.Status != storage.Completed {
			return ErrWrongStatus
		}
		if !raffle.PrizeSet {
			return ErrPrizeNotSet
		}
		if raffle.PrizeClaimed {
			return ErrPrizeAlreadyClaimed
		}

		ticket, err := ownedTicket(tx, raffle, caller, ticketID)
		if err != nil {
			return err
		}
		if !ticket.ClaimedWin {
			return ErrMustClaimWinFirst
		}

		raffle.PrizeClaimed = true
		if err := tx.SaveRaffle(raffle); err != nil {
			return err
		}

		err = e.emit(tx, blockchain.PrizeClaimed{Raffle: raffle.ID, Winner: caller, Mint: raffle.PrizeMint})
		if err != nil {
			return err
		}

		return e.transfer(ctx, escrow.Transfer{
			From:      raffle.PrizeEscrow,
			To:        destination,
			Mint:      raffle.PrizeMint,
			Amount:    1,
			Decimals:  0,
			Authority: raffle.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info("claim prize... done", zap.Stringer("raffle", raffleID), zap.Stringer("winner", caller))
	return raffle, nil
}

// CollectProceeds pays the whole escrow balance to the organizer once the
// raffle is completed.
func (e *Engine) CollectProceeds(ctx context.Context, caller, raffleID, destination Address) (uint64, error) {
	var amount uint64

	err := e.storage.Update(ctx, func(tx storage.Tx) error {
		raffle, err := loadRaffle(tx, raffleID)
		if err != nil {
			return err
		}
		if raffle.Organizer != caller {
			return ErrUnauthorized
		}
		if raffle.Status != storage.Completed {
			return ErrWrongStatus
		}
		if raffle.ProceedsCollected {
			return ErrAlreadyCollected
		}

		account, err := e.gateway.Account(ctx, raffle.Escrow)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTransferRejected, err)
		}
		if account.Balance == 0 {
			return ErrInvalidAmount
		}
		amount = account.Balance

		raffle.ProceedsCollected = true
		if err := tx.SaveRaffle(raffle); err != nil {
			return err
		}

		err = e.emit(tx, blockchain.ProceedsCollected{Raffle: raffle.ID, Organizer: caller, Amount: amount})
		if err != nil {
			return err
		}

		return e.transfer(ctx, escrow.Transfer{
			From:      raffle.Escrow,
			To:        destination,
			Mint:      raffle.Mint,
			Amount:    amount,
			Decimals:  raffle.Decimals,
			Authority: raffle.ID,
		})
	})
	if err != nil {
		return 0, err
	}

	logger.Info("collect proceeds... done", zap.Stringer("raffle", raffleID), zap.Uint64("amount", amount))
	return amount, nil
}

// checkRefundable moves an unfilled raffle past its deadline to Refunding.
func (e *Engine) checkRefundable(raffle *storage.Raffle) error {
	if raffle.Status != storage.Selling && raffle.Status != storage.Refunding {
		return ErrWrongStatus
	}
	if !raffle.DrawRecovered && e.now().Unix() <= raffle.Deadline {
		return ErrNotRefundableYet
	}

	raffle.Status = storage.Refunding
	return nil
}

// ClaimRefund refunds one of the caller's tickets.
func (e *Engine) ClaimRefund(ctx context.Context, caller, raffleID, ticketID Address) (*storage.Ticket, error) {
	var ticket *storage.Ticket

	err := e.storage.Update(ctx, func(tx storage.Tx) error {
		raffle, err := loadRaffle(tx, raffleID)
		if err != nil {
			return err
		}
		if err := e.checkRefundable(raffle); err != nil {
			return err
		}

		if ticket, err = ownedTicket(tx, raffle, caller, ticketID); err != nil {
			return err
		}
		if ticket.Refunded {
			return ErrAlreadyRefunded
		}

		if err := tx.SaveRaffle(raffle); err != nil {
			return err
		}

		payout, err := e.refund(tx, raffle, ticket)
		if err != nil || payout == nil {
			return err
		}
		return e.transfer(ctx, *payout)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("claim refund... done", zap.Stringer("raffle", raffleID), zap.Stringer("ticket", ticketID))
	return ticket, nil
}

// RefundBatch refunds the given tickets on behalf of their owners in one
// transaction. Tickets of other raffles, unknown tickets and tickets already
// refunded are skipped. Transfer mode payouts go to the gateway as a single
// batch, so a rejected payout leaves every ticket unrefunded.
func (e *Engine) RefundBatch(ctx context.Context, raffleID Address, ticketIDs []Address) ([]Address, error) {
	if len(ticketIDs) > e.config.MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	var refunded []Address
	err := e.storage.Update(ctx, func(tx storage.Tx) error {
		refunded = nil

		raffle, err := loadRaffle(tx, raffleID)
		if err != nil {
			return err
		}
		if err := e.checkRefundable(raffle); err != nil {
			return err
		}
		if err := tx.SaveRaffle(raffle); err != nil {
			return err
		}

		var payouts []escrow.Transfer
		for _, ticketID := range ticketIDs {
			ticket, err := tx.GetTicket(ticketID)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if ticket.Raffle != raffle.ID || ticket.Refunded {
				continue
			}

			payout, err := e.refund(tx, raffle, ticket)
			if err != nil {
				return err
			}
			if payout != nil {
				payouts = append(payouts, *payout)
			}
			refunded = append(refunded, ticketID)
		}

		if len(payouts) == 0 {
			return nil
		}
		if err := e.gateway.TransferBatch(ctx, payouts); err != nil {
			return fmt.Errorf("%w: %w", ErrTransferRejected, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("refund batch... done", zap.Stringer("raffle", raffleID), zap.Int("refunded", len(refunded)))
	return refunded, nil
}

// refund marks ticket refunded. In transfer mode a paid ticket's tokens go
// back from escrow and the payout is returned for the caller to submit;
// otherwise an obligation is recorded for the refund service.
func (e *Engine) refund(tx storage.Tx, raffle *storage.Raffle, ticket *storage.Ticket) (*escrow.Transfer, error) {
	ticket.Refunded = true
	if err := tx.SaveTicket(ticket); err != nil {
		return nil, err
	}

	if raffle.RefundMode == storage.TransferRefund && ticket.Paid > 0 && !ticket.Source.IsZero() {
		err := e.emit(tx, blockchain.Refunded{
			Raffle: raffle.ID,
			Owner:  ticket.Owner,
			Start:  ticket.Start,
			Count:  ticket.Count,
			Amount: ticket.Paid,
		})
		if err != nil {
			return nil, err
		}

		return &escrow.Transfer{
			From:      raffle.Escrow,
			To:        ticket.Source,
			Mint:      raffle.Mint,
			Amount:    ticket.Paid,
			Decimals:  raffle.Decimals,
			Authority: raffle.ID,
		}, nil
	}

	obligation := &storage.RefundObligation{
		ID:          uuid.NewString(),
		Raffle:      raffle.ID,
		Ticket:      ticket.ID,
		Owner:       ticket.Owner,
		Start:       ticket.Start,
		Count:       ticket.Count,
		Slots:       ticket.Slots,
		Amount:      ticket.Paid,
		RequestedAt: e.now().Unix(),
	}
	if err := tx.CreateObligation(obligation); err != nil {
		return nil, err
	}

	return nil, e.emit(tx, blockchain.RefundTicketsRequested{
		Raffle:     raffle.ID,
		Owner:      ticket.Owner,
		Start:      ticket.Start,
		Count:      ticket.Count,
		Slots:      ticket.Slots,
		Obligation: obligation.ID,
	})
}

// ExpiredSelling lists selling raffles whose deadline has passed.
func (e *Engine) ExpiredSelling(ctx context.Context, limit int) ([]*storage.Raffle, error) {
	selling, err := e.ListRaffles(ctx, storage.Selling, 0)
	if err != nil {
		return nil, err
	}

	now := e.now().Unix()
	var expired []*storage.Raffle
	for _, raffle := range selling {
		if now > raffle.Deadline {
			expired = append(expired, raffle)
		}
		if limit > 0 && len(expired) == limit {
			break
		}
	}
	return expired, nil
}

// PendingObligations returns refund obligations not yet fulfilled.
func (e *Engine) PendingObligations(ctx context.Context, limit int) ([]*storage.RefundObligation, error) {
	var obligations []*storage.RefundObligation
	err := e.storage.View(ctx, func(tx storage.Tx) error {
		var err error
		obligations, err = tx.ListPendingObligations(limit)
		return err
	})
	return obligations, err
}

// FulfillObligation marks an obligation fulfilled. It is one-shot.
func (e *Engine) FulfillObligation(ctx context.Context, id string) error {
	return e.storage.Update(ctx, func(tx storage.Tx) error {
		obligation, err := tx.GetObligation(id)
		if err != nil {
			return err
		}
		if obligation.Fulfilled {
			return ErrAlreadyRefunded
		}

		obligation.Fulfilled = true
		obligation.FulfilledAt = e.now().Unix()
		return tx.SaveObligation(obligation)
	})
}
