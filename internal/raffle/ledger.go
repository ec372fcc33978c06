package raffle

import (
	"context"
	"errors"
	"math/bits"

	"raffleengine/internal/blockchain"
	"raffleengine/internal/escrow"
	"raffleengine/internal/logger"
	"raffleengine/internal/storage"

	"go.uber.org/zap"
)

type DepositRequest struct {
	Raffle Address
	// Source is the payer's token account.
	Source Address
	Amount uint64
	// ExpectedCursor is the next ticket number the payer last observed.
	ExpectedCursor uint64
}

// Deposit buys a contiguous block of tickets on a cursor raffle. The number
// of tickets is Amount divided by one whole token of the raffle mint.
func (e *Engine) Deposit(ctx context.Context, payer Address, request DepositRequest) (*storage.Ticket, error) {
	var ticket *storage.Ticket

	err := e.storage.Update(ctx, func(tx storage.Tx) error {
		raffle, err := loadRaffle(tx, request.Raffle)
		if err != nil {
			return err
		}

		if raffle.LedgerMode != storage.CursorLedger {
			return ErrWrongLedgerMode
		}
		if err := e.checkSelling(raffle); err != nil {
			return err
		}
		if request.Amount == 0 {
			return ErrInvalidAmount
		}
		if request.ExpectedCursor != raffle.NextTicketIndex {
			return ErrConcurrentDeposit
		}

		unit, err := unitSize(raffle.Decimals)
		if err != nil {
			return err
		}
		if request.Amount%unit != 0 {
			return ErrMustDepositWholeTokens
		}

		count := request.Amount / unit
		id, err := blockchain.TicketAddress(e.config.Program, raffle.ID, payer, raffle.NextTicketIndex)
		if err != nil {
			return err
		}

		ticket = &storage.Ticket{
			ID:       id,
			Raffle:   raffle.ID,
			Owner:    payer,
			Start:    raffle.NextTicketIndex,
			Count:    count,
			Source:   request.Source,
			Paid:     request.Amount,
			IssuedAt: e.now().Unix(),
		}

		if err := e.issue(tx, raffle, ticket); err != nil {
			return err
		}

		return e.transfer(ctx, escrow.Transfer{
			From:      request.Source,
			To:        raffle.Escrow,
			Mint:      raffle.Mint,
			Amount:    request.Amount,
			Decimals:  raffle.Decimals,
			Authority: payer,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("deposit... done",
		zap.Stringer("raffle", request.Raffle),
		zap.Stringer("owner", payer),
		zap.Uint64("start", ticket.Start),
		zap.Uint64("count", ticket.Count),
	)
	return ticket, nil
}

// checkSelling reports whether the raffle still accepts tickets.
func (e *Engine) checkSelling(raffle *storage.Raffle) error {
	if raffle.Status != storage.Selling {
		if raffle.TicketsSold >= raffle.RequiredTickets {
			return ErrOverSubscription
		}
		return ErrRaffleNotSelling
	}
	if e.now().Unix() > raffle.Deadline {
		return ErrPastDeadline
	}
	return nil
}

// issue records ticket against raffle and moves the raffle to Drawing when
// the last ticket is sold.
func (e *Engine) issue(tx storage.Tx, raffle *storage.Raffle, ticket *storage.Ticket) error {
	sold, err := checkedAdd(raffle.TicketsSold, ticket.Count)
	if err != nil {
		return err
	}
	if sold > raffle.RequiredTickets {
		return ErrOverSubscription
	}

	next, err := checkedAdd(raffle.NextTicketIndex, ticket.Count)
	if err != nil {
		return err
	}

	raffle.TicketsSold = sold
	raffle.NextTicketIndex = next

	if err := tx.CreateTicket(ticket); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return ErrConcurrentDeposit
		}
		return err
	}

	err = e.emit(tx, blockchain.Deposited{
		Raffle:      raffle.ID,
		Owner:       ticket.Owner,
		Start:       ticket.Start,
		Count:       ticket.Count,
		TicketsSold: raffle.TicketsSold,
	})
	if err != nil {
		return err
	}

	if raffle.TicketsSold == raffle.RequiredTickets {
		raffle.Status = storage.Drawing
		raffle.DrawingSince = e.now().Unix()

		err = e.emit(tx, blockchain.ThresholdReached{Raffle: raffle.ID, Supply: raffle.RequiredTickets})
		if err != nil {
			return err
		}

		logger.Info("threshold reached", zap.Stringer("raffle", raffle.ID), zap.Uint64("supply", raffle.RequiredTickets))
	}

	return tx.SaveRaffle(raffle)
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

func checkedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// unitSize is one whole token in base units.
func unitSize(decimals uint8) (uint64, error) {
	unit := uint64(1)
	for range decimals {
		var err error
		if unit, err = checkedMul(unit, 10); err != nil {
			return 0, err
		}
	}
	return unit, nil
}
