package raffle

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"raffleengine/internal/blockchain"
	"raffleengine/internal/escrow"
	"raffleengine/internal/logger"
	"raffleengine/internal/permit"
	"raffleengine/internal/redeem"
	"raffleengine/internal/storage"

	"go.uber.org/zap"
)

type SlotRequest struct {
	Raffle Address
	Source Address
	Slots  []uint32
	Nonce  permit.Nonce
	Expiry int64
	Permit []byte
}

// ReserveSlots buys the named slots, one whole token each. Either every
// slot is reserved or none is.
func (e *Engine) ReserveSlots(ctx context.Context, payer Address, request SlotRequest) (*storage.Ticket, error) {
	var ticket *storage.Ticket

	err := e.storage.Update(ctx, func(tx storage.Tx) error {
		raffle, err := loadRaffle(tx, request.Raffle)
		if err != nil {
			return err
		}
		if err := e.authorizeJoin(tx, raffle, payer, request.Slots, request.Nonce, request.Expiry, request.Permit); err != nil {
			return err
		}

		unit, err := unitSize(raffle.Decimals)
		if err != nil {
			return err
		}
		amount, err := checkedMul(unit, uint64(len(request.Slots)))
		if err != nil {
			return err
		}

		ticket, err = e.reserve(tx, raffle, payer, request.Slots, false)
		if err != nil {
			return err
		}
		ticket.Source = request.Source
		ticket.Paid = amount
		if err := tx.SaveTicket(ticket); err != nil {
			return err
		}

		return e.transfer(ctx, escrow.Transfer{
			From:      request.Source,
			To:        raffle.Escrow,
			Mint:      raffle.Mint,
			Amount:    amount,
			Decimals:  raffle.Decimals,
			Authority: payer,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("reserve slots... done",
		zap.Stringer("raffle", request.Raffle),
		zap.Stringer("owner", payer),
		zap.Uint32s("slots", request.Slots),
	)
	return ticket, nil
}

type JoinRequest struct {
	Raffle Address
	Slots  []uint32
	// Assets are refund tickets, one per slot.
	Assets []redeem.Asset
	Nonce  permit.Nonce
	Expiry int64
	Permit []byte
}

// JoinWithTickets reserves slots paid for with refund tickets instead of
// tokens. Depending on the raffle's ticket mode the tickets are burned or
// only checked for ownership.
func (e *Engine) JoinWithTickets(ctx context.Context, payer Address, request JoinRequest) (*storage.Ticket, error) {
	var ticket *storage.Ticket

	err := e.storage.Update(ctx, func(tx storage.Tx) error {
		raffle, err := loadRaffle(tx, request.Raffle)
		if err != nil {
			return err
		}

		mode := permit.TicketMode(raffle.TicketMode)
		if mode == permit.TicketModeDisabled || e.burner == nil {
			return ErrTicketModeDisabled
		}
		if len(request.Assets) != len(request.Slots) {
			return ErrInvalidProof
		}
		if err := e.authorizeJoin(tx, raffle, payer, request.Slots, request.Nonce, request.Expiry, request.Permit); err != nil {
			return err
		}

		burn := mode == permit.TicketModeRequireBurn
		ticket, err = e.reserve(tx, raffle, payer, request.Slots, burn)
		if err != nil {
			return err
		}

		for _, asset := range request.Assets {
			if burn {
				err = e.burner.Burn(ctx, payer, asset)
			} else {
				err = e.burner.Verify(ctx, payer, asset)
			}
			if err != nil {
				return fmt.Errorf("%w: %w", ErrBurnRejected, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("join with tickets... done",
		zap.Stringer("raffle", request.Raffle),
		zap.Stringer("owner", payer),
		zap.Int("tickets", len(request.Assets)),
	)
	return ticket, nil
}

func (e *Engine) authorizeJoin(tx storage.Tx, raffle *storage.Raffle, payer Address, slots []uint32, nonce permit.Nonce, expiry int64, envelope []byte) error {
	message := permit.RaffleJoin{
		Raffle:    raffle.ID,
		Organizer: raffle.Organizer,
		Payer:     payer,
		Slots:     slots,
		Mint:      raffle.Mint,
		Nonce:     nonce,
		Expiry:    expiry,
		Program:   e.config.Program,
	}

	grant, err := e.config.Authorization.AuthorizeJoin(message, envelope, e.now())
	return e.authorize(tx, payer, grant, err)
}

// reserve validates the whole batch before touching the bitmap.
func (e *Engine) reserve(tx storage.Tx, raffle *storage.Raffle, payer Address, requested []uint32, burned bool) (*storage.Ticket, error) {
	if raffle.LedgerMode != storage.SlotLedger {
		return nil, ErrWrongLedgerMode
	}
	if err := e.checkSelling(raffle); err != nil {
		return nil, err
	}
	if len(requested) == 0 {
		return nil, ErrInvalidSlot
	}
	if len(requested) > e.config.MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	slotsID, err := blockchain.SlotsAddress(e.config.Program, raffle.ID)
	if err != nil {
		return nil, err
	}
	slots, err := tx.GetSlots(slotsID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrWrongLedgerMode
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[uint32]bool, len(requested))
	for _, slot := range requested {
		if slot >= slots.RequiredSlots || seen[slot] {
			return nil, ErrInvalidSlot
		}
		if slots.IsReserved(slot) {
			return nil, ErrSlotTaken
		}
		seen[slot] = true
	}

	for _, slot := range requested {
		slots.Reserve(slot, payer)
	}

	// slot i is ticket number i+1
	first := slices.Min(requested)
	id, err := blockchain.TicketAddress(e.config.Program, raffle.ID, payer, uint64(first)+1)
	if err != nil {
		return nil, err
	}

	ticket := &storage.Ticket{
		ID:       id,
		Raffle:   raffle.ID,
		Owner:    payer,
		Start:    uint64(first) + 1,
		Count:    uint64(len(requested)),
		Slots:    slices.Clone(requested),
		IssuedAt: e.now().Unix(),
	}

	if err := tx.SaveSlots(slots); err != nil {
		return nil, err
	}

	err = e.emit(tx, blockchain.SlotsReserved{
		Raffle: raffle.ID,
		Owner:  payer,
		Slots:  ticket.Slots,
		Burned: burned,
	})
	if err != nil {
		return nil, err
	}

	if err := e.issue(tx, raffle, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}
