package raffle

import (
	"context"
	"errors"
	"fmt"

	"raffleengine/internal/blockchain"
	"raffleengine/internal/logger"
	"raffleengine/internal/permit"
	"raffleengine/internal/storage"

	"go.uber.org/zap"
)

// Options select the raffle variant.
type Options struct {
	AutoDraw   bool               `json:"auto_draw"`
	TicketMode permit.TicketMode  `json:"ticket_mode"`
	RefundMode storage.RefundMode `json:"refund_mode"`
	LedgerMode storage.LedgerMode `json:"ledger_mode"`
}

func (o *Options) normalize() error {
	if o.RefundMode == "" {
		o.RefundMode = storage.ObligationRefund
	}
	if o.LedgerMode == "" {
		o.LedgerMode = storage.CursorLedger
	}

	switch o.RefundMode {
	case storage.ObligationRefund, storage.TransferRefund:
	default:
		return ErrInvalidOptions
	}

	switch o.LedgerMode {
	case storage.CursorLedger, storage.SlotLedger:
	default:
		return ErrInvalidOptions
	}

	switch o.TicketMode {
	case permit.TicketModeDisabled:
	case permit.TicketModeRequireBurn, permit.TicketModeAcceptWithoutBurn:
		// refund tickets name the slots they take
		if o.LedgerMode != storage.SlotLedger {
			return ErrInvalidOptions
		}
	default:
		return ErrInvalidOptions
	}
	return nil
}

type CreateRequest struct {
	Mint            Address
	Escrow          Address
	RequiredTickets uint64
	Deadline        int64
	Options         Options
	Nonce           permit.Nonce
	Expiry          int64
	Permit          []byte
}

// CreateRaffle opens a raffle in Selling for organizer. The escrow account
// must hold the raffle mint and be owned by the raffle's derived address.
func (e *Engine) CreateRaffle(ctx context.Context, organizer Address, request CreateRequest) (*storage.Raffle, error) {
	now := e.now()

	if request.RequiredTickets == 0 {
		return nil, ErrInvalidAmount
	}
	if request.Deadline <= now.Unix() {
		return nil, ErrInvalidDeadline
	}

	options := request.Options
	if err := options.normalize(); err != nil {
		return nil, err
	}
	if options.LedgerMode == storage.SlotLedger && request.RequiredTickets > uint64(e.config.MaxSlots) {
		return nil, ErrInvalidAmount
	}

	id, err := blockchain.RaffleAddress(e.config.Program, request.Mint, organizer)
	if err != nil {
		return nil, err
	}

	decimals, err := e.gateway.Decimals(ctx, request.Mint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferRejected, err)
	}

	account, err := e.gateway.Account(ctx, request.Escrow)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEscrow, err)
	}
	if account.Mint != request.Mint || account.Owner != id {
		return nil, ErrInvalidEscrow
	}

	message := permit.RaffleCreate{
		Organizer:       organizer,
		Nonce:           request.Nonce,
		Expiry:          request.Expiry,
		RequiredTickets: request.RequiredTickets,
		Deadline:        request.Deadline,
		Program:         e.config.Program,
		AutoDraw:        options.AutoDraw,
		TicketMode:      options.TicketMode,
	}

	raffle := &storage.Raffle{
		ID:              id,
		Organizer:       organizer,
		Mint:            request.Mint,
		Escrow:          request.Escrow,
		Decimals:        decimals,
		RequiredTickets: request.RequiredTickets,
		NextTicketIndex: 1,
		Deadline:        request.Deadline,
		Status:          storage.Selling,
		AutoDraw:        options.AutoDraw,
		TicketMode:      uint8(options.TicketMode),
		RefundMode:      options.RefundMode,
		LedgerMode:      options.LedgerMode,
		OpenedAt:        now.Unix(),
	}

	err = e.storage.Update(ctx, func(tx storage.Tx) error {
		grant, err := e.config.Authorization.AuthorizeCreate(message, request.Permit, now)
		if err := e.authorize(tx, organizer, grant, err); err != nil {
			return err
		}

		err = tx.CreateRaffle(raffle)
		if errors.Is(err, storage.ErrAlreadyExists) {
			return ErrRaffleExists
		}
		if err != nil {
			return err
		}

		if options.LedgerMode == storage.SlotLedger {
			slotsID, err := blockchain.SlotsAddress(e.config.Program, id)
			if err != nil {
				return err
			}
			if err := tx.SaveSlots(storage.NewSlots(slotsID, id, uint32(request.RequiredTickets))); err != nil {
				return err
			}
		}

		return e.emit(tx, blockchain.RaffleInitialized{
			Raffle:          id,
			Organizer:       organizer,
			Mint:            request.Mint,
			RequiredTickets: request.RequiredTickets,
			Deadline:        request.Deadline,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info("create raffle... done",
		zap.Stringer("raffle", id),
		zap.Stringer("organizer", organizer),
		zap.Uint64("required tickets", request.RequiredTickets),
		zap.String("ledger", options.LedgerMode),
	)
	return raffle, nil
}
