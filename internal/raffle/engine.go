// Package raffle implements the ticketed escrow raffle: ledger, lifecycle,
// draw handling and settlement. Every operation runs in one storage
// transaction and either applies completely or reports a single *Error.
package raffle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raffleengine/internal/blockchain"
	"raffleengine/internal/escrow"
	"raffleengine/internal/logger"
	"raffleengine/internal/permit"
	"raffleengine/internal/redeem"
	"raffleengine/internal/storage"

	"go.uber.org/zap"
)

const (
	DefaultMaxBatchSize = 32
	// DefaultMaxSlots keeps a slot table (bitmap and owner per slot) near
	// 128 KiB.
	DefaultMaxSlots = 4096
)

type Address = blockchain.Address

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

type Config struct {
	// Program is the deployment identity mixed into every derived address
	// and permit.
	Program Address
	// DrawAuthority may settle a drawing raffle with an explicit winner.
	DrawAuthority        Address
	Authorization        permit.AuthorizationStrategy
	RejectReplayedNonces bool
	MaxBatchSize         int
	// MaxSlots caps RequiredTickets of raffles using the slot ledger.
	MaxSlots uint32
	// DrawRecoveryTimeout enables moving a raffle stuck in Drawing to
	// Refunding. Zero disables recovery.
	DrawRecoveryTimeout time.Duration
}

type Engine struct {
	config  Config
	storage storage.Storage
	gateway escrow.Gateway
	burner  redeem.Burner
	clock   Clock
}

// NewEngine builds an engine. burner may be nil when no raffle uses ticket
// mode; clock defaults to the system clock.
func NewEngine(config Config, store storage.Storage, gateway escrow.Gateway, burner redeem.Burner, clock Clock) (*Engine, error) {
	if config.Program.IsZero() {
		return nil, errors.New("raffle: program identity is required")
	}
	if config.Authorization == nil {
		return nil, errors.New("raffle: authorization strategy is required")
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = DefaultMaxBatchSize
	}
	if config.MaxSlots == 0 {
		config.MaxSlots = DefaultMaxSlots
	}
	if clock == nil {
		clock = SystemClock{}
	}

	logger.Debug("raffle engine initialization... done",
		zap.Stringer("program", config.Program),
		zap.String("authorization", config.Authorization.Name()),
		zap.Bool("reject replayed nonces", config.RejectReplayedNonces),
		zap.Duration("draw recovery timeout", config.DrawRecoveryTimeout),
	)

	return &Engine{
		config:  config,
		storage: store,
		gateway: gateway,
		burner:  burner,
		clock:   clock,
	}, nil
}

func (e *Engine) Config() Config {
	return e.config
}

func (e *Engine) now() time.Time {
	return e.clock.Now()
}

func (e *Engine) GetRaffle(ctx context.Context, id Address) (*storage.Raffle, error) {
	var raffle *storage.Raffle
	err := e.storage.View(ctx, func(tx storage.Tx) error {
		var err error
		raffle, err = loadRaffle(tx, id)
		return err
	})
	return raffle, err
}

func (e *Engine) GetTicket(ctx context.Context, id Address) (*storage.Ticket, error) {
	var ticket *storage.Ticket
	err := e.storage.View(ctx, func(tx storage.Tx) error {
		var err error
		ticket, err = loadTicket(tx, id)
		return err
	})
	return ticket, err
}

func (e *Engine) ListTickets(ctx context.Context, raffle Address) ([]*storage.Ticket, error) {
	var tickets []*storage.Ticket
	err := e.storage.View(ctx, func(tx storage.Tx) error {
		if _, err := loadRaffle(tx, raffle); err != nil {
			return err
		}

		var err error
		tickets, err = tx.ListTickets(raffle)
		return err
	})
	return tickets, err
}

func (e *Engine) GetSlots(ctx context.Context, raffle Address) (*storage.Slots, error) {
	id, err := blockchain.SlotsAddress(e.config.Program, raffle)
	if err != nil {
		return nil, err
	}

	var slots *storage.Slots
	err = e.storage.View(ctx, func(tx storage.Tx) error {
		var err error
		slots, err = tx.GetSlots(id)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrWrongLedgerMode
		}
		return err
	})
	return slots, err
}

// ListRaffles returns raffles in the given status, oldest first.
func (e *Engine) ListRaffles(ctx context.Context, status storage.RaffleStatus, limit int) ([]*storage.Raffle, error) {
	var raffles []*storage.Raffle
	err := e.storage.View(ctx, func(tx storage.Tx) error {
		var err error
		raffles, err = tx.ListRafflesByStatus(status, limit)
		return err
	})
	return raffles, err
}

func loadRaffle(tx storage.Tx, id Address) (*storage.Raffle, error) {
	raffle, err := tx.GetRaffle(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrRaffleNotFound
	}
	return raffle, err
}

func loadTicket(tx storage.Tx, id Address) (*storage.Ticket, error) {
	ticket, err := tx.GetTicket(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrTicketNotFound
	}
	return ticket, err
}

// emit appends event to the outbox of the current transaction.
func (e *Engine) emit(tx storage.Tx, event blockchain.Event) error {
	payload, err := blockchain.EncodeEvent(event)
	if err != nil {
		return err
	}

	return tx.AppendEvent(&storage.Event{
		Raffle:    event.RaffleID(),
		Kind:      event.Kind(),
		Payload:   payload,
		EmittedAt: e.now().Unix(),
	})
}

func (e *Engine) transfer(ctx context.Context, transfer escrow.Transfer) error {
	if err := e.gateway.TransferChecked(ctx, transfer); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferRejected, err)
	}
	return nil
}

// authorize maps permit failures to engine errors and records the nonce
// presented by holder when replay protection is on.
func (e *Engine) authorize(tx storage.Tx, holder Address, grant *permit.Grant, err error) error {
	switch {
	case errors.Is(err, permit.ErrExpired):
		return ErrPermitExpired
	case errors.Is(err, permit.ErrInvalid):
		return ErrPermitInvalid
	case err != nil:
		return err
	}

	if grant == nil || !e.config.RejectReplayedNonces {
		return nil
	}

	err = tx.ConsumeNonce(&storage.ConsumedNonce{
		Holder: holder,
		Nonce:  grant.Nonce.String(),
		Expiry: grant.Expiry,
	})
	if errors.Is(err, storage.ErrNonceConsumed) {
		return ErrNonceReplayed
	}
	return err
}

// PruneNonces forgets consumed nonces whose permits have expired.
func (e *Engine) PruneNonces(ctx context.Context) (int64, error) {
	var deleted int64
	err := e.storage.Update(ctx, func(tx storage.Tx) error {
		var err error
		deleted, err = tx.DeleteExpiredNonces(e.now().Unix())
		return err
	})
	return deleted, err
}
