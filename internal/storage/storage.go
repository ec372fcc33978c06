package storage

import (
	"context"
	"errors"

	"raffleengine/internal/blockchain"
)

type Address = blockchain.Address

var (
	ErrNotFound      = errors.New("storage: record not found")
	ErrAlreadyExists = errors.New("storage: record already exists")
	ErrNonceConsumed = errors.New("storage: nonce already consumed")
)

// Storage runs transactions. Update transactions are serialized and either
// commit every write made through the Tx or none of them.
type Storage interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

type Tx interface {
	// raffle
	GetRaffle(id Address) (*Raffle, error)
	CreateRaffle(raffle *Raffle) error
	SaveRaffle(raffle *Raffle) error
	ListRafflesByStatus(status RaffleStatus, limit int) ([]*Raffle, error)

	// ticket
	GetTicket(id Address) (*Ticket, error)
	CreateTicket(ticket *Ticket) error
	SaveTicket(ticket *Ticket) error
	ListTickets(raffle Address) ([]*Ticket, error)

	// slots
	GetSlots(id Address) (*Slots, error)
	SaveSlots(slots *Slots) error

	// event outbox
	AppendEvent(event *Event) error
	GetEvent(seq uint64) (*Event, error)
	ListEvents(afterSeq uint64, limit int) ([]*Event, error)

	// event cursor
	GetEventCursor(consumer string) (uint64, error)
	SaveEventCursor(cursor *EventCursor) error

	// parked event
	ParkEvent(parked *ParkedEvent) error
	ListParkedEvents(consumer string, limit int) ([]*ParkedEvent, error)
	DeleteParkedEvent(consumer string, seq uint64) error

	// consumed nonce
	ConsumeNonce(nonce *ConsumedNonce) error
	DeleteExpiredNonces(now int64) (int64, error)

	// refund obligation
	CreateObligation(obligation *RefundObligation) error
	GetObligation(id string) (*RefundObligation, error)
	SaveObligation(obligation *RefundObligation) error
	ListPendingObligations(limit int) ([]*RefundObligation, error)
}
