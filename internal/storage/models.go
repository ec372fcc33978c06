package storage

import (
	"database/sql/driver"
	"fmt"
	"slices"

	"raffleengine/internal/blockchain"
	"raffleengine/internal/codec"
)

type RaffleStatus uint8

const (
	Selling RaffleStatus = iota
	Drawing
	Completed
	Refunding
)

func (s RaffleStatus) String() string {
	switch s {
	case Selling:
		return "selling"
	case Drawing:
		return "drawing"
	case Completed:
		return "completed"
	case Refunding:
		return "refunding"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

type LedgerMode = string

const (
	CursorLedger LedgerMode = "cursor"
	SlotLedger   LedgerMode = "slots"
)

type RefundMode = string

const (
	ObligationRefund RefundMode = "obligation"
	TransferRefund   RefundMode = "transfer"
)

type Raffle struct {
	ID                blockchain.Address `gorm:"primaryKey"`
	Organizer         blockchain.Address `gorm:"index;not null"`
	Mint              blockchain.Address `gorm:"not null"`
	Escrow            blockchain.Address `gorm:"not null"`
	Decimals          uint8              `gorm:"not null"`
	RequiredTickets   uint64             `gorm:"not null"`
	TicketsSold       uint64             `gorm:"default:0"`
	NextTicketIndex   uint64             `gorm:"not null"`
	Deadline          int64              `gorm:"not null"`
	Status            RaffleStatus       `gorm:"index;default:0"`
	WinnerTicket      uint64             `gorm:"default:0"`
	DrawRequestID     string             `gorm:"default:''"`
	DrawingSince      int64              `gorm:"default:0"`
	DrawRequestedAt   int64              `gorm:"default:0"`
	DrawRecovered     bool               `gorm:"default:false"`
	PrizeSet          bool               `gorm:"default:false"`
	PrizeClaimed      bool               `gorm:"default:false"`
	PrizeMint         blockchain.Address
	PrizeEscrow       blockchain.Address
	ProceedsCollected bool   `gorm:"default:false"`
	AutoDraw          bool   `gorm:"default:false"`
	TicketMode        uint8  `gorm:"default:0"`
	RefundMode        string `gorm:"not null"`
	LedgerMode        string `gorm:"not null"`
	OpenedAt          int64  `gorm:"not null"`
}

type Ticket struct {
	ID         blockchain.Address `gorm:"primaryKey"`
	Raffle     blockchain.Address `gorm:"index;not null"`
	Owner      blockchain.Address `gorm:"index;not null"`
	Start      uint64             `gorm:"not null"`
	Count      uint64             `gorm:"not null"`
	Slots      SlotList
	Source     blockchain.Address
	Paid       uint64 `gorm:"default:0"`
	Refunded   bool   `gorm:"default:false"`
	ClaimedWin bool   `gorm:"default:false"`
	IssuedAt   int64  `gorm:"not null"`
}

// Contains reports whether ticket number n belongs to the ticket.
func (t *Ticket) Contains(n uint64) bool {
	if len(t.Slots) > 0 {
		return n > 0 && slices.Contains(t.Slots, uint32(n-1))
	}
	return n >= t.Start && n-t.Start < t.Count
}

type Slots struct {
	ID            blockchain.Address `gorm:"primaryKey"`
	Raffle        blockchain.Address `gorm:"uniqueIndex;not null"`
	RequiredSlots uint32             `gorm:"not null"`
	Bitmap        []byte
	Owners        AddressList
}

func NewSlots(id, raffle blockchain.Address, required uint32) *Slots {
	return &Slots{
		ID:            id,
		Raffle:        raffle,
		RequiredSlots: required,
		Bitmap:        make([]byte, (required+7)/8),
		Owners:        make(AddressList, required),
	}
}

func (s *Slots) IsReserved(slot uint32) bool {
	return s.Bitmap[slot/8]&(1<<(slot%8)) != 0
}

func (s *Slots) Reserve(slot uint32, owner blockchain.Address) {
	s.Bitmap[slot/8] |= 1 << (slot % 8)
	s.Owners[slot] = owner
}

type Event struct {
	Seq       uint64             `gorm:"primaryKey;autoIncrement"`
	Raffle    blockchain.Address `gorm:"index;not null"`
	Kind      string             `gorm:"index;not null"`
	Payload   []byte             `gorm:"not null"`
	EmittedAt int64              `gorm:"not null"`
}

// EventCursor is the last event sequence a consumer has processed.
type EventCursor struct {
	Consumer string `gorm:"primaryKey"`
	Seq      uint64 `gorm:"not null"`
}

// ConsumedNonce is a permit nonce already presented by Holder.
type ConsumedNonce struct {
	Holder blockchain.Address `gorm:"primaryKey"`
	Nonce  string             `gorm:"primaryKey"`
	Expiry int64              `gorm:"index;not null"`
}

// ParkedEvent is an outbox event a consumer could not handle. The consumer
// has moved its cursor past it and retries it on later passes.
type ParkedEvent struct {
	Consumer  string `gorm:"primaryKey"`
	Seq       uint64 `gorm:"primaryKey"`
	Attempts  uint32 `gorm:"not null"`
	LastError string
}

type RefundObligation struct {
	ID          string             `gorm:"primaryKey"`
	Raffle      blockchain.Address `gorm:"index;not null"`
	Ticket      blockchain.Address `gorm:"uniqueIndex;not null"`
	Owner       blockchain.Address `gorm:"not null"`
	Start       uint64             `gorm:"not null"`
	Count       uint64             `gorm:"not null"`
	Slots       SlotList
	Amount      uint64 `gorm:"not null"`
	Fulfilled   bool   `gorm:"index;default:false"`
	RequestedAt int64  `gorm:"not null"`
	FulfilledAt int64  `gorm:"default:0"`
}

// SlotList is stored as a CBOR array.
type SlotList []uint32

func (SlotList) GormDataType() string {
	return "blob"
}

func (l SlotList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return codec.Marshal([]uint32(l))
}

func (l *SlotList) Scan(value any) error {
	return scanCBOR(value, (*[]uint32)(l))
}

// AddressList is stored as a CBOR array of byte strings.
type AddressList []blockchain.Address

func (AddressList) GormDataType() string {
	return "blob"
}

func (l AddressList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return codec.Marshal([]blockchain.Address(l))
}

func (l *AddressList) Scan(value any) error {
	return scanCBOR(value, (*[]blockchain.Address)(l))
}

func scanCBOR(value any, target any) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return codec.Unmarshal(v, target)
	case string:
		return codec.Unmarshal([]byte(v), target)
	default:
		return fmt.Errorf("cannot scan %T", value)
	}
}

func (r *Raffle) clone() *Raffle {
	c := *r
	return &c
}

func (t *Ticket) clone() *Ticket {
	c := *t
	c.Slots = slices.Clone(t.Slots)
	return &c
}

func (s *Slots) clone() *Slots {
	c := *s
	c.Bitmap = slices.Clone(s.Bitmap)
	c.Owners = slices.Clone(s.Owners)
	return &c
}

func (e *Event) clone() *Event {
	c := *e
	c.Payload = slices.Clone(e.Payload)
	return &c
}

func (o *RefundObligation) clone() *RefundObligation {
	c := *o
	c.Slots = slices.Clone(o.Slots)
	return &c
}
