package blockchain

import (
	"fmt"

	"raffleengine/internal/codec"
)

type EventKind = string

const (
	RaffleInitializedKind      EventKind = "RaffleInitialized"
	DepositedKind              EventKind = "Deposited"
	SlotsReservedKind          EventKind = "SlotsReserved"
	ThresholdReachedKind       EventKind = "ThresholdReached"
	RandomnessRequestedKind    EventKind = "RandomnessRequested"
	WinnerSelectedKind         EventKind = "WinnerSelected"
	RefundTicketsRequestedKind EventKind = "RefundTicketsRequested"
	RefundedKind               EventKind = "Refunded"
	WinClaimedKind             EventKind = "WinClaimed"
	PrizeSetKind               EventKind = "PrizeSet"
	PrizeClaimedKind           EventKind = "PrizeClaimed"
	ProceedsCollectedKind      EventKind = "ProceedsCollected"
	DrawRecoveredKind          EventKind = "DrawRecovered"
)

// Event is a state change announced by the engine.
type Event interface {
	Kind() EventKind
	RaffleID() Address
}

type RaffleInitialized struct {
	Raffle          Address `cbor:"1,keyasint"`
	Organizer       Address `cbor:"2,keyasint"`
	Mint            Address `cbor:"3,keyasint"`
	RequiredTickets uint64  `cbor:"4,keyasint"`
	Deadline        int64   `cbor:"5,keyasint"`
}

type Deposited struct {
	Raffle      Address `cbor:"1,keyasint"`
	Owner       Address `cbor:"2,keyasint"`
	Start       uint64  `cbor:"3,keyasint"`
	Count       uint64  `cbor:"4,keyasint"`
	TicketsSold uint64  `cbor:"5,keyasint"`
}

type SlotsReserved struct {
	Raffle Address  `cbor:"1,keyasint"`
	Owner  Address  `cbor:"2,keyasint"`
	Slots  []uint32 `cbor:"3,keyasint"`
	Burned bool     `cbor:"4,keyasint,omitempty"`
}

type ThresholdReached struct {
	Raffle Address `cbor:"1,keyasint"`
	Supply uint64  `cbor:"2,keyasint"`
}

type RandomnessRequested struct {
	Raffle    Address `cbor:"1,keyasint"`
	Supply    uint64  `cbor:"2,keyasint"`
	RequestID string  `cbor:"3,keyasint"`
}

type WinnerSelected struct {
	Raffle Address `cbor:"1,keyasint"`
	Winner uint64  `cbor:"2,keyasint"`
}

type RefundTicketsRequested struct {
	Raffle     Address  `cbor:"1,keyasint"`
	Owner      Address  `cbor:"2,keyasint"`
	Start      uint64   `cbor:"3,keyasint"`
	Count      uint64   `cbor:"4,keyasint"`
	Slots      []uint32 `cbor:"5,keyasint,omitempty"`
	Obligation string   `cbor:"6,keyasint"`
}

type Refunded struct {
	Raffle Address `cbor:"1,keyasint"`
	Owner  Address `cbor:"2,keyasint"`
	Start  uint64  `cbor:"3,keyasint"`
	Count  uint64  `cbor:"4,keyasint"`
	Amount uint64  `cbor:"5,keyasint"`
}

type WinClaimed struct {
	Raffle Address `cbor:"1,keyasint"`
	Winner Address `cbor:"2,keyasint"`
	Ticket uint64  `cbor:"3,keyasint"`
}

type PrizeSet struct {
	Raffle Address `cbor:"1,keyasint"`
	Mint   Address `cbor:"2,keyasint"`
}

type PrizeClaimed struct {
	Raffle Address `cbor:"1,keyasint"`
	Winner Address `cbor:"2,keyasint"`
	Mint   Address `cbor:"3,keyasint"`
}

type ProceedsCollected struct {
	Raffle    Address `cbor:"1,keyasint"`
	Organizer Address `cbor:"2,keyasint"`
	Amount    uint64  `cbor:"3,keyasint"`
}

type DrawRecovered struct {
	Raffle    Address `cbor:"1,keyasint"`
	RequestID string  `cbor:"2,keyasint"`
}

func (e RaffleInitialized) Kind() EventKind      { return RaffleInitializedKind }
func (e Deposited) Kind() EventKind              { return DepositedKind }
func (e SlotsReserved) Kind() EventKind          { return SlotsReservedKind }
func (e ThresholdReached) Kind() EventKind       { return ThresholdReachedKind }
func (e RandomnessRequested) Kind() EventKind    { return RandomnessRequestedKind }
func (e WinnerSelected) Kind() EventKind         { return WinnerSelectedKind }
func (e RefundTicketsRequested) Kind() EventKind { return RefundTicketsRequestedKind }
func (e Refunded) Kind() EventKind               { return RefundedKind }
func (e WinClaimed) Kind() EventKind             { return WinClaimedKind }
func (e PrizeSet) Kind() EventKind               { return PrizeSetKind }
func (e PrizeClaimed) Kind() EventKind           { return PrizeClaimedKind }
func (e ProceedsCollected) Kind() EventKind      { return ProceedsCollectedKind }
func (e DrawRecovered) Kind() EventKind          { return DrawRecoveredKind }

func (e RaffleInitialized) RaffleID() Address      { return e.Raffle }
func (e Deposited) RaffleID() Address              { return e.Raffle }
func (e SlotsReserved) RaffleID() Address          { return e.Raffle }
func (e ThresholdReached) RaffleID() Address       { return e.Raffle }
func (e RandomnessRequested) RaffleID() Address    { return e.Raffle }
func (e WinnerSelected) RaffleID() Address         { return e.Raffle }
func (e RefundTicketsRequested) RaffleID() Address { return e.Raffle }
func (e Refunded) RaffleID() Address               { return e.Raffle }
func (e WinClaimed) RaffleID() Address             { return e.Raffle }
func (e PrizeSet) RaffleID() Address               { return e.Raffle }
func (e PrizeClaimed) RaffleID() Address           { return e.Raffle }
func (e ProceedsCollected) RaffleID() Address      { return e.Raffle }
func (e DrawRecovered) RaffleID() Address          { return e.Raffle }

func EncodeEvent(event Event) ([]byte, error) {
	return codec.Marshal(event)
}

// DecodeEvent restores a payload written by EncodeEvent.
func DecodeEvent(kind EventKind, payload []byte) (Event, error) {
	var event Event
	var err error

	switch kind {
	case RaffleInitializedKind:
		event, err = decode[RaffleInitialized](payload)
	case DepositedKind:
		event, err = decode[Deposited](payload)
	case SlotsReservedKind:
		event, err = decode[SlotsReserved](payload)
	case ThresholdReachedKind:
		event, err = decode[ThresholdReached](payload)
	case RandomnessRequestedKind:
		event, err = decode[RandomnessRequested](payload)
	case WinnerSelectedKind:
		event, err = decode[WinnerSelected](payload)
	case RefundTicketsRequestedKind:
		event, err = decode[RefundTicketsRequested](payload)
	case RefundedKind:
		event, err = decode[Refunded](payload)
	case WinClaimedKind:
		event, err = decode[WinClaimed](payload)
	case PrizeSetKind:
		event, err = decode[PrizeSet](payload)
	case PrizeClaimedKind:
		event, err = decode[PrizeClaimed](payload)
	case ProceedsCollectedKind:
		event, err = decode[ProceedsCollected](payload)
	case DrawRecoveredKind:
		event, err = decode[DrawRecovered](payload)
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}

	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return event, nil
}

func decode[T Event](payload []byte) (T, error) {
	var event T
	err := codec.Unmarshal(payload, &event)
	return event, err
}
