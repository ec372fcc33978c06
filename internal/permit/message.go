package permit

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"raffleengine/internal/blockchain"
)

// Domain separation tags of every permit kind.
const (
	RaffleCreateTag  = "RWA_RAFFLE_PERMIT"
	RaffleJoinTag    = "RWA_RAFFLE_JOIN_PERMIT"
	ListingCreateTag = "DIRECT_SELL_CREATE_PERMIT"
	RedeemTag        = "RWA_REDEEM_PERMIT"
)

type Nonce [16]byte

func (n Nonce) IsZero() bool {
	return n == Nonce{}
}

func (n Nonce) String() string {
	return hex.EncodeToString(n[:])
}

func (n Nonce) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

func (n *Nonce) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(decoded) != len(n) {
		return fmt.Errorf("nonce must be %d bytes, got %d", len(n), len(decoded))
	}
	copy(n[:], decoded)
	return nil
}

type TicketMode uint8

const (
	TicketModeDisabled TicketMode = iota
	TicketModeRequireBurn
	TicketModeAcceptWithoutBurn
)

// RaffleCreate authorizes an organizer to open a raffle.
type RaffleCreate struct {
	Organizer       blockchain.Address
	Nonce           Nonce
	Expiry          int64
	RequiredTickets uint64
	Deadline        int64
	Program         blockchain.Address
	AutoDraw        bool
	TicketMode      TicketMode
}

func (p RaffleCreate) Bytes() []byte {
	message := make([]byte, 0, len(RaffleCreateTag)+32+16+8+8+8+32+2)
	message = append(message, RaffleCreateTag...)
	message = append(message, p.Organizer.Bytes()...)
	message = append(message, p.Nonce[:]...)
	message = binary.LittleEndian.AppendUint64(message, uint64(p.Expiry))
	message = binary.LittleEndian.AppendUint64(message, p.RequiredTickets)
	message = binary.LittleEndian.AppendUint64(message, uint64(p.Deadline))
	message = append(message, p.Program.Bytes()...)
	message = append(message, flag(p.AutoDraw), byte(p.TicketMode))
	return message
}

// RaffleJoin authorizes a payer to reserve an exact list of slots.
type RaffleJoin struct {
	Raffle    blockchain.Address
	Organizer blockchain.Address
	Payer     blockchain.Address
	Slots     []uint32
	Mint      blockchain.Address
	Nonce     Nonce
	Expiry    int64
	Program   blockchain.Address
}

func (p RaffleJoin) Bytes() []byte {
	slotsHash := SlotsHash(p.Slots)

	message := make([]byte, 0, len(RaffleJoinTag)+32*6+16+8)
	message = append(message, RaffleJoinTag...)
	message = append(message, p.Raffle.Bytes()...)
	message = append(message, p.Organizer.Bytes()...)
	message = append(message, p.Payer.Bytes()...)
	message = append(message, slotsHash[:]...)
	message = append(message, p.Mint.Bytes()...)
	message = append(message, p.Nonce[:]...)
	message = binary.LittleEndian.AppendUint64(message, uint64(p.Expiry))
	message = append(message, p.Program.Bytes()...)
	return message
}

// SlotsHash commits to the slot list in the order given.
func SlotsHash(slots []uint32) [32]byte {
	buffer := make([]byte, 0, 4*len(slots))
	for _, slot := range slots {
		buffer = binary.LittleEndian.AppendUint32(buffer, slot)
	}
	return sha256.Sum256(buffer)
}

// ListingCreate authorizes a seller to list an asset on the plain escrow.
type ListingCreate struct {
	Seller      blockchain.Address
	Asset       blockchain.Address
	Price       uint64
	PaymentMint blockchain.Address
	Nonce       Nonce
	Expiry      int64
	Program     blockchain.Address
}

func (p ListingCreate) Bytes() []byte {
	message := make([]byte, 0, len(ListingCreateTag)+32*4+8+16+8)
	message = append(message, ListingCreateTag...)
	message = append(message, p.Seller.Bytes()...)
	message = append(message, p.Asset.Bytes()...)
	message = binary.LittleEndian.AppendUint64(message, p.Price)
	message = append(message, p.PaymentMint.Bytes()...)
	message = append(message, p.Nonce[:]...)
	message = binary.LittleEndian.AppendUint64(message, uint64(p.Expiry))
	message = append(message, p.Program.Bytes()...)
	return message
}

// Redeem authorizes a holder to redeem an asset through the burn service.
type Redeem struct {
	Holder  blockchain.Address
	Asset   blockchain.Address
	Nonce   Nonce
	Expiry  int64
	Program blockchain.Address
}

func (p Redeem) Bytes() []byte {
	message := make([]byte, 0, len(RedeemTag)+32*3+16+8)
	message = append(message, RedeemTag...)
	message = append(message, p.Holder.Bytes()...)
	message = append(message, p.Asset.Bytes()...)
	message = append(message, p.Nonce[:]...)
	message = binary.LittleEndian.AppendUint64(message, uint64(p.Expiry))
	message = append(message, p.Program.Bytes()...)
	return message
}

func flag(value bool) byte {
	if value {
		return 1
	}
	return 0
}
