package blockchain

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

const (
	RaffleSeed = "raffle"
	TicketSeed = "ticket"
	SlotsSeed  = "slots"
)

// RaffleAddress derives the raffle identity. The same address is the
// authority of the raffle's escrow accounts.
func RaffleAddress(program, mint, organizer Address) (Address, error) {
	return derive(program, []byte(RaffleSeed), mint.Bytes(), organizer.Bytes())
}

// TicketAddress derives a ticket identity from its first ticket number.
func TicketAddress(program, raffle, owner Address, start uint64) (Address, error) {
	return derive(program, []byte(TicketSeed), raffle.Bytes(), owner.Bytes(), binary.LittleEndian.AppendUint64(nil, start))
}

func SlotsAddress(program, raffle Address) (Address, error) {
	return derive(program, []byte(SlotsSeed), raffle.Bytes())
}

func derive(program Address, seeds ...[]byte) (Address, error) {
	key, _, err := solana.FindProgramAddress(seeds, program.PublicKey())
	if err != nil {
		return Address{}, err
	}
	return Address(key), nil
}
