package api

import (
	"fmt"
	"math/big"

	"raffleengine/internal/blockchain"
	"raffleengine/internal/raffle"
	"raffleengine/internal/storage"

	"github.com/shopspring/decimal"
)

type raffleView struct {
	ID                blockchain.Address `json:"id"`
	Organizer         blockchain.Address `json:"organizer"`
	Mint              blockchain.Address `json:"mint"`
	Escrow            blockchain.Address `json:"escrow"`
	Decimals          uint8              `json:"decimals"`
	RequiredTickets   uint64             `json:"required_tickets"`
	TicketsSold       uint64             `json:"tickets_sold"`
	NextTicketIndex   uint64             `json:"next_ticket_index"`
	Deadline          int64              `json:"deadline"`
	Status            string             `json:"status"`
	WinnerTicket      uint64             `json:"winner_ticket,omitempty"`
	AutoDraw          bool               `json:"auto_draw"`
	TicketMode        uint8              `json:"ticket_mode"`
	RefundMode        string             `json:"refund_mode"`
	LedgerMode        string             `json:"ledger_mode"`
	PrizeSet          bool               `json:"prize_set"`
	PrizeMint         blockchain.Address `json:"prize_mint"`
	PrizeClaimed      bool               `json:"prize_claimed"`
	ProceedsCollected bool               `json:"proceeds_collected"`
	DrawRecovered     bool               `json:"draw_recovered"`
}

func newRaffleView(raffle *storage.Raffle) raffleView {
	return raffleView{
		ID:                raffle.ID,
		Organizer:         raffle.Organizer,
		Mint:              raffle.Mint,
		Escrow:            raffle.Escrow,
		Decimals:          raffle.Decimals,
		RequiredTickets:   raffle.RequiredTickets,
		TicketsSold:       raffle.TicketsSold,
		NextTicketIndex:   raffle.NextTicketIndex,
		Deadline:          raffle.Deadline,
		Status:            raffle.Status.String(),
		WinnerTicket:      raffle.WinnerTicket,
		AutoDraw:          raffle.AutoDraw,
		TicketMode:        raffle.TicketMode,
		RefundMode:        raffle.RefundMode,
		LedgerMode:        raffle.LedgerMode,
		PrizeSet:          raffle.PrizeSet,
		PrizeMint:         raffle.PrizeMint,
		PrizeClaimed:      raffle.PrizeClaimed,
		ProceedsCollected: raffle.ProceedsCollected,
		DrawRecovered:     raffle.DrawRecovered,
	}
}

type ticketView struct {
	ID         blockchain.Address `json:"id"`
	Raffle     blockchain.Address `json:"raffle"`
	Owner      blockchain.Address `json:"owner"`
	Start      uint64             `json:"start"`
	Count      uint64             `json:"count"`
	Slots      []uint32           `json:"slots,omitempty"`
	Paid       string             `json:"paid"`
	Refunded   bool               `json:"refunded"`
	ClaimedWin bool               `json:"claimed_win"`
}

func newTicketView(ticket *storage.Ticket, decimals uint8) ticketView {
	return ticketView{
		ID:         ticket.ID,
		Raffle:     ticket.Raffle,
		Owner:      ticket.Owner,
		Start:      ticket.Start,
		Count:      ticket.Count,
		Slots:      ticket.Slots,
		Paid:       formatAmount(ticket.Paid, decimals),
		Refunded:   ticket.Refunded,
		ClaimedWin: ticket.ClaimedWin,
	}
}

// parseAmount converts a token amount such as "2" or "0.5" to base units.
func parseAmount(value string, decimals uint8) (uint64, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", raffle.ErrInvalidAmount, err)
	}

	units := amount.Shift(int32(decimals))
	if !units.IsPositive() || !units.Equal(units.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s", raffle.ErrInvalidAmount, value)
	}

	integer := units.BigInt()
	if !integer.IsUint64() {
		return 0, fmt.Errorf("%w: %s", raffle.ErrInvalidAmount, value)
	}
	return integer.Uint64(), nil
}

func formatAmount(units uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -int32(decimals)).String()
}
