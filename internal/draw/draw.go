// Package draw defines the randomness service contract used to pick a
// winning ticket.
package draw

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"

	"raffleengine/internal/blockchain"
)

var ErrNoTickets = errors.New("draw: no tickets")

type Request struct {
	Raffle          blockchain.Address
	RequestID       string
	RequiredTickets uint64
}

// Result is either a winning ticket number or an abort reported by the
// service.
type Result struct {
	Winner  uint64
	Aborted bool
	Reason  string
}

type Oracle interface {
	Draw(ctx context.Context, request Request) (Result, error)
}

// Sample reduces 64 random bits to a ticket number in [1, required].
// The modulo reduction is slightly biased toward low numbers when required
// does not divide 2^64; the bias is below required/2^64.
func Sample(required, random uint64) uint64 {
	return 1 + random%required
}

// LocalOracle draws with randomness read from Source.
type LocalOracle struct {
	Source io.Reader
}

func NewLocalOracle() *LocalOracle {
	return &LocalOracle{Source: rand.Reader}
}

func (o *LocalOracle) Draw(ctx context.Context, request Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if request.RequiredTickets == 0 {
		return Result{}, ErrNoTickets
	}

	var random [8]byte
	if _, err := io.ReadFull(o.Source, random[:]); err != nil {
		return Result{Aborted: true, Reason: err.Error()}, nil
	}

	return Result{Winner: Sample(request.RequiredTickets, binary.LittleEndian.Uint64(random[:]))}, nil
}
