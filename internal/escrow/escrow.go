// Package escrow describes the token custody service the raffle engine moves
// funds through, with an in-memory and a sqlite backed custodian.
package escrow

import (
	"context"
	"errors"

	"raffleengine/internal/blockchain"
)

var (
	ErrAccountNotFound   = errors.New("escrow: account not found")
	ErrUnknownMint       = errors.New("escrow: unknown mint")
	ErrMintMismatch      = errors.New("escrow: mint mismatch")
	ErrDecimalsMismatch  = errors.New("escrow: decimals mismatch")
	ErrNotAccountOwner   = errors.New("escrow: authority does not own source account")
	ErrInsufficientFunds = errors.New("escrow: insufficient funds")
	ErrZeroAmount        = errors.New("escrow: zero amount")
	ErrAccountExists     = errors.New("escrow: account already exists")
)

type Account struct {
	ID      blockchain.Address
	Owner   blockchain.Address
	Mint    blockchain.Address
	Balance uint64
}

// Transfer moves Amount base units of Mint. The gateway rejects it unless
// both accounts hold Mint, Decimals matches the mint and Authority owns From.
type Transfer struct {
	From      blockchain.Address
	To        blockchain.Address
	Mint      blockchain.Address
	Amount    uint64
	Decimals  uint8
	Authority blockchain.Address
}

type Gateway interface {
	TransferChecked(ctx context.Context, transfer Transfer) error
	// TransferBatch applies every transfer in order, or none of them.
	TransferBatch(ctx context.Context, transfers []Transfer) error
	Account(ctx context.Context, id blockchain.Address) (Account, error)
	Decimals(ctx context.Context, mint blockchain.Address) (uint8, error)
}
