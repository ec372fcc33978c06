package escrow

import (
	"context"
	"fmt"
	"math/bits"
	"sync"

	"raffleengine/internal/blockchain"
	"raffleengine/internal/logger"

	"go.uber.org/zap"
)

// MemoryGateway is a custodian holding balances in memory.
type MemoryGateway struct {
	mu       sync.RWMutex
	mints    map[blockchain.Address]uint8
	accounts map[blockchain.Address]*Account
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		mints:    make(map[blockchain.Address]uint8),
		accounts: make(map[blockchain.Address]*Account),
	}
}

func (g *MemoryGateway) RegisterMint(mint blockchain.Address, decimals uint8) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mints[mint] = decimals
	return nil
}

func (g *MemoryGateway) OpenAccount(id, owner, mint blockchain.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.mints[mint]; !ok {
		return ErrUnknownMint
	}
	if _, ok := g.accounts[id]; ok {
		return ErrAccountExists
	}

	g.accounts[id] = &Account{ID: id, Owner: owner, Mint: mint}
	return nil
}

// MintTo credits an account with freshly issued units.
func (g *MemoryGateway) MintTo(id blockchain.Address, amount uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	account, ok := g.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}

	balance, carry := bits.Add64(account.Balance, amount, 0)
	if carry != 0 {
		return fmt.Errorf("escrow: balance overflow on %s", id)
	}
	account.Balance = balance
	return nil
}

func (g *MemoryGateway) Balance(id blockchain.Address) uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if account, ok := g.accounts[id]; ok {
		return account.Balance
	}
	return 0
}

func (g *MemoryGateway) TransferChecked(ctx context.Context, transfer Transfer) error {
	return g.TransferBatch(ctx, []Transfer{transfer})
}

func (g *MemoryGateway) TransferBatch(ctx context.Context, transfers []Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// balances are staged so a rejected transfer leaves every account as it was
	staged := make(map[blockchain.Address]Account)
	lookup := func(id blockchain.Address) (Account, error) {
		if account, ok := staged[id]; ok {
			return account, nil
		}
		account, ok := g.accounts[id]
		if !ok {
			return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		return *account, nil
	}

	for _, transfer := range transfers {
		decimals, ok := g.mints[transfer.Mint]
		if !ok {
			return ErrUnknownMint
		}

		from, err := lookup(transfer.From)
		if err != nil {
			return err
		}
		to, err := lookup(transfer.To)
		if err != nil {
			return err
		}

		if err := check(transfer, decimals, from, to); err != nil {
			return err
		}
		if from.ID == to.ID {
			continue
		}

		credited, carry := bits.Add64(to.Balance, transfer.Amount, 0)
		if carry != 0 {
			return fmt.Errorf("escrow: balance overflow on %s", to.ID)
		}
		from.Balance -= transfer.Amount
		to.Balance = credited
		staged[from.ID] = from
		staged[to.ID] = to
	}

	for id, account := range staged {
		g.accounts[id].Balance = account.Balance
	}

	for _, transfer := range transfers {
		logger.Debug("escrow: transfer... done",
			zap.Stringer("from", transfer.From),
			zap.Stringer("to", transfer.To),
			zap.Uint64("amount", transfer.Amount),
		)
	}
	return nil
}

// check applies the rules every custodian enforces on a single transfer.
func check(transfer Transfer, decimals uint8, from, to Account) error {
	if transfer.Amount == 0 {
		return ErrZeroAmount
	}
	if decimals != transfer.Decimals {
		return ErrDecimalsMismatch
	}
	if from.Mint != transfer.Mint || to.Mint != transfer.Mint {
		return ErrMintMismatch
	}
	if from.Owner != transfer.Authority {
		return ErrNotAccountOwner
	}
	if from.Balance < transfer.Amount {
		return ErrInsufficientFunds
	}
	return nil
}

func (g *MemoryGateway) Account(ctx context.Context, id blockchain.Address) (Account, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	account, ok := g.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return *account, nil
}

func (g *MemoryGateway) Decimals(ctx context.Context, mint blockchain.Address) (uint8, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	decimals, ok := g.mints[mint]
	if !ok {
		return 0, ErrUnknownMint
	}
	return decimals, nil
}
