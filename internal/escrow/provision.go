package escrow

import (
	"errors"
	"fmt"

	"raffleengine/internal/blockchain"
	"raffleengine/internal/logger"

	"go.uber.org/zap"
)

// Provisioner sets up mints and accounts on a custodian.
type Provisioner interface {
	RegisterMint(mint blockchain.Address, decimals uint8) error
	OpenAccount(id, owner, mint blockchain.Address) error
	MintTo(id blockchain.Address, amount uint64) error
}

type MintSeed struct {
	Address  blockchain.Address `toml:"address"`
	Decimals uint8              `toml:"decimals"`
}

// AccountSeed opens an account. Balance is in base units and is credited
// only when the account is first opened.
type AccountSeed struct {
	ID      blockchain.Address `toml:"id"`
	Owner   blockchain.Address `toml:"owner"`
	Mint    blockchain.Address `toml:"mint"`
	Balance uint64             `toml:"balance"`
}

// Provision registers mints and opens accounts. Existing accounts are left
// as they are, so the same seed can be applied on every start.
func Provision(custodian Provisioner, mints []MintSeed, accounts []AccountSeed) error {
	for _, mint := range mints {
		if err := custodian.RegisterMint(mint.Address, mint.Decimals); err != nil {
			return fmt.Errorf("escrow: mint %s: %w", mint.Address, err)
		}
	}

	opened := 0
	for _, seed := range accounts {
		err := custodian.OpenAccount(seed.ID, seed.Owner, seed.Mint)
		if errors.Is(err, ErrAccountExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("escrow: account %s: %w", seed.ID, err)
		}

		if seed.Balance > 0 {
			if err := custodian.MintTo(seed.ID, seed.Balance); err != nil {
				return fmt.Errorf("escrow: account %s: %w", seed.ID, err)
			}
		}
		opened++
	}

	logger.Info("escrow provisioning... done", zap.Int("mints", len(mints)), zap.Int("opened accounts", opened))
	return nil
}
