// Package redeem is the contract of the refund-ticket burn service. Raffles
// in ticket mode accept previously issued refund tickets as payment.
package redeem

import (
	"context"
	"errors"
	"sync"

	"raffleengine/internal/blockchain"
)

var (
	ErrUnknownAsset  = errors.New("redeem: unknown asset")
	ErrNotAssetOwner = errors.New("redeem: asset not owned by holder")
	ErrAlreadyBurned = errors.New("redeem: asset already burned")
)

// Asset identifies a redeemable ticket together with the ownership proof
// the service expects.
type Asset struct {
	ID    blockchain.Address `json:"id"`
	Proof []byte             `json:"proof,omitempty"`
}

type Burner interface {
	Burn(ctx context.Context, owner blockchain.Address, asset Asset) error
	Verify(ctx context.Context, owner blockchain.Address, asset Asset) error
}

// MemoryBurner tracks asset ownership in memory.
type MemoryBurner struct {
	mu     sync.Mutex
	owners map[blockchain.Address]blockchain.Address
	burned map[blockchain.Address]bool
}

func NewMemoryBurner() *MemoryBurner {
	return &MemoryBurner{
		owners: make(map[blockchain.Address]blockchain.Address),
		burned: make(map[blockchain.Address]bool),
	}
}

func (b *MemoryBurner) Issue(asset, owner blockchain.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.owners[asset] = owner
}

func (b *MemoryBurner) Burned(asset blockchain.Address) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.burned[asset]
}

func (b *MemoryBurner) Verify(ctx context.Context, owner blockchain.Address, asset Asset) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.check(owner, asset)
}

func (b *MemoryBurner) Burn(ctx context.Context, owner blockchain.Address, asset Asset) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check(owner, asset); err != nil {
		return err
	}
	b.burned[asset.ID] = true
	return nil
}

func (b *MemoryBurner) check(owner blockchain.Address, asset Asset) error {
	holder, ok := b.owners[asset.ID]
	if !ok {
		return ErrUnknownAsset
	}
	if b.burned[asset.ID] {
		return ErrAlreadyBurned
	}
	if holder != owner {
		return ErrNotAssetOwner
	}
	return nil
}
