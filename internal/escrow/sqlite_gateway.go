package escrow

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"raffleengine/internal/blockchain"
	"raffleengine/internal/logger"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Mint struct {
	Address  blockchain.Address `gorm:"primaryKey"`
	Decimals uint8              `gorm:"not null"`
}

type TokenAccount struct {
	ID      blockchain.Address `gorm:"primaryKey"`
	Owner   blockchain.Address `gorm:"index;not null"`
	Mint    blockchain.Address `gorm:"index;not null"`
	Balance uint64             `gorm:"not null;default:0"`
}

func (a *TokenAccount) account() Account {
	return Account{ID: a.ID, Owner: a.Owner, Mint: a.Mint, Balance: a.Balance}
}

// SqliteGateway is a custodian keeping its ledger in its own sqlite file, so
// balances survive a restart.
type SqliteGateway struct {
	db *gorm.DB
}

func NewSqliteGateway(path string) (*SqliteGateway, error) {
	logger.Debug("initializing escrow ledger...", zap.String("path", path))
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Mint{}, &TokenAccount{}); err != nil {
		return nil, err
	}

	logger.Debug("initializing escrow ledger... done")
	return &SqliteGateway{
		db: db,
	}, nil
}

func (g *SqliteGateway) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func find[T any](db *gorm.DB, notFound error, conditions ...any) (*T, error) {
	var record T
	err := db.First(&record, conditions...).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// RegisterMint records mint. Registering a known mint again is a no-op as
// long as the decimals agree.
func (g *SqliteGateway) RegisterMint(mint blockchain.Address, decimals uint8) error {
	return g.db.Transaction(func(tx *gorm.DB) error {
		existing, err := find[Mint](tx, ErrUnknownMint, "address = ?", mint)
		if errors.Is(err, ErrUnknownMint) {
			return tx.Create(&Mint{Address: mint, Decimals: decimals}).Error
		}
		if err != nil {
			return err
		}
		if existing.Decimals != decimals {
			return fmt.Errorf("%w: %s has %d decimals", ErrDecimalsMismatch, mint, existing.Decimals)
		}
		return nil
	})
}

func (g *SqliteGateway) OpenAccount(id, owner, mint blockchain.Address) error {
	return g.db.Transaction(func(tx *gorm.DB) error {
		if _, err := find[Mint](tx, ErrUnknownMint, "address = ?", mint); err != nil {
			return err
		}

		_, err := find[TokenAccount](tx, ErrAccountNotFound, "id = ?", id)
		if err == nil {
			return ErrAccountExists
		}
		if !errors.Is(err, ErrAccountNotFound) {
			return err
		}
		return tx.Create(&TokenAccount{ID: id, Owner: owner, Mint: mint}).Error
	})
}

// MintTo credits an account with freshly issued units.
func (g *SqliteGateway) MintTo(id blockchain.Address, amount uint64) error {
	return g.db.Transaction(func(tx *gorm.DB) error {
		account, err := find[TokenAccount](tx, ErrAccountNotFound, "id = ?", id)
		if err != nil {
			return err
		}

		balance, carry := bits.Add64(account.Balance, amount, 0)
		if carry != 0 {
			return fmt.Errorf("escrow: balance overflow on %s", id)
		}
		account.Balance = balance
		return tx.Save(account).Error
	})
}

func (g *SqliteGateway) Balance(id blockchain.Address) (uint64, error) {
	account, err := find[TokenAccount](g.db, ErrAccountNotFound, "id = ?", id)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

func (g *SqliteGateway) TransferChecked(ctx context.Context, transfer Transfer) error {
	return g.TransferBatch(ctx, []Transfer{transfer})
}

func (g *SqliteGateway) TransferBatch(ctx context.Context, transfers []Transfer) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, transfer := range transfers {
			mint, err := find[Mint](tx, ErrUnknownMint, "address = ?", transfer.Mint)
			if err != nil {
				return err
			}
			from, err := find[TokenAccount](tx, fmt.Errorf("%w: %s", ErrAccountNotFound, transfer.From), "id = ?", transfer.From)
			if err != nil {
				return err
			}
			to, err := find[TokenAccount](tx, fmt.Errorf("%w: %s", ErrAccountNotFound, transfer.To), "id = ?", transfer.To)
			if err != nil {
				return err
			}

			if err := check(transfer, mint.Decimals, from.account(), to.account()); err != nil {
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

			if err := tx.Save(from).Error; err != nil {
				return err
			}
			if err := tx.Save(to).Error; err != nil {
				return err
			}

			logger.Debug("escrow: transfer... done",
				zap.Stringer("from", transfer.From),
				zap.Stringer("to", transfer.To),
				zap.Uint64("amount", transfer.Amount),
			)
		}
		return nil
	})
}

func (g *SqliteGateway) Account(ctx context.Context, id blockchain.Address) (Account, error) {
	account, err := find[TokenAccount](g.db.WithContext(ctx), ErrAccountNotFound, "id = ?", id)
	if err != nil {
		return Account{}, err
	}
	return account.account(), nil
}

func (g *SqliteGateway) Decimals(ctx context.Context, mint blockchain.Address) (uint8, error) {
	record, err := find[Mint](g.db.WithContext(ctx), ErrUnknownMint, "address = ?", mint)
	if err != nil {
		return 0, err
	}
	return record.Decimals, nil
}
