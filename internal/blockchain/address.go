package blockchain

import (
	"database/sql/driver"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Address is a 32-byte account identity, rendered as base58.
type Address solana.PublicKey

var ZeroAddress Address

func AddressFromBase58(value string) (Address, error) {
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return Address{}, err
	}
	return Address(key), nil
}

func MustAddressFromBase58(value string) Address {
	return Address(solana.MustPublicKeyFromBase58(value))
}

func AddressFromBytes(value []byte) (Address, error) {
	if len(value) != solana.PublicKeyLength {
		return Address{}, fmt.Errorf("invalid address length %d", len(value))
	}
	return Address(solana.PublicKeyFromBytes(value)), nil
}

func (a Address) PublicKey() solana.PublicKey {
	return solana.PublicKey(a)
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) String() string {
	return solana.PublicKey(a).String()
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := AddressFromBase58(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (Address) GormDataType() string {
	return "string"
}

func (a Address) Value() (driver.Value, error) {
	return a.String(), nil
}

func (a *Address) Scan(value any) error {
	switch v := value.(type) {
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	case nil:
		*a = ZeroAddress
		return nil
	default:
		return fmt.Errorf("cannot scan %T into address", value)
	}
}
