package permit

import (
	"time"

	"raffleengine/internal/blockchain"
)

// Grant describes a permit that was accepted, so callers can record its
// nonce when replay protection is enabled.
type Grant struct {
	Nonce  Nonce
	Expiry int64
}

// AuthorizationStrategy decides whether privileged raffle operations may
// proceed.
type AuthorizationStrategy interface {
	AuthorizeCreate(message RaffleCreate, envelope []byte, now time.Time) (*Grant, error)
	AuthorizeJoin(message RaffleJoin, envelope []byte, now time.Time) (*Grant, error)
	Name() string
}

// BackendPermit requires a permit signed by the back end authorizer.
type BackendPermit struct {
	Authorizer blockchain.Address
}

func (s BackendPermit) AuthorizeCreate(message RaffleCreate, envelope []byte, now time.Time) (*Grant, error) {
	if err := VerifyEncoded(envelope, s.Authorizer, message.Bytes(), message.Expiry, now); err != nil {
		return nil, err
	}
	return &Grant{Nonce: message.Nonce, Expiry: message.Expiry}, nil
}

func (s BackendPermit) AuthorizeJoin(message RaffleJoin, envelope []byte, now time.Time) (*Grant, error) {
	if err := VerifyEncoded(envelope, s.Authorizer, message.Bytes(), message.Expiry, now); err != nil {
		return nil, err
	}
	return &Grant{Nonce: message.Nonce, Expiry: message.Expiry}, nil
}

func (s BackendPermit) Name() string {
	return "permit"
}

// NoAuthorization accepts every request. Intended for local networks and
// tests.
type NoAuthorization struct{}

func (NoAuthorization) AuthorizeCreate(RaffleCreate, []byte, time.Time) (*Grant, error) {
	return nil, nil
}

func (NoAuthorization) AuthorizeJoin(RaffleJoin, []byte, time.Time) (*Grant, error) {
	return nil, nil
}

func (NoAuthorization) Name() string {
	return "none"
}
