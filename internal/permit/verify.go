package permit

import (
	"bytes"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"

	"raffleengine/internal/blockchain"
)

var (
	ErrExpired = errors.New("permit: expired")
	ErrInvalid = errors.New("permit: invalid")
)

// Verify reports whether envelope holds a signature by signer over exactly
// message, and whether the permit is still valid at now. It has no side
// effects: a valid permit verifies any number of times until it expires.
func Verify(envelope *Envelope, signer blockchain.Address, message []byte, expiry int64, now time.Time) error {
	if now.Unix() >= expiry {
		return ErrExpired
	}

	if envelope == nil {
		return ErrInvalid
	}

	for _, attestation := range envelope.Attestations {
		if attestation.signer() != signer {
			continue
		}
		if !bytes.Equal(attestation.Message, message) {
			continue
		}

		signature := solana.SignatureFromBytes(attestation.Signature)
		if signature.Verify(signer.PublicKey(), message) {
			return nil
		}
	}

	return ErrInvalid
}

// VerifyEncoded decodes data and verifies it. A malformed envelope is an
// invalid permit.
func VerifyEncoded(data []byte, signer blockchain.Address, message []byte, expiry int64, now time.Time) error {
	if now.Unix() >= expiry {
		return ErrExpired
	}

	envelope, err := DecodeEnvelope(data)
	if err != nil {
		return errors.Join(ErrInvalid, err)
	}

	return Verify(envelope, signer, message, expiry, now)
}
