package permit

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"raffleengine/internal/blockchain"
	"raffleengine/internal/codec"
)

const EnvelopeVersion = 1

var ErrMalformed = errors.New("permit: malformed envelope")

// Envelope carries one or more detached signatures delivered with an
// operation.
type Envelope struct {
	Version      uint          `cbor:"1,keyasint"`
	Attestations []Attestation `cbor:"2,keyasint"`
}

type Attestation struct {
	Signer    []byte `cbor:"1,keyasint"`
	Message   []byte `cbor:"2,keyasint"`
	Signature []byte `cbor:"3,keyasint"`
}

// DecodeEnvelope parses an envelope and rejects anything it does not
// describe exactly.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformed)
	}

	var envelope Envelope
	if err := codec.UnmarshalStrict(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if envelope.Version != EnvelopeVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, envelope.Version)
	}

	if len(envelope.Attestations) == 0 {
		return nil, fmt.Errorf("%w: no attestations", ErrMalformed)
	}

	for i, attestation := range envelope.Attestations {
		if len(attestation.Signer) != solana.PublicKeyLength {
			return nil, fmt.Errorf("%w: attestation %d signer length %d", ErrMalformed, i, len(attestation.Signer))
		}
		if len(attestation.Signature) != solana.SignatureLength {
			return nil, fmt.Errorf("%w: attestation %d signature length %d", ErrMalformed, i, len(attestation.Signature))
		}
	}

	return &envelope, nil
}

func (e *Envelope) Encode() ([]byte, error) {
	return codec.Marshal(e)
}

// Sign produces an attestation of message by key.
func Sign(key solana.PrivateKey, message []byte) (Attestation, error) {
	signature, err := key.Sign(message)
	if err != nil {
		return Attestation{}, err
	}

	return Attestation{
		Signer:    key.PublicKey().Bytes(),
		Message:   message,
		Signature: signature[:],
	}, nil
}

// Seal signs message with key and returns the encoded envelope.
func Seal(key solana.PrivateKey, message []byte) ([]byte, error) {
	attestation, err := Sign(key, message)
	if err != nil {
		return nil, err
	}

	envelope := Envelope{Version: EnvelopeVersion, Attestations: []Attestation{attestation}}
	return envelope.Encode()
}

func (a Attestation) signer() blockchain.Address {
	var signer blockchain.Address
	copy(signer[:], a.Signer)
	return signer
}
