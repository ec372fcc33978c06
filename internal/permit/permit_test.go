package permit

import (
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"raffleengine/internal/blockchain"
)

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func address(key solana.PrivateKey) blockchain.Address {
	return blockchain.Address(key.PublicKey())
}

func createPermit(t *testing.T, required uint64) RaffleCreate {
	return RaffleCreate{
		Organizer:       address(newKey(t)),
		Nonce:           Nonce{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		Expiry:          1_700_000_600,
		RequiredTickets: required,
		Deadline:        1_700_086_400,
		Program:         address(newKey(t)),
		AutoDraw:        true,
		TicketMode:      TicketModeAcceptWithoutBurn,
	}
}

func TestRaffleCreateLayout(t *testing.T) {
	message := createPermit(t, 5)
	data := message.Bytes()

	require.Len(t, data, len(RaffleCreateTag)+32+16+8+8+8+32+2)
	require.Equal(t, RaffleCreateTag, string(data[:len(RaffleCreateTag)]))
	require.Equal(t, byte(1), data[len(data)-2])
	require.Equal(t, byte(TicketModeAcceptWithoutBurn), data[len(data)-1])

	offset := len(RaffleCreateTag) + 32 + 16 + 8
	require.Equal(t, []byte{5, 0, 0, 0, 0, 0, 0, 0}, data[offset:offset+8])
}

func TestVerify(t *testing.T) {
	authorizer := newKey(t)
	message := createPermit(t, 5)
	now := time.Unix(1_700_000_000, 0)

	sealed, err := Seal(authorizer, message.Bytes())
	require.NoError(t, err)

	t.Run("valid permit verifies repeatedly", func(t *testing.T) {
		require.NoError(t, VerifyEncoded(sealed, address(authorizer), message.Bytes(), message.Expiry, now))
		require.NoError(t, VerifyEncoded(sealed, address(authorizer), message.Bytes(), message.Expiry, now))
	})

	t.Run("expired", func(t *testing.T) {
		err := VerifyEncoded(sealed, address(authorizer), message.Bytes(), message.Expiry, time.Unix(message.Expiry, 0))
		require.ErrorIs(t, err, ErrExpired)
	})

	t.Run("different parameters", func(t *testing.T) {
		tampered := message
		tampered.RequiredTickets = 6
		err := VerifyEncoded(sealed, address(authorizer), tampered.Bytes(), tampered.Expiry, now)
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("wrong signer", func(t *testing.T) {
		other := newKey(t)
		forged, err := Seal(other, message.Bytes())
		require.NoError(t, err)
		err = VerifyEncoded(forged, address(authorizer), message.Bytes(), message.Expiry, now)
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("signer field spoofed", func(t *testing.T) {
		other := newKey(t)
		attestation, err := Sign(other, message.Bytes())
		require.NoError(t, err)
		attestation.Signer = authorizer.PublicKey().Bytes()

		envelope := Envelope{Version: EnvelopeVersion, Attestations: []Attestation{attestation}}
		data, err := envelope.Encode()
		require.NoError(t, err)

		err = VerifyEncoded(data, address(authorizer), message.Bytes(), message.Expiry, now)
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("any matching attestation", func(t *testing.T) {
		unrelated, err := Sign(newKey(t), []byte("unrelated"))
		require.NoError(t, err)
		valid, err := Sign(authorizer, message.Bytes())
		require.NoError(t, err)

		envelope := &Envelope{Version: EnvelopeVersion, Attestations: []Attestation{unrelated, valid}}
		require.NoError(t, Verify(envelope, address(authorizer), message.Bytes(), message.Expiry, now))
	})
}

func TestDecodeEnvelopeFailsClosed(t *testing.T) {
	key := newKey(t)
	valid, err := Sign(key, []byte("message"))
	require.NoError(t, err)

	encode := func(v any) []byte {
		data, err := cbor.Marshal(v)
		require.NoError(t, err)
		return data
	}

	cases := map[string][]byte{
		"empty":          nil,
		"garbage":        {0xff, 0x00, 0x13},
		"no attestation": encode(Envelope{Version: EnvelopeVersion}),
		"bad version":    encode(Envelope{Version: 7, Attestations: []Attestation{valid}}),
		"short signer": encode(Envelope{Version: EnvelopeVersion, Attestations: []Attestation{{
			Signer: valid.Signer[:31], Message: valid.Message, Signature: valid.Signature,
		}}}),
		"short signature": encode(Envelope{Version: EnvelopeVersion, Attestations: []Attestation{{
			Signer: valid.Signer, Message: valid.Message, Signature: valid.Signature[:63],
		}}}),
		"unknown field": encode(map[int]any{1: EnvelopeVersion, 2: []Attestation{valid}, 3: "extra"}),
		"trailing bytes": append(encode(Envelope{Version: EnvelopeVersion, Attestations: []Attestation{valid}}), 0x01),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEnvelope(data)
			require.ErrorIs(t, err, ErrMalformed)

			err = VerifyEncoded(data, address(key), []byte("message"), 10, time.Unix(0, 0))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestRaffleJoinBindsSlots(t *testing.T) {
	authorizer := newKey(t)
	now := time.Unix(1_700_000_000, 0)
	join := RaffleJoin{
		Raffle:    address(newKey(t)),
		Organizer: address(newKey(t)),
		Payer:     address(newKey(t)),
		Slots:     []uint32{3, 4, 9},
		Mint:      address(newKey(t)),
		Nonce:     Nonce{9},
		Expiry:    now.Unix() + 60,
		Program:   address(newKey(t)),
	}

	sealed, err := Seal(authorizer, join.Bytes())
	require.NoError(t, err)

	strategy := BackendPermit{Authorizer: address(authorizer)}
	grant, err := strategy.AuthorizeJoin(join, sealed, now)
	require.NoError(t, err)
	require.Equal(t, join.Nonce, grant.Nonce)

	join.Slots = []uint32{3, 4, 10}
	_, err = strategy.AuthorizeJoin(join, sealed, now)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestNoAuthorization(t *testing.T) {
	grant, err := NoAuthorization{}.AuthorizeCreate(RaffleCreate{}, nil, time.Now())
	require.NoError(t, err)
	require.Nil(t, grant)
}

func TestNonceText(t *testing.T) {
	nonce := Nonce{0xab, 0xcd}
	text, err := nonce.MarshalText()
	require.NoError(t, err)

	var parsed Nonce
	require.NoError(t, parsed.UnmarshalText(text))
	require.Equal(t, nonce, parsed)
	require.Error(t, parsed.UnmarshalText([]byte("abcd")))
}
