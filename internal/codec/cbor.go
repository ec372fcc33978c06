// Package codec holds the CBOR configuration shared by permits, event
// payloads and list columns.
package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding: the same value always yields
// identical bytes, which matters for anything that is hashed or signed.
var encMode cbor.EncMode

// decMode accepts unknown fields so stored payloads survive schema growth.
var decMode cbor.DecMode

// strictMode rejects unknown fields, duplicate map keys and
// indefinite-length items. Used for untrusted input.
var strictMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}

	strictMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthForbidden,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		MaxArrayElements:  1024,
		MaxMapPairs:       1024,
	}.DecMode()
	if err != nil {
		panic("codec: strict CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// UnmarshalStrict decodes a single CBOR item into v and fails on anything
// the target type does not describe exactly, including trailing bytes.
func UnmarshalStrict(data []byte, v any) error {
	return strictMode.Unmarshal(data, v)
}
