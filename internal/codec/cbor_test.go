package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Action string `cbor:"1,keyasint"`
	Count  int    `cbor:"2,keyasint"`
}

func TestMarshalDeterministic(t *testing.T) {
	first, err := Marshal(sample{Action: "deposit", Count: 3})
	require.NoError(t, err)

	second, err := Marshal(sample{Action: "deposit", Count: 3})
	require.NoError(t, err)
	require.Equal(t, first, second)

	var decoded sample
	require.NoError(t, Unmarshal(first, &decoded))
	require.Equal(t, sample{Action: "deposit", Count: 3}, decoded)
}

func TestUnmarshalStrict(t *testing.T) {
	data, err := Marshal(map[int]any{1: "deposit", 2: 3, 9: "extra"})
	require.NoError(t, err)

	var lenient sample
	require.NoError(t, Unmarshal(data, &lenient))
	require.Equal(t, "deposit", lenient.Action)

	var strict sample
	require.Error(t, UnmarshalStrict(data, &strict))

	valid, err := Marshal(sample{Action: "deposit", Count: 3})
	require.NoError(t, err)
	require.Error(t, UnmarshalStrict(append(valid, 0x00), &strict))
}
