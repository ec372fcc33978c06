package draw

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSample(t *testing.T) {
	require.Equal(t, uint64(1), Sample(10, 0))
	require.Equal(t, uint64(10), Sample(10, 9))
	require.Equal(t, uint64(1), Sample(10, 10))
	require.Equal(t, uint64(6), Sample(10, math.MaxUint64))
	require.Equal(t, uint64(1), Sample(1, math.MaxUint64))

	for random := uint64(0); random < 1_000; random++ {
		winner := Sample(7, random*2_654_435_761)
		require.GreaterOrEqual(t, winner, uint64(1))
		require.LessOrEqual(t, winner, uint64(7))
	}
}

func TestLocalOracle(t *testing.T) {
	ctx := context.Background()

	source := binary.LittleEndian.AppendUint64(nil, 16)
	oracle := &LocalOracle{Source: bytes.NewReader(source)}

	result, err := oracle.Draw(ctx, Request{RequiredTickets: 10})
	require.NoError(t, err)
	require.False(t, result.Aborted)
	require.Equal(t, uint64(7), result.Winner)

	// source exhausted
	result, err = oracle.Draw(ctx, Request{RequiredTickets: 10})
	require.NoError(t, err)
	require.True(t, result.Aborted)

	_, err = NewLocalOracle().Draw(ctx, Request{})
	require.ErrorIs(t, err, ErrNoTickets)

	result, err = NewLocalOracle().Draw(ctx, Request{RequiredTickets: 3})
	require.NoError(t, err)
	require.False(t, result.Aborted)
	require.LessOrEqual(t, result.Winner, uint64(3))
}
