package raffle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"raffleengine/internal/blockchain"
	"raffleengine/internal/draw"
	"raffleengine/internal/storage"
)

func TestDrawLifecycle(t *testing.T) {
	h := newHarness(t)
	organizer := newAddress(t)
	raffle := h.createRaffle(organizer, 10, Options{})

	_, err := h.engine.RequestDraw(h.ctx, organizer, raffle.ID)
	require.ErrorIs(t, err, ErrWrongStatus)

	owners := h.fill(raffle)

	_, err = h.engine.RequestDraw(h.ctx, newAddress(t), raffle.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.engine.RequestAutoDraw(h.ctx, raffle.ID)
	require.ErrorIs(t, err, ErrAutoDrawDisabled)

	request, err := h.engine.RequestDraw(h.ctx, organizer, raffle.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(10), request.RequiredTickets)
	require.NotEmpty(t, request.RequestID)

	requested := h.events(blockchain.RandomnessRequestedKind)
	require.Len(t, requested, 1)
	require.Equal(t, request.RequestID, requested[0].(blockchain.RandomnessRequested).RequestID)

	t.Run("unknown request", func(t *testing.T) {
		_, err := h.engine.ApplyDrawResult(h.ctx, raffle.ID, "other", draw.Result{Winner: 7})
		require.ErrorIs(t, err, ErrUnknownDrawRequest)
	})

	t.Run("aborted draw keeps drawing", func(t *testing.T) {
		_, err := h.engine.ApplyDrawResult(h.ctx, raffle.ID, request.RequestID, draw.Result{Aborted: true, Reason: "cluster offline"})
		require.ErrorIs(t, err, ErrDrawAborted)
		require.Equal(t, External, KindOf(err))

		current, err := h.engine.GetRaffle(h.ctx, raffle.ID)
		require.NoError(t, err)
		require.Equal(t, storage.Drawing, current.Status)
		require.Zero(t, current.WinnerTicket)
	})

	t.Run("out of range winner", func(t *testing.T) {
		_, err := h.engine.ApplyDrawResult(h.ctx, raffle.ID, request.RequestID, draw.Result{Winner: 11})
		require.ErrorIs(t, err, ErrInvalidWinner)

		_, err = h.engine.ApplyDrawResult(h.ctx, raffle.ID, request.RequestID, draw.Result{Winner: 0})
		require.ErrorIs(t, err, ErrInvalidWinner)
	})

	t.Run("superseded request", func(t *testing.T) {
		retry, err := h.engine.RequestDraw(h.ctx, organizer, raffle.ID)
		require.NoError(t, err)
		require.NotEqual(t, request.RequestID, retry.RequestID)

		_, err = h.engine.ApplyDrawResult(h.ctx, raffle.ID, request.RequestID, draw.Result{Winner: 7})
		require.ErrorIs(t, err, ErrUnknownDrawRequest)
		request = retry
	})

	completed, err := h.engine.ApplyDrawResult(h.ctx, raffle.ID, request.RequestID, draw.Result{Winner: 7})
	require.NoError(t, err)
	require.Equal(t, storage.Completed, completed.Status)
	require.Equal(t, uint64(7), completed.WinnerTicket)

	t.Run("winner is immutable", func(t *testing.T) {
		_, err := h.engine.ApplyDrawResult(h.ctx, raffle.ID, request.RequestID, draw.Result{Winner: 3})
		require.ErrorIs(t, err, ErrWrongStatus)

		_, err = h.engine.Settle(h.ctx, h.drawAuthority, raffle.ID, 3)
		require.ErrorIs(t, err, ErrWrongStatus)

		current, err := h.engine.GetRaffle(h.ctx, raffle.ID)
		require.NoError(t, err)
		require.Equal(t, uint64(7), current.WinnerTicket)
	})

	tickets, err := h.engine.ListTickets(h.ctx, raffle.ID)
	require.NoError(t, err)
	for _, ticket := range tickets {
		if ticket.Start == 7 {
			continue
		}
		_, err := h.engine.ClaimWin(h.ctx, ticket.Owner, raffle.ID, ticket.ID)
		require.ErrorIs(t, err, ErrNotWinningTicket)
	}

	winner := tickets[6]
	require.Equal(t, owners[7], winner.Owner)

	_, err = h.engine.ClaimWin(h.ctx, owners[1], raffle.ID, winner.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	claimed, err := h.engine.ClaimWin(h.ctx, winner.Owner, raffle.ID, winner.ID)
	require.NoError(t, err)
	require.True(t, claimed.ClaimedWin)

	_, err = h.engine.ClaimWin(h.ctx, winner.Owner, raffle.ID, winner.ID)
	require.ErrorIs(t, err, ErrAlreadyClaimedWin)
	require.Len(t, h.events(blockchain.WinClaimedKind), 1)
}

func TestSettle(t *testing.T) {
	h := newHarness(t)
	raffle := h.createRaffle(newAddress(t), 3, Options{})

	_, err := h.engine.Settle(h.ctx, h.drawAuthority, raffle.ID, 1)
	require.ErrorIs(t, err, ErrWrongStatus)

	h.fill(raffle)

	_, err = h.engine.Settle(h.ctx, raffle.Organizer, raffle.ID, 1)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.engine.Settle(h.ctx, h.drawAuthority, raffle.ID, 4)
	require.ErrorIs(t, err, ErrInvalidWinner)

	settled, err := h.engine.Settle(h.ctx, h.drawAuthority, raffle.ID, 3)
	require.NoError(t, err)
	require.Equal(t, storage.Completed, settled.Status)
	require.Len(t, h.events(blockchain.WinnerSelectedKind), 1)
}

func TestAutoDraw(t *testing.T) {
	h := newHarness(t)
	raffle := h.createRaffle(newAddress(t), 2, Options{AutoDraw: true})
	h.fill(raffle)

	request, err := h.engine.RequestAutoDraw(h.ctx, raffle.ID)
	require.NoError(t, err)

	completed, err := h.engine.ApplyDrawResult(h.ctx, raffle.ID, request.RequestID, draw.Result{Winner: draw.Sample(2, 41)})
	require.NoError(t, err)
	require.Equal(t, uint64(2), completed.WinnerTicket)
}

func TestRecoverDraw(t *testing.T) {
	t.Run("disabled by default", func(t *testing.T) {
		h := newHarness(t)
		raffle := h.createRaffle(newAddress(t), 2, Options{})
		h.fill(raffle)
		h.clock.Advance(30 * 24 * time.Hour)

		_, err := h.engine.RecoverDraw(h.ctx, raffle.ID)
		require.ErrorIs(t, err, ErrDrawRecoveryDisabled)

		stuck, err := h.engine.StuckDraws(h.ctx, 0)
		require.NoError(t, err)
		require.Empty(t, stuck)

		tickets, err := h.engine.ListTickets(h.ctx, raffle.ID)
		require.NoError(t, err)
		_, err = h.engine.ClaimRefund(h.ctx, tickets[0].Owner, raffle.ID, tickets[0].ID)
		require.ErrorIs(t, err, ErrWrongStatus)
	})

	t.Run("after timeout", func(t *testing.T) {
		h := newHarness(t, func(config *Config) {
			config.DrawRecoveryTimeout = 10 * time.Minute
		})
		raffle := h.createRaffle(newAddress(t), 2, Options{})
		h.fill(raffle)

		_, err := h.engine.RequestDraw(h.ctx, raffle.Organizer, raffle.ID)
		require.NoError(t, err)

		h.clock.Advance(5 * time.Minute)
		_, err = h.engine.RecoverDraw(h.ctx, raffle.ID)
		require.ErrorIs(t, err, ErrDrawNotStuck)

		h.clock.Advance(6 * time.Minute)
		stuck, err := h.engine.StuckDraws(h.ctx, 0)
		require.NoError(t, err)
		require.Len(t, stuck, 1)

		recovered, err := h.engine.RecoverDraw(h.ctx, raffle.ID)
		require.NoError(t, err)
		require.Equal(t, storage.Refunding, recovered.Status)
		require.Len(t, h.events(blockchain.DrawRecoveredKind), 1)

		// still before the deadline
		require.Less(t, h.clock.Now().Unix(), raffle.Deadline)

		tickets, err := h.engine.ListTickets(h.ctx, raffle.ID)
		require.NoError(t, err)
		refunded, err := h.engine.ClaimRefund(h.ctx, tickets[0].Owner, raffle.ID, tickets[0].ID)
		require.NoError(t, err)
		require.True(t, refunded.Refunded)
	})
}
