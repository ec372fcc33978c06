package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"raffleengine/internal/blockchain"
)

func newAddress(t *testing.T) Address {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return blockchain.Address(key.PublicKey())
}

func backends(t *testing.T) map[string]Storage {
	t.Helper()

	sqliteStorage, err := NewSqliteStorage(filepath.Join(t.TempDir(), "raffle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStorage.Close() })

	return map[string]Storage{
		"memory": NewMemoryStorage(),
		"sqlite": sqliteStorage,
	}
}

func sampleRaffle(t *testing.T) *Raffle {
	return &Raffle{
		ID:              newAddress(t),
		Organizer:       newAddress(t),
		Mint:            newAddress(t),
		Escrow:          newAddress(t),
		Decimals:        6,
		RequiredTickets: 10,
		NextTicketIndex: 1,
		Deadline:        2_000,
		Status:          Selling,
		RefundMode:      ObligationRefund,
		LedgerMode:      CursorLedger,
		OpenedAt:        1_000,
	}
}

func TestStorage(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {

			t.Run("raffle and tickets", func(t *testing.T) {
				raffle := sampleRaffle(t)
				owner := newAddress(t)

				err := store.Update(ctx, func(tx Tx) error {
					if err := tx.CreateRaffle(raffle); err != nil {
						return err
					}
					for _, start := range []uint64{4, 1} {
						ticket := &Ticket{ID: newAddress(t), Raffle: raffle.ID, Owner: owner, Start: start, Count: 3, IssuedAt: 1_100}
						if err := tx.CreateTicket(ticket); err != nil {
							return err
						}
					}
					return nil
				})
				require.NoError(t, err)

				err = store.Update(ctx, func(tx Tx) error {
					return tx.CreateRaffle(raffle)
				})
				require.ErrorIs(t, err, ErrAlreadyExists)

				err = store.View(ctx, func(tx Tx) error {
					stored, err := tx.GetRaffle(raffle.ID)
					require.NoError(t, err)
					require.Equal(t, raffle, stored)

					tickets, err := tx.ListTickets(raffle.ID)
					require.NoError(t, err)
					require.Len(t, tickets, 2)
					require.Equal(t, uint64(1), tickets[0].Start)
					require.Equal(t, uint64(4), tickets[1].Start)
					require.True(t, tickets[1].Contains(6))
					require.False(t, tickets[1].Contains(7))

					_, err = tx.GetRaffle(newAddress(t))
					require.ErrorIs(t, err, ErrNotFound)
					return nil
				})
				require.NoError(t, err)
			})

			t.Run("failed update leaves no trace", func(t *testing.T) {
				raffle := sampleRaffle(t)
				failure := errors.New("transfer rejected")

				err := store.Update(ctx, func(tx Tx) error {
					if err := tx.CreateRaffle(raffle); err != nil {
						return err
					}
					if err := tx.AppendEvent(&Event{Raffle: raffle.ID, Kind: "Deposited", Payload: []byte{1}, EmittedAt: 1}); err != nil {
						return err
					}
					return failure
				})
				require.ErrorIs(t, err, failure)

				err = store.View(ctx, func(tx Tx) error {
					_, err := tx.GetRaffle(raffle.ID)
					require.ErrorIs(t, err, ErrNotFound)
					return nil
				})
				require.NoError(t, err)
			})

			t.Run("slots", func(t *testing.T) {
				raffle := newAddress(t)
				owner := newAddress(t)
				slots := NewSlots(newAddress(t), raffle, 12)
				require.Len(t, slots.Bitmap, 2)

				slots.Reserve(0, owner)
				slots.Reserve(11, owner)

				require.NoError(t, store.Update(ctx, func(tx Tx) error {
					return tx.SaveSlots(slots)
				}))

				require.NoError(t, store.View(ctx, func(tx Tx) error {
					stored, err := tx.GetSlots(slots.ID)
					require.NoError(t, err)
					require.True(t, stored.IsReserved(0))
					require.True(t, stored.IsReserved(11))
					require.False(t, stored.IsReserved(5))
					require.Equal(t, owner, stored.Owners[11])
					require.True(t, stored.Owners[5].IsZero())
					return nil
				}))
			})

			t.Run("events and cursor", func(t *testing.T) {
				raffle := newAddress(t)
				var last uint64

				require.NoError(t, store.Update(ctx, func(tx Tx) error {
					for i := 0; i < 3; i++ {
						event := &Event{Raffle: raffle, Kind: "Deposited", Payload: []byte{byte(i)}, EmittedAt: int64(i)}
						if err := tx.AppendEvent(event); err != nil {
							return err
						}
						require.Greater(t, event.Seq, last)
						last = event.Seq
					}
					return tx.SaveEventCursor(&EventCursor{Consumer: "tracker", Seq: last - 1})
				}))

				require.NoError(t, store.Update(ctx, func(tx Tx) error {
					cursor, err := tx.GetEventCursor("tracker")
					require.NoError(t, err)
					require.Equal(t, last-1, cursor)

					events, err := tx.ListEvents(cursor, 10)
					require.NoError(t, err)
					require.Len(t, events, 1)
					require.Equal(t, []byte{2}, events[0].Payload)

					return tx.SaveEventCursor(&EventCursor{Consumer: "tracker", Seq: last})
				}))

				require.NoError(t, store.View(ctx, func(tx Tx) error {
					cursor, err := tx.GetEventCursor("tracker")
					require.NoError(t, err)
					require.Equal(t, last, cursor)

					unknown, err := tx.GetEventCursor("other")
					require.NoError(t, err)
					require.Zero(t, unknown)
					return nil
				}))
			})

			t.Run("parked events", func(t *testing.T) {
				raffle := newAddress(t)
				var seqs []uint64

				require.NoError(t, store.Update(ctx, func(tx Tx) error {
					for i := 0; i < 2; i++ {
						event := &Event{Raffle: raffle, Kind: "RandomnessRequested", Payload: []byte{byte(i)}, EmittedAt: int64(i)}
						if err := tx.AppendEvent(event); err != nil {
							return err
						}
						seqs = append(seqs, event.Seq)
					}
					if err := tx.ParkEvent(&ParkedEvent{Consumer: "worker", Seq: seqs[1], Attempts: 1, LastError: "busy"}); err != nil {
						return err
					}
					return tx.ParkEvent(&ParkedEvent{Consumer: "worker", Seq: seqs[0], Attempts: 1, LastError: "busy"})
				}))

				require.NoError(t, store.Update(ctx, func(tx Tx) error {
					event, err := tx.GetEvent(seqs[1])
					require.NoError(t, err)
					require.Equal(t, []byte{1}, event.Payload)

					_, err = tx.GetEvent(seqs[1] + 1_000)
					require.ErrorIs(t, err, ErrNotFound)

					parked, err := tx.ListParkedEvents("worker", 0)
					require.NoError(t, err)
					require.Len(t, parked, 2)
					require.Equal(t, seqs[0], parked[0].Seq)

					other, err := tx.ListParkedEvents("other", 0)
					require.NoError(t, err)
					require.Empty(t, other)

					if err := tx.ParkEvent(&ParkedEvent{Consumer: "worker", Seq: seqs[0], Attempts: 2, LastError: "still busy"}); err != nil {
						return err
					}
					return tx.DeleteParkedEvent("worker", seqs[1])
				}))

				require.NoError(t, store.View(ctx, func(tx Tx) error {
					parked, err := tx.ListParkedEvents("worker", 0)
					require.NoError(t, err)
					require.Len(t, parked, 1)
					require.Equal(t, seqs[0], parked[0].Seq)
					require.Equal(t, uint32(2), parked[0].Attempts)
					require.Equal(t, "still busy", parked[0].LastError)
					return nil
				}))
			})

			t.Run("nonces", func(t *testing.T) {
				holder, other := newAddress(t), newAddress(t)

				require.NoError(t, store.Update(ctx, func(tx Tx) error {
					return tx.ConsumeNonce(&ConsumedNonce{Holder: holder, Nonce: "aa", Expiry: 100})
				}))

				err := store.Update(ctx, func(tx Tx) error {
					return tx.ConsumeNonce(&ConsumedNonce{Holder: holder, Nonce: "aa", Expiry: 100})
				})
				require.ErrorIs(t, err, ErrNonceConsumed)

				// nonces are scoped to the identity presenting them
				require.NoError(t, store.Update(ctx, func(tx Tx) error {
					return tx.ConsumeNonce(&ConsumedNonce{Holder: other, Nonce: "aa", Expiry: 100})
				}))

				require.NoError(t, store.Update(ctx, func(tx Tx) error {
					deleted, err := tx.DeleteExpiredNonces(100)
					require.NoError(t, err)
					require.Equal(t, int64(2), deleted)
					return tx.ConsumeNonce(&ConsumedNonce{Holder: holder, Nonce: "aa", Expiry: 200})
				}))
			})

			t.Run("obligations", func(t *testing.T) {
				ticket := newAddress(t)
				obligation := &RefundObligation{
					ID:          newAddress(t).String(),
					Raffle:      newAddress(t),
					Ticket:      ticket,
					Owner:       newAddress(t),
					Start:       1,
					Count:       2,
					Slots:       SlotList{0, 1},
					Amount:      2_000_000,
					RequestedAt: 10,
				}

				require.NoError(t, store.Update(ctx, func(tx Tx) error {
					return tx.CreateObligation(obligation)
				}))

				err := store.Update(ctx, func(tx Tx) error {
					duplicate := *obligation
					duplicate.ID = "other"
					return tx.CreateObligation(&duplicate)
				})
				require.ErrorIs(t, err, ErrAlreadyExists)

				require.NoError(t, store.Update(ctx, func(tx Tx) error {
					pending, err := tx.ListPendingObligations(10)
					require.NoError(t, err)
					require.Len(t, pending, 1)
					require.Equal(t, SlotList{0, 1}, pending[0].Slots)

					pending[0].Fulfilled = true
					pending[0].FulfilledAt = 20
					return tx.SaveObligation(pending[0])
				}))

				require.NoError(t, store.View(ctx, func(tx Tx) error {
					pending, err := tx.ListPendingObligations(10)
					require.NoError(t, err)
					require.Empty(t, pending)

					stored, err := tx.GetObligation(obligation.ID)
					require.NoError(t, err)
					require.True(t, stored.Fulfilled)
					return nil
				}))
			})
		})
	}
}
