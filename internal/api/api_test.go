package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"raffleengine/internal/blockchain"
	"raffleengine/internal/escrow"
	"raffleengine/internal/permit"
	"raffleengine/internal/raffle"
	"raffleengine/internal/storage"
)

const unit = 1_000_000

type fixture struct {
	t             *testing.T
	server        *Server
	gateway       *escrow.MemoryGateway
	program       blockchain.Address
	mint          blockchain.Address
	drawAuthority solana.PrivateKey
}

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func addressOf(key solana.PrivateKey) blockchain.Address {
	return blockchain.Address(key.PublicKey())
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		t:             t,
		gateway:       escrow.NewMemoryGateway(),
		program:       addressOf(newKey(t)),
		mint:          addressOf(newKey(t)),
		drawAuthority: newKey(t),
	}
	require.NoError(t, f.gateway.RegisterMint(f.mint, 6))

	engine, err := raffle.NewEngine(raffle.Config{
		Program:       f.program,
		DrawAuthority: addressOf(f.drawAuthority),
		Authorization: permit.NoAuthorization{},
	}, storage.NewMemoryStorage(), f.gateway, nil, nil)
	require.NoError(t, err)

	f.server = NewServer(engine, ":0")
	return f
}

// do sends body as JSON, signed by key unless key is nil.
func (f *fixture) do(method, path string, key solana.PrivateKey, body any) (int, map[string]any) {
	f.t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(f.t, err)
	}

	request := httptest.NewRequest(method, path, bytes.NewReader(payload))
	request.Header.Set("Content-Type", "application/json")
	if key != nil {
		header, err := Sign(key, payload)
		require.NoError(f.t, err)
		for name, values := range header {
			request.Header[name] = values
		}
	}

	recorder := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(recorder, request)

	var response map[string]any
	if recorder.Body.Len() > 0 {
		require.NoError(f.t, json.Unmarshal(recorder.Body.Bytes(), &response))
	}
	return recorder.Code, response
}

// account opens a token account for owner holding whole tokens.
func (f *fixture) account(owner blockchain.Address, tokens uint64) blockchain.Address {
	f.t.Helper()

	id := addressOf(newKey(f.t))
	require.NoError(f.t, f.gateway.OpenAccount(id, owner, f.mint))
	if tokens > 0 {
		require.NoError(f.t, f.gateway.MintTo(id, tokens*unit))
	}
	return id
}

func (f *fixture) createRaffle(organizer solana.PrivateKey, required uint64) string {
	f.t.Helper()

	id, err := blockchain.RaffleAddress(f.program, f.mint, addressOf(organizer))
	require.NoError(f.t, err)
	escrowAccount := f.account(id, 0)

	code, response := f.do(http.MethodPost, "/raffles", organizer, body{
		"mint":             f.mint,
		"escrow":           escrowAccount,
		"required_tickets": required,
		"deadline":         time.Now().Add(time.Hour).Unix(),
	})
	require.Equal(f.t, http.StatusCreated, code, response)
	require.Equal(f.t, id.String(), response["id"])
	return id.String()
}

func (f *fixture) deposit(raffleID string, payer solana.PrivateKey, source blockchain.Address, amount string, cursor uint64) (int, map[string]any) {
	return f.do(http.MethodPost, "/raffles/"+raffleID+"/deposits", payer, body{
		"source":          source,
		"amount":          amount,
		"expected_cursor": cursor,
	})
}

type body = map[string]any

func TestHealth(t *testing.T) {
	f := newFixture(t)
	code, response := f.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", response["status"])
}

func TestSignerMiddleware(t *testing.T) {
	f := newFixture(t)

	code, response := f.do(http.MethodPost, "/raffles", nil, body{})
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "MissingSigner", response["error"])

	key := newKey(t)
	header, err := Sign(key, []byte(`{"other":"body"}`))
	require.NoError(t, err)

	request := httptest.NewRequest(http.MethodPost, "/raffles", bytes.NewReader([]byte(`{}`)))
	request.Header = header
	recorder := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(recorder, request)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.Contains(t, recorder.Body.String(), "BadSignature")
}

func TestRaffleLifecycle(t *testing.T) {
	f := newFixture(t)
	organizer := newKey(t)
	raffleID := f.createRaffle(organizer, 3)

	code, response := f.do(http.MethodGet, "/raffles/"+raffleID, nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "selling", response["status"])

	payer := newKey(t)
	source := f.account(addressOf(payer), 5)

	t.Run("amount validation", func(t *testing.T) {
		code, response := f.deposit(raffleID, payer, source, "1.5", 1)
		require.Equal(t, http.StatusBadRequest, code)
		require.Equal(t, "MustDepositWholeTokens", response["error"])

		code, response = f.deposit(raffleID, payer, source, "lots", 1)
		require.Equal(t, http.StatusBadRequest, code)
		require.Equal(t, "InvalidAmount", response["error"])

		code, response = f.deposit(raffleID, payer, source, "0.0000001", 1)
		require.Equal(t, http.StatusBadRequest, code)
		require.Equal(t, "InvalidAmount", response["error"])
	})

	code, response = f.deposit(raffleID, payer, source, "2", 1)
	require.Equal(t, http.StatusCreated, code, response)
	require.Equal(t, "2", response["paid"])
	require.EqualValues(t, 1, response["start"])
	require.EqualValues(t, 2, response["count"])

	code, response = f.deposit(raffleID, payer, source, "1", 1)
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "ConcurrentDeposit", response["error"])

	broke := newKey(t)
	code, response = f.deposit(raffleID, broke, f.account(addressOf(broke), 0), "1", 3)
	require.Equal(t, http.StatusBadGateway, code)
	require.Equal(t, "TransferRejected", response["error"])

	last := newKey(t)
	code, _ = f.deposit(raffleID, last, f.account(addressOf(last), 1), "1", 3)
	require.Equal(t, http.StatusCreated, code)

	code, response = f.do(http.MethodGet, "/raffles/"+raffleID+"/tickets", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, response["tickets"], 2)

	code, response = f.do(http.MethodPost, "/raffles/"+raffleID+"/settle", organizer, body{"winner": 3})
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, "Unauthorized", response["error"])

	code, response = f.do(http.MethodPost, "/raffles/"+raffleID+"/settle", f.drawAuthority, body{"winner": 3})
	require.Equal(t, http.StatusOK, code, response)
	require.Equal(t, "completed", response["status"])
	require.EqualValues(t, 3, response["winner_ticket"])

	destination := f.account(addressOf(organizer), 0)
	code, response = f.do(http.MethodPost, "/raffles/"+raffleID+"/proceeds", organizer, body{"destination": destination})
	require.Equal(t, http.StatusOK, code, response)
	require.Equal(t, "3", response["amount"])

	code, response = f.do(http.MethodPost, "/raffles/"+raffleID+"/proceeds", organizer, body{"destination": destination})
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "AlreadyCollected", response["error"])
}

func TestNotFound(t *testing.T) {
	f := newFixture(t)

	code, response := f.do(http.MethodGet, "/raffles/"+addressOf(newKey(t)).String(), nil, nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "RaffleNotFound", response["error"])

	code, _ = f.do(http.MethodGet, "/raffles/not-an-address!", nil, nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestParseAmount(t *testing.T) {
	amount, err := parseAmount("2", 6)
	require.NoError(t, err)
	require.Equal(t, uint64(2*unit), amount)

	amount, err = parseAmount("0.5", 6)
	require.NoError(t, err)
	require.Equal(t, uint64(unit/2), amount)

	for _, value := range []string{"0", "-1", "0.0000001", "99999999999999999999", "x"} {
		_, err := parseAmount(value, 6)
		require.ErrorIs(t, err, raffle.ErrInvalidAmount, value)
	}

	require.Equal(t, "2.5", formatAmount(2_500_000, 6))
	require.Equal(t, "7", formatAmount(7, 0))
}

func TestServerRun(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.server.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
