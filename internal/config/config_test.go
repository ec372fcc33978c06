package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"raffleengine/internal/blockchain"
	"raffleengine/internal/escrow"
)

// writeKeypair stores key in the solana-keygen JSON format.
func writeKeypair(t *testing.T, key solana.PrivateKey) string {
	t.Helper()

	values := make([]int, len(key))
	for i, b := range key {
		values[i] = int(b)
	}
	content, err := json.Marshal(values)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "worker.json")
	require.NoError(t, os.WriteFile(path, content, 0600))
	return path
}

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func TestLoadFromEnvironment(t *testing.T) {
	program := newKey(t).PublicKey()
	authorizer := newKey(t).PublicKey()
	worker := newKey(t)

	t.Setenv("RAFFLE_CONFIG", "")
	t.Setenv("PROGRAM_ID", program.String())
	t.Setenv("AUTHORIZER_PUBKEY", authorizer.String())
	t.Setenv("AUTHORIZATION_MODE", PermitAuthorization)
	t.Setenv("WORKER_KEYPAIR_PATH", writeKeypair(t, worker))
	t.Setenv("DRAW_RECOVERY_TIMEOUT", "15m")
	t.Setenv("MAX_BATCH_SIZE", "8")
	t.Setenv("REJECT_REPLAYED_NONCES", "true")
	t.Setenv("MAX_SLOTS", "512")

	config, err := Load()
	require.NoError(t, err)

	require.Equal(t, blockchain.Address(program), config.Program)
	require.Equal(t, blockchain.Address(authorizer), config.Authorizer)
	require.Equal(t, 15*time.Minute, config.DrawRecoveryTimeout)
	require.Equal(t, 8, config.MaxBatchSize)
	require.True(t, config.RejectReplayedNonces)
	require.Equal(t, blockchain.Address(worker.PublicKey()), config.DrawAuthority())

	engine := config.Engine()
	require.Equal(t, "permit", engine.Authorization.Name())
	require.Equal(t, config.DrawAuthority(), engine.DrawAuthority)
	require.Equal(t, 15*time.Minute, engine.DrawRecoveryTimeout)
	require.Equal(t, uint32(512), engine.MaxSlots)
	require.Equal(t, "escrow.db", config.EscrowPath)
}

func TestLoadFile(t *testing.T) {
	program := newKey(t).PublicKey()
	mint := newKey(t).PublicKey()
	account := newKey(t).PublicKey()
	owner := newKey(t).PublicKey()

	content := `
program_id = "` + program.String() + `"
authorization_mode = "none"
worker_keypair_path = "` + writeKeypair(t, newKey(t)) + `"
listen_address = ":9000"
poll_interval = "2s"
escrow_path = "custody.db"

[logger]
level = "debug"
console = false

[[mints]]
address = "` + mint.String() + `"
decimals = 6

[[accounts]]
id = "` + account.String() + `"
owner = "` + owner.String() + `"
mint = "` + mint.String() + `"
balance = 5000000
`
	path := filepath.Join(t.TempDir(), "raffle.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	t.Setenv("RAFFLE_CONFIG", path)
	t.Setenv("LISTEN_ADDRESS", ":9100")

	config, err := Load()
	require.NoError(t, err)

	require.Equal(t, blockchain.Address(program), config.Program)
	require.Equal(t, NoAuthorization, config.AuthorizationMode)
	require.Equal(t, ":9100", config.ListenAddress)
	require.Equal(t, 2*time.Second, config.PollInterval)
	require.Equal(t, 2*time.Second, config.Tracker().Interval)
	require.Equal(t, "debug", config.Logger.Level)
	require.False(t, config.Logger.Console)
	require.Equal(t, "none", config.Engine().Authorization.Name())

	require.Equal(t, "custody.db", config.EscrowPath)
	require.Equal(t, []escrow.MintSeed{{Address: blockchain.Address(mint), Decimals: 6}}, config.Mints)
	require.Equal(t, []escrow.AccountSeed{{
		ID:      blockchain.Address(account),
		Owner:   blockchain.Address(owner),
		Mint:    blockchain.Address(mint),
		Balance: 5_000_000,
	}}, config.Accounts)
}

func TestLoadValidation(t *testing.T) {
	program := newKey(t).PublicKey().String()
	keypair := writeKeypair(t, newKey(t))

	t.Run("program is required", func(t *testing.T) {
		t.Setenv("RAFFLE_CONFIG", "")
		t.Setenv("AUTHORIZATION_MODE", NoAuthorization)
		t.Setenv("WORKER_KEYPAIR_PATH", keypair)

		_, err := Load()
		require.ErrorIs(t, err, ErrMissingProgram)
	})

	t.Run("permit mode needs an authorizer", func(t *testing.T) {
		t.Setenv("RAFFLE_CONFIG", "")
		t.Setenv("PROGRAM_ID", program)
		t.Setenv("AUTHORIZATION_MODE", PermitAuthorization)
		t.Setenv("WORKER_KEYPAIR_PATH", keypair)

		_, err := Load()
		require.ErrorIs(t, err, ErrMissingAuthorizer)
	})

	t.Run("unknown authorization mode", func(t *testing.T) {
		t.Setenv("RAFFLE_CONFIG", "")
		t.Setenv("PROGRAM_ID", program)
		t.Setenv("AUTHORIZATION_MODE", "trust-me")
		t.Setenv("WORKER_KEYPAIR_PATH", keypair)

		_, err := Load()
		require.ErrorIs(t, err, ErrAuthorizationMode)
	})

	t.Run("worker key is required", func(t *testing.T) {
		t.Setenv("RAFFLE_CONFIG", "")
		t.Setenv("PROGRAM_ID", program)
		t.Setenv("AUTHORIZATION_MODE", NoAuthorization)

		_, err := Load()
		require.ErrorIs(t, err, ErrMissingWorkerKey)
	})

	t.Run("escrow cannot share the raffle database", func(t *testing.T) {
		t.Setenv("RAFFLE_CONFIG", "")
		t.Setenv("PROGRAM_ID", program)
		t.Setenv("AUTHORIZATION_MODE", NoAuthorization)
		t.Setenv("WORKER_KEYPAIR_PATH", keypair)
		t.Setenv("DATABASE_PATH", "shared.db")
		t.Setenv("ESCROW_PATH", "shared.db")

		_, err := Load()
		require.ErrorIs(t, err, ErrSharedDatabase)
	})

	t.Run("slot limit must be positive", func(t *testing.T) {
		t.Setenv("RAFFLE_CONFIG", "")
		t.Setenv("PROGRAM_ID", program)
		t.Setenv("AUTHORIZATION_MODE", NoAuthorization)
		t.Setenv("WORKER_KEYPAIR_PATH", keypair)
		t.Setenv("MAX_SLOTS", "0")

		_, err := Load()
		require.Error(t, err)

		t.Setenv("MAX_SLOTS", "5000000000")
		_, err = Load()
		require.Error(t, err)
	})

	t.Run("malformed values", func(t *testing.T) {
		t.Setenv("RAFFLE_CONFIG", "")
		t.Setenv("PROGRAM_ID", "not-base58!")

		_, err := Load()
		require.Error(t, err)

		t.Setenv("PROGRAM_ID", program)
		t.Setenv("POLL_INTERVAL", "soon")
		_, err = Load()
		require.Error(t, err)
	})

	t.Run("missing keypair file", func(t *testing.T) {
		t.Setenv("RAFFLE_CONFIG", "")
		t.Setenv("PROGRAM_ID", program)
		t.Setenv("AUTHORIZATION_MODE", NoAuthorization)
		t.Setenv("WORKER_KEYPAIR_PATH", filepath.Join(t.TempDir(), "absent.json"))

		_, err := Load()
		require.Error(t, err)
	})
}
