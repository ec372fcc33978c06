// Package config loads the daemon configuration from an optional TOML file,
// a .env file and the process environment, in that order of precedence
// from lowest to highest.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"raffleengine/internal/blockchain"
	"raffleengine/internal/escrow"
	"raffleengine/internal/logger"
	"raffleengine/internal/permit"
	"raffleengine/internal/raffle"
	"raffleengine/internal/tracker"

	"github.com/BurntSushi/toml"
	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/tonkeeper/tongo/wallet"
	"go.uber.org/zap"
)

const (
	PermitAuthorization = "permit"
	NoAuthorization     = "none"
)

var (
	ErrMissingProgram    = errors.New("config: program_id is required")
	ErrMissingAuthorizer = errors.New("config: authorizer_pubkey is required in permit mode")
	ErrMissingWorkerKey  = errors.New("config: worker_mnemonic or worker_keypair_path is required")
	ErrAuthorizationMode = errors.New("config: unknown authorization mode")
	ErrSharedDatabase    = errors.New("config: escrow_path must differ from database_path")
)

type Config struct {
	Program           blockchain.Address `toml:"program_id"`
	Authorizer        blockchain.Address `toml:"authorizer_pubkey"`
	AuthorizationMode string             `toml:"authorization_mode"`

	WorkerMnemonic    string `toml:"worker_mnemonic"`
	WorkerKeypairPath string `toml:"worker_keypair_path"`

	DatabasePath  string `toml:"database_path"`
	EscrowPath    string `toml:"escrow_path"`
	ListenAddress string `toml:"listen_address"`

	RejectReplayedNonces bool          `toml:"reject_replayed_nonces"`
	DrawRecoveryTimeout  time.Duration `toml:"draw_recovery_timeout"`
	MaxBatchSize         int           `toml:"max_batch_size"`
	MaxSlots             uint32        `toml:"max_slots"`
	PollInterval         time.Duration `toml:"poll_interval"`

	Logger logger.Configuration `toml:"logger"`

	// Mints and Accounts seed the escrow custodian on start.
	Mints    []escrow.MintSeed    `toml:"mints"`
	Accounts []escrow.AccountSeed `toml:"accounts"`

	// Worker signs as the draw authority. It is derived by Load.
	Worker solana.PrivateKey `toml:"-"`
}

func Default() *Config {
	return &Config{
		AuthorizationMode: PermitAuthorization,
		DatabasePath:      "raffle.db",
		EscrowPath:        "escrow.db",
		ListenAddress:     ":8080",
		MaxBatchSize:      raffle.DefaultMaxBatchSize,
		MaxSlots:          raffle.DefaultMaxSlots,
		PollInterval:      tracker.DefaultInterval,
		Logger: logger.Configuration{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads .env, then the TOML file named by RAFFLE_CONFIG, then applies
// environment overrides and derives the worker key.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: cannot load .env: %w", err)
	}

	config := Default()
	if path := os.Getenv("RAFFLE_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, config); err != nil {
			return nil, fmt.Errorf("config: cannot decode %s: %w", path, err)
		}
	}

	if err := config.applyEnvironment(); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	if err := config.deriveWorker(); err != nil {
		return nil, err
	}

	logger.Debug("config: .env provided data",
		zap.Stringer("program", config.Program),
		zap.String("authorization mode", config.AuthorizationMode),
		zap.Bool("wallet mnemonic", config.WorkerMnemonic != ""),
		zap.String("database", config.DatabasePath),
		zap.String("escrow", config.EscrowPath),
		zap.Int("seeded accounts", len(config.Accounts)),
	)
	return config, nil
}

func (c *Config) applyEnvironment() error {
	text := map[string]*string{
		"AUTHORIZATION_MODE":  &c.AuthorizationMode,
		"WORKER_MNEMONIC":     &c.WorkerMnemonic,
		"WORKER_KEYPAIR_PATH": &c.WorkerKeypairPath,
		"DATABASE_PATH":       &c.DatabasePath,
		"ESCROW_PATH":         &c.EscrowPath,
		"LISTEN_ADDRESS":      &c.ListenAddress,
		"LOG_LEVEL":           &c.Logger.Level,
		"LOG_FILE":            &c.Logger.LogFile,
		"ERROR_FILE":          &c.Logger.ErrorFile,
	}
	for key, target := range text {
		if value, ok := os.LookupEnv(key); ok {
			*target = value
		}
	}

	addresses := map[string]*blockchain.Address{
		"PROGRAM_ID":        &c.Program,
		"AUTHORIZER_PUBKEY": &c.Authorizer,
	}
	for key, target := range addresses {
		if value, ok := os.LookupEnv(key); ok {
			if err := target.UnmarshalText([]byte(value)); err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
		}
	}

	flags := map[string]*bool{
		"LOG_CONSOLE":            &c.Logger.Console,
		"REJECT_REPLAYED_NONCES": &c.RejectReplayedNonces,
	}
	for key, target := range flags {
		if value, ok := os.LookupEnv(key); ok {
			parsed, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
			*target = parsed
		}
	}

	durations := map[string]*time.Duration{
		"DRAW_RECOVERY_TIMEOUT": &c.DrawRecoveryTimeout,
		"POLL_INTERVAL":         &c.PollInterval,
	}
	for key, target := range durations {
		if value, ok := os.LookupEnv(key); ok {
			parsed, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
			*target = parsed
		}
	}

	if value, ok := os.LookupEnv("MAX_BATCH_SIZE"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config: MAX_BATCH_SIZE: %w", err)
		}
		c.MaxBatchSize = parsed
	}

	if value, ok := os.LookupEnv("MAX_SLOTS"); ok {
		parsed, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("config: MAX_SLOTS: %w", err)
		}
		c.MaxSlots = uint32(parsed)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Program.IsZero() {
		return ErrMissingProgram
	}

	switch c.AuthorizationMode {
	case PermitAuthorization:
		if c.Authorizer.IsZero() {
			return ErrMissingAuthorizer
		}
	case NoAuthorization:
	default:
		return fmt.Errorf("%w: %q", ErrAuthorizationMode, c.AuthorizationMode)
	}

	if c.WorkerMnemonic == "" && c.WorkerKeypairPath == "" {
		return ErrMissingWorkerKey
	}
	if c.EscrowPath == "" || c.EscrowPath == c.DatabasePath {
		return ErrSharedDatabase
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("config: max_batch_size must be positive, got %d", c.MaxBatchSize)
	}
	if c.MaxSlots == 0 {
		return fmt.Errorf("config: max_slots must be positive")
	}
	if c.DrawRecoveryTimeout < 0 {
		return fmt.Errorf("config: draw_recovery_timeout must not be negative")
	}
	return nil
}

// deriveWorker loads the worker key from a solana-keygen file, or derives it
// from a TON wallet mnemonic.
func (c *Config) deriveWorker() error {
	if c.WorkerKeypairPath != "" {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(c.WorkerKeypairPath)
		if err != nil {
			return fmt.Errorf("config: cannot read worker keypair: %w", err)
		}
		c.Worker = key
		return nil
	}

	pk, err := wallet.SeedToPrivateKey(c.WorkerMnemonic)
	if err != nil {
		return fmt.Errorf("config: cannot derive worker key: %w", err)
	}

	logger.Debug("config: worker wallet info", zap.Bool("private key is empty", pk == nil))
	c.Worker = solana.PrivateKey(pk)
	return nil
}

// DrawAuthority is the worker's public key.
func (c *Config) DrawAuthority() blockchain.Address {
	return blockchain.Address(c.Worker.PublicKey())
}

func (c *Config) Engine() raffle.Config {
	var authorization permit.AuthorizationStrategy = permit.BackendPermit{Authorizer: c.Authorizer}
	if c.AuthorizationMode == NoAuthorization {
		authorization = permit.NoAuthorization{}
	}

	return raffle.Config{
		Program:              c.Program,
		DrawAuthority:        c.DrawAuthority(),
		Authorization:        authorization,
		RejectReplayedNonces: c.RejectReplayedNonces,
		MaxBatchSize:         c.MaxBatchSize,
		MaxSlots:             c.MaxSlots,
		DrawRecoveryTimeout:  c.DrawRecoveryTimeout,
	}
}

func (c *Config) Tracker() tracker.Config {
	return tracker.Config{Interval: c.PollInterval}
}
