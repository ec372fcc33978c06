package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"raffleengine/internal/api"
	"raffleengine/internal/config"
	"raffleengine/internal/draw"
	"raffleengine/internal/escrow"
	"raffleengine/internal/logger"
	"raffleengine/internal/raffle"
	"raffleengine/internal/redeem"
	"raffleengine/internal/storage"
	"raffleengine/internal/tracker"

	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configuration, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(configuration.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sqliteStorage, err := storage.NewSqliteStorage(configuration.DatabasePath)
	if err != nil {
		logger.Fatal("cannot open storage", zap.String("path", configuration.DatabasePath), zap.Error(err))
	}
	defer sqliteStorage.Close()

	gateway, err := openGateway(configuration)
	if err != nil {
		logger.Fatal("cannot open escrow ledger", zap.String("path", configuration.EscrowPath), zap.Error(err))
	}
	defer gateway.Close()

	engine, err := raffle.NewEngine(configuration.Engine(), sqliteStorage, gateway, redeem.NewMemoryBurner(), raffle.SystemClock{})
	if err != nil {
		logger.Fatal("cannot build engine", zap.Error(err))
	}

	trackerInstance := tracker.NewTracker(
		ctx,
		engine,
		sqliteStorage,
		draw.NewLocalOracle(),
		tracker.NewEscrowRefunder(engine, gateway),
		configuration.Tracker(),
	)
	server := api.NewServer(engine, configuration.ListenAddress)

	errCh := make(chan error, 1)

	go trackerInstance.Loop()

	go func() {
		if err := server.Run(ctx); err != nil {
			errCh <- err
		}
	}()

	logger.Info("oracle started",
		zap.Stringer("program", configuration.Program),
		zap.Stringer("draw authority", configuration.DrawAuthority()),
		zap.String("listen", configuration.ListenAddress),
	)

	select {
	case err := <-errCh:
		logger.Error("stopping because of an error", zap.Error(err))
		cancel()
	case sig := <-waitForInterrupt():
		logger.Info("interrupt received", zap.Stringer("signal", sig))
		cancel()
	}
}

// openGateway opens the escrow ledger and applies the configured seed.
func openGateway(configuration *config.Config) (*escrow.SqliteGateway, error) {
	gateway, err := escrow.NewSqliteGateway(configuration.EscrowPath)
	if err != nil {
		return nil, err
	}

	if err := escrow.Provision(gateway, configuration.Mints, configuration.Accounts); err != nil {
		gateway.Close()
		return nil, err
	}
	return gateway, nil
}

func waitForInterrupt() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	return sigCh
}
