package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/soldash/soldash/service/config"
	"github.com/soldash/soldash/service/dashboard"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the dashboard daemon",
		Description: `Starts the long-running dashboard engine: restores the wallet session,
polls balance and recent history, and publishes events to NATS when configured.`,
		Action: func(c *cli.Context) error {
			// Load and validate configuration from environment
			// This fails fast if any required config is missing or invalid
			cfg := config.MustLoad()

			logger := setupLogger(cfg.LogLevel)
			logger.Info("starting dashboard",
				"rpc_url", cfg.SolanaRPCURL,
				"network", cfg.SolanaNetwork,
				"bridge_url", cfg.WalletBridgeURL,
				"log_level", cfg.LogLevel,
			)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			engine, err := dashboard.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to build engine: %w", err)
			}

			if err := engine.Start(ctx); err != nil {
				// A failed initialization is retryable by restarting; the
				// engine is already in a consistent error state here.
				logger.Error("initialization failed", "error", err)
			}

			snap := engine.Session()
			logger.Info("dashboard running",
				"status", snap.Status,
				"address", snap.Address,
			)

			// Wait for shutdown signal
			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
			sig := <-shutdown
			logger.Info("shutdown signal received", "signal", sig.String())

			// Graceful shutdown with timeout
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()

			if err := engine.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shutdown gracefully: %w", err)
			}

			return nil
		},
	}
}
