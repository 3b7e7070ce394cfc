package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "soldash",
		Usage: "Solana wallet dashboard service CLI",
		Description: `A command-line tool for running and interacting with the soldash wallet dashboard.

Use this CLI to run the dashboard daemon, manage the wallet session, send SOL,
and inspect balances and recent transaction history.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			runCommand(),
			// Wallet session lifecycle commands
			{
				Name:  "session",
				Usage: "Wallet session commands",
				Subcommands: []*cli.Command{
					sessionStatusCommand(),
					sessionConnectCommand(),
					sessionDisconnectCommand(),
				},
			},
			// Transfer commands
			{
				Name:  "transfer",
				Usage: "SOL transfer commands",
				Subcommands: []*cli.Command{
					transferSendCommand(),
				},
			},
			// Chain inspection commands
			{
				Name:  "history",
				Usage: "Transaction history commands",
				Subcommands: []*cli.Command{
					historyListCommand(),
				},
			},
			balanceCommand(),
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "Solana RPC endpoint URL",
				EnvVars: []string{"SOLANA_RPC_URL"},
			},
			&cli.StringFlag{
				Name:    "bridge-url",
				Usage:   "Wallet bridge daemon URL",
				EnvVars: []string{"WALLET_BRIDGE_URL"},
				Value:   "http://localhost:8199",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// newCommandLogger creates the logger used by one-shot CLI commands.
// Only errors go to stderr so command output stays clean.
func newCommandLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
