package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/soldash/soldash/service/config"
	"github.com/soldash/soldash/service/persist"
	"github.com/soldash/soldash/service/provider"
	"github.com/soldash/soldash/service/session"
)

// newSessionStack builds the one-shot session stack: persisted store, bridge
// provider, and manager. The caller must Close the manager and the store.
func newSessionStack(c *cli.Context, logger *slog.Logger) (*session.Manager, *persist.Store, error) {
	dbPath := c.String("db-path")
	if dbPath == "" {
		dbPath = config.DefaultSessionDBPath()
	}

	store, err := persist.NewStore(dbPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session store: %w", err)
	}

	bridge := provider.NewBridge(c.String("bridge-url"), nil, logger)
	mgr := session.NewManager(bridge, store, nil, logger)
	return mgr, store, nil
}

func dbPathFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "db-path",
		Usage:   "Session database path",
		EnvVars: []string{"SESSION_DB_PATH"},
	}
}

func printSession(c *cli.Context, s session.Session) error {
	if c.Bool("json") {
		return json.NewEncoder(os.Stdout).Encode(s)
	}

	fmt.Printf("Status:   %s\n", s.Status)
	if s.Address != "" {
		fmt.Printf("Address:  %s\n", s.Address)
	}
	if s.ReconnectAvailable {
		fmt.Println("Reconnect available: run 'soldash session connect'")
	}
	if s.Err != "" {
		fmt.Printf("Message:  %s\n", s.Err)
	}
	return nil
}

func sessionStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the current wallet session",
		Flags: []cli.Flag{dbPathFlag()},
		Action: func(c *cli.Context) error {
			logger := newCommandLogger()
			mgr, store, err := newSessionStack(c, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			defer mgr.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			if err := mgr.Initialize(ctx); err != nil {
				return err
			}
			return printSession(c, mgr.Snapshot())
		},
	}
}

func sessionConnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "connect",
		Usage: "Connect the wallet, prompting the user through the bridge",
		Flags: []cli.Flag{dbPathFlag()},
		Action: func(c *cli.Context) error {
			logger := newCommandLogger()
			mgr, store, err := newSessionStack(c, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			defer mgr.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			if err := mgr.Initialize(ctx); err != nil {
				return err
			}

			// A silent restore may already have connected us
			if mgr.Snapshot().Status != session.StatusConnected {
				if err := mgr.Connect(ctx); err != nil {
					if errors.Is(err, provider.ErrNotAvailable) {
						return fmt.Errorf("no wallet provider detected; install a wallet and start the bridge daemon")
					}
					return printSession(c, mgr.Snapshot())
				}
			}
			return printSession(c, mgr.Snapshot())
		},
	}
}

func sessionDisconnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "disconnect",
		Usage: "Disconnect the wallet and clear persisted session state",
		Flags: []cli.Flag{dbPathFlag()},
		Action: func(c *cli.Context) error {
			logger := newCommandLogger()
			mgr, store, err := newSessionStack(c, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			defer mgr.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			if err := mgr.Initialize(ctx); err != nil {
				return err
			}
			mgr.Disconnect(ctx)
			return printSession(c, mgr.Snapshot())
		},
	}
}
