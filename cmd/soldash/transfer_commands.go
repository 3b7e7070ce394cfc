package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/soldash/soldash/service/session"
	"github.com/soldash/soldash/service/solana"
	"github.com/soldash/soldash/service/transfer"
)

func transferSendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Send SOL from the connected wallet",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "to",
				Usage:    "Recipient wallet address",
				Required: true,
			},
			&cli.Float64Flag{
				Name:     "amount",
				Usage:    "Amount in SOL",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "network",
				Usage:   "Solana network label (mainnet or devnet)",
				EnvVars: []string{"SOLANA_NETWORK"},
				Value:   "devnet",
			},
			dbPathFlag(),
		},
		Action: func(c *cli.Context) error {
			rpcURL := c.String("rpc-url")
			if rpcURL == "" {
				return fmt.Errorf("--rpc-url or SOLANA_RPC_URL is required")
			}

			logger := newCommandLogger()
			mgr, store, err := newSessionStack(c, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			defer mgr.Close()

			// Signing may wait on the user approving in their wallet
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
			defer cancel()

			if err := mgr.Initialize(ctx); err != nil {
				return err
			}
			snap := mgr.Snapshot()
			if snap.Status != session.StatusConnected {
				return fmt.Errorf("wallet not connected; run 'soldash session connect' first")
			}

			chain := solana.NewClient(solana.NewRPCClient(rpcURL), c.String("network"), nil, logger)
			submitter := transfer.NewSubmitter(chain, mgr, nil, logger)

			result := submitter.Submit(ctx, transfer.Request{
				From:   snap.Address,
				To:     c.String("to"),
				Amount: c.Float64("amount"),
			})

			if c.Bool("json") {
				out := map[string]interface{}{
					"ok":      result.OK,
					"message": result.Message,
				}
				if result.Reference != "" {
					out["signature"] = result.Reference
				}
				if err := json.NewEncoder(os.Stdout).Encode(out); err != nil {
					return err
				}
			} else {
				fmt.Println(result.Message)
			}

			if !result.OK {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}
