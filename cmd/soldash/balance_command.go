package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/soldash/soldash/service/solana"
)

func balanceCommand() *cli.Command {
	return &cli.Command{
		Name:  "balance",
		Usage: "Show the SOL balance for a wallet",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "address",
				Aliases: []string{"a"},
				Usage:   "Wallet address (defaults to the connected wallet)",
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
			address, err := resolveAddress(c, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			chain := solana.NewClient(solana.NewRPCClient(rpcURL), c.String("network"), nil, logger)
			lamports, err := chain.Balance(ctx, address)
			if err != nil {
				return fmt.Errorf("failed to fetch balance: %w", err)
			}

			sol := float64(lamports) / 1e9

			if c.Bool("json") {
				return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
					"address":  address,
					"lamports": lamports,
					"sol":      sol,
				})
			}

			fmt.Printf("%s: %.4f SOL\n", address, sol)
			return nil
		},
	}
}
