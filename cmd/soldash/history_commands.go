package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/soldash/soldash/service/config"
	"github.com/soldash/soldash/service/persist"
	"github.com/soldash/soldash/service/solana"
)

// resolveAddress picks the wallet address for chain inspection commands:
// the --address flag when given, otherwise the persisted session record.
func resolveAddress(c *cli.Context, logger *slog.Logger) (string, error) {
	if addr := c.String("address"); addr != "" {
		return addr, nil
	}

	dbPath := c.String("db-path")
	if dbPath == "" {
		dbPath = config.DefaultSessionDBPath()
	}
	store, err := persist.NewStore(dbPath, logger)
	if err != nil {
		return "", fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.Close()

	rec := store.Load()
	if rec == nil {
		return "", fmt.Errorf("no wallet address: pass --address or connect a wallet first")
	}
	return rec.Address, nil
}

func historyListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List recent transactions for a wallet",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "address",
				Aliases: []string{"a"},
				Usage:   "Wallet address (defaults to the connected wallet)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum number of transactions",
				Value:   5,
			},
			&cli.StringFlag{
				Name:    "network",
				Usage:   "Solana network label (mainnet or devnet)",
				EnvVars: []string{"SOLANA_NETWORK"},
				Value:   "devnet",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq expression applied to the entry list",
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

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			chain := solana.NewClient(solana.NewRPCClient(rpcURL), c.String("network"), nil, logger)
			entries, err := chain.RecentActivity(ctx, address, c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to fetch history: %w", err)
			}

			if filter := c.String("jq"); filter != "" {
				return printFiltered(entries, filter)
			}

			if c.Bool("json") {
				return json.NewEncoder(os.Stdout).Encode(entries)
			}

			if len(entries) == 0 {
				fmt.Println("No recent transactions")
				return nil
			}
			for _, entry := range entries {
				when := "N/A"
				if entry.BlockTime != nil {
					when = entry.BlockTime.Local().Format(time.RFC3339)
				}
				fmt.Printf("%s  %-7s  %+.9f SOL  fee %d  %s\n",
					entry.Signature[:12]+"...",
					entry.Outcome,
					float64(entry.NetLamports)/1e9,
					entry.FeeLamports,
					when,
				)
			}
			return nil
		},
	}
}

// printFiltered runs a jq expression over the JSON form of the entries and
// prints each result.
func printFiltered(entries []solana.ActivityEntry, filter string) error {
	query, err := gojq.Parse(filter)
	if err != nil {
		return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	// Round-trip through JSON so gojq sees plain maps and slices
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	var input interface{}
	if err := json.Unmarshal(raw, &input); err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	iter := code.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return fmt.Errorf("jq filter error: %w", err)
		}
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	return nil
}
