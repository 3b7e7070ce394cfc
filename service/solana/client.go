package solana

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/soldash/soldash/service/metrics"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetBalanceResult, error)

	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)

	GetLatestBlockhash(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (*rpc.GetLatestBlockhashResult, error)

	SendEncodedTransaction(
		ctx context.Context,
		encodedTx string,
	) (solana.Signature, error)

	GetSignatureStatuses(
		ctx context.Context,
		searchTransactionHistory bool,
		signatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)
}

// Confirmation polling parameters.
const (
	confirmPollInterval = 2 * time.Second
	confirmTimeout      = 60 * time.Second
)

// Client provides domain operations against the Solana ledger: balance,
// recent activity, and transfer submission. It wraps the RPC client with
// domain-specific operations.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics (e.g., "mainnet", "devnet", rpc host)
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "mainnet", "devnet", or RPC hostname).
// If m is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:      rpcClient,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
	}
}

// Balance returns the lamport balance for an address.
func (c *Client) Balance(ctx context.Context, address string) (uint64, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", address, err)
	}

	start := time.Now()
	out, err := c.rpc.GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
	c.recordRPCCall("GetBalance", err, time.Since(start))
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}

	return out.Value, nil
}

// RecentActivity fetches up to limit recent transaction summaries for an
// address, newest first. Detail (net amount, fee) is fetched per entry; a
// failed detail fetch degrades that entry to OutcomeUnknown with zeroed
// amounts rather than dropping it or failing the batch.
func (c *Client) RecentActivity(ctx context.Context, address string, limit int) ([]ActivityEntry, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}

	opts := &rpc.GetSignaturesForAddressOpts{
		Limit: &limit,
	}

	start := time.Now()
	signatures, err := c.rpc.GetSignaturesForAddress(ctx, pubkey, opts)
	c.recordRPCCall("GetSignaturesForAddress", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to get signatures: %w", err)
	}

	c.logger.DebugContext(ctx, "fetched transaction signatures",
		"address", address,
		"count", len(signatures),
	)

	entries := make([]ActivityEntry, 0, len(signatures))
	for _, sig := range signatures {
		entry := signatureToEntry(sig)

		txnOpts := &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			MaxSupportedTransactionVersion: &[]uint64{0}[0],
		}
		txnStart := time.Now()
		result, err := c.rpc.GetTransaction(ctx, sig.Signature, txnOpts)
		c.recordRPCCall("GetTransaction", err, time.Since(txnStart))

		if err != nil || result == nil || result.Meta == nil {
			// Degrade this entry rather than failing the batch
			c.logger.WarnContext(ctx, "failed to get transaction detail, marking unknown",
				"signature", sig.Signature.String(),
				"error", err,
			)
			entry.Outcome = OutcomeUnknown
			entry.NetLamports = 0
			entry.FeeLamports = 0
			entries = append(entries, entry)
			continue
		}

		// Net amount for the address is the first account's balance delta;
		// the queried address is the fee payer / first signer in its own
		// transactions.
		if len(result.Meta.PostBalances) > 0 && len(result.Meta.PreBalances) > 0 {
			entry.NetLamports = int64(result.Meta.PostBalances[0]) - int64(result.Meta.PreBalances[0])
		}
		entry.FeeLamports = result.Meta.Fee

		entries = append(entries, entry)
	}

	if c.metrics != nil {
		c.metrics.RecordHistoryEntries(c.endpoint, float64(len(entries)))
	}

	return entries, nil
}

// LatestBlockhash fetches a recent blockhash for transaction construction.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	start := time.Now()
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	c.recordRPCCall("GetLatestBlockhash", err, time.Since(start))
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	return out.Value.Blockhash, nil
}

// SubmitTransaction submits a signed, serialized transaction and returns its signature.
func (c *Client) SubmitTransaction(ctx context.Context, signed []byte) (solana.Signature, error) {
	encoded := base64.StdEncoding.EncodeToString(signed)

	start := time.Now()
	sig, err := c.rpc.SendEncodedTransaction(ctx, encoded)
	c.recordRPCCall("SendTransaction", err, time.Since(start))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to submit transaction: %w", err)
	}

	return sig, nil
}

// Confirm waits for a submitted transaction to reach confirmed commitment.
// Returns an error if the transaction failed on chain or confirmation timed out.
func (c *Client) Confirm(ctx context.Context, signature solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		start := time.Now()
		out, err := c.rpc.GetSignatureStatuses(ctx, true, signature)
		c.recordRPCCall("GetSignatureStatuses", err, time.Since(start))
		if err == nil && out != nil && len(out.Value) > 0 && out.Value[0] != nil {
			status := out.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction failed on chain: %v", status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
		if err != nil {
			c.logger.WarnContext(ctx, "failed to get signature status",
				"signature", signature.String(),
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("confirmation timed out for %s: %w", signature.String(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// signatureToEntry converts an RPC TransactionSignature to a domain ActivityEntry.
// Only metadata from the signature list is included; amounts require a
// detail fetch.
func signatureToEntry(sig *rpc.TransactionSignature) ActivityEntry {
	entry := ActivityEntry{
		Signature: sig.Signature.String(),
		Outcome:   OutcomeSuccess,
	}

	if sig.Err != nil {
		entry.Outcome = OutcomeFailed
	}

	if sig.BlockTime != nil {
		t := sig.BlockTime.Time()
		entry.BlockTime = &t
	}

	return entry
}

func (c *Client) recordRPCCall(method string, err error, duration time.Duration) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, duration.Seconds())
}
