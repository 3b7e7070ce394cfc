package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/soldash/soldash/service/metrics"
	"github.com/soldash/soldash/service/provider"
)

// Request describes a SOL transfer to build and submit.
type Request struct {
	From   string  // sender address, the connected wallet
	To     string  // recipient address
	Amount float64 // amount in SOL
}

// Result is the user-facing outcome of a transfer attempt. Validation
// failures and runtime errors both surface here; Submit never returns a
// Go error to the caller.
type Result struct {
	OK        bool
	Reference string // full transaction signature on success
	Message   string
}

// DisplayReference is the short form shown to the user.
func (r Result) DisplayReference() string {
	if len(r.Reference) <= 12 {
		return r.Reference
	}
	return r.Reference[:12] + "..."
}

// Signer signs a serialized transaction on the user's behalf.
// session.Manager satisfies this.
type Signer interface {
	SignTransfer(ctx context.Context, payload []byte) ([]byte, error)
}

// Ledger covers the chain operations a transfer needs.
// solana.Client satisfies this.
type Ledger interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SubmitTransaction(ctx context.Context, signed []byte) (solana.Signature, error)
	Confirm(ctx context.Context, signature solana.Signature) error
}

// Submitter validates, builds, signs, submits, and confirms SOL transfers.
type Submitter struct {
	ledger  Ledger
	signer  Signer
	logger  *slog.Logger
	metrics *metrics.Metrics // optional
}

// NewSubmitter creates a transfer submitter. The metrics collector may be nil.
func NewSubmitter(ledger Ledger, signer Signer, m *metrics.Metrics, logger *slog.Logger) *Submitter {
	return &Submitter{
		ledger:  ledger,
		signer:  signer,
		logger:  logger,
		metrics: m,
	}
}

// Validate checks a request and returns the first failure message, or ""
// when the request is acceptable. Checks run in a fixed order: recipient
// presence, amount, then recipient format.
func Validate(req Request) string {
	if req.To == "" {
		return "Recipient address is required"
	}
	if req.Amount <= 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return "Please enter a valid amount"
	}
	if len(req.To) < 32 || len(req.To) > 44 {
		return "Invalid Solana address format"
	}
	return ""
}

// lamportsFromSOL converts a SOL amount to lamports, rounding to the
// nearest whole lamport.
func lamportsFromSOL(amount float64) uint64 {
	return uint64(math.Round(amount * float64(solana.LAMPORTS_PER_SOL)))
}

// Submit runs the full transfer pipeline. Every failure mode maps to a
// Result with OK false and a user-facing message; a signing rejection
// short-circuits before anything reaches the chain.
func (s *Submitter) Submit(ctx context.Context, req Request) Result {
	if msg := Validate(req); msg != "" {
		s.recordOutcome("validation_failed")
		return Result{Message: msg}
	}

	from, err := solana.PublicKeyFromBase58(req.From)
	if err != nil {
		s.logger.WarnContext(ctx, "sender address failed to parse", "error", err)
		s.recordOutcome("validation_failed")
		return Result{Message: "Wallet not connected properly"}
	}
	to, err := solana.PublicKeyFromBase58(req.To)
	if err != nil {
		s.recordOutcome("validation_failed")
		return Result{Message: "Invalid Solana address format"}
	}

	lamports := lamportsFromSOL(req.Amount)

	blockhash, err := s.ledger.LatestBlockhash(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to fetch blockhash", "error", err)
		s.recordOutcome("error")
		return Result{Message: "Failed: could not reach the Solana network"}
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, from, to).Build(),
		},
		blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to build transaction", "error", err)
		s.recordOutcome("error")
		return Result{Message: "Failed: could not build the transaction"}
	}

	payload, err := tx.Message.MarshalBinary()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to serialize transaction message", "error", err)
		s.recordOutcome("error")
		return Result{Message: "Failed: could not build the transaction"}
	}

	signed, err := s.signer.SignTransfer(ctx, payload)
	if err != nil {
		if errors.Is(err, provider.ErrSigningRejected) {
			s.logger.InfoContext(ctx, "transfer signing rejected by user")
			s.recordOutcome("rejected")
			return Result{Message: "Failed: transaction rejected by user"}
		}
		if errors.Is(err, provider.ErrNotConnected) {
			s.recordOutcome("error")
			return Result{Message: "Wallet not connected properly"}
		}
		s.logger.ErrorContext(ctx, "transfer signing failed", "error", err)
		s.recordOutcome("error")
		return Result{Message: "Failed: could not sign the transaction"}
	}

	sig, err := s.ledger.SubmitTransaction(ctx, signed)
	if err != nil {
		s.logger.ErrorContext(ctx, "transfer submission failed", "error", err)
		s.recordOutcome("error")
		return Result{Message: "Failed: the network did not accept the transaction"}
	}

	if err := s.ledger.Confirm(ctx, sig); err != nil {
		s.logger.ErrorContext(ctx, "transfer confirmation failed",
			"signature", sig.String(),
			"error", err,
		)
		s.recordOutcome("error")
		return Result{
			Reference: sig.String(),
			Message:   fmt.Sprintf("Failed: %v", err),
		}
	}

	s.logger.InfoContext(ctx, "transfer confirmed",
		"signature", sig.String(),
		"lamports", lamports,
	)
	s.recordOutcome("success")
	return Result{
		OK:        true,
		Reference: sig.String(),
		Message:   fmt.Sprintf("Success! TX: %s...", sig.String()[:12]),
	}
}

func (s *Submitter) recordOutcome(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordTransferSubmission(outcome)
}
