package solana

import (
	"time"
)

// Outcome classifies a historical transaction.
type Outcome string

const (
	// OutcomeSuccess means the transaction executed without error.
	OutcomeSuccess Outcome = "Success"

	// OutcomeFailed means the ledger recorded an execution error.
	OutcomeFailed Outcome = "Failed"

	// OutcomeUnknown means detail could not be fetched; amounts are zeroed.
	OutcomeUnknown Outcome = "Unknown"
)

// ActivityEntry is a single historical transaction summary for an address.
// This is our domain model, independent of the RPC response format.
// Entries are immutable once produced.
type ActivityEntry struct {
	Signature   string
	Outcome     Outcome
	BlockTime   *time.Time // nil when the ledger has no timestamp for the entry
	NetLamports int64      // balance delta for the address, post - pre
	FeeLamports uint64
}
