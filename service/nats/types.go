package nats

import (
	"time"

	"github.com/soldash/soldash/service/session"
	"github.com/soldash/soldash/service/solana"
)

// SessionEvent represents a session state change published to NATS.
// This is published to the subject "soldash.session" in JetStream.
type SessionEvent struct {
	Status             string `json:"status"`
	Address            string `json:"address,omitempty"`
	ProviderPresent    bool   `json:"provider_present"`
	ReconnectAvailable bool   `json:"reconnect_available,omitempty"`
	Error              string `json:"error,omitempty"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// FromSession converts a session snapshot to a SessionEvent for publishing.
func FromSession(s session.Session) *SessionEvent {
	return &SessionEvent{
		Status:             string(s.Status),
		Address:            s.Address,
		ProviderPresent:    s.ProviderPresent,
		ReconnectAvailable: s.ReconnectAvailable,
		Error:              s.Err,
		PublishedAt:        time.Now().UTC(),
	}
}

// ActivityEvent represents one recent transaction published to NATS.
// This is published to the subject "soldash.activity.{wallet_address}".
type ActivityEvent struct {
	// Transaction identifiers
	Signature string `json:"signature"`

	// Wallet information
	WalletAddress string `json:"wallet_address"`

	// Transaction details
	Outcome     string `json:"outcome"` // "Success", "Failed", or "Unknown"
	NetLamports int64  `json:"net_lamports"`
	FeeLamports uint64 `json:"fee_lamports"`

	// Timing information
	BlockTime *time.Time `json:"block_time,omitempty"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// FromActivityEntry converts a fetched activity entry to an ActivityEvent.
func FromActivityEntry(address string, entry solana.ActivityEntry) *ActivityEvent {
	return &ActivityEvent{
		Signature:     entry.Signature,
		WalletAddress: address,
		Outcome:       string(entry.Outcome),
		NetLamports:   entry.NetLamports,
		FeeLamports:   entry.FeeLamports,
		BlockTime:     entry.BlockTime,
		PublishedAt:   time.Now().UTC(),
	}
}
