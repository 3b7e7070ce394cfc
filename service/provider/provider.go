package provider

import (
	"context"
	"errors"
)

// Sentinel errors for provider operations. Callers compare with errors.Is.
var (
	// ErrNotAvailable means no wallet provider is reachable in this environment.
	ErrNotAvailable = errors.New("wallet provider not available")

	// ErrUserRejected means the human declined a connection prompt.
	ErrUserRejected = errors.New("connection rejected by user")

	// ErrSilentRestoreFailed means a trusted-only connect found no prior grant.
	// The likely cause is "needs a human click", not "session invalid".
	ErrSilentRestoreFailed = errors.New("silent restore failed: user interaction required")

	// ErrNotConnected means an operation required an active session and none exists.
	ErrNotConnected = errors.New("wallet not connected")

	// ErrSigningRejected means the human declined a signing prompt.
	ErrSigningRejected = errors.New("signing rejected by user")
)

// ConnectOpts controls how a connection attempt behaves.
type ConnectOpts struct {
	// SilentOnly restricts the attempt to a previously granted trust
	// relationship; the provider must not prompt the user.
	SilentOnly bool
}

// Events holds the provider-level event callbacks. Callbacks fire
// asynchronously and may arrive at any time, including immediately after
// subscription. They must be idempotent-safe: a duplicate disconnect event
// is harmless.
type Events struct {
	// OnAccountChanged fires when the active account changes. An empty
	// address means the provider dropped the session.
	OnAccountChanged func(address string)

	// OnDisconnect fires when the provider ends the session.
	OnDisconnect func()

	// OnConnect fires when the provider establishes a session on its own
	// (e.g. a page-level grant retained across restarts).
	OnConnect func(address string)
}

// Provider is the façade over the external wallet provider.
type Provider interface {
	// Available reports whether a provider is reachable. It is safe to call
	// in any environment and never returns an error: unreachable means false.
	Available(ctx context.Context) bool

	// Session returns the address of a connection the provider itself is
	// holding, independent of anything this application persisted.
	Session(ctx context.Context) (string, bool)

	// Connect requests a session and returns the granted address.
	// Fails with ErrNotAvailable, ErrUserRejected, or ErrSilentRestoreFailed.
	Connect(ctx context.Context, opts ConnectOpts) (string, error)

	// Disconnect ends the provider-side session. Best-effort.
	Disconnect(ctx context.Context) error

	// SignTransfer asks the provider to sign a serialized transaction and
	// returns the signed bytes. Fails with ErrNotConnected or ErrSigningRejected.
	SignTransfer(ctx context.Context, payload []byte) ([]byte, error)

	// Subscribe registers event callbacks. Only one subscription is active
	// at a time; a second call replaces the first.
	Subscribe(ctx context.Context, events Events) error

	// Unsubscribe tears down the event subscription.
	Unsubscribe()
}
