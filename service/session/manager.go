package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/soldash/soldash/service/metrics"
	"github.com/soldash/soldash/service/persist"
	"github.com/soldash/soldash/service/provider"
)

// Status is the wallet session lifecycle state.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusDetecting     Status = "detecting"
	StatusNoProvider    Status = "no_provider"
	StatusRestoring     Status = "restoring"
	StatusIdle          Status = "idle"
	StatusConnected     Status = "connected"
	StatusError         Status = "error"
)

// Session is an immutable snapshot of the wallet connection.
//
// Invariants: StatusConnected implies Address is non-empty;
// StatusUninitialized and StatusIdle imply Address is empty.
type Session struct {
	Address         string `json:"address,omitempty"`
	Status          Status `json:"status"`
	ProviderPresent bool   `json:"provider_present"`

	// ReconnectAvailable means a fresh persisted record exists but silent
	// restore needed human interaction; the caller should offer a reconnect
	// affordance rather than an error.
	ReconnectAvailable bool `json:"reconnect_available,omitempty"`

	// Err is the last user-facing error message, if any.
	Err string `json:"error,omitempty"`
}

// watchBuffer bounds the transition notification queue. A watcher that
// cannot keep up loses the oldest snapshots, never blocks a transition.
const watchBuffer = 64

// Manager owns the wallet session state machine: provider detection, silent
// restore, explicit connect/disconnect, and reconciliation with
// provider-emitted events.
//
// All state transitions are serialized by a single mutex. Public operations
// hold it for their full duration, so a provider event that arrives while a
// call is in flight is applied only after that call's transition commits.
// Persisted and in-memory state are re-read under the lock immediately
// before every write.
type Manager struct {
	prov    provider.Provider
	store   *persist.Store
	logger  *slog.Logger
	metrics *metrics.Metrics // optional

	mu      sync.Mutex
	session Session

	watchers []func(Session)
	watchCh  chan Session
	watchWG  sync.WaitGroup
	closed   bool
}

// NewManager creates a session manager. The metrics collector may be nil.
func NewManager(prov provider.Provider, store *persist.Store, m *metrics.Metrics, logger *slog.Logger) *Manager {
	mgr := &Manager{
		prov:    prov,
		store:   store,
		logger:  logger,
		metrics: m,
		session: Session{Status: StatusUninitialized},
		watchCh: make(chan Session, watchBuffer),
	}

	mgr.watchWG.Add(1)
	go mgr.dispatchLoop()

	return mgr
}

// Snapshot returns a copy of the current session state.
func (m *Manager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Watch registers a callback invoked with a session snapshot after every
// committed transition. Callbacks run on a dedicated goroutine, in commit
// order, and must not call back into the Manager's mutating operations.
func (m *Manager) Watch(fn func(Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, fn)
}

// Initialize runs the one-time startup protocol: probe the provider,
// subscribe to its events, and attempt to restore a previous session.
//
// A missing provider is terminal (StatusNoProvider). A fresh persisted
// record triggers a silent restore; its failure is recoverable and leaves
// the record in place with ReconnectAvailable set. Unexpected failures land
// in StatusError; calling Initialize again retries.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setLocked(Session{Status: StatusDetecting})

	if !m.prov.Available(ctx) {
		m.logger.InfoContext(ctx, "no wallet provider detected")
		m.setLocked(Session{Status: StatusNoProvider})
		return nil
	}

	// Subscribe before attempting restore so no event occurring during the
	// restore window is missed.
	err := m.prov.Subscribe(ctx, provider.Events{
		OnAccountChanged: m.handleAccountChanged,
		OnDisconnect:     m.handleProviderDisconnect,
		OnConnect:        m.handleProviderConnect,
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to subscribe to provider events", "error", err)
		m.setLocked(Session{
			Status:          StatusError,
			ProviderPresent: true,
			Err:             "Failed to initialize wallet connection",
		})
		return fmt.Errorf("subscribe to provider events: %w", err)
	}

	rec := m.store.Load()
	if rec == nil {
		m.setLocked(Session{Status: StatusIdle, ProviderPresent: true})
		return nil
	}

	m.setLocked(Session{Status: StatusRestoring, ProviderPresent: true})
	m.logger.InfoContext(ctx, "attempting silent reconnect", "address", rec.Address)

	// Some providers retain connection state across restarts independent of
	// our storage; adopt that session directly when present.
	if addr, ok := m.prov.Session(ctx); ok {
		m.store.Save(addr, time.Time{})
		m.setLocked(Session{Status: StatusConnected, Address: addr, ProviderPresent: true})
		m.logger.InfoContext(ctx, "provider already connected", "address", addr)
		return nil
	}

	addr, err := m.prov.Connect(ctx, provider.ConnectOpts{SilentOnly: true})
	if err != nil {
		// Most likely "requires human interaction", not "no prior session":
		// keep the persisted record and surface a reconnect affordance.
		m.logger.InfoContext(ctx, "silent reconnect failed, user interaction required", "error", err)
		m.setLocked(Session{
			Status:             StatusIdle,
			ProviderPresent:    true,
			ReconnectAvailable: true,
			Err:                "Wallet detected. Reconnect to continue.",
		})
		return nil
	}

	m.store.Save(addr, time.Time{})
	m.setLocked(Session{Status: StatusConnected, Address: addr, ProviderPresent: true})
	m.logger.InfoContext(ctx, "silent reconnect successful", "address", addr)
	return nil
}

// Connect performs a human-initiated connection attempt.
//
// Returns provider.ErrNotAvailable when no provider exists; the caller
// should redirect to the provider's install page rather than retry. A
// rejection keeps any persisted record so the user can retry.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.session.ProviderPresent && !m.prov.Available(ctx) {
		return provider.ErrNotAvailable
	}
	m.session.ProviderPresent = true

	addr, err := m.prov.Connect(ctx, provider.ConnectOpts{})
	if err != nil {
		reconnect := m.session.ReconnectAvailable
		if errors.Is(err, provider.ErrUserRejected) {
			m.logger.InfoContext(ctx, "connection rejected by user")
			m.setLocked(Session{
				Status:             StatusIdle,
				ProviderPresent:    true,
				ReconnectAvailable: reconnect,
				Err:                "Connection rejected by user",
			})
			return err
		}
		m.logger.WarnContext(ctx, "connection failed", "error", err)
		m.setLocked(Session{
			Status:             StatusIdle,
			ProviderPresent:    true,
			ReconnectAvailable: reconnect,
			Err:                "Failed to connect wallet. Please try again.",
		})
		return err
	}

	m.store.Save(addr, time.Time{})
	m.setLocked(Session{Status: StatusConnected, Address: addr, ProviderPresent: true})
	m.logger.InfoContext(ctx, "wallet connected", "address", addr)
	return nil
}

// Disconnect ends the session. The provider-side call is best-effort: the
// persisted record is cleared and the local session ends regardless of
// whether the provider call succeeds.
func (m *Manager) Disconnect(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectLocked(ctx)
}

func (m *Manager) disconnectLocked(ctx context.Context) {
	if err := m.prov.Disconnect(ctx); err != nil {
		m.logger.WarnContext(ctx, "provider disconnect failed", "error", err)
	}

	m.store.Clear()
	m.setLocked(Session{
		Status:          StatusIdle,
		ProviderPresent: m.session.ProviderPresent,
	})
	m.logger.InfoContext(ctx, "wallet disconnected and state cleared")
}

// SignTransfer asks the provider to sign a serialized transaction.
// Fails with provider.ErrNotConnected when no session is active.
func (m *Manager) SignTransfer(ctx context.Context, payload []byte) ([]byte, error) {
	m.mu.Lock()
	connected := m.session.Status == StatusConnected
	m.mu.Unlock()

	if !connected {
		return nil, provider.ErrNotConnected
	}

	// Signing is not a state transition and may block on human interaction;
	// it runs outside the lock so events keep flowing.
	return m.prov.SignTransfer(ctx, payload)
}

// Close tears down the event subscription and the watch dispatcher.
func (m *Manager) Close() {
	m.prov.Unsubscribe()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.watchCh)
	m.mu.Unlock()

	m.watchWG.Wait()
}

// handleAccountChanged reconciles a provider account-changed event. An empty
// address means the provider dropped the session.
func (m *Manager) handleAccountChanged(address string) {
	if address == "" {
		m.handleProviderDisconnect()
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.store.Save(address, time.Time{})
	m.setLocked(Session{
		Status:          StatusConnected,
		Address:         address,
		ProviderPresent: true,
	})
	m.logger.Info("account changed", "address", address)
}

// handleProviderDisconnect runs the disconnect path for provider-emitted
// disconnects. Duplicate events are harmless.
func (m *Manager) handleProviderDisconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.Status != StatusConnected {
		// Duplicate or stale disconnect; nothing to apply. A retained
		// record after a failed silent restore must survive this.
		return
	}

	m.disconnectLocked(context.Background())
}

// handleProviderConnect refreshes the persisted record when the provider
// establishes a session on its own.
func (m *Manager) handleProviderConnect(address string) {
	if address == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.store.Save(address, time.Time{})
	if m.session.Status != StatusConnected {
		m.setLocked(Session{
			Status:          StatusConnected,
			Address:         address,
			ProviderPresent: true,
		})
	}
	m.logger.Info("provider connected", "address", address)
}

// setLocked commits a transition and queues watcher notification.
// Callers must hold m.mu.
func (m *Manager) setLocked(next Session) {
	prev := m.session
	m.session = next

	if m.metrics != nil && prev.Status != next.Status {
		m.metrics.RecordSessionTransition(string(prev.Status), string(next.Status))
	}

	if m.closed {
		return
	}
	select {
	case m.watchCh <- next:
	default:
		m.logger.Warn("session watcher queue full, dropping snapshot",
			"status", next.Status,
		)
	}
}

// dispatchLoop delivers committed snapshots to watchers in order.
func (m *Manager) dispatchLoop() {
	defer m.watchWG.Done()

	for snap := range m.watchCh {
		m.mu.Lock()
		watchers := make([]func(Session), len(m.watchers))
		copy(watchers, m.watchers)
		m.mu.Unlock()

		for _, fn := range watchers {
			fn(snap)
		}
	}
}
