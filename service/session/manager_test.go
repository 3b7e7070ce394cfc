package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soldash/soldash/service/persist"
	"github.com/soldash/soldash/service/provider"
)

const testAddress = "7EYnhQoR9YM3N7UoaKRoA44Uy8JeaZV3qyouov87awMs"

// fakeProvider implements provider.Provider for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type fakeProvider struct {
	mu sync.Mutex

	available     bool
	heldAddress   string
	connectAddr   string
	connectErr    error
	silentErr     error
	disconnectErr error
	signErr       error
	signed        []byte
	subscribeErr  error

	events         provider.Events
	connectCalls   int
	silentCalls    int
	signAttempts   int
	disconnectCall int
}

func (f *fakeProvider) Available(ctx context.Context) bool { return f.available }

func (f *fakeProvider) Session(ctx context.Context) (string, bool) {
	return f.heldAddress, f.heldAddress != ""
}

func (f *fakeProvider) Connect(ctx context.Context, opts provider.ConnectOpts) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if opts.SilentOnly {
		f.silentCalls++
		if f.silentErr != nil {
			return "", f.silentErr
		}
	} else {
		f.connectCalls++
		if f.connectErr != nil {
			return "", f.connectErr
		}
	}
	return f.connectAddr, nil
}

func (f *fakeProvider) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectCall++
	return f.disconnectErr
}

func (f *fakeProvider) SignTransfer(ctx context.Context, payload []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signAttempts++
	if f.signErr != nil {
		return nil, f.signErr
	}
	return f.signed, nil
}

func (f *fakeProvider) Subscribe(ctx context.Context, events provider.Events) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.events = events
	return nil
}

func (f *fakeProvider) Unsubscribe() {}

func newTestStore(t *testing.T) *persist.Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := persist.NewStore(filepath.Join(t.TempDir(), "session.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestManager(t *testing.T, prov provider.Provider, store *persist.Store) *Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := NewManager(prov, store, nil, logger)
	t.Cleanup(mgr.Close)
	return mgr
}

func TestInitialize_NoProvider(t *testing.T) {
	prov := &fakeProvider{available: false}
	store := newTestStore(t)
	mgr := newTestManager(t, prov, store)

	err := mgr.Initialize(context.Background())
	require.NoError(t, err)

	snap := mgr.Snapshot()
	assert.Equal(t, StatusNoProvider, snap.Status)
	assert.False(t, snap.ProviderPresent)
	assert.Empty(t, snap.Address)

	// No restore attempted and nothing persisted
	assert.Zero(t, prov.silentCalls)
	assert.Nil(t, store.Load())
}

func TestInitialize_NoStoredRecord(t *testing.T) {
	prov := &fakeProvider{available: true}
	store := newTestStore(t)
	mgr := newTestManager(t, prov, store)

	require.NoError(t, mgr.Initialize(context.Background()))

	snap := mgr.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.True(t, snap.ProviderPresent)
	assert.Zero(t, prov.silentCalls)
}

func TestInitialize_SilentRestoreSucceeds(t *testing.T) {
	prov := &fakeProvider{available: true, connectAddr: testAddress}
	store := newTestStore(t)
	savedAt := time.Now().Add(-2 * time.Hour)
	store.Save(testAddress, savedAt)

	mgr := newTestManager(t, prov, store)
	require.NoError(t, mgr.Initialize(context.Background()))

	snap := mgr.Snapshot()
	assert.Equal(t, StatusConnected, snap.Status)
	assert.Equal(t, testAddress, snap.Address)
	assert.Equal(t, 1, prov.silentCalls)

	// The persisted record's timestamp was refreshed
	rec := store.Load()
	require.NotNil(t, rec)
	assert.True(t, rec.SavedAt.After(savedAt))
}

func TestInitialize_AdoptsProviderHeldSession(t *testing.T) {
	prov := &fakeProvider{available: true, heldAddress: testAddress}
	store := newTestStore(t)
	store.Save(testAddress, time.Now().Add(-time.Hour))

	mgr := newTestManager(t, prov, store)
	require.NoError(t, mgr.Initialize(context.Background()))

	snap := mgr.Snapshot()
	assert.Equal(t, StatusConnected, snap.Status)
	assert.Equal(t, testAddress, snap.Address)

	// No silent connect needed; the provider already held the session
	assert.Zero(t, prov.silentCalls)
}

func TestInitialize_SilentRestoreFails_RecordRetained(t *testing.T) {
	prov := &fakeProvider{available: true, silentErr: provider.ErrSilentRestoreFailed}
	store := newTestStore(t)
	store.Save(testAddress, time.Now().Add(-time.Hour))

	mgr := newTestManager(t, prov, store)
	require.NoError(t, mgr.Initialize(context.Background()))

	snap := mgr.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Empty(t, snap.Address)
	assert.True(t, snap.ReconnectAvailable)
	assert.NotEmpty(t, snap.Err)

	// The record must NOT be cleared: the failure is "needs a human click"
	rec := store.Load()
	require.NotNil(t, rec)
	assert.Equal(t, testAddress, rec.Address)
}

func TestInitialize_StaleRecordSkipsRestore(t *testing.T) {
	prov := &fakeProvider{available: true, connectAddr: testAddress}
	store := newTestStore(t)
	store.Save(testAddress, time.Now().Add(-25*time.Hour))

	mgr := newTestManager(t, prov, store)
	require.NoError(t, mgr.Initialize(context.Background()))

	assert.Equal(t, StatusIdle, mgr.Snapshot().Status)
	assert.Zero(t, prov.silentCalls)
}

func TestConnect_Success(t *testing.T) {
	prov := &fakeProvider{available: true, connectAddr: testAddress}
	store := newTestStore(t)
	mgr := newTestManager(t, prov, store)
	require.NoError(t, mgr.Initialize(context.Background()))

	require.NoError(t, mgr.Connect(context.Background()))

	snap := mgr.Snapshot()
	assert.Equal(t, StatusConnected, snap.Status)
	assert.Equal(t, testAddress, snap.Address)

	rec := store.Load()
	require.NotNil(t, rec)
	assert.Equal(t, testAddress, rec.Address)
}

func TestConnect_NoProvider(t *testing.T) {
	prov := &fakeProvider{available: false}
	store := newTestStore(t)
	mgr := newTestManager(t, prov, store)
	require.NoError(t, mgr.Initialize(context.Background()))

	err := mgr.Connect(context.Background())
	assert.ErrorIs(t, err, provider.ErrNotAvailable)
	assert.Zero(t, prov.connectCalls)
}

func TestConnect_UserRejected_RecordRetained(t *testing.T) {
	prov := &fakeProvider{available: true, connectErr: provider.ErrUserRejected}
	store := newTestStore(t)
	store.Save(testAddress, time.Now().Add(-time.Hour))
	// Silent restore fails so initialization lands in Idle with the record kept
	prov.silentErr = provider.ErrSilentRestoreFailed

	mgr := newTestManager(t, prov, store)
	require.NoError(t, mgr.Initialize(context.Background()))

	err := mgr.Connect(context.Background())
	require.ErrorIs(t, err, provider.ErrUserRejected)

	snap := mgr.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Equal(t, "Connection rejected by user", snap.Err)
	assert.True(t, snap.ReconnectAvailable)

	// The user may retry; the record survives the rejection
	require.NotNil(t, store.Load())
}

func TestDisconnect_AlwaysClearsEvenWhenProviderFails(t *testing.T) {
	prov := &fakeProvider{
		available:     true,
		connectAddr:   testAddress,
		disconnectErr: errors.New("extension crashed"),
	}
	store := newTestStore(t)
	mgr := newTestManager(t, prov, store)
	require.NoError(t, mgr.Initialize(context.Background()))
	require.NoError(t, mgr.Connect(context.Background()))

	mgr.Disconnect(context.Background())

	snap := mgr.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Empty(t, snap.Address)
	assert.Nil(t, store.Load())
	assert.Equal(t, 1, prov.disconnectCall)
}

func TestSignTransfer_NotConnected(t *testing.T) {
	prov := &fakeProvider{available: true}
	store := newTestStore(t)
	mgr := newTestManager(t, prov, store)
	require.NoError(t, mgr.Initialize(context.Background()))

	_, err := mgr.SignTransfer(context.Background(), []byte("payload"))
	assert.ErrorIs(t, err, provider.ErrNotConnected)
	assert.Zero(t, prov.signAttempts)
}

func TestSignTransfer_Delegates(t *testing.T) {
	prov := &fakeProvider{available: true, connectAddr: testAddress, signed: []byte("signed")}
	store := newTestStore(t)
	mgr := newTestManager(t, prov, store)
	require.NoError(t, mgr.Initialize(context.Background()))
	require.NoError(t, mgr.Connect(context.Background()))

	signed, err := mgr.SignTransfer(context.Background(), []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, []byte("signed"), signed)
}

func TestEvent_AccountChangedAdoptsAddress(t *testing.T) {
	prov := &fakeProvider{available: true, connectAddr: testAddress}
	store := newTestStore(t)
	mgr := newTestManager(t, prov, store)
	require.NoError(t, mgr.Initialize(context.Background()))
	require.NoError(t, mgr.Connect(context.Background()))

	other := "4Nd1mY5jkQaPCm5BVYMUV2Z6JMN3EL5p1yzeYFYvF7pn"
	prov.events.OnAccountChanged(other)

	snap := mgr.Snapshot()
	assert.Equal(t, StatusConnected, snap.Status)
	assert.Equal(t, other, snap.Address)

	rec := store.Load()
	require.NotNil(t, rec)
	assert.Equal(t, other, rec.Address)
}

func TestEvent_AccountChangedEmptyRunsDisconnect(t *testing.T) {
	prov := &fakeProvider{available: true, connectAddr: testAddress}
	store := newTestStore(t)
	mgr := newTestManager(t, prov, store)
	require.NoError(t, mgr.Initialize(context.Background()))
	require.NoError(t, mgr.Connect(context.Background()))

	prov.events.OnAccountChanged("")

	assert.Equal(t, StatusIdle, mgr.Snapshot().Status)
	assert.Nil(t, store.Load())
}

func TestEvent_DuplicateDisconnectHarmless(t *testing.T) {
	prov := &fakeProvider{available: true, connectAddr: testAddress}
	store := newTestStore(t)
	mgr := newTestManager(t, prov, store)
	require.NoError(t, mgr.Initialize(context.Background()))
	require.NoError(t, mgr.Connect(context.Background()))

	prov.events.OnDisconnect()
	prov.events.OnDisconnect()

	snap := mgr.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Nil(t, store.Load())
	// Only the first event triggered the provider-side call
	assert.Equal(t, 1, prov.disconnectCall)
}

func TestEvent_DisconnectKeepsReconnectRecord(t *testing.T) {
	prov := &fakeProvider{available: true, silentErr: provider.ErrSilentRestoreFailed}
	store := newTestStore(t)
	store.Save(testAddress, time.Now().Add(-time.Hour))

	mgr := newTestManager(t, prov, store)
	require.NoError(t, mgr.Initialize(context.Background()))
	require.True(t, mgr.Snapshot().ReconnectAvailable)

	// A stray disconnect while idle must not destroy the retained record
	prov.events.OnDisconnect()

	require.NotNil(t, store.Load())
}

func TestWatch_ObservesTransitions(t *testing.T) {
	prov := &fakeProvider{available: true, connectAddr: testAddress}
	store := newTestStore(t)
	mgr := newTestManager(t, prov, store)

	var mu sync.Mutex
	var statuses []Status
	mgr.Watch(func(s Session) {
		mu.Lock()
		statuses = append(statuses, s.Status)
		mu.Unlock()
	})

	require.NoError(t, mgr.Initialize(context.Background()))
	require.NoError(t, mgr.Connect(context.Background()))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) > 0 && statuses[len(statuses)-1] == StatusConnected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestInitialize_SubscribeFailureReachesErrorAndRetries(t *testing.T) {
	prov := &fakeProvider{available: true, subscribeErr: errors.New("events endpoint down")}
	store := newTestStore(t)
	mgr := newTestManager(t, prov, store)

	err := mgr.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusError, mgr.Snapshot().Status)

	// Recovery: retrying initialization succeeds once the failure clears
	prov.mu.Lock()
	prov.subscribeErr = nil
	prov.mu.Unlock()
	require.NoError(t, mgr.Initialize(context.Background()))
	assert.Equal(t, StatusIdle, mgr.Snapshot().Status)
}
