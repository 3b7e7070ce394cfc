package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu             sync.RWMutex
	sessionEvents  []*SessionEvent
	activityEvents []*ActivityEvent
	sessionError   error
	activityError  error
	closed         bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		sessionEvents:  make([]*SessionEvent, 0),
		activityEvents: make([]*ActivityEvent, 0),
	}
}

// PublishSession records the event and returns any configured error.
func (m *MockPublisher) PublishSession(ctx context.Context, event *SessionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionError != nil {
		return m.sessionError
	}

	m.sessionEvents = append(m.sessionEvents, event)
	return nil
}

// PublishActivity records the events and returns any configured error.
func (m *MockPublisher) PublishActivity(ctx context.Context, events []*ActivityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activityError != nil {
		return m.activityError
	}

	m.activityEvents = append(m.activityEvents, events...)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetSessionEvents returns all published session events (for testing).
func (m *MockPublisher) GetSessionEvents() []*SessionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*SessionEvent, len(m.sessionEvents))
	copy(events, m.sessionEvents)
	return events
}

// GetActivityEvents returns all published activity events (for testing).
func (m *MockPublisher) GetActivityEvents() []*ActivityEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*ActivityEvent, len(m.activityEvents))
	copy(events, m.activityEvents)
	return events
}

// GetActivityEventsForWallet returns activity events for a specific wallet.
func (m *MockPublisher) GetActivityEventsForWallet(address string) []*ActivityEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*ActivityEvent, 0)
	for _, event := range m.activityEvents {
		if event.WalletAddress == address {
			events = append(events, event)
		}
	}
	return events
}

// SetSessionError configures the mock to return an error on PublishSession.
func (m *MockPublisher) SetSessionError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionError = err
}

// SetActivityError configures the mock to return an error on PublishActivity.
func (m *MockPublisher) SetActivityError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activityError = err
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
