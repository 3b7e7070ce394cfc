package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher defines the interface for publishing dashboard events to NATS.
type Publisher interface {
	// PublishSession publishes a session state change to JetStream.
	// The event is published to the subject "soldash.session".
	PublishSession(ctx context.Context, event *SessionEvent) error

	// PublishActivity publishes a batch of recent transactions.
	// Each event goes to "soldash.activity.{wallet_address}".
	PublishActivity(ctx context.Context, events []*ActivityEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes dashboard events to NATS JetStream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for dashboard events.
	StreamName = "SOLDASH"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "soldash.>"

	// SessionSubject carries session state changes.
	SessionSubject = "soldash.session"

	// StreamRetention is how long messages are retained (7 days by default).
	StreamRetention = 7 * 24 * time.Hour
)

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("soldash-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:     nc,
		js:     js,
		logger: logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Wallet session and activity events",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	_, err = p.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishSession publishes a session state change.
func (p *JetStreamPublisher) PublishSession(ctx context.Context, event *SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	_, err = p.js.Publish(ctx, SessionSubject, data)
	if err != nil {
		return fmt.Errorf("failed to publish session event: %w", err)
	}

	p.logger.Debug("published session event",
		"subject", SessionSubject,
		"status", event.Status,
	)

	return nil
}

// PublishActivity publishes a batch of activity events.
func (p *JetStreamPublisher) PublishActivity(ctx context.Context, events []*ActivityEvent) error {
	if len(events) == 0 {
		return nil
	}

	for _, event := range events {
		subject := fmt.Sprintf("soldash.activity.%s", event.WalletAddress)

		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal activity event: %w", err)
		}

		if _, err := p.js.Publish(ctx, subject, data); err != nil {
			// Log error but continue with other events
			p.logger.Error("failed to publish activity event",
				"signature", event.Signature,
				"wallet", event.WalletAddress,
				"error", err,
			)
			continue
		}
	}

	p.logger.Debug("published activity batch",
		"count", len(events),
	)

	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
