package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Provider error codes used by wallet bridges, mirroring the codes the
// Phantom extension reports.
const (
	codeUserRejected = 4001
	codeDisconnected = 4900
)

const (
	// pingInterval is how often the event subscription pings the bridge.
	pingInterval = 30 * time.Second

	// pongWait is how long to wait for a pong before the subscription is
	// considered dead.
	pongWait = 90 * time.Second
)

// Bridge talks to an external wallet-bridge daemon over HTTP, with a
// websocket for provider-emitted events. The bridge exposes the same
// contract as an injected extension provider: connect, disconnect, sign,
// and accountChanged/disconnect/connect events.
type Bridge struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
	closing bool
}

// NewBridge creates a new wallet-bridge adapter.
func NewBridge(baseURL string, httpClient *http.Client, logger *slog.Logger) *Bridge {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Bridge{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// errorResponse is the bridge's error body.
type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// Available reports whether the bridge daemon is reachable.
// Never returns an error: a missing or unreachable bridge is simply absent.
func (b *Bridge) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", b.baseURL+"/v1/health", nil)
	if err != nil {
		return false
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// Session returns the address of a connection the bridge is already holding.
// Some providers retain connection state across restarts independent of this
// application's storage.
func (b *Bridge) Session(ctx context.Context) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, "GET", b.baseURL+"/v1/session", nil)
	if err != nil {
		return "", false
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	var body struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		b.logger.Debug("failed to decode session response", "error", err)
		return "", false
	}

	return body.Address, body.Address != ""
}

// Connect requests a session from the bridge and returns the granted address.
func (b *Bridge) Connect(ctx context.Context, opts ConnectOpts) (string, error) {
	reqBody := map[string]interface{}{
		"silent_only": opts.SilentOnly,
		"request_id":  uuid.New().String(),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.baseURL+"/v1/connect", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if opts.SilentOnly {
			return "", fmt.Errorf("%w: %v", ErrSilentRestoreFailed, err)
		}
		return "", fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errResp := decodeError(resp)
		// A failed trusted-only connect means no prior grant, whatever the
		// bridge's reason; the caller must not treat it as a rejection.
		if opts.SilentOnly {
			return "", fmt.Errorf("%w: %s", ErrSilentRestoreFailed, errResp.Error)
		}
		if errResp.Code == codeUserRejected {
			return "", fmt.Errorf("%w: %s", ErrUserRejected, errResp.Error)
		}
		return "", fmt.Errorf("connect failed: %s", errResp.Error)
	}

	var connectResp struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&connectResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if connectResp.Address == "" {
		return "", fmt.Errorf("connect succeeded but no address returned")
	}

	b.logger.Debug("wallet connected", "address", connectResp.Address, "silent", opts.SilentOnly)
	return connectResp.Address, nil
}

// Disconnect ends the bridge-side session.
func (b *Bridge) Disconnect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "POST", b.baseURL+"/v1/disconnect", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		errResp := decodeError(resp)
		return fmt.Errorf("disconnect failed: %s", errResp.Error)
	}

	b.logger.Debug("wallet disconnected")
	return nil
}

// SignTransfer sends a serialized transaction to the bridge for signing and
// returns the signed bytes.
func (b *Bridge) SignTransfer(ctx context.Context, payload []byte) ([]byte, error) {
	reqBody := map[string]interface{}{
		"transaction": base64.StdEncoding.EncodeToString(payload),
		"request_id":  uuid.New().String(),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.baseURL+"/v1/sign", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errResp := decodeError(resp)
		switch errResp.Code {
		case codeUserRejected:
			return nil, fmt.Errorf("%w: %s", ErrSigningRejected, errResp.Error)
		case codeDisconnected:
			return nil, fmt.Errorf("%w: %s", ErrNotConnected, errResp.Error)
		}
		return nil, fmt.Errorf("sign failed: %s", errResp.Error)
	}

	var signResp struct {
		SignedTransaction string `json:"signed_transaction"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&signResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	signed, err := base64.StdEncoding.DecodeString(signResp.SignedTransaction)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signed transaction: %w", err)
	}

	return signed, nil
}

// eventFrame is a single provider event delivered over the websocket.
type eventFrame struct {
	Event   string `json:"event"`
	Address string `json:"address,omitempty"`
}

// Subscribe opens the event websocket and dispatches provider events to the
// given callbacks until Unsubscribe is called or the connection drops.
func (b *Bridge) Subscribe(ctx context.Context, events Events) error {
	b.Unsubscribe()

	wsURL, err := eventsURL(b.baseURL)
	if err != nil {
		return fmt.Errorf("failed to build events URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial events endpoint: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.done = make(chan struct{})
	b.closing = false
	done := b.done
	b.mu.Unlock()

	go b.readPump(conn, events, done)
	go b.pingLoop(conn, done)

	return nil
}

// Unsubscribe closes the event websocket and waits for the read pump to exit.
func (b *Bridge) Unsubscribe() {
	b.mu.Lock()
	conn := b.conn
	done := b.done
	b.closing = true
	b.conn = nil
	b.mu.Unlock()

	if conn == nil {
		return
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = conn.Close()
	if done != nil {
		<-done
	}
}

// readPump reads event frames from the websocket and dispatches callbacks.
func (b *Bridge) readPump(conn *websocket.Conn, events Events, done chan struct{}) {
	defer close(done)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame eventFrame
		if err := conn.ReadJSON(&frame); err != nil {
			b.mu.Lock()
			closing := b.closing
			b.mu.Unlock()
			if !closing && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Warn("event subscription closed unexpectedly", "error", err)
				// Treat an unexpected drop as the provider going away.
				if events.OnDisconnect != nil {
					events.OnDisconnect()
				}
			}
			return
		}

		switch frame.Event {
		case "accountChanged":
			if events.OnAccountChanged != nil {
				events.OnAccountChanged(frame.Address)
			}
		case "disconnect":
			if events.OnDisconnect != nil {
				events.OnDisconnect()
			}
		case "connect":
			if events.OnConnect != nil {
				events.OnConnect(frame.Address)
			}
		default:
			b.logger.Debug("ignoring unknown provider event", "event", frame.Event)
		}
	}
}

// pingLoop keeps the event subscription alive.
func (b *Bridge) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

// eventsURL converts the bridge base URL to the websocket events URL.
func eventsURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/events"
	return u.String(), nil
}

// decodeError parses a bridge error response, tolerating malformed bodies.
func decodeError(resp *http.Response) errorResponse {
	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error == "" {
		errResp.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return errResp
}
