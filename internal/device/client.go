package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/oshokin/sos-relay/internal/config"
	"github.com/oshokin/sos-relay/internal/logger"
	"github.com/oshokin/sos-relay/internal/protocol"
)

// ErrUnreachable is surfaced once the reconnection attempt cap is
// exhausted. No further automatic retries happen after it; recovery
// requires an explicit restart.
var ErrUnreachable = errors.New("relay is unreachable")

// Client is the device's websocket channel to the relay.
type Client struct {
	// url is the relay websocket endpoint.
	url string
	// writeTimeout bounds a single outbound write.
	writeTimeout time.Duration
	// baseDelay is the first reconnection delay.
	baseDelay time.Duration
	// maxDelay caps the doubling reconnection delay.
	maxDelay time.Duration
	// maxAttempts bounds reconnection attempts before giving up.
	maxAttempts int

	// mu protects the connection handle.
	mu sync.Mutex
	// conn is the live websocket, nil while disconnected.
	conn *websocket.Conn
}

// ClientOption configures client behaviour.
type ClientOption func(*Client)

// WithWriteTimeout sets the per-write timeout.
func WithWriteTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.writeTimeout = timeout
		}
	}
}

// WithBackoff tunes the reconnection schedule.
func WithBackoff(base, maxDelay time.Duration, attempts int) ClientOption {
	return func(c *Client) {
		if base > 0 {
			c.baseDelay = base
		}

		if maxDelay >= c.baseDelay {
			c.maxDelay = maxDelay
		}

		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

// NewClient creates a disconnected client for the given relay address.
func NewClient(serverAddress string, opts ...ClientOption) *Client {
	c := &Client{
		url:          "ws://" + serverAddress + "/ws",
		writeTimeout: config.DefaultTimeout,
		baseDelay:    config.DefaultReconnectBaseDelay,
		maxDelay:     config.DefaultReconnectMaxDelay,
		maxAttempts:  config.DefaultReconnectMaxAttempts,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Connect dials the relay once.
func (c *Client) Connect(ctx context.Context) error {
	//nolint:bodyclose // The response body is hijacked by the websocket handshake.
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	return nil
}

// ConnectWithRetry dials the relay with a doubling backoff delay up to the
// attempt cap. Exhausting the cap returns ErrUnreachable; no retry loop
// continues past it.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	delay := c.baseDelay

	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		lastErr = c.Connect(ctx)
		if lastErr == nil {
			if attempt > 1 {
				logger.InfoKV(ctx, "Reconnected to relay", "attempt", attempt)
			}

			return nil
		}

		if attempt == c.maxAttempts {
			break
		}

		logger.WarnKV(ctx, "Relay connection failed, retrying",
			"attempt", attempt,
			"delay", delay.String(),
			"error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrUnreachable, c.maxAttempts, lastErr)
}

// Connected reports whether the channel currently has a live connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn != nil
}

// Send writes one envelope, bounded by the write timeout.
func (c *Client) Send(ctx context.Context, env *protocol.Envelope) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	if err := wsjson.Write(writeCtx, conn, env); err != nil {
		return fmt.Errorf("send %s: %w", env.Type, err)
	}

	return nil
}

// Read blocks for the next inbound envelope. A failed read marks the
// client disconnected.
func (c *Client) Read(ctx context.Context) (*protocol.Envelope, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil, ErrNotConnected
	}

	var env protocol.Envelope

	if err := wsjson.Read(ctx, conn, &env); err != nil {
		c.markDisconnected(conn)

		return nil, fmt.Errorf("read event: %w", err)
	}

	return &env, nil
}

// Close releases the current connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	return conn.Close(websocket.StatusNormalClosure, "closed")
}

// markDisconnected clears the handle if it still refers to the failed
// connection.
func (c *Client) markDisconnected(failed *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == failed {
		c.conn = nil
	}
}
