package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ClientConfig configures WebSocket client behavior.
type ClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultClientConfig returns default WebSocket configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Client consumes a commit feed and reconnects with exponential backoff.
// Events published while disconnected are not replayed.
type Client struct {
	endpoint string
	config   ClientConfig
	logger   zerolog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	events chan CommitEvent
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewClient connects to endpoint, optionally filtered to symbol.
func NewClient(ctx context.Context, endpoint, symbol string, config *ClientConfig, logger zerolog.Logger) (*Client, error) {
	cfg := DefaultClientConfig()
	if config != nil {
		cfg = *config
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	if symbol != "" {
		q := u.Query()
		q.Set("symbol", symbol)
		u.RawQuery = q.Encode()
	}

	c := &Client{
		endpoint: u.String(),
		config:   cfg,
		logger:   logger.With().Str("component", "feed-client").Logger(),
		events:   make(chan CommitEvent, 1024),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// Events returns the event stream. It is closed by Close.
func (c *Client) Events() <-chan CommitEvent {
	return c.events
}

// connect establishes WebSocket connection.
func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.closed.Load() {
		conn.Close()
		return nil
	}
	c.conn = conn
	return nil
}

// Close closes the connection and the event stream.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	close(c.events)
	return nil
}

// readLoop decodes events and reconnects on read errors.
func (c *Client) readLoop() {
	defer c.wg.Done()

	delay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if !c.reconnect(delay) {
				return
			}
			delay = nextDelay(delay, c.config.MaxReconnectDelay)
			continue
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Warn().Err(err).Dur("retry_in", delay).Msg("feed connection lost")

			c.connMu.Lock()
			if c.conn == conn {
				c.conn.Close()
				c.conn = nil
			}
			c.connMu.Unlock()
			continue
		}

		// Reset delay on successful read
		delay = c.config.ReconnectDelay

		var ev CommitEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			c.logger.Warn().Err(err).Msg("undecodable feed message")
			continue
		}

		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

// reconnect waits delay and dials again. Returns false once closed.
func (c *Client) reconnect(delay time.Duration) bool {
	select {
	case <-c.done:
		return false
	case <-time.After(delay):
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("feed reconnect failed")
		return !c.closed.Load()
	}
	c.logger.Info().Str("endpoint", c.endpoint).Msg("feed reconnected")
	return !c.closed.Load()
}

func nextDelay(delay, max time.Duration) time.Duration {
	delay *= 2
	if delay > max {
		delay = max
	}
	return delay
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A failed ping surfaces as a read error
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}
