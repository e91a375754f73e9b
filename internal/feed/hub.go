package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/observability"
)

// HubConfig configures subscriber connections.
type HubConfig struct {
	// SendBuffer is the number of events queued per subscriber before drops.
	SendBuffer int
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// ReadTimeout is how long a subscriber may stay silent, pongs included.
	ReadTimeout time.Duration
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendBuffer:   256,
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  60 * time.Second,
	}
}

// Hub fans out commits to websocket subscribers. It is a ledger commit
// observer; delivery never blocks the committing goroutine, so a subscriber
// that falls SendBuffer events behind loses events.
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

type subscriber struct {
	symbol string // empty receives every symbol
	send   chan []byte
}

// NewHub creates a Hub. A nil config uses DefaultHubConfig.
func NewHub(config *HubConfig, logger zerolog.Logger) *Hub {
	cfg := DefaultHubConfig()
	if config != nil {
		cfg = *config
	}
	return &Hub{
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "feed").Logger(),
		subs:   make(map[*subscriber]struct{}),
		done:   make(chan struct{}),
	}
}

// OnCommit publishes c to matching subscribers.
func (h *Hub) OnCommit(_ context.Context, c *domain.Commit) error {
	msg, err := json.Marshal(EventFromCommit(c))
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs {
		if s.symbol != "" && s.symbol != c.Symbol {
			continue
		}
		select {
		case s.send <- msg:
		default:
			observability.RecordFeedDrop()
			h.logger.Warn().Str("commit_id", c.ID).Msg("subscriber too slow, event dropped")
		}
	}
	return nil
}

// ServeHTTP upgrades the request and streams commits until the peer leaves.
// The optional "symbol" query parameter filters the stream.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := h.subscribe(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol"))), 2)
	if sub == nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go h.writeLoop(conn, sub)
	go h.readLoop(conn, sub)
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects all subscribers and waits for their goroutines.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.done)
	h.mu.Unlock()

	h.wg.Wait()
	return nil
}

// subscribe registers a subscriber served by the given number of goroutines,
// which Close waits for. Returns nil once the hub is closed.
func (h *Hub) subscribe(symbol string, goroutines int) *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.wg.Add(goroutines)
	s := &subscriber{symbol: symbol, send: make(chan []byte, h.config.SendBuffer)}
	h.subs[s] = struct{}{}
	observability.UpdateFeedSubscribers(len(h.subs))
	return s
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.send)
		observability.UpdateFeedSubscribers(len(h.subs))
	}
}

// writeLoop delivers queued events and periodic pings.
func (h *Hub) writeLoop(conn *websocket.Conn, s *subscriber) {
	defer h.wg.Done()
	defer conn.Close()

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unsubscribe(s)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unsubscribe(s)
				return
			}
		case <-h.done:
			h.unsubscribe(s)
			conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return
		}
	}
}

// readLoop discards client frames and detects disconnects.
func (h *Hub) readLoop(conn *websocket.Conn, s *subscriber) {
	defer h.wg.Done()
	defer h.unsubscribe(s)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
