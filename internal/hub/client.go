package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"staff-sync/internal/models"
	"staff-sync/internal/util"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TokenSource supplies the bearer token attached at connection-build time.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Handler receives the raw payload of one hub event.
type Handler func(data json.RawMessage)

// Connection states reported through OnStateChange.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateError        = "error"
)

// reconnectSchedule is the fixed escalating backoff applied after a dropped
// connection; the last delay repeats indefinitely until Disconnect.
var reconnectSchedule = []time.Duration{0, 2 * time.Second, 10 * time.Second, 30 * time.Second}

const (
	handshakeTimeout = 10 * time.Second
	readWait         = 90 * time.Second
	pingInterval     = 30 * time.Second
)

// Client maintains at most one live hub connection for a logical channel and
// dispatches incoming events to registered handlers. Handlers survive
// transport-level reconnects; only an explicit Disconnect clears them.
type Client struct {
	channel string
	baseURL string
	tokens  TokenSource
	logger  *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	handlers  map[string]Handler
	connected bool
	done      chan struct{}
	gen       int
	query     url.Values
	onState   func(state string, err error)
}

// NewClient creates a manager for one channel purpose. channel is used for
// logging and metrics only; baseURL is the ws endpoint for this channel.
func NewClient(channel, baseURL string, tokens TokenSource) *Client {
	return &Client{
		channel:  channel,
		baseURL:  baseURL,
		tokens:   tokens,
		logger:   util.GetLogger(),
		handlers: make(map[string]Handler),
	}
}

// OnStateChange registers an observer for connection state transitions.
func (c *Client) OnStateChange(fn func(state string, err error)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Client) notifyState(state string, err error) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(state, err)
	}
}

// Connect establishes the transport. Idempotent: when a connection is
// already open it returns without creating a second one. An initial dial
// failure is returned to the caller and not retried here; the automatic
// reconnect policy only governs drops after a successful connect.
func (c *Client) Connect(ctx context.Context, query url.Values) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.query = query
	c.mu.Unlock()

	c.notifyState(StateConnecting, nil)

	conn, err := c.dial(ctx, query)
	if err != nil {
		c.notifyState(StateError, err)
		return fmt.Errorf("hub connect %s: %w", c.channel, err)
	}

	c.mu.Lock()
	if c.conn != nil {
		// Lost the race against a concurrent Connect; keep the first.
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	c.connected = true
	if c.done != nil {
		// Stop a reconnect loop still waiting out its backoff for the
		// previous connection.
		select {
		case <-c.done:
		default:
			close(c.done)
		}
	}
	c.done = make(chan struct{})
	c.gen++
	gen := c.gen
	done := c.done
	c.mu.Unlock()

	util.HubConnectsTotal.WithLabelValues(c.channel).Inc()
	c.logger.Info("Hub connected", zap.String("channel", c.channel))
	c.notifyState(StateConnected, nil)

	go c.readLoop(conn, gen)
	go c.pingLoop(conn, done)
	return nil
}

func (c *Client) dial(ctx context.Context, query url.Values) (*websocket.Conn, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("access token: %w", err)
	}

	target := c.baseURL
	if len(query) > 0 {
		target = fmt.Sprintf("%s?%s", c.baseURL, query.Encode())
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Disconnect stops the transport, clears every registered handler and
// releases the handle so a future Connect creates a fresh connection.
// Safe to call when already disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.done != nil {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
		c.done = nil
	}
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.handlers = make(map[string]Handler)
	c.gen++
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.notifyState(StateDisconnected, nil)
}

// On registers exactly one handler per event name; registering the same
// event again replaces the prior handler rather than double-dispatching.
func (c *Client) On(event string, handler func(data json.RawMessage)) {
	c.mu.Lock()
	c.handlers[event] = handler
	c.mu.Unlock()
}

// Off removes a registered handler; no-op when absent.
func (c *Client) Off(event string) {
	c.mu.Lock()
	delete(c.handlers, event)
	c.mu.Unlock()
}

// Channel returns the logical channel purpose this client serves.
func (c *Client) Channel() string {
	return c.channel
}

// IsConnected reflects live transport state, not merely that a connect was
// attempted.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(gen, err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))

		var env models.HubEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("Dropping malformed hub frame",
				zap.String("channel", c.channel),
				zap.Error(err))
			continue
		}

		c.mu.Lock()
		handler := c.handlers[env.Event]
		c.mu.Unlock()

		if handler == nil {
			c.logger.Debug("No handler for hub event",
				zap.String("channel", c.channel),
				zap.String("event", env.Event))
			continue
		}
		util.HubEventsReceivedTotal.WithLabelValues(c.channel, env.Event).Inc()
		handler(env.Data)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(handshakeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// handleDrop transitions a dropped connection into the reconnect loop,
// unless the drop was caused by an explicit Disconnect.
func (c *Client) handleDrop(gen int, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		// A Disconnect or newer connection superseded this loop.
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.connected = false
	done := c.done
	query := c.query
	c.mu.Unlock()

	c.logger.Warn("Hub connection dropped",
		zap.String("channel", c.channel),
		zap.Error(cause))
	c.notifyState(StateError, cause)

	go c.reconnectLoop(done, query, gen)
}

// reconnectLoop re-dials on the backoff schedule until it reinstalls a
// connection or is superseded: a Disconnect, or a caller re-invoking
// Connect during the backoff window, advances the generation and this
// loop must not install a second transport over theirs.
func (c *Client) reconnectLoop(done chan struct{}, query url.Values, dropGen int) {
	for attempt := 0; ; attempt++ {
		idx := attempt
		if idx >= len(reconnectSchedule) {
			idx = len(reconnectSchedule) - 1
		}
		select {
		case <-done:
			return
		case <-time.After(reconnectSchedule[idx]):
		}

		c.mu.Lock()
		if c.gen != dropGen {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		util.HubReconnectsTotal.WithLabelValues(c.channel).Inc()

		ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
		conn, err := c.dial(ctx, query)
		cancel()
		if err != nil {
			c.logger.Warn("Hub reconnect attempt failed",
				zap.String("channel", c.channel),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}

		c.mu.Lock()
		if c.gen != dropGen || c.conn != nil {
			// Superseded while dialing; keep the caller's connection.
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.connected = true
		c.gen++
		gen := c.gen
		c.mu.Unlock()

		util.HubConnectsTotal.WithLabelValues(c.channel).Inc()
		c.logger.Info("Hub reconnected",
			zap.String("channel", c.channel),
			zap.Int("attempts", attempt+1))
		c.notifyState(StateConnected, nil)

		go c.readLoop(conn, gen)
		go c.pingLoop(conn, done)
		return
	}
}
