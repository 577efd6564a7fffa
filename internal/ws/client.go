package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrDisconnected is returned for requests that cannot be answered because
// the connection is down or dropped while they were in flight
var ErrDisconnected = errors.New("trade engine connection lost")

// ConnectionState WebSocket connection state
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateClosed
)

// String returns the string representation of the state
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Client is a request/response connection to the trade engine server.
// Replies are matched to requests by message ID.
type Client interface {
	// Connect dials the server; lost connections are redialed until Close
	Connect(ctx context.Context) error
	// Close closes the connection and fails in-flight requests
	Close() error
	// Request sends a message and waits for the reply carrying the same ID
	Request(ctx context.Context, msgType MessageType, payload any) (*Message, error)
	// SetReconnectedHandler sets the callback run after a successful redial
	SetReconnectedHandler(handler func())
	// State gets current connection state
	State() ConnectionState
}

// Config WebSocket client configuration
type Config struct {
	ServerURL            string        // WebSocket server address
	APIToken             string        // API Token (JWT, for authentication)
	ReconnectInterval    time.Duration // Base reconnection interval
	MaxReconnectAttempts int           // Maximum reconnection attempts (0=unlimited)
	HeartbeatInterval    time.Duration // Ping interval
	ReadTimeout          time.Duration // Connection is dropped after this long without a frame
	WriteTimeout         time.Duration // Write timeout
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: 0, // Unlimited reconnection
		HeartbeatInterval:    30 * time.Second,
		ReadTimeout:          90 * time.Second,
		WriteTimeout:         10 * time.Second,
	}
}

type client struct {
	config *Config
	logger *slog.Logger
	state  atomic.Int32

	mu          sync.Mutex
	conn        *websocket.Conn
	pending     map[string]chan *Message
	reconnected func()
	ctx         context.Context
	cancel      context.CancelFunc

	writeMu sync.Mutex // gorilla allows one concurrent writer
	wg      sync.WaitGroup
}

// NewClient creates a new WebSocket client
func NewClient(config *Config, logger *slog.Logger) Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &client{
		config:  config,
		logger:  logger.With("component", "EngineConn"),
		pending: make(map[string]chan *Message),
	}
	c.state.Store(int32(StateDisconnected))
	return c
}

// Connect establishes WebSocket connection. ctx bounds the dial only; the
// client lives until Close.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.ctx != nil {
		c.mu.Unlock()
		return fmt.Errorf("client already connected or connecting")
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		c.mu.Lock()
		c.cancel()
		c.ctx, c.cancel = nil, nil
		c.mu.Unlock()
		return err
	}
	c.attach(conn)
	return nil
}

func (c *client) dial(ctx context.Context) (*websocket.Conn, error) {
	c.setState(StateConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{}
	if c.config.APIToken != "" {
		header.Set("Authorization", "Bearer "+c.config.APIToken)
	}

	conn, resp, err := dialer.DialContext(ctx, c.config.ServerURL, header)
	if err != nil {
		if resp != nil {
			c.logger.Error("WebSocket dial failed", "status", resp.StatusCode, "url", c.config.ServerURL, "error", err)
		} else {
			c.logger.Error("WebSocket dial failed", "url", c.config.ServerURL, "error", err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// attach makes conn the live connection and starts its reader and pinger
func (c *client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	extend := func() error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}
	_ = extend()
	conn.SetPongHandler(func(string) error { return extend() })

	done := make(chan struct{})
	c.wg.Add(2)
	go c.readLoop(conn, extend, done)
	go c.keepalive(conn, done)

	c.setState(StateConnected)
	c.logger.Info("WebSocket connected", "url", c.config.ServerURL)
}

// readLoop delivers replies until conn fails; done is closed on exit
func (c *client) readLoop(conn *websocket.Conn, extend func() error, done chan struct{}) {
	defer c.wg.Done()
	defer close(done)

	for {
		wsMsgType, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("WebSocket closed by server")
			} else {
				c.logger.Error("WebSocket read error", "error", err)
			}
			c.drop(conn)
			return
		}
		_ = extend()

		if wsMsgType != websocket.TextMessage {
			c.logger.Warn("Received non-text message", "type", wsMsgType)
			continue
		}
		msg := &Message{}
		if err := json.Unmarshal(data, msg); err != nil {
			c.logger.Error("Failed to unmarshal message", "error", err)
			continue
		}
		c.deliver(msg)
	}
}

func (c *client) deliver(msg *Message) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.mu.Unlock()

	if !ok {
		// Late reply to an abandoned request, or an unsolicited push
		c.logger.Debug("Dropping uncorrelated message", "type", msg.Type, "id", msg.ID)
		return
	}
	ch <- msg
}

// drop discards a failed connection, fails its in-flight requests and
// starts redialing
func (c *client) drop(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	pending := c.pending
	c.pending = make(map[string]chan *Message)
	c.mu.Unlock()

	_ = conn.Close()
	for _, ch := range pending {
		close(ch)
	}
	c.setState(StateDisconnected)

	c.wg.Add(1)
	go c.reconnectLoop()
}

// Close closes the connection
func (c *client) Close() error {
	c.mu.Lock()
	if c.cancel == nil || c.ctx.Err() != nil {
		c.mu.Unlock()
		return nil
	}
	c.cancel()
	conn := c.conn
	c.conn = nil
	pending := c.pending
	c.pending = make(map[string]chan *Message)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		_ = conn.Close()
	}

	// Wait for all goroutines to finish
	c.wg.Wait()

	c.setState(StateClosed)
	c.logger.Info("WebSocket connection closed")
	return nil
}

// Request sends a message and waits for its reply. Cancelling ctx abandons
// the request; a late reply is dropped.
func (c *client) Request(ctx context.Context, msgType MessageType, payload any) (*Message, error) {
	id := uuid.New().String()
	msg, err := NewMessage(msgType, id, payload)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	ch := make(chan *Message, 1)
	c.mu.Lock()
	conn := c.conn
	if conn == nil || c.ctx == nil || c.ctx.Err() != nil {
		c.mu.Unlock()
		return nil, ErrDisconnected
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(conn, data); err != nil {
		return nil, fmt.Errorf("failed to write message: %w", err)
	}
	c.logger.Debug("Request sent", "type", msgType, "id", id)

	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, ErrDisconnected
		}
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// write sends one text frame. A failed write closes conn so the read loop
// notices and redials.
func (c *client) write(conn *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		_ = conn.Close()
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		_ = conn.Close()
		return err
	}
	return nil
}

// SetReconnectedHandler sets the reconnection success callback
func (c *client) SetReconnectedHandler(handler func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnected = handler
}

// State gets current connection state
func (c *client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

func (c *client) setState(state ConnectionState) {
	old := ConnectionState(c.state.Swap(int32(state)))
	if old != state {
		c.logger.Info("WebSocket state changed", "from", old.String(), "to", state.String())
	}
}

// reconnectLoop redials with exponential backoff until it succeeds, the
// attempt limit is hit or the client is closed
func (c *client) reconnectLoop() {
	defer c.wg.Done()

	b := newBackoff(c.config)
	for {
		interval, ok := b.next()
		if !ok {
			c.logger.Error("Max reconnect attempts reached, giving up", "attempts", b.attempts())
			return
		}
		c.logger.Info("Reconnecting", "interval", interval, "attempt", b.attempts())

		select {
		case <-time.After(interval):
		case <-c.ctx.Done():
			return
		}

		conn, err := c.dial(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.setState(StateDisconnected)
			c.logger.Error("Reconnect failed", "error", err)
			continue
		}
		c.attach(conn)

		c.mu.Lock()
		handler := c.reconnected
		c.mu.Unlock()
		if handler != nil {
			c.logger.Info("WebSocket reconnected, invoking reconnected handler")
			go handler()
		}
		return
	}
}
