package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shiftgrid/realtime/internal/model"
)

var (
	// ErrNotConnected is returned by Send before Connect or after the
	// connection dropped.
	ErrNotConnected = errors.New("socket: not connected")

	// ErrAlreadyClosed is returned by Connect after Close.
	ErrAlreadyClosed = errors.New("socket: already closed")

	// ErrStaleConnection is reported when no pong arrived within the
	// configured window. A soft signal: the manager decides whether to
	// reconnect.
	ErrStaleConnection = errors.New("socket: no pong received, connection stale")
)

// Message is an inbound envelope with its local receive timestamp.
type Message struct {
	Envelope   model.Envelope
	ReceivedAt time.Time
}

// Config holds socket client settings.
type Config struct {
	URL               string        // full updates endpoint URL, token included
	HeartbeatInterval time.Duration // outbound ping period
	PongTimeout       time.Duration // staleness window; should exceed HeartbeatInterval
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	BufferSize        int
}

// Client is a single WebSocket connection to the updates endpoint.
type Client struct {
	cfg    Config
	logger *slog.Logger

	conn *websocket.Conn

	messages chan Message
	errors   chan error
	done     chan struct{}

	writeMu sync.Mutex

	mu         sync.RWMutex
	connected  bool
	closed     bool
	suspended  bool // heartbeat suspended (page hidden); connection stays open
	lastPongAt time.Time
}

// BuildURL constructs the socket endpoint for an identity. The bearer
// credential travels as a query parameter on the upgrade request.
func BuildURL(wsBase string, id model.Identity, token string) string {
	return fmt.Sprintf("%s/%s/%s/updates?token=%s",
		wsBase, id.Role, id.ID, url.QueryEscape(token))
}

// NewClient creates a socket client. Connect must be called before Send.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan Message, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and
// heartbeat loops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastPongAt = time.Now()
	c.mu.Unlock()

	go c.readLoop()
	go c.heartbeatLoop()

	c.logger.Debug("socket connected")

	return nil
}

// Close gracefully closes the connection. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	close(c.done)

	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return c.conn.Close()
	}

	return nil
}

// Send marshals and writes an envelope to the connection.
func (c *Client) Send(env model.Envelope) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	c.mu.RUnlock()

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the channel of inbound envelopes. Pongs are consumed
// internally and never appear here.
func (c *Client) Messages() <-chan Message {
	return c.messages
}

// Errors returns the channel of connection errors.
func (c *Client) Errors() <-chan error {
	return c.errors
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SuspendHeartbeat stops ping sending and staleness checks without closing
// the connection. Used while the dashboard is hidden.
func (c *Client) SuspendHeartbeat() {
	c.mu.Lock()
	c.suspended = true
	c.mu.Unlock()
}

// ResumeHeartbeat restarts the heartbeat after a suspend. The liveness
// window restarts from now so a long hidden period does not read as stale.
func (c *Client) ResumeHeartbeat() {
	c.mu.Lock()
	c.suspended = false
	c.lastPongAt = time.Now()
	c.mu.Unlock()
}

// readLoop reads envelopes from the WebSocket until error or close.
func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-c.done:
				return
			default:
				select {
				case c.errors <- err:
				default:
				}
				return
			}
		}

		var env model.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("drop malformed message", "error", err)
			continue
		}

		if env.Type == model.EventPong {
			c.mu.Lock()
			c.lastPongAt = receivedAt
			c.mu.Unlock()
			continue
		}

		msg := Message{
			Envelope:   env,
			ReceivedAt: receivedAt,
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		default:
			c.logger.Warn("message buffer full, dropping message",
				"type", env.Type,
			)
		}
	}
}

// heartbeatLoop sends pings and watches for pong staleness.
func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			suspended := c.suspended
			lastPong := c.lastPongAt
			c.mu.RUnlock()

			if suspended {
				continue
			}

			if time.Since(lastPong) > c.cfg.PongTimeout {
				c.logger.Warn("heartbeat stale",
					"last_pong", lastPong,
					"timeout", c.cfg.PongTimeout,
				)
				select {
				case c.errors <- ErrStaleConnection:
				default:
				}
				return
			}

			if err := c.Send(model.Envelope{Type: model.EventPing}); err != nil {
				c.logger.Warn("heartbeat send failed", "error", err)
			}
		}
	}
}
