package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

var errClientClosed = errors.New("ws: client closed")

// inbound is the only message shape clients are expected to send.
type inbound struct {
	Type string `json:"type"`
}

// Client wraps a websocket connection as a hub observer. Writes are
// serialized; gorilla connections allow at most one concurrent writer.
type Client struct {
	conn *websocket.Conn
	log  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewClient constructs a client wrapper.
func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{conn: conn, log: logger}
}

// Send writes a text message to the connection.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.closed = true
		_ = c.conn.Close()
		if c.log != nil {
			c.log.Warn("websocket send failed", "error", err)
		}
		return err
	}
	return nil
}

// Close terminates the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.conn.Close()
}

// ReadLoop consumes inbound messages until the connection drops. A
// {"type":"ping"} message is answered with {"type":"pong"}; anything else
// is logged and ignored. The method blocks; run it on the connection's
// handler goroutine.
func (c *Client) ReadLoop() {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			if c.log != nil {
				c.log.Warn("unparseable websocket message", "error", err)
			}
			continue
		}
		switch msg.Type {
		case "ping":
			if err := c.Send([]byte(`{"type":"pong"}`)); err != nil {
				return
			}
		default:
			if c.log != nil {
				c.log.Warn("unrecognized websocket message", "type", msg.Type)
			}
		}
	}
}
