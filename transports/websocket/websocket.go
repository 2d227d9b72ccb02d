package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame types, re-exported so callers need not import gorilla directly.
const (
	TextMessage   = websocket.TextMessage
	BinaryMessage = websocket.BinaryMessage
)

const closeWriteWait = time.Second

// Conn is the single transport handle owned by a session client.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	// WriteClose sends a close control frame. It does not close the socket.
	WriteClose(code int, text string) error
	Close() error
}

// Dialer opens a Conn to a URL.
type Dialer interface {
	DialContext(ctx context.Context, url string, header http.Header) (Conn, error)
}

// GorillaDialer dials with gorilla/websocket. A nil Dialer uses
// websocket.DefaultDialer.
type GorillaDialer struct {
	Dialer *websocket.Dialer
}

func NewDialer() *GorillaDialer {
	return &GorillaDialer{Dialer: websocket.DefaultDialer}
}

func (d *GorillaDialer) DialContext(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, err
	}
	return NewConnection(conn), nil
}

// Connection wraps a gorilla connection. gorilla allows one concurrent
// writer, so every write goes through mu.
type Connection struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewConnection wraps an already established connection.
func NewConnection(conn *websocket.Conn) *Connection {
	return &Connection{conn: conn}
}

func (c *Connection) ReadMessage() (int, []byte, error) {
	return c.conn.ReadMessage()
}

func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

func (c *Connection) WriteClose(code int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(closeWriteWait),
	)
}

func (c *Connection) Close() error {
	return c.conn.Close()
}
