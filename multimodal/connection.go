package multimodal

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"livelink/core"
	"livelink/events/live"
	"livelink/protocol"
	transport "livelink/transports/websocket"

	"github.com/gorilla/websocket"
	"github.com/tiendc/go-deepcopy"
)

const (
	InitiatorClient = "client"
	InitiatorServer = "server"
)

const closeReasonDelimiter = "ERROR]"

// Connect dials the endpoint and sends the setup handshake built from cfg as
// soon as the socket is open. The handshake is not gated on setupComplete.
// A nil cfg fails with *core.ConfigError before anything is dialed; a dial
// failure returns *core.ConnectionError.
//
// When a previous connection is still shutting down, Connect first waits for
// its close event so that it can never be published into the new session.
// Calling Connect from a handler of that close event therefore blocks until
// ctx is done; reconnect from another goroutine instead.
func (c *Client) Connect(ctx context.Context, cfg *protocol.Config) error {
	if cfg == nil {
		return &core.ConfigError{Reason: "config is nil"}
	}

	var negotiated protocol.Config
	if err := deepcopy.Copy(&negotiated, cfg); err != nil {
		return &core.ConfigError{Reason: err.Error()}
	}

	c.mu.Lock()
	// cancelDial is set for as long as a connect is in flight
	if c.sess != nil || c.cancelDial != nil {
		c.mu.Unlock()
		return core.ErrAlreadyConnected
	}
	prev := c.last
	dialCtx, cancel := context.WithCancel(ctx)
	c.state = StateConnecting
	c.cancelDial = cancel
	c.mu.Unlock()
	defer cancel()

	if prev != nil {
		select {
		case <-prev.done:
		case <-dialCtx.Done():
			return c.abortConnect(nil, dialCtx.Err())
		}
	}

	c.logger.Info("connecting", "endpoint", c.endpoint, "model", negotiated.Model)

	conn, err := c.dialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		c.log("server.error", err.Error())
		return c.abortConnect(nil, err)
	}

	s := &session{conn: conn, done: make(chan struct{})}
	c.mu.Lock()
	if c.state != StateConnecting {
		// Disconnect ran while dialing
		c.mu.Unlock()
		return c.abortConnect(conn, core.ErrConnectAborted)
	}
	c.sess = s
	c.last = s
	c.config = &negotiated
	c.state = StateOpen
	c.cancelDial = nil
	c.mu.Unlock()

	c.log("client.open", "connected to socket")

	// The handshake goes out before open is published so that nothing an
	// open handler sends can precede it on the wire.
	if err := c.write(protocol.NewSetup(&negotiated)); err != nil {
		c.teardown(s)
		c.log("server.error", err.Error())
		return &core.ConnectionError{Endpoint: c.endpoint, Err: err}
	}
	c.log("client.send", string(protocol.MsgSetup))
	c.bus.Emit(&live.OpenEvent{})

	go c.readLoop(s)
	return nil
}

// abortConnect ends a connect attempt that never produced a session.
func (c *Client) abortConnect(conn transport.Conn, err error) error {
	if conn != nil {
		conn.Close()
	}
	c.mu.Lock()
	if c.state == StateClosing {
		err = core.ErrConnectAborted
	}
	c.state = StateClosed
	c.cancelDial = nil
	c.mu.Unlock()
	return &core.ConnectionError{Endpoint: c.endpoint, Err: err}
}

// Disconnect closes the live transport handle. It reports false when there
// is none. The close event is published by the reader once the socket is
// down. A connect still in progress is cancelled and fails with
// core.ErrConnectAborted; Disconnect still reports false for it since no
// handle was live.
func (c *Client) Disconnect() bool {
	c.mu.Lock()
	s := c.sess
	if s == nil {
		if c.state == StateConnecting && c.cancelDial != nil {
			c.cancelDial()
			c.state = StateClosing
		}
		c.mu.Unlock()
		return false
	}
	c.sess = nil
	c.config = nil
	c.state = StateClosing
	c.mu.Unlock()

	if err := s.conn.WriteClose(websocket.CloseNormalClosure, ""); err != nil {
		c.logger.Debug("close frame not sent", "error", err)
	}
	if err := s.conn.Close(); err != nil {
		c.logger.Debug("socket close", "error", err)
	}

	c.logger.Info("disconnected")
	c.log("client.close", "Disconnected")
	return true
}

// teardown drops a session that never completed its handshake. No reader is
// running for it, so done is closed here.
func (c *Client) teardown(s *session) {
	c.mu.Lock()
	if c.sess == s {
		c.sess = nil
		c.config = nil
		c.state = StateClosed
	}
	c.mu.Unlock()

	s.conn.Close()
	close(s.done)
}

// readLoop processes frames strictly in arrival order until the socket
// fails, then publishes exactly one close event.
func (c *Client) readLoop(s *session) {
	defer close(s.done)

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			c.handleClose(s, err)
			return
		}
		if err := c.Receive(messageType, data); err != nil {
			c.logger.Warn("dropping server frame", "error", err)
		}
	}
}

// handleClose publishes the close of s. Whoever clears c.sess first under
// c.mu owns the transition: Disconnect makes it a client close, the reader a
// server close. Only the owner logs it.
func (c *Client) handleClose(s *session, err error) {
	info := live.CloseInfo{
		Code:      websocket.CloseAbnormalClosure,
		Initiator: InitiatorServer,
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		info.Code = closeErr.Code
		info.RawReason = closeErr.Text
	}

	c.mu.Lock()
	serverClosed := c.sess == s
	if serverClosed {
		c.sess = nil
		c.config = nil
		c.state = StateClosed
	} else if c.state == StateClosing && c.cancelDial == nil {
		// a pending connect owns the state until it returns
		c.state = StateClosed
	}
	c.mu.Unlock()

	if !serverClosed {
		info.Initiator = InitiatorClient
		if closeErr == nil {
			info.Code = websocket.CloseNormalClosure
		}
	}
	info.Reason = CloseReason(info.RawReason)

	if serverClosed {
		c.logger.Info("connection closed by server", "code", info.Code, "reason", info.Reason, "error", err)
		msg := "Disconnected"
		if info.Reason != "" {
			msg = "Disconnected with reason: " + info.Reason
		}
		c.log("server.close", msg)
	}

	c.bus.Emit(&live.CloseEvent{Info: info})
}

// CloseReason extracts the human readable part of a close reason. Reasons of
// the form "<prefix> ERROR] <detail>" report <detail>; anything else is
// returned as is.
func CloseReason(raw string) string {
	if !strings.Contains(strings.ToLower(raw), "error") {
		return raw
	}
	idx := strings.Index(raw, closeReasonDelimiter)
	if idx <= 0 {
		return raw
	}
	rest := raw[idx+len(closeReasonDelimiter):]
	// one separator character follows the delimiter
	_, size := utf8.DecodeRuneInString(rest)
	return rest[size:]
}
