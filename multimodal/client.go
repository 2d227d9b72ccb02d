// Package multimodal implements the client side of a Gemini Live session:
// one WebSocket, a setup handshake, outgoing media and content messages, and
// classification of inbound frames into events on a core.EventBus.
package multimodal

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"livelink/core"
	"livelink/events/live"
	"livelink/protocol"
	transport "livelink/transports/websocket"

	"github.com/tiendc/go-deepcopy"
)

// DefaultURL is the BidiGenerateContent endpoint without the access key.
const DefaultURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ClientConfig configures a Client. URL is required and normally built with
// Endpoint.
type ClientConfig struct {
	URL    string
	Bus    *core.EventBus
	Logger *core.Logger
	Dialer transport.Dialer
}

// Endpoint appends the access key to base. An empty base means DefaultURL.
func Endpoint(base, apiKey string) (string, error) {
	if base == "" {
		base = DefaultURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("multimodal: parse endpoint %q: %w", base, err)
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redact drops the query string so the access key never reaches errors or logs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// session is one live transport handle and its reader.
type session struct {
	conn transport.Conn
	done chan struct{}
}

// Client owns at most one live transport handle at a time. It does not
// reconnect; callers decide what to do after a close event.
type Client struct {
	url      string
	endpoint string
	bus      *core.EventBus
	logger   *core.Logger
	dialer   transport.Dialer

	mu     sync.Mutex
	state  State
	sess   *session
	config *protocol.Config
	// last is the most recent session; its reader may still be draining
	// after sess was cleared.
	last       *session
	cancelDial context.CancelFunc
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("multimodal: url is required")
	}
	if cfg.Bus == nil {
		cfg.Bus = core.NewEventBus()
	}
	if cfg.Logger == nil {
		cfg.Logger = core.GetLogger().With(map[string]interface{}{"component": "multimodal"})
	}
	if cfg.Dialer == nil {
		cfg.Dialer = transport.NewDialer()
	}

	return &Client{
		url:      cfg.URL,
		endpoint: redact(cfg.URL),
		bus:      cfg.Bus,
		logger:   cfg.Logger,
		dialer:   cfg.Dialer,
		state:    StateIdle,
	}, nil
}

// Bus returns the bus every session event is published on.
func (c *Client) Bus() *core.EventBus {
	return c.bus
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsOpen reports whether a transport handle is live.
func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// Config returns a copy of the configuration negotiated for the current
// connection, or nil when there is none.
func (c *Client) Config() *protocol.Config {
	c.mu.Lock()
	cfg := c.config
	c.mu.Unlock()
	if cfg == nil {
		return nil
	}
	var out protocol.Config
	if err := deepcopy.Copy(&out, cfg); err != nil {
		c.logger.Warn("config copy failed", "error", err)
		return nil
	}
	return &out
}

// Done is closed once the current connection's reader has emitted its close
// event. It returns nil when no connection is live.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	return c.sess.done
}

// log publishes a protocol log entry.
func (c *Client) log(entryType string, message interface{}) {
	entry := core.NewLogEntry(entryType, message)
	c.logger.Trace("live log", "type", entryType)
	c.bus.Emit(&live.LogEvent{Entry: entry})
}

// current returns the live session or nil.
func (c *Client) current() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}
