// Package relay bridges a live session to external UIs over WebSocket.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"livelink/core"
	"livelink/events/live"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"google.golang.org/genai"
)

const DefaultAddr = ":19304"

// Input event ids accepted from relay clients.
const (
	TextInputID         = "client.text"
	MediaInputID        = "client.media"
	ToolResponseInputID = "client.tool_response"
	InteractionInputID  = "client.interaction"
)

const writeWait = 2 * time.Second

// WireEvent is the JSON envelope used on the WebSocket connection.
//
//	{"id": "<event id>", "payload": { /* event-specific fields */ }}
type WireEvent struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

type TextInput struct {
	Text string `json:"text"`
}

// MediaInput carries browser data URLs ("data:<mime>;base64,<data>").
type MediaInput struct {
	DataURLs []string `json:"dataUrls"`
}

// Session is the part of the session client the relay forwards input to.
type Session interface {
	SendText(text string) error
	SendRealtimeInput(chunks []core.Chunk) error
	SendToolResponse(resp *genai.LiveClientToolResponse) error
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Server is a WebSocket server that bridges the session with external
// systems.
//
//   - Every session event published on the bound bus is serialised as a
//     WireEvent and broadcast to every connected client.
//
//   - Incoming WireEvent messages are dispatched to the input handler
//     registered for their id.
type Server struct {
	addr   string
	logger *core.Logger

	upgrader  websocket.Upgrader
	clients   map[*client]struct{}
	clientsMu sync.RWMutex

	inputRegistry map[string]func(payload []byte) error
	registryMu    sync.RWMutex

	bus  *core.EventBus
	subs []core.Subscription
	mu   sync.Mutex
}

// NewServer creates a relay forwarding text, media and tool responses to
// session.
func NewServer(addr string, session Session, logger *core.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	s := &Server{
		addr:          addr,
		logger:        logger,
		clients:       make(map[*client]struct{}),
		inputRegistry: make(map[string]func([]byte) error),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.RegisterInput(TextInputID, func(payload []byte) error {
		var in TextInput
		if err := sonic.Unmarshal(payload, &in); err != nil {
			return err
		}
		return session.SendText(in.Text)
	})
	s.RegisterInput(MediaInputID, func(payload []byte) error {
		var in MediaInput
		if err := sonic.Unmarshal(payload, &in); err != nil {
			return err
		}
		chunks := make([]core.Chunk, 0, len(in.DataURLs))
		for _, u := range in.DataURLs {
			chunk, err := core.ChunkFromDataURL(u)
			if err != nil {
				return err
			}
			chunks = append(chunks, chunk)
		}
		return session.SendRealtimeInput(chunks)
	})
	s.RegisterInput(ToolResponseInputID, func(payload []byte) error {
		var resp genai.LiveClientToolResponse
		if err := sonic.Unmarshal(payload, &resp); err != nil {
			return err
		}
		return session.SendToolResponse(&resp)
	})
	return s
}

// RegisterInput registers the handler for a given input event id,
// replacing any previous one.
func (s *Server) RegisterInput(id string, handler func(payload []byte) error) {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	s.inputRegistry[id] = handler
}

// Bind broadcasts every session event published on bus.
func (s *Server) Bind(bus *core.EventBus) {
	s.Unbind()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bus = bus
	for _, id := range live.EventIDs {
		s.subs = append(s.subs, bus.On(id, s.Broadcast))
	}
}

func (s *Server) Unbind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		s.bus.Off(sub)
	}
	s.subs = nil
}

// Broadcast serialises ev and sends it to all connected clients.
func (s *Server) Broadcast(ev core.IEvent) {
	s.clientsMu.RLock()
	conns := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.clientsMu.RUnlock()
	if len(conns) == 0 {
		return
	}

	payload, err := sonic.Marshal(ev)
	if err != nil {
		s.logger.Errorf("relay: marshal event %q: %v", ev.GetId(), err)
		return
	}
	wire, err := sonic.Marshal(WireEvent{ID: ev.GetId(), Payload: payload})
	if err != nil {
		return
	}

	for _, c := range conns {
		if err := c.write(wire); err != nil {
			s.logger.Warnf("relay: write to client: %v", err)
		}
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/", s)
	server := &http.Server{Addr: s.addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	s.logger.Infof("relay WebSocket server listening on %s", s.addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("relay: serve: %w", err)
	}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("relay: upgrade: %v", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn}
	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c)
		s.clientsMu.Unlock()
	}()

	s.logger.Infof("relay: client connected (%s)", conn.RemoteAddr())

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.dispatch(data)
	}
}

func (s *Server) dispatch(data []byte) {
	var wire WireEvent
	if err := sonic.Unmarshal(data, &wire); err != nil {
		s.logger.Errorf("relay: unmarshal wire event: %v", err)
		return
	}

	s.registryMu.RLock()
	handler, ok := s.inputRegistry[wire.ID]
	s.registryMu.RUnlock()
	if !ok {
		s.logger.Warnf("relay: no handler registered for event id %q", wire.ID)
		return
	}

	if err := handler(wire.Payload); err != nil {
		s.logger.Warnf("relay: handle %q: %v", wire.ID, err)
	}
}
