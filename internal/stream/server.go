// Package stream implements the wire-level streaming endpoint: auth
// handshake, JSON framing, global sequencing with replay-on-reconnect,
// per-client rate limiting, and session-scoped delegation to the
// bridge.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/panebridge/panebridge/internal/bridge"
	"github.com/panebridge/panebridge/internal/config"
	"github.com/panebridge/panebridge/internal/ratelimit"
)

const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 64 * 1024
)

// SessionBridge is the session lifecycle surface the server delegates
// to. *bridge.Bridge satisfies it.
type SessionBridge interface {
	ConnectClient(id, clientID string) ([]string, error)
	DisconnectClient(id, clientID string)
	SendInput(id, text string) (bool, error)
	SendInterrupt(id string) error
	SendPermissionResponse(id, requestID, response string) error
	Subscribe(sessionID string, l bridge.OutputListener) int
	Unsubscribe(sessionID string, token int)
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The endpoint is token-authenticated; origin checking is left to
	// a fronting proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server owns the connected client set, the global sequence counter,
// and the replay buffer. All broadcast mutation happens on its
// methods.
type Server struct {
	cfg    config.Config
	bridge SessionBridge
	replay *ReplayBuffer

	chatLimit   *ratelimit.Window
	typingLimit *ratelimit.Window

	mu      sync.RWMutex
	clients map[*Client]struct{}

	httpSrv *http.Server
}

// NewServer creates a streaming server delegating session operations
// to sb.
func NewServer(cfg config.Config, sb SessionBridge) *Server {
	return &Server{
		cfg:         cfg,
		bridge:      sb,
		replay:      NewReplayBuffer(cfg.Stream.ReplayCount, cfg.Stream.ReplayAge()),
		chatLimit:   ratelimit.NewWindow(cfg.Stream.ChatPerMinute, time.Minute),
		typingLimit: ratelimit.NewWindow(cfg.Stream.TypingPerMin, time.Minute),
		clients:     make(map[*Client]struct{}),
	}
}

// Routes registers the websocket endpoint on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.HandleWS)
}

// Run serves the endpoint until ctx is cancelled, then drains
// connections.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	s.Routes(mux)

	cfg := s.config()
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() {
		log.Printf("stream: listening on %s", addr)
		errc <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

// HandleWS upgrades the connection and starts the client's pumps. The
// server immediately sends an auth challenge; with no configured token
// the client is auto-accepted (open mode).
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("stream: upgrade failed: %v", err)
		return
	}

	c := newClient(s, conn)
	s.addClient(c)

	go c.writePump()
	go c.readPump()

	c.sendMsg(Message{Type: MsgAuthChallenge, Timestamp: wireTime()})

	cfg := s.config()
	if cfg.Server.AuthToken == "" {
		c.accept()
	} else {
		c.startAuthTimer(cfg.Stream.AuthTimeout())
	}
}

func (s *Server) addClient(c *Client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	log.Printf("stream: client connected id=%s total=%d", c.id, n)
}

// removeClient reaps a dead transport: every session subscription the
// client held is released, other subscribers stay attached.
func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c)
	n := len(s.clients)
	s.mu.Unlock()

	c.releaseSessions()
	c.closeSend()
	chat, typing := s.limits()
	chat.Forget(c.id)
	typing.Forget(c.id)
	log.Printf("stream: client disconnected id=%s total=%d", c.id, n)
}

// broadcast assigns the next global sequence number to msg, records
// the frame in the replay buffer, and fans it out to every
// authenticated client.
func (s *Server) broadcast(msg Message) int64 {
	seq, data := s.replay.AddWith(func(seq int64) []byte {
		msg.Seq = seq
		data, err := json.Marshal(msg)
		if err != nil {
			// Message is a plain struct; this cannot fail in practice.
			log.Printf("stream: broadcast marshal: %v", err)
			return nil
		}
		return data
	})
	if data == nil {
		return seq
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		if c.authed() {
			c.sendRaw(data)
		}
	}
	return seq
}

// ApplyConfig swaps in a validated config. Rate limit windows are
// rebuilt when their budgets changed; the listen address and storage
// paths are fixed at startup and a changed value only takes effect on
// restart.
func (s *Server) ApplyConfig(cfg config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cfg
	s.cfg = cfg
	if cfg.Stream.ChatPerMinute != old.Stream.ChatPerMinute {
		s.chatLimit = ratelimit.NewWindow(cfg.Stream.ChatPerMinute, time.Minute)
	}
	if cfg.Stream.TypingPerMin != old.Stream.TypingPerMin {
		s.typingLimit = ratelimit.NewWindow(cfg.Stream.TypingPerMin, time.Minute)
	}
}

// config returns a snapshot of the current configuration.
func (s *Server) config() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Server) limits() (chat, typing *ratelimit.Window) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chatLimit, s.typingLimit
}

// ClientCount reports the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func wireTime() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func newClientID() string {
	return uuid.NewString()
}
