// Package bridge orchestrates the capture subsystem: it owns the
// session registry, the per-session connectors and parsers, the input
// router, and the output throttle, and exposes the session lifecycle
// API consumed by the streaming server.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/panebridge/panebridge/internal/capture"
	"github.com/panebridge/panebridge/internal/config"
	"github.com/panebridge/panebridge/internal/events"
	"github.com/panebridge/panebridge/internal/input"
	"github.com/panebridge/panebridge/internal/parse"
	"github.com/panebridge/panebridge/internal/registry"
	"github.com/panebridge/panebridge/internal/throttle"
	"github.com/panebridge/panebridge/internal/tmux"
)

// ProcessManager abstracts the external process lifecycle layer.
type ProcessManager interface {
	// CreateSession spawns an agent process in a new pane and returns
	// its pane target.
	CreateSession(name, dir, command string) (string, error)
	// IsAlive reports whether the pane target is still backed by a
	// live pane.
	IsAlive(target string) bool
	// KillSession tears the pane down. Returns false when it was
	// already gone.
	KillSession(name string) bool
}

// PendingMessage is one message awaiting a newly connected session.
type PendingMessage struct {
	ID   string
	Text string
}

// PendingLookup is consulted on client connect for messages queued
// while the session had no subscribers.
type PendingLookup interface {
	PendingFor(sessionID string) []PendingMessage
}

// OutputListener receives a session's output. Raw lines and parsed
// events are independent views with no cross-ordering guarantee.
type OutputListener struct {
	OnEvent func(sessionID string, ev parse.Event)
	OnRaw   func(sessionID string, lines []string)
}

// Bridge wires the capture subsystem together. All session mutation
// funnels through its methods.
type Bridge struct {
	cfg     config.Config
	reg     *registry.Registry
	client  *tmux.Client
	pm      ProcessManager
	keys    input.Sender
	router  *input.Router
	thr     *throttle.Throttle
	emitter *events.Emitter

	pending PendingLookup

	mu         sync.Mutex
	connectors map[string]*capture.Connector
	parsers    map[string]*parse.Parser
	listeners  map[string]map[int]OutputListener
	nextToken  int

	ctx    context.Context
	cancel context.CancelFunc
}

// Option customizes bridge construction.
type Option func(*Bridge)

// WithProcessManager replaces the default tmux-backed lifecycle layer.
func WithProcessManager(pm ProcessManager) Option {
	return func(b *Bridge) { b.pm = pm }
}

// WithPendingLookup wires the external pending-message store.
func WithPendingLookup(pl PendingLookup) Option {
	return func(b *Bridge) { b.pending = pl }
}

// WithSender replaces the keystroke delivery path.
func WithSender(s input.Sender) Option {
	return func(b *Bridge) {
		b.keys = s
		b.router = input.NewRouter(s)
	}
}

// New constructs a bridge. The registry should already be loaded; the
// caller decides whether to run VerifyLive or Prune first.
func New(cfg config.Config, reg *registry.Registry, client *tmux.Client, bus *events.Bus, opts ...Option) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		cfg:        cfg,
		reg:        reg,
		client:     client,
		emitter:    events.NewEmitter(bus, 256),
		connectors: make(map[string]*capture.Connector),
		parsers:    make(map[string]*parse.Parser),
		listeners:  make(map[string]map[int]OutputListener),
		ctx:        ctx,
		cancel:     cancel,
	}
	b.keys = client
	b.router = input.NewRouter(client)
	b.pm = &tmuxProcessManager{client: client}
	b.thr = throttle.New(
		filepath.Join(cfg.Storage.DataDir, "logs"),
		cfg.Throttle.FlushInterval(),
		cfg.Throttle.MaxBatch,
		b.deliverRaw,
	)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Create spawns a new agent session and registers it.
func (b *Bridge) Create(name, projectPath, command, mode string) (registry.Session, error) {
	target, err := b.pm.CreateSession(name, projectPath, command)
	if err != nil {
		return registry.Session{}, fmt.Errorf("creating session %q: %w", name, err)
	}
	if err := b.client.SetPaneTitle(target, name); err != nil {
		slog.Warn("setting pane title", "session", name, "error", err)
	}

	s := b.reg.Create(name, target, projectPath, mode)
	b.publish(events.TypeSessionCreated, s.ID, "")
	slog.Info("session created", "id", s.ID, "name", name, "pane", target)
	return s, nil
}

// List returns all registered sessions.
func (b *Bridge) List() []registry.Session {
	return b.reg.List()
}

// Get returns one session by id.
func (b *Bridge) Get(id string) (registry.Session, bool) {
	return b.reg.Get(id)
}

// UpdateStatus transitions a session's status, publishing the change
// and flushing queued input on the transition to idle.
func (b *Bridge) UpdateStatus(id string, status registry.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	s, ok := b.reg.Get(id)
	if !ok {
		return fmt.Errorf("unknown session %q", id)
	}

	prev, _ := b.reg.UpdateStatus(id, status)
	if prev == status {
		return nil
	}

	ev := events.NewSessionEvent(events.TypeStatusChanged, id)
	ev.Status = string(status)
	b.emitter.Emit(ev)

	if status == registry.StatusIdle {
		if n := b.router.FlushQueue(id, s.PaneTarget); n > 0 {
			slog.Info("flushed queued input", "session", id, "delivered", n)
		}
	}
	return nil
}

// Kill tears a session down: capture detached, parser disposed, pane
// killed, registry entry removed.
func (b *Bridge) Kill(id string) bool {
	s, ok := b.reg.Get(id)
	if !ok {
		return false
	}

	b.detach(id)
	b.router.Forget(id)
	b.thr.CloseSession(id)

	if !b.pm.KillSession(s.Name) {
		slog.Warn("pane already gone on kill", "session", id)
	}
	b.reg.Remove(id)
	b.publish(events.TypeSessionKilled, id, "")
	slog.Info("session killed", "id", id, "name", s.Name)
	return true
}

// ConnectClient registers a client on a session, attaching capture on
// the first subscriber. It returns the session's replay buffer and
// delivers any externally pending messages.
func (b *Bridge) ConnectClient(id, clientID string) ([]string, error) {
	s, ok := b.reg.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown session %q", id)
	}

	n, _ := b.reg.AddClient(id, clientID)
	if n == 1 {
		if err := b.attach(id, s.PaneTarget); err != nil {
			slog.Warn("capture attach failed", "session", id, "error", err)
		}
	}
	b.publish(events.TypeClientAttached, id, clientID)

	if b.pending != nil {
		for _, msg := range b.pending.PendingFor(id) {
			if _, err := b.SendInput(id, msg.Text); err != nil {
				slog.Warn("pending message delivery failed",
					"session", id, "message", msg.ID, "error", err)
				break
			}
		}
	}
	return b.reg.Replay(id), nil
}

// DisconnectClient removes a client, detaching capture when the last
// subscriber leaves.
func (b *Bridge) DisconnectClient(id, clientID string) {
	n, ok := b.reg.RemoveClient(id, clientID)
	if !ok {
		return
	}
	if n == 0 {
		b.detach(id)
	}
	b.publish(events.TypeClientDetached, id, clientID)
}

// SendInput routes text to the session per its status. Returns whether
// the input was queued rather than delivered.
func (b *Bridge) SendInput(id, text string) (bool, error) {
	s, ok := b.reg.Get(id)
	if !ok {
		return false, fmt.Errorf("unknown session %q", id)
	}
	queued, err := b.router.Send(id, s.PaneTarget, s.Status, text)
	if err == nil {
		b.reg.Touch(id)
	}
	return queued, err
}

// SendInterrupt delivers C-c directly and discards queued input.
func (b *Bridge) SendInterrupt(id string) error {
	s, ok := b.reg.Get(id)
	if !ok {
		return fmt.Errorf("unknown session %q", id)
	}
	return b.router.Interrupt(id, s.PaneTarget)
}

// SendPermissionResponse answers a pending permission prompt. The
// response is written to the pane immediately, bypassing the input
// queue, since the agent is blocked waiting on it.
func (b *Bridge) SendPermissionResponse(id, requestID, response string) error {
	s, ok := b.reg.Get(id)
	if !ok {
		return fmt.Errorf("unknown session %q", id)
	}
	if err := b.keys.SendKeys(s.PaneTarget, response, true); err != nil {
		slog.Warn("permission response delivery failed",
			"session", id, "request", requestID, "error", err)
		return err
	}
	return nil
}

// Subscribe adds an output listener for a session and returns a token
// for Unsubscribe. Removing one listener leaves other subscribers to
// the same session untouched.
func (b *Bridge) Subscribe(sessionID string, l OutputListener) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextToken++
	if b.listeners[sessionID] == nil {
		b.listeners[sessionID] = make(map[int]OutputListener)
	}
	b.listeners[sessionID][b.nextToken] = l
	return b.nextToken
}

// Unsubscribe removes one listener.
func (b *Bridge) Unsubscribe(sessionID string, token int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners[sessionID], token)
	if len(b.listeners[sessionID]) == 0 {
		delete(b.listeners, sessionID)
	}
}

// Close detaches all capture and flushes state to disk.
func (b *Bridge) Close() error {
	b.cancel()

	b.mu.Lock()
	ids := make([]string, 0, len(b.connectors))
	for id := range b.connectors {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	for _, id := range ids {
		b.detach(id)
	}

	b.thr.Close()
	b.emitter.Close()
	return b.reg.Close()
}

// attach starts capture for a session. A pane is claimed by at most
// one connector at a time; attach on an already-attached session is a
// no-op.
func (b *Bridge) attach(id, target string) error {
	b.mu.Lock()
	if _, exists := b.connectors[id]; exists {
		b.mu.Unlock()
		return nil
	}
	p := parse.NewParser()
	c := capture.NewConnector(b.client, id, target, p, capture.Callbacks{
		OnRawLines: b.onRawLines,
		OnEvent:    b.onEvent,
	}, capture.Config{
		FIFODir:          b.cfg.Capture.FIFODir,
		SnapshotInterval: b.cfg.Capture.SnapshotInterval(),
		SnapshotLines:    b.cfg.Capture.SnapshotLines,
	})
	b.parsers[id] = p
	b.connectors[id] = c
	b.mu.Unlock()

	if err := c.Attach(b.ctx); err != nil {
		b.mu.Lock()
		delete(b.connectors, id)
		delete(b.parsers, id)
		b.mu.Unlock()
		return err
	}
	b.reg.SetCaptureActive(id, true)
	return nil
}

// detach stops capture and disposes the session's parser.
func (b *Bridge) detach(id string) {
	b.mu.Lock()
	c := b.connectors[id]
	delete(b.connectors, id)
	delete(b.parsers, id)
	b.mu.Unlock()

	if c != nil {
		c.Detach()
		b.reg.SetCaptureActive(id, false)
	}
}

// onRawLines is the connector raw-path callback: ring buffer append
// plus throttled delivery.
func (b *Bridge) onRawLines(sessionID string, lines []string) {
	b.reg.Append(sessionID, lines...)
	b.thr.Add(sessionID, lines...)
}

// onEvent fans a parsed event out to the session's listeners.
func (b *Bridge) onEvent(sessionID string, ev parse.Event) {
	b.mu.Lock()
	ls := make([]OutputListener, 0, len(b.listeners[sessionID]))
	for _, l := range b.listeners[sessionID] {
		ls = append(ls, l)
	}
	b.mu.Unlock()

	for _, l := range ls {
		if l.OnEvent != nil {
			l.OnEvent(sessionID, ev)
		}
	}
}

// deliverRaw is the throttle flush callback.
func (b *Bridge) deliverRaw(sessionID string, lines []string) {
	b.mu.Lock()
	ls := make([]OutputListener, 0, len(b.listeners[sessionID]))
	for _, l := range b.listeners[sessionID] {
		ls = append(ls, l)
	}
	b.mu.Unlock()

	for _, l := range ls {
		if l.OnRaw != nil {
			l.OnRaw(sessionID, lines)
		}
	}
}

func (b *Bridge) publish(eventType, sessionID, clientID string) {
	ev := events.NewSessionEvent(eventType, sessionID)
	ev.Client = clientID
	b.emitter.Emit(ev)
}

// tmuxProcessManager is the default ProcessManager backed by tmux.
type tmuxProcessManager struct {
	client *tmux.Client
}

func (m *tmuxProcessManager) CreateSession(name, dir, command string) (string, error) {
	return m.client.NewSession(name, dir, command)
}

func (m *tmuxProcessManager) IsAlive(target string) bool {
	if m.client.PaneExists(target) {
		return true
	}
	return m.client.FindPaneByTitle(target) != ""
}

func (m *tmuxProcessManager) KillSession(name string) bool {
	return m.client.KillSession(name) == nil
}
