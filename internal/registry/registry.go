package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/panebridge/panebridge/internal/util"
)

const (
	storeFileName = "sessions.json"

	// saveDebounce collapses bursts of mutations into one disk write.
	saveDebounce = 2 * time.Second

	// maxBufferedLine bounds one stored replay line; the ring caps the
	// line count and this caps the bytes per line.
	maxBufferedLine = 4096
)

// Liveness checks whether a pane target is backed by a live pane and
// resolves panes by title when a stored target has gone stale.
// *tmux.Client satisfies it.
type Liveness interface {
	PaneExists(target string) bool
	FindPaneByTitle(title string) string
}

// Registry is the authoritative store of managed sessions. It is the
// sole mutator of session state; every mutation schedules a debounced
// persistence write so in-memory state survives a process restart.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	path     string
	ringSize int
	debounce time.Duration

	saveTimer *time.Timer
	now       func() time.Time
}

// New creates a registry persisting to dataDir/sessions.json. ringSize
// bounds each session's replay buffer; non-positive means 200.
func New(dataDir string, ringSize int) *Registry {
	if ringSize <= 0 {
		ringSize = 200
	}
	return &Registry{
		sessions: make(map[string]*Session),
		path:     filepath.Join(dataDir, storeFileName),
		ringSize: ringSize,
		debounce: saveDebounce,
		now:      time.Now,
	}
}

// Create registers a new session and returns a copy of its record.
func (r *Registry) Create(name, paneTarget, projectPath, mode string) Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	s := &Session{
		ID:           uuid.NewString(),
		Name:         name,
		PaneTarget:   paneTarget,
		ProjectPath:  projectPath,
		Mode:         mode,
		Status:       StatusIdle,
		CreatedAt:    now,
		LastActivity: now,
		Clients:      make(map[string]bool),
	}
	r.sessions[s.ID] = s
	r.scheduleSaveLocked()
	return s.clone()
}

// Get returns a copy of the session, if present.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// List returns copies of all sessions, oldest first.
func (r *Registry) List() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// UpdateStatus transitions a session's status. It returns the previous
// status and whether the session exists.
func (r *Registry) UpdateStatus(id string, status Status) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return "", false
	}
	prev := s.Status
	if prev != status {
		s.Status = status
		s.LastActivity = r.now()
		r.scheduleSaveLocked()
	}
	return prev, true
}

// UpdatePaneTarget rewrites the stored pane reference, typically after
// the liveness check healed a stale one.
func (r *Registry) UpdatePaneTarget(id, target string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	if s.PaneTarget != target {
		s.PaneTarget = target
		r.scheduleSaveLocked()
	}
	return true
}

// Remove deletes a session from the registry.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	r.scheduleSaveLocked()
	return true
}

// AddClient records a connected client and returns the new client count.
func (r *Registry) AddClient(id, clientID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return 0, false
	}
	if s.Clients == nil {
		s.Clients = make(map[string]bool)
	}
	s.Clients[clientID] = true
	s.LastActivity = r.now()
	return len(s.Clients), true
}

// RemoveClient drops a connected client and returns the remaining count.
func (r *Registry) RemoveClient(id, clientID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return 0, false
	}
	delete(s.Clients, clientID)
	return len(s.Clients), true
}

// SetCaptureActive flags whether a connector is attached to the session.
func (r *Registry) SetCaptureActive(id string, active bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	s.CaptureActive = active
	return true
}

// Append adds output lines to the session's replay ring, trimming the
// oldest entries once the ring size is exceeded.
func (r *Registry) Append(id string, lines ...string) bool {
	if len(lines) == 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	for _, line := range lines {
		s.Buffer = append(s.Buffer, util.SafeSlice(line, maxBufferedLine))
	}
	if over := len(s.Buffer) - r.ringSize; over > 0 {
		s.Buffer = append(s.Buffer[:0], s.Buffer[over:]...)
	}
	s.LastActivity = r.now()
	r.scheduleSaveLocked()
	return true
}

// Replay returns a copy of the session's buffered output lines.
func (r *Registry) Replay(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || len(s.Buffer) == 0 {
		return nil
	}
	out := make([]string, len(s.Buffer))
	copy(out, s.Buffer)
	return out
}

// Touch bumps the session's last-activity timestamp.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.LastActivity = r.now()
	}
}

// scheduleSaveLocked arms (or re-arms) the debounced persistence write.
// Callers must hold r.mu.
func (r *Registry) scheduleSaveLocked() {
	if r.saveTimer != nil {
		r.saveTimer.Reset(r.debounce)
		return
	}
	r.saveTimer = time.AfterFunc(r.debounce, func() {
		if err := r.Save(); err != nil {
			slog.Warn("session persistence failed", "path", r.path, "error", err)
		}
	})
}

// Save writes the full session set to disk atomically. Persistence
// errors leave in-memory state authoritative.
func (r *Registry) Save() error {
	r.mu.Lock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		c := s.clone()
		list = append(list, &c)
	}
	path := r.path
	r.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing sessions: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing sessions file: %w", err)
	}
	return nil
}

// Load reads the persisted session set. All loaded sessions are marked
// offline; VerifyLive promotes the ones backed by a live pane. A
// missing file is not an error.
func (r *Registry) Load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading sessions file: %w", err)
	}

	var list []*Session
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("parsing sessions file: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range list {
		if s.ID == "" {
			continue
		}
		s.Status = StatusOffline
		s.Clients = make(map[string]bool)
		s.CaptureActive = false
		r.sessions[s.ID] = s
	}
	return nil
}

// VerifyLive checks every session against the live pane state. Stale
// pane references are healed by title lookup before verification.
// Sessions with a live pane are promoted to idle; the rest stay
// offline. Returns the ids of sessions found live.
func (r *Registry) VerifyLive(lv Liveness) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var live []string
	for _, s := range r.sessions {
		target := s.PaneTarget
		if target == "" || !lv.PaneExists(target) {
			if healed := lv.FindPaneByTitle(s.Name); healed != "" {
				target = healed
			}
		}
		if target != "" && lv.PaneExists(target) {
			if s.PaneTarget != target {
				s.PaneTarget = target
			}
			if s.Status == StatusOffline {
				s.Status = StatusIdle
			}
			live = append(live, s.ID)
		} else {
			s.Status = StatusOffline
		}
	}
	if len(live) > 0 {
		r.scheduleSaveLocked()
	}
	sort.Strings(live)
	return live
}

// Prune removes sessions that are still offline after a liveness pass.
// Returns the removed ids. Intended for startup cleanup.
func (r *Registry) Prune(lv Liveness) []string {
	r.VerifyLive(lv)

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, s := range r.sessions {
		if s.Status == StatusOffline {
			delete(r.sessions, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		r.scheduleSaveLocked()
	}
	sort.Strings(removed)
	return removed
}

// Close flushes any pending debounced write.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.saveTimer != nil {
		r.saveTimer.Stop()
		r.saveTimer = nil
	}
	r.mu.Unlock()
	return r.Save()
}
