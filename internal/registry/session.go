package registry

import (
	"time"
)

// Status is the lifecycle state of a managed session.
type Status string

const (
	// StatusIdle means the agent is waiting for input.
	StatusIdle Status = "idle"
	// StatusWorking means the agent is actively producing output.
	StatusWorking Status = "working"
	// StatusOffline means the backing pane is gone or unverified.
	StatusOffline Status = "offline"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusWorking, StatusOffline:
		return true
	}
	return false
}

// Session is the bookkeeping record for one managed agent pane.
// It is owned by the Registry; callers receive copies and mutate
// only through Registry methods.
type Session struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PaneTarget  string `json:"pane_target"`
	ProjectPath string `json:"project_path,omitempty"`
	Mode        string `json:"mode,omitempty"`
	Status      Status `json:"status"`

	// Buffer holds the most recent output lines for replay when a
	// client connects. Bounded by the registry's ring size.
	Buffer []string `json:"buffer,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`

	// Runtime-only fields, rebuilt after a restart.
	Clients       map[string]bool `json:"-"`
	CaptureActive bool            `json:"-"`
}

// clone returns a deep copy safe to hand outside the registry lock.
func (s *Session) clone() Session {
	out := *s
	if s.Buffer != nil {
		out.Buffer = make([]string, len(s.Buffer))
		copy(out.Buffer, s.Buffer)
	}
	if s.Clients != nil {
		out.Clients = make(map[string]bool, len(s.Clients))
		for k, v := range s.Clients {
			out.Clients[k] = v
		}
	}
	return out
}
