package input

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/panebridge/panebridge/internal/registry"
)

// ErrOffline is returned when input is sent to a session whose pane
// is gone or unverified.
var ErrOffline = errors.New("session is offline")

// Sender delivers keystrokes into a pane. *tmux.Client satisfies it.
type Sender interface {
	SendKeys(target, keys string, enter bool) error
	SendInterrupt(target string) error
}

// QueuedInput is one pending input entry for a busy session.
type QueuedInput struct {
	Text       string    `json:"text"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Router delivers client input into panes, queuing it while the agent
// is working. Queues are strict FIFO per session and cleared atomically
// on interrupt.
type Router struct {
	mu     sync.Mutex
	queues map[string][]QueuedInput

	sender Sender
	now    func() time.Time
}

// NewRouter creates a router delivering through sender.
func NewRouter(sender Sender) *Router {
	return &Router{
		queues: make(map[string][]QueuedInput),
		sender: sender,
		now:    time.Now,
	}
}

// Send routes text to a session based on its status: offline sessions
// reject, working sessions enqueue, idle sessions get the text written
// and submitted immediately. Returns whether the input was queued.
func (r *Router) Send(sessionID, pane string, status registry.Status, text string) (bool, error) {
	switch status {
	case registry.StatusOffline:
		return false, ErrOffline
	case registry.StatusWorking:
		r.mu.Lock()
		r.queues[sessionID] = append(r.queues[sessionID], QueuedInput{
			Text:       text,
			EnqueuedAt: r.now(),
		})
		n := len(r.queues[sessionID])
		r.mu.Unlock()
		slog.Debug("input queued", "session", sessionID, "depth", n)
		return true, nil
	default:
		if err := r.sender.SendKeys(pane, text, true); err != nil {
			slog.Warn("input delivery failed", "session", sessionID, "error", err)
			return false, err
		}
		return false, nil
	}
}

// FlushQueue delivers queued entries in original order, called on the
// working→idle transition. Delivery stops at the first failure: the
// failed entry is logged and dropped, later entries stay queued for
// the next idle transition. Returns the number delivered.
func (r *Router) FlushQueue(sessionID, pane string) int {
	r.mu.Lock()
	pending := r.queues[sessionID]
	delete(r.queues, sessionID)
	r.mu.Unlock()

	for i, q := range pending {
		if err := r.sender.SendKeys(pane, q.Text, true); err != nil {
			slog.Warn("queued input delivery failed",
				"session", sessionID, "queued_at", q.EnqueuedAt, "error", err)
			if rest := pending[i+1:]; len(rest) > 0 {
				r.mu.Lock()
				// Preserve FIFO order if new input was queued meanwhile.
				r.queues[sessionID] = append(append([]QueuedInput{}, rest...), r.queues[sessionID]...)
				r.mu.Unlock()
			}
			return i
		}
	}
	return len(pending)
}

// Interrupt sends the interrupt signal directly, bypassing the queue,
// and discards all pending input for the session.
func (r *Router) Interrupt(sessionID, pane string) error {
	r.mu.Lock()
	dropped := len(r.queues[sessionID])
	delete(r.queues, sessionID)
	r.mu.Unlock()

	if dropped > 0 {
		slog.Debug("input queue cleared on interrupt", "session", sessionID, "dropped", dropped)
	}
	if err := r.sender.SendInterrupt(pane); err != nil {
		slog.Warn("interrupt delivery failed", "session", sessionID, "error", err)
		return err
	}
	return nil
}

// QueueLen reports the number of pending entries for a session.
func (r *Router) QueueLen(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues[sessionID])
}

// Forget drops any queued input for a removed session.
func (r *Router) Forget(sessionID string) {
	r.mu.Lock()
	delete(r.queues, sessionID)
	r.mu.Unlock()
}
