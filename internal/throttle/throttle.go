// Package throttle batches per-session output lines so bursty agent
// output reaches slow clients in bounded flushes while the full
// history is synchronously persisted to per-session log files.
package throttle

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/panebridge/panebridge/internal/util"
)

const (
	// DefaultInterval is the periodic flush cadence.
	DefaultInterval = 100 * time.Millisecond
	// DefaultMaxBatch forces an immediate flush once a session's
	// buffer reaches this many lines.
	DefaultMaxBatch = 50
)

// FlushFunc receives one batch of buffered lines for a session.
type FlushFunc func(sessionID string, lines []string)

// Throttle accumulates output lines per session and delivers them in
// batches on a fixed interval, flushing early under burst load. Every
// line is appended synchronously to a per-session log file before
// buffering, so history survives a lost flush.
type Throttle struct {
	// flushMu serializes batch extraction with delivery: the ticker
	// flush and a cap-forced flush run on different goroutines, and
	// delivering outside a shared lock would let a later batch for a
	// session overtake an earlier one. Always taken before mu.
	flushMu sync.Mutex

	mu      sync.Mutex
	buffers map[string][]string
	logs    map[string]*os.File

	flush    FlushFunc
	interval time.Duration
	maxBatch int
	logDir   string

	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a throttle writing session logs under logDir and
// delivering batches through fn. Non-positive interval or maxBatch
// fall back to the defaults.
func New(logDir string, interval time.Duration, maxBatch int, fn FlushFunc) *Throttle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	t := &Throttle{
		buffers:  make(map[string][]string),
		logs:     make(map[string]*os.File),
		flush:    fn,
		interval: interval,
		maxBatch: maxBatch,
		logDir:   logDir,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
	}
	t.wg.Add(1)
	go t.flushLoop()
	return t
}

func (t *Throttle) flushLoop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			t.FlushAll()
		}
	}
}

// Add appends lines for a session. The lines are logged to disk
// immediately; batch delivery happens on the next tick, or right away
// once the buffer reaches the batch cap.
func (t *Throttle) Add(sessionID string, lines ...string) {
	if len(lines) == 0 {
		return
	}

	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	t.mu.Lock()
	t.appendLogLocked(sessionID, lines)
	t.buffers[sessionID] = append(t.buffers[sessionID], lines...)
	var batch []string
	if len(t.buffers[sessionID]) >= t.maxBatch {
		batch = t.buffers[sessionID]
		delete(t.buffers, sessionID)
	}
	t.mu.Unlock()

	if batch != nil && t.flush != nil {
		t.flush(sessionID, batch)
	}
}

// FlushSession delivers a session's buffered lines immediately.
func (t *Throttle) FlushSession(sessionID string) {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	t.mu.Lock()
	batch := t.buffers[sessionID]
	delete(t.buffers, sessionID)
	t.mu.Unlock()

	if len(batch) > 0 && t.flush != nil {
		t.flush(sessionID, batch)
	}
}

// FlushAll delivers every non-empty buffer.
func (t *Throttle) FlushAll() {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	t.mu.Lock()
	pending := t.buffers
	t.buffers = make(map[string][]string)
	t.mu.Unlock()

	if t.flush == nil {
		return
	}
	for id, batch := range pending {
		if len(batch) > 0 {
			t.flush(id, batch)
		}
	}
}

// CloseSession flushes a session's remainder and closes its log file.
func (t *Throttle) CloseSession(sessionID string) {
	t.FlushSession(sessionID)

	t.mu.Lock()
	if f, ok := t.logs[sessionID]; ok {
		f.Close()
		delete(t.logs, sessionID)
	}
	t.mu.Unlock()
}

// Close stops the flush loop, delivers all remainders, and closes
// every session log.
func (t *Throttle) Close() {
	t.ticker.Stop()
	close(t.done)
	t.wg.Wait()

	t.FlushAll()

	t.mu.Lock()
	for id, f := range t.logs {
		f.Close()
		delete(t.logs, id)
	}
	t.mu.Unlock()
}

// LogPath returns the log file path for a session.
func (t *Throttle) LogPath(sessionID string) string {
	return filepath.Join(t.logDir, util.SanitizeFilename(sessionID)+".log")
}

// appendLogLocked writes lines to the session's log file. Write errors
// are logged and swallowed; delivery proceeds regardless.
func (t *Throttle) appendLogLocked(sessionID string, lines []string) {
	f, ok := t.logs[sessionID]
	if !ok {
		if err := os.MkdirAll(t.logDir, 0700); err != nil {
			slog.Warn("session log directory", "error", err)
			return
		}
		var err error
		f, err = os.OpenFile(t.LogPath(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			slog.Warn("session log open failed", "session", sessionID, "error", err)
			return
		}
		t.logs[sessionID] = f
	}
	for _, line := range lines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			slog.Warn("session log write failed", "session", sessionID, "error", err)
			return
		}
	}
}
