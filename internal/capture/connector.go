// Package capture attaches to agent panes and runs the dual capture
// strategy: a continuous raw byte stream through pipe-pane and a
// periodic snapshot diff that feeds the structured output parser.
package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/panebridge/panebridge/internal/parse"
	"github.com/panebridge/panebridge/internal/term"
	"github.com/panebridge/panebridge/internal/tmux"
	"github.com/panebridge/panebridge/internal/util"
)

// Config tunes one connector.
type Config struct {
	// FIFODir is where named pipes are created.
	FIFODir string

	// SnapshotInterval is the snapshot-diff cadence (default 1.5s).
	SnapshotInterval time.Duration

	// SnapshotLines bounds each pane capture to a recent window
	// (default 500). It also bounds the overlap search.
	SnapshotLines int
}

// DefaultConfig returns the standard capture tuning.
func DefaultConfig() Config {
	return Config{
		FIFODir:          filepath.Join(os.TempDir(), "panebridge_streams"),
		SnapshotInterval: 1500 * time.Millisecond,
		SnapshotLines:    500,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.FIFODir == "" {
		c.FIFODir = d.FIFODir
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = d.SnapshotInterval
	}
	if c.SnapshotLines <= 0 {
		c.SnapshotLines = d.SnapshotLines
	}
}

// Callbacks receive connector output. Raw lines are ground truth for a
// terminal view; events come from the snapshot-diff parser pass. The
// two paths carry no cross-ordering guarantee.
type Callbacks struct {
	OnRawLines func(sessionID string, lines []string)
	OnEvent    func(sessionID string, ev parse.Event)
}

// Connector owns the capture attachment for one session. At most one
// connector is attached to a pane at a time.
type Connector struct {
	client    *tmux.Client
	sessionID string
	target    string
	config    Config
	parser    *parse.Parser
	callbacks Callbacks

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	fifoPath string

	mu           sync.Mutex
	running      bool
	lastSnapshot []string
}

// NewConnector creates a connector for one session's pane. The parser
// is owned by the caller; the connector feeds it snapshot-diff lines
// and flushes it on detach.
func NewConnector(client *tmux.Client, sessionID, target string, parser *parse.Parser, cb Callbacks, cfg Config) *Connector {
	cfg.applyDefaults()
	return &Connector{
		client:    client,
		sessionID: sessionID,
		target:    target,
		config:    cfg,
		parser:    parser,
		callbacks: cb,
	}
}

// Attach starts both capture loops. It is idempotent and fails soft
// when the pane is already gone: the error is for logging, the
// connector stays detached.
func (c *Connector) Attach(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()

	if !c.client.PaneExists(c.target) {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return fmt.Errorf("pane %s is gone", c.target)
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.startRawCapture(); err != nil {
		log.Printf("capture: raw stream unavailable for %s: %v", c.target, err)
	}

	c.wg.Add(1)
	go c.snapshotLoop()
	return nil
}

// Detach halts both capture loops, flushes the parser's pending buffer
// so no accumulated content is lost, and removes the FIFO.
func (c *Connector) Detach() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if c.fifoPath != "" {
		_ = c.client.UnpipePane(c.target)
		_ = os.Remove(c.fifoPath)
		c.fifoPath = ""
	}
	c.wg.Wait()

	for _, ev := range c.parser.Flush() {
		c.emitEvent(ev)
	}
}

// Attached reports whether the connector is currently capturing.
func (c *Connector) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// startRawCapture wires pipe-pane into a FIFO and starts the reader.
func (c *Connector) startRawCapture() error {
	if err := os.MkdirAll(c.config.FIFODir, 0700); err != nil {
		return fmt.Errorf("create fifo dir: %w", err)
	}

	safe := util.SanitizeFilename(c.target)
	c.fifoPath = filepath.Join(c.config.FIFODir, fmt.Sprintf("pane_%s_%d.fifo", safe, os.Getpid()))
	if err := tmux.CreateFIFO(c.fifoPath); err != nil {
		return fmt.Errorf("create fifo: %w", err)
	}

	// pipe-pane runs the command via a shell, so the path must be quoted.
	catCmd := fmt.Sprintf("cat >> %s", tmux.ShellQuote(c.fifoPath))
	if err := c.client.PipePane(c.target, catCmd); err != nil {
		os.Remove(c.fifoPath)
		c.fifoPath = ""
		return fmt.Errorf("pipe-pane: %w", err)
	}

	c.wg.Add(1)
	go c.rawLoop()
	return nil
}

// rawLoop reads the pipe-pane FIFO and forwards complete lines
// verbatim. The FIFO is opened O_RDWR so open does not block waiting
// for a writer; reads use a short deadline instead.
func (c *Connector) rawLoop() {
	defer c.wg.Done()

	fifo, err := os.OpenFile(c.fifoPath, os.O_RDWR, os.ModeNamedPipe)
	if err != nil {
		log.Printf("capture: open fifo %s: %v", c.fifoPath, err)
		return
	}
	defer fifo.Close()

	reader := bufio.NewReader(fifo)
	// A read deadline can fire mid-line; the fragment read so far is
	// returned with the error and must be kept for the next pass, or
	// the line loses its prefix.
	var pending strings.Builder
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			fifo.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
			chunk, err := reader.ReadString('\n')
			pending.WriteString(chunk)
			if err != nil {
				if err == io.EOF || os.IsTimeout(err) {
					continue
				}
				if c.ctx.Err() != nil {
					return
				}
				log.Printf("capture: fifo read error for %s: %v", c.target, err)
				continue
			}
			line := strings.TrimSuffix(pending.String(), "\n")
			pending.Reset()
			if c.callbacks.OnRawLines != nil {
				c.callbacks.OnRawLines(c.sessionID, []string{line})
			}
		}
	}
}

// snapshotLoop periodically captures the rendered pane and parses the
// genuinely new conversation lines. A slow capture delays only this
// session's next cycle.
func (c *Connector) snapshotLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			content, err := c.client.CapturePaneContext(c.ctx, c.target, c.config.SnapshotLines)
			if err != nil {
				if c.ctx.Err() != nil {
					return
				}
				log.Printf("capture: snapshot error for %s: %v", c.target, err)
				continue
			}
			c.processSnapshot(content)
		}
	}
}

// processSnapshot diffs the extracted conversation lines against the
// previous snapshot. The diff is the longest suffix of the old content
// that is a prefix of the new content; only lines past the overlap are
// parsed. A set difference would wrongly re-surface scrolled-past
// content when the pane partially re-renders.
func (c *Connector) processSnapshot(content string) {
	// The overlap search cost is bounded by the snapshot window; enforce
	// the bound here rather than trusting the capture side.
	content = util.LastNLines(content, c.config.SnapshotLines)
	extracted := ExtractConversation(term.Clean(content))

	c.mu.Lock()
	fresh := util.NewLines(c.lastSnapshot, extracted)
	c.lastSnapshot = extracted
	c.mu.Unlock()

	for _, line := range fresh {
		for _, ev := range c.parser.ParseLine(line) {
			c.emitEvent(ev)
		}
	}
}

func (c *Connector) emitEvent(ev parse.Event) {
	if c.callbacks.OnEvent != nil {
		c.callbacks.OnEvent(c.sessionID, ev)
	}
}
