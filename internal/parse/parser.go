package parse

import (
	"fmt"
	"strings"
)

// mode is the parser's accumulation state.
type mode int

const (
	modeIdle mode = iota
	modeMessage
	modeToolResult
)

// Parser is a per-session state machine over clean output lines. It is not
// safe for concurrent use; the owning connector serializes calls.
//
// No input line is ever silently dropped: a line that matches nothing
// accumulates and eventually surfaces as a message event.
type Parser struct {
	mode    mode
	buf     []string
	permSeq int
}

// NewParser returns a parser in idle mode.
func NewParser() *Parser {
	return &Parser{}
}

// ParseLine processes one clean line and returns zero or more events. A
// high-priority match first flushes the accumulated buffer, so the flush
// event (if any) precedes the match's own event.
func (p *Parser) ParseLine(line string) []Event {
	// High-priority matchers, fixed order.
	if tool, detail, ok := matchToolUse(line); ok {
		events := p.Flush()
		events = append(events, Event{Type: EventToolUse, Tool: tool, Detail: detail})
		p.mode = modeToolResult
		return events
	}
	if action, ok := matchPermission(line); ok {
		events := p.Flush()
		p.permSeq++
		events = append(events, Event{
			Type:      EventPermissionRequest,
			Action:    action,
			RequestID: fmt.Sprintf("perm-%d", p.permSeq),
		})
		return events
	}
	if state, ok := matchStatus(line); ok {
		events := p.Flush()
		events = append(events, Event{Type: EventStatus, State: state})
		return events
	}
	if tokens, cost, ok := matchCost(line); ok {
		events := p.Flush()
		events = append(events, Event{Type: EventCostUpdate, Tokens: tokens, CostUSD: cost})
		return events
	}
	if msg, ok := matchError(line); ok {
		events := p.Flush()
		events = append(events, Event{Type: EventError, Text: msg})
		return events
	}

	// Mode-dependent accumulation.
	trimmed := strings.TrimSpace(line)

	if m := toolResultPattern.FindStringSubmatch(line); m != nil {
		if p.mode == modeToolResult {
			p.buf = append(p.buf, m[1])
			return nil
		}
		events := p.Flush()
		p.mode = modeToolResult
		p.buf = append(p.buf, m[1])
		return events
	}

	switch p.mode {
	case modeToolResult:
		if trimmed == "" {
			return nil
		}
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			p.buf = append(p.buf, strings.TrimRight(line, " \t"))
			return nil
		}
		// Non-indented line ends the result and starts a message.
		events := p.Flush()
		p.mode = modeMessage
		p.buf = append(p.buf, line)
		return events

	case modeMessage:
		if trimmed == "" {
			return p.Flush()
		}
		p.buf = append(p.buf, line)
		return nil

	default: // modeIdle
		if trimmed == "" {
			return nil
		}
		p.mode = modeMessage
		p.buf = append(p.buf, line)
		return nil
	}
}

// Flush converts the accumulated buffer into at most one event and resets
// the parser to idle. Flushing with an empty buffer produces nothing, so a
// second flush with no intervening input is a no-op.
func (p *Parser) Flush() []Event {
	if len(p.buf) == 0 {
		p.mode = modeIdle
		return nil
	}

	truncated := false
	kept := make([]string, 0, len(p.buf))
	for _, line := range p.buf {
		if _, ok := matchTruncation(line); ok {
			truncated = true
			continue
		}
		kept = append(kept, line)
	}

	text := strings.TrimRight(strings.Join(kept, "\n"), " \t\n")

	eventType := EventMessage
	if p.mode == modeToolResult {
		eventType = EventToolResult
	}

	p.buf = nil
	p.mode = modeIdle

	if text == "" && !truncated {
		return nil
	}
	return []Event{{Type: eventType, Text: text, Truncated: truncated}}
}
