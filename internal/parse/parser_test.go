package parse

import (
	"encoding/json"
	"strings"
	"testing"
)

func parseAll(p *Parser, lines ...string) []Event {
	var events []Event
	for _, line := range lines {
		events = append(events, p.ParseLine(line)...)
	}
	return events
}

func TestParseLine_ToolUse(t *testing.T) {
	p := NewParser()
	events := p.ParseLine("⏺ Read(file.txt)")

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Type != EventToolUse || ev.Tool != "read" || ev.Detail != "file.txt" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestParseLine_ToolUseJSONShape(t *testing.T) {
	p := NewParser()
	events := p.ParseLine("⏺ Read(file.txt)")
	data, err := json.Marshal(events[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"tool_use","tool":"read","detail":"file.txt"}`
	if string(data) != want {
		t.Errorf("wire shape mismatch:\n got %s\nwant %s", data, want)
	}
}

func TestParseLine_ToolUseDetailBounded(t *testing.T) {
	p := NewParser()
	events := p.ParseLine("⏺ Bash(" + strings.Repeat("x", 2*maxToolDetail) + ")")

	if len(events) != 1 || events[0].Type != EventToolUse {
		t.Fatalf("expected 1 tool_use event, got %+v", events)
	}
	detail := events[0].Detail
	if len(detail) > maxToolDetail {
		t.Errorf("detail is %d bytes, want at most %d", len(detail), maxToolDetail)
	}
	if !strings.HasSuffix(detail, "...") {
		t.Errorf("truncated detail should end in ellipsis, got %q", detail[len(detail)-8:])
	}
}

func TestParseLine_UnknownToolFallsToMessage(t *testing.T) {
	p := NewParser()
	events := parseAll(p, "⏺ Frobnicate(zap)")
	events = append(events, p.Flush()...)

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %v", len(events), events)
	}
	if events[0].Type != EventMessage {
		t.Errorf("expected unknown tool to degrade to message, got %s", events[0].Type)
	}
	if !strings.Contains(events[0].Text, "Frobnicate") {
		t.Errorf("message should preserve original line, got %q", events[0].Text)
	}
}

func TestParseLine_ToolUseFlushesPendingMessage(t *testing.T) {
	p := NewParser()
	events := parseAll(p, "I will read the file now.", "⏺ Read(main.go)")

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %v", len(events), events)
	}
	if events[0].Type != EventMessage || events[0].Text != "I will read the file now." {
		t.Errorf("expected flushed message first, got %+v", events[0])
	}
	if events[1].Type != EventToolUse || events[1].Tool != "read" {
		t.Errorf("expected tool_use second, got %+v", events[1])
	}
}

func TestParseLine_ToolResultAccumulation(t *testing.T) {
	p := NewParser()
	events := parseAll(p,
		"⏺ Bash(go test ./...)",
		"  ⎿ ok  github.com/x/y  0.31s",
		"    ok  github.com/x/z  0.05s",
		"All tests passed.",
	)
	events = append(events, p.Flush()...)

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %v", len(events), events)
	}
	if events[0].Type != EventToolUse {
		t.Errorf("event 0: %+v", events[0])
	}
	if events[1].Type != EventToolResult {
		t.Errorf("event 1: %+v", events[1])
	}
	if !strings.Contains(events[1].Text, "0.31s") || !strings.Contains(events[1].Text, "0.05s") {
		t.Errorf("tool result should hold both lines, got %q", events[1].Text)
	}
	if events[2].Type != EventMessage || events[2].Text != "All tests passed." {
		t.Errorf("event 2: %+v", events[2])
	}
}

func TestParseLine_PermissionPrompt(t *testing.T) {
	p := NewParser()
	events := p.ParseLine("│ Do you want to run this command? │")

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Type != EventPermissionRequest {
		t.Fatalf("expected permission_request, got %s", ev.Type)
	}
	if ev.Action != "run this command" {
		t.Errorf("unexpected action %q", ev.Action)
	}
	if ev.RequestID == "" {
		t.Error("permission request must carry an id")
	}
}

func TestParseLine_PermissionIDsAreDistinct(t *testing.T) {
	p := NewParser()
	a := p.ParseLine("Do you want to proceed?")[0]
	b := p.ParseLine("Do you want to proceed?")[0]
	if a.RequestID == b.RequestID {
		t.Errorf("expected distinct request ids, both %q", a.RequestID)
	}
}

func TestParseLine_Status(t *testing.T) {
	p := NewParser()
	events := p.ParseLine("✻ Thinking… (3s · esc to interrupt)")

	if len(events) != 1 || events[0].Type != EventStatus {
		t.Fatalf("expected status event, got %v", events)
	}
	if events[0].State != "thinking" {
		t.Errorf("expected state thinking, got %q", events[0].State)
	}
}

func TestParseLine_CostUpdate(t *testing.T) {
	p := NewParser()
	events := p.ParseLine("12.3k tokens · cost: $0.42")

	if len(events) != 1 || events[0].Type != EventCostUpdate {
		t.Fatalf("expected cost_update, got %v", events)
	}
	if events[0].Tokens != 12300 {
		t.Errorf("expected 12300 tokens, got %d", events[0].Tokens)
	}
	if events[0].CostUSD != 0.42 {
		t.Errorf("expected $0.42, got %v", events[0].CostUSD)
	}
}

func TestParseLine_Error(t *testing.T) {
	p := NewParser()
	events := p.ParseLine("Error: connection refused")

	if len(events) != 1 || events[0].Type != EventError {
		t.Fatalf("expected error event, got %v", events)
	}
	if events[0].Text != "connection refused" {
		t.Errorf("unexpected error text %q", events[0].Text)
	}
}

func TestParseLine_BlankRunFlushesMessage(t *testing.T) {
	p := NewParser()
	events := parseAll(p, "first line", "second line", "", "")

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %v", len(events), events)
	}
	if events[0].Text != "first line\nsecond line" {
		t.Errorf("unexpected message text %q", events[0].Text)
	}
}

func TestParseLine_BulletedLinesExtendMessage(t *testing.T) {
	p := NewParser()
	events := parseAll(p, "Changes:", "- added parser", "- fixed cleaner")
	events = append(events, p.Flush()...)

	if len(events) != 1 {
		t.Fatalf("expected 1 message, got %v", events)
	}
	if !strings.Contains(events[0].Text, "added parser") {
		t.Errorf("bullets must extend the message, got %q", events[0].Text)
	}
}

func TestFlush_TwiceEmitsOnce(t *testing.T) {
	p := NewParser()
	p.ParseLine("hello")

	first := p.Flush()
	if len(first) != 1 {
		t.Fatalf("expected 1 event from first flush, got %d", len(first))
	}
	second := p.Flush()
	if len(second) != 0 {
		t.Errorf("second flush must emit nothing, got %v", second)
	}
}

func TestFlush_TrimsTrailingWhitespace(t *testing.T) {
	p := NewParser()
	p.ParseLine("text with trailing spaces   ")
	events := p.Flush()
	if events[0].Text != "text with trailing spaces" {
		t.Errorf("expected trimmed text, got %q", events[0].Text)
	}
}

func TestFlush_DetectsTruncationMarker(t *testing.T) {
	p := NewParser()
	parseAll(p,
		"⏺ Read(big.txt)",
		"  ⎿ line one",
		"  ⎿ … +23 lines (ctrl+r to expand)",
	)
	events := p.Flush()

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %v", events)
	}
	if !events[0].Truncated {
		t.Error("expected Truncated flag")
	}
	if strings.Contains(events[0].Text, "+23 lines") {
		t.Errorf("marker line should not appear in text, got %q", events[0].Text)
	}
}

func TestParser_NoLineIsEverDropped(t *testing.T) {
	lines := []string{
		"plain prose",
		"⏺ Read(a.go)",
		"  ⎿ contents",
		"another message",
		"✻ Pondering…",
		"weird ~~ !! line",
		"Error: boom",
		"trailing thought",
	}

	p := NewParser()
	var events []Event
	for _, line := range lines {
		events = append(events, p.ParseLine(line)...)
	}
	events = append(events, p.Flush()...)

	// Every non-empty line must be represented in exactly one event:
	// either as a dedicated event or inside an accumulated text.
	var all strings.Builder
	for _, ev := range events {
		all.WriteString(ev.Text)
		all.WriteString(ev.Detail)
		all.WriteString(ev.State)
		all.WriteString("\n")
	}
	joined := all.String()

	for _, probe := range []string{"plain prose", "contents", "another message", "weird ~~ !! line", "boom", "trailing thought"} {
		if !strings.Contains(joined, probe) {
			t.Errorf("line %q lost: not present in any event", probe)
		}
	}
}
