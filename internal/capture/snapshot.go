package capture

import (
	"strings"

	"github.com/panebridge/panebridge/internal/parse"
)

// Role markers that open a conversation line in a rendered agent pane.
// Lines starting with one of these, plus their indented continuations,
// form the conversation; everything else is chrome.
var conversationMarkers = []string{
	"⏺", "●", "⎿", ">", "✻", "✽", "✶", "✳", "✢",
}

// Prefixes that identify shell prompts and pane chrome, never
// conversation content even when indented.
var chromePrefixes = []string{
	"$ ", "❯ ", "# ", "╭", "╰", "│", "┌", "└",
}

func isMarkerLine(line string) bool {
	trimmed := strings.TrimLeft(line, " ")
	for _, m := range conversationMarkers {
		if strings.HasPrefix(trimmed, m) {
			return true
		}
	}
	return false
}

func isChromeLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}
	// Horizontal separators.
	if strings.Count(trimmed, "─") >= 3 || strings.Count(trimmed, "-") == len(trimmed) && len(trimmed) >= 3 {
		return true
	}
	for _, p := range chromePrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

// ExtractConversation filters a rendered pane snapshot down to
// conversation lines: marker-prefixed lines and the indented
// continuation lines that follow them. Separators, shell prompts, and
// banner chrome are dropped. Permission prompts are kept even though
// they render inside box chrome; the prompt line is what the parser
// turns into an approval request.
func ExtractConversation(lines []string) []string {
	var out []string
	inBlock := false
	for _, line := range lines {
		switch {
		case isMarkerLine(line):
			out = append(out, line)
			inBlock = true
		case parse.IsPermissionLine(line):
			out = append(out, line)
			inBlock = false
		case inBlock && strings.HasPrefix(line, " ") && !isChromeLine(line):
			out = append(out, line)
		default:
			if strings.TrimSpace(line) != "" {
				inBlock = false
			}
		}
	}
	return out
}
