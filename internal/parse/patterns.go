package parse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/panebridge/panebridge/internal/util"
)

// maxToolDetail bounds the argument text carried on a tool_use event;
// a pathological command line should not balloon the wire frame.
const maxToolDetail = 512

// High-priority line matchers. They run in fixed order before any
// mode-dependent accumulation: tool use, permission prompt, status
// indicator, cost report, error marker.
var (
	// toolUsePattern matches the agent's tool invocation marker, e.g.
	// "⏺ Read(main.go)" or "● Bash(go test ./...)".
	toolUsePattern = regexp.MustCompile(`^\s*[⏺●]\s+(\w+)\((.*)\)\s*$`)

	// toolResultPattern matches the result continuation marker, e.g.
	// "  ⎿  Read 120 lines".
	toolResultPattern = regexp.MustCompile(`^\s*⎿\s?(.*)$`)

	// permissionPatterns match interactive approval prompts.
	permissionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*│?\s*Do you want to (.+?)\??\s*│?\s*$`),
		regexp.MustCompile(`(?i)^\s*│?\s*Allow (.+?)\??\s*│?\s*$`),
		regexp.MustCompile(`(?i)^\s*│?\s*Permission (?:required|needed) (?:to|for) (.+?)\s*│?\s*$`),
	}

	// statusPattern matches spinner/progress lines, e.g. "✻ Thinking…" or
	// "* Wrangling… (12s · esc to interrupt)".
	statusPattern = regexp.MustCompile(`^\s*[✻✽✶✳✢·\*]\s+(\p{L}+)(?:…|\.{3})`)

	// Cost and token reports. Claude Code prints running totals like
	// "12.3k tokens" and "Total cost: $0.42".
	tokenPattern = regexp.MustCompile(`([\d,]+(?:\.\d+)?)(k?)\s*tokens`)
	costPattern  = regexp.MustCompile(`(?i)(?:total )?cost:?\s*\$([\d.]+)`)

	// errorPattern matches explicit error markers at line start.
	errorPattern = regexp.MustCompile(`(?i)^\s*(?:⎿\s*)?(?:API )?(?:Error|Failed|Fatal)[:\s]\s*(.+)$`)

	// truncationPattern matches fold markers inside accumulated buffers,
	// e.g. "… +23 lines (ctrl+r to expand)".
	truncationPattern = regexp.MustCompile(`^\s*(?:…|\.{3})\s*\+?(\d+)\s+(?:more\s+)?lines?\b`)
)

// toolArgFields is the closed enumeration of recognized tools and the
// single argument field each carries. Unrecognized tool names are not
// treated as tool use; the line falls through to message handling.
var toolArgFields = map[string]string{
	"read":         "file_path",
	"write":        "file_path",
	"edit":         "file_path",
	"multiedit":    "file_path",
	"notebookedit": "file_path",
	"bash":         "command",
	"grep":         "pattern",
	"glob":         "pattern",
	"ls":           "path",
	"task":         "description",
	"webfetch":     "url",
	"websearch":    "query",
	"todowrite":    "todos",
}

// matchToolUse returns the canonical tool name and argument when the line is
// a recognized tool invocation.
func matchToolUse(line string) (tool, detail string, ok bool) {
	m := toolUsePattern.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	name := strings.ToLower(m[1])
	if _, known := toolArgFields[name]; !known {
		return "", "", false
	}
	return name, util.Truncate(strings.TrimSpace(m[2]), maxToolDetail), true
}

// IsPermissionLine reports whether the line is an interactive approval
// prompt. Prompts render inside box-drawing chrome, so snapshot
// extraction needs this check before its chrome filter.
func IsPermissionLine(line string) bool {
	_, ok := matchPermission(line)
	return ok
}

// matchPermission extracts the requested action from a permission prompt.
func matchPermission(line string) (action string, ok bool) {
	for _, p := range permissionPatterns {
		if m := p.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

// matchStatus extracts the agent's activity verb from a spinner line.
func matchStatus(line string) (state string, ok bool) {
	m := statusPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}

// matchCost extracts token and dollar totals. Either may be absent.
func matchCost(line string) (tokens int64, cost float64, ok bool) {
	if m := tokenPattern.FindStringSubmatch(line); m != nil {
		raw := strings.ReplaceAll(m[1], ",", "")
		val, err := strconv.ParseFloat(raw, 64)
		if err == nil {
			if m[2] == "k" {
				val *= 1000
			}
			tokens = int64(val)
			ok = true
		}
	}
	if m := costPattern.FindStringSubmatch(line); m != nil {
		val, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			cost = val
			ok = true
		}
	}
	return tokens, cost, ok
}

// matchError extracts the message from an explicit error line.
func matchError(line string) (msg string, ok bool) {
	m := errorPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// matchTruncation reports whether the line is a fold marker and how many
// lines it hides.
func matchTruncation(line string) (hidden int, ok bool) {
	m := truncationPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
