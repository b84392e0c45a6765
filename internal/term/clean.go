// Package term converts raw pseudo-terminal output into clean line-oriented
// text suitable for pattern matching and relay.
package term

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Escape sequence classes handled by Clean. Cursor-forward is matched before
// the general CSI class because it is rewritten to a space rather than
// dropped: agent TUIs position words with cursor movement instead of literal
// spaces, and stripping the sequence outright would glue words together.
var (
	// cursorForwardPattern matches CSI cursor-forward (ESC [ n C).
	cursorForwardPattern = regexp.MustCompile(`\x1b\[\d*C`)

	// csiPattern matches CSI sequences: parameters, intermediates, final byte.
	csiPattern = regexp.MustCompile(`\x1b\[[0-9;:?]*[ -/]*[@-~]`)

	// oscPattern matches OSC sequences terminated by BEL or ST.
	oscPattern = regexp.MustCompile(`\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)?`)

	// escFeFpPattern matches single-byte Fe and Fp escapes (ESC + one byte).
	escFeFpPattern = regexp.MustCompile(`\x1b[@-Z\\^_0-9:;<=>?]`)
)

// normalizeC1 rewrites 8-bit C1 controls to their 7-bit ESC forms so the
// regex classes below see them. A raw C1 byte in pty output is invalid
// UTF-8 and decodes as U+FFFD, so it never reaches a regexp rune class;
// this pass works byte by byte instead.
func normalizeC1(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			switch c := s[i]; {
			case c == 0x9b: // CSI
				b.WriteString("\x1b[")
			case c == 0x9d: // OSC
				b.WriteString("\x1b]")
			case c >= 0x80 && c <= 0x9f:
				// other raw C1 controls carry no text
			default:
				b.WriteByte(c)
			}
			i++
			continue
		}
		switch {
		case r == 0x9b:
			b.WriteString("\x1b[")
		case r == 0x9d:
			b.WriteString("\x1b]")
		case r >= 0x80 && r <= 0x9f:
		default:
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

// StripSequences removes terminal control and escape sequences from s,
// replacing cursor-forward movements with a single space.
func StripSequences(s string) string {
	s = normalizeC1(s)
	s = cursorForwardPattern.ReplaceAllString(s, " ")
	s = oscPattern.ReplaceAllString(s, "")
	s = csiPattern.ReplaceAllString(s, "")
	s = escFeFpPattern.ReplaceAllString(s, "")
	return s
}

// Clean transforms a raw output chunk into zero or more complete clean lines.
// Carriage returns mark screen redraw boundaries and become newlines; lines
// left empty after stripping are dropped.
func Clean(chunk string) []string {
	if chunk == "" {
		return nil
	}

	stripped := StripSequences(chunk)
	stripped = strings.ReplaceAll(stripped, "\r\n", "\n")
	stripped = strings.ReplaceAll(stripped, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(stripped, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// CleanLine strips sequences from a single line. Returns the empty string
// when the line held nothing but control sequences.
func CleanLine(line string) string {
	cleaned := StripSequences(line)
	if strings.TrimSpace(cleaned) == "" {
		return ""
	}
	return cleaned
}
