package util

import (
	"strings"
	"unicode/utf8"
)

// Truncate shortens a string to at most n bytes with an ASCII "..." suffix.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		lastValid := 0
		for i := range s {
			if i > n {
				break
			}
			lastValid = i
		}
		return s[:lastValid]
	}
	targetLen := n - 3
	prevI := 0
	for i := range s {
		if i > targetLen {
			return s[:prevI] + "..."
		}
		prevI = i
	}
	return s[:prevI] + "..."
}

// SafeSlice truncates a string to maxLen bytes at a rune boundary, no ellipsis.
func SafeSlice(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	lastValid := 0
	for i := range s {
		if i > maxLen {
			break
		}
		lastValid = i
	}
	return s[:lastValid]
}

// LastNLines returns the last n lines of text, or all of it if shorter.
func LastNLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

// SanitizeFilename makes a string safe for use as a filename.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "-",
		"?", "-",
		"\"", "-",
		"<", "-",
		">", "-",
		"|", "-",
		"%", "_",
		" ", "_",
		".", "_",
	)
	safe := replacer.Replace(strings.TrimSpace(name))

	if len(safe) > 50 {
		for i := 50; i >= 0; i-- {
			if utf8.RuneStart(safe[i]) {
				return safe[:i]
			}
		}
		return safe[:50]
	}
	return safe
}
