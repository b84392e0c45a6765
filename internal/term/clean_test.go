package term

import (
	"reflect"
	"testing"
)

func TestCleanLine_OnlySequencesYieldsEmpty(t *testing.T) {
	cases := []string{
		"\x1b[5C",
		"\x1b[31m\x1b[0m",
		"\x1b]0;window title\x07",
		"\x1b[?25l\x1b[?25h",
		"\x9b2J",
		"\x1b=",
	}
	for _, raw := range cases {
		if got := CleanLine(raw); got != "" {
			t.Errorf("CleanLine(%q) = %q, expected empty", raw, got)
		}
	}
}

func TestStripSequences_RawC1Bytes(t *testing.T) {
	// A raw 8-bit C1 introducer is a single invalid-UTF-8 byte; the
	// UTF-8 encoding of U+009B is the two-byte form. Both must strip.
	cases := map[string]string{
		"before\x9b31mafter":   "beforeafter",
		"before31mafter": "beforeafter",
		"\x9d0;title\x07text":  "text",
		"\x9b2J":               "",
	}
	for raw, want := range cases {
		if got := StripSequences(raw); got != want {
			t.Errorf("StripSequences(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestStripSequences_CursorForwardBecomesSpace(t *testing.T) {
	got := StripSequences("hello\x1b[3Cworld")
	if got != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", got)
	}
}

func TestStripSequences_ColorCodes(t *testing.T) {
	got := StripSequences("\x1b[1;32mdone\x1b[0m")
	if got != "done" {
		t.Errorf("expected %q, got %q", "done", got)
	}
}

func TestStripSequences_OSCWithSTTerminator(t *testing.T) {
	got := StripSequences("\x1b]2;title\x1b\\after")
	if got != "after" {
		t.Errorf("expected %q, got %q", "after", got)
	}
}

func TestClean_CarriageReturnsAreLineBoundaries(t *testing.T) {
	got := Clean("spinner frame 1\rspinner frame 2\rfinal line")
	want := []string{"spinner frame 1", "spinner frame 2", "final line"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestClean_DropsEmptyLines(t *testing.T) {
	got := Clean("one\n\n  \n\x1b[2K\ntwo\n")
	want := []string{"one", "two"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestClean_CRLF(t *testing.T) {
	got := Clean("a\r\nb\r\n")
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestClean_EmptyChunk(t *testing.T) {
	if got := Clean(""); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestClean_PreservesInteriorWhitespace(t *testing.T) {
	got := Clean("  indented continuation")
	if len(got) != 1 || got[0] != "  indented continuation" {
		t.Errorf("indentation must survive cleaning, got %v", got)
	}
}
