package util

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestTruncate(t *testing.T) {
	if got := Truncate("hello world", 8); got != "hello..." {
		t.Errorf("expected %q, got %q", "hello...", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("expected unchanged string, got %q", got)
	}
	if got := Truncate("anything", 0); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestSafeSlice(t *testing.T) {
	// Multi-byte rune must not be cut mid-sequence.
	s := "abécd" // é is 2 bytes
	got := SafeSlice(s, 3)
	for i := range got {
		_ = i
	}
	if len(got) > 3 {
		t.Errorf("expected at most 3 bytes, got %d", len(got))
	}
}

func TestLastNLines(t *testing.T) {
	text := "a\nb\nc\nd"
	if got := LastNLines(text, 2); got != "c\nd" {
		t.Errorf("expected %q, got %q", "c\nd", got)
	}
	if got := LastNLines(text, 10); got != text {
		t.Errorf("expected full text, got %q", got)
	}
}

func TestNewLines_OverlapDiff(t *testing.T) {
	before := []string{"A", "B", "C"}
	after := []string{"B", "C", "D", "E"}

	got := NewLines(before, after)
	want := []string{"D", "E"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestNewLines_NoOverlap(t *testing.T) {
	before := []string{"A", "B"}
	after := []string{"X", "Y"}

	got := NewLines(before, after)
	if !reflect.DeepEqual(got, after) {
		t.Errorf("expected all lines new, got %v", got)
	}
}

func TestNewLines_IdenticalSnapshots(t *testing.T) {
	lines := []string{"A", "B", "C"}
	if got := NewLines(lines, lines); len(got) != 0 {
		t.Errorf("expected no new lines, got %v", got)
	}
}

func TestNewLines_EmptyBefore(t *testing.T) {
	after := []string{"A"}
	if got := NewLines(nil, after); !reflect.DeepEqual(got, after) {
		t.Errorf("expected first snapshot to be all new, got %v", got)
	}
}

func TestNewLines_RepeatedLines(t *testing.T) {
	// The longest overlap must win; a shorter accidental match would
	// re-emit the repeated line.
	before := []string{"x", "sep", "y", "sep"}
	after := []string{"y", "sep", "z"}

	got := NewLines(before, after)
	want := []string{"z"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestAtomicWriteFile(t *testing.T) {
	tmpDir := t.TempDir()

	path := filepath.Join(tmpDir, "state.json")
	if err := AtomicWriteFile(path, []byte("initial"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("updated"), 0644); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading file: %v", err)
	}
	if string(got) != "updated" {
		t.Errorf("content mismatch: got %q", string(got))
	}

	// No temp files left behind.
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 file in dir, found %d", len(entries))
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := SanitizeFilename("a/b:c d"); got != "a-b-c_d" {
		t.Errorf("unexpected sanitized name %q", got)
	}
}
