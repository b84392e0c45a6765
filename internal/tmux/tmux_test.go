package tmux

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewClient_TimeoutDefault(t *testing.T) {
	c := NewClient(0)
	if c.Timeout != DefaultCommandTimeout {
		t.Errorf("expected default timeout %v, got %v", DefaultCommandTimeout, c.Timeout)
	}

	c = NewClient(5 * time.Second)
	if c.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", c.Timeout)
	}
}

func TestShellQuote(t *testing.T) {
	cases := map[string]string{
		"/tmp/plain.fifo":    "'/tmp/plain.fifo'",
		"/tmp/with space":    "'/tmp/with space'",
		"/tmp/it's":          `'/tmp/it'\''s'`,
		"$(dangerous); rm x": "'$(dangerous); rm x'",
	}
	for in, want := range cases {
		if got := ShellQuote(in); got != want {
			t.Errorf("ShellQuote(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateFIFO(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.fifo")

	if err := CreateFIFO(path); err != nil {
		t.Fatalf("CreateFIFO failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat fifo: %v", err)
	}
	if info.Mode()&os.ModeNamedPipe == 0 {
		t.Error("expected a named pipe")
	}

	// Replacing a stale FIFO must succeed.
	if err := CreateFIFO(path); err != nil {
		t.Fatalf("replacing fifo failed: %v", err)
	}
}
