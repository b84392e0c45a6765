package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeLiveness struct {
	panes   map[string]bool
	byTitle map[string]string
}

func (f *fakeLiveness) PaneExists(target string) bool   { return f.panes[target] }
func (f *fakeLiveness) FindPaneByTitle(t string) string { return f.byTitle[t] }

func TestCreateAndGet(t *testing.T) {
	r := New(t.TempDir(), 0)

	a := r.Create("alpha", "%1", "/tmp/p", "agent")
	b := r.Create("beta", "%2", "", "")

	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected unique non-empty ids, got %q and %q", a.ID, b.ID)
	}
	if a.Status != StatusIdle {
		t.Errorf("new session status = %q, want %q", a.Status, StatusIdle)
	}

	got, ok := r.Get(a.ID)
	if !ok {
		t.Fatal("Get returned false for existing session")
	}
	if got.Name != "alpha" || got.PaneTarget != "%1" {
		t.Errorf("Get = %+v", got)
	}

	if _, ok := r.Get("nope"); ok {
		t.Error("Get returned true for unknown id")
	}
}

func TestListOrderedByCreation(t *testing.T) {
	r := New(t.TempDir(), 0)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		ts = ts.Add(time.Second)
		return ts
	}

	first := r.Create("one", "%1", "", "")
	second := r.Create("two", "%2", "", "")

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("List returned %d sessions, want 2", len(list))
	}
	if list[0].ID != first.ID || list[1].ID != second.ID {
		t.Errorf("List order = [%s, %s], want [%s, %s]",
			list[0].ID, list[1].ID, first.ID, second.ID)
	}
}

func TestUpdateStatus(t *testing.T) {
	r := New(t.TempDir(), 0)
	s := r.Create("s", "%1", "", "")

	prev, ok := r.UpdateStatus(s.ID, StatusWorking)
	if !ok || prev != StatusIdle {
		t.Errorf("UpdateStatus = (%q, %v), want (idle, true)", prev, ok)
	}
	got, _ := r.Get(s.ID)
	if got.Status != StatusWorking {
		t.Errorf("status after update = %q, want working", got.Status)
	}

	if _, ok := r.UpdateStatus("nope", StatusIdle); ok {
		t.Error("UpdateStatus succeeded for unknown id")
	}
}

func TestRingBufferBounded(t *testing.T) {
	r := New(t.TempDir(), 3)
	s := r.Create("s", "%1", "", "")

	r.Append(s.ID, "a", "b")
	r.Append(s.ID, "c", "d", "e")

	got := r.Replay(s.ID)
	want := []string{"c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("Replay returned %d lines, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Replay[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// Replay hands out a copy, not the live ring.
	got[0] = "mutated"
	if again := r.Replay(s.ID); again[0] != "c" {
		t.Error("Replay exposed internal buffer")
	}
}

func TestAppendBoundsLineLength(t *testing.T) {
	r := New(t.TempDir(), 10)
	s := r.Create("s", "%1", "", "")

	r.Append(s.ID, strings.Repeat("x", 3*maxBufferedLine))

	got := r.Replay(s.ID)
	if len(got) != 1 {
		t.Fatalf("Replay returned %d lines, want 1", len(got))
	}
	if len(got[0]) > maxBufferedLine {
		t.Errorf("stored line is %d bytes, want at most %d", len(got[0]), maxBufferedLine)
	}
}

func TestClientTracking(t *testing.T) {
	r := New(t.TempDir(), 0)
	s := r.Create("s", "%1", "", "")

	if n, ok := r.AddClient(s.ID, "c1"); !ok || n != 1 {
		t.Errorf("AddClient = (%d, %v), want (1, true)", n, ok)
	}
	if n, _ := r.AddClient(s.ID, "c2"); n != 2 {
		t.Errorf("second AddClient count = %d, want 2", n)
	}
	// Re-adding the same client is idempotent.
	if n, _ := r.AddClient(s.ID, "c1"); n != 2 {
		t.Errorf("duplicate AddClient count = %d, want 2", n)
	}
	if n, _ := r.RemoveClient(s.ID, "c1"); n != 1 {
		t.Errorf("RemoveClient count = %d, want 1", n)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	r := New(dir, 0)
	s := r.Create("alpha", "%3", "/home/p", "agent")
	r.Append(s.ID, "line one", "line two")
	r.UpdateStatus(s.ID, StatusWorking)
	r.AddClient(s.ID, "c1")
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r2 := New(dir, 0)
	if err := r2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, ok := r2.Get(s.ID)
	if !ok {
		t.Fatal("session missing after reload")
	}
	if got.Status != StatusOffline {
		t.Errorf("loaded status = %q, want offline", got.Status)
	}
	if len(got.Clients) != 0 {
		t.Errorf("loaded session kept %d clients, want 0", len(got.Clients))
	}
	if lines := r2.Replay(s.ID); len(lines) != 2 || lines[0] != "line one" {
		t.Errorf("replay buffer after reload = %v", lines)
	}
}

func TestLoadMissingFile(t *testing.T) {
	r := New(t.TempDir(), 0)
	if err := r.Load(); err != nil {
		t.Fatalf("Load on empty dir: %v", err)
	}
	if len(r.List()) != 0 {
		t.Error("expected no sessions")
	}
}

func TestVerifyLiveHealsAndPromotes(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, 0)
	stale := r.Create("healme", "%9", "", "")
	dead := r.Create("gone", "%8", "", "")
	r.UpdateStatus(stale.ID, StatusOffline)
	r.UpdateStatus(dead.ID, StatusOffline)

	lv := &fakeLiveness{
		panes:   map[string]bool{"%42": true},
		byTitle: map[string]string{"healme": "%42"},
	}

	live := r.VerifyLive(lv)
	if len(live) != 1 || live[0] != stale.ID {
		t.Fatalf("VerifyLive = %v, want [%s]", live, stale.ID)
	}

	healed, _ := r.Get(stale.ID)
	if healed.PaneTarget != "%42" {
		t.Errorf("pane target = %q, want healed %%42", healed.PaneTarget)
	}
	if healed.Status != StatusIdle {
		t.Errorf("healed status = %q, want idle", healed.Status)
	}

	still, _ := r.Get(dead.ID)
	if still.Status != StatusOffline {
		t.Errorf("dead session status = %q, want offline", still.Status)
	}
}

func TestPruneRemovesDeadSessions(t *testing.T) {
	r := New(t.TempDir(), 0)
	alive := r.Create("alive", "%1", "", "")
	dead := r.Create("dead", "%2", "", "")

	lv := &fakeLiveness{panes: map[string]bool{"%1": true}, byTitle: map[string]string{}}

	removed := r.Prune(lv)
	if len(removed) != 1 || removed[0] != dead.ID {
		t.Fatalf("Prune = %v, want [%s]", removed, dead.ID)
	}
	if _, ok := r.Get(dead.ID); ok {
		t.Error("pruned session still present")
	}
	if _, ok := r.Get(alive.ID); !ok {
		t.Error("live session was pruned")
	}
}

func TestDebouncedPersistence(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, 0)
	r.debounce = 20 * time.Millisecond

	r.Create("s", "%1", "", "")

	path := filepath.Join(dir, storeFileName)
	if _, err := os.Stat(path); err == nil {
		t.Fatal("sessions file written before debounce elapsed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(path); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("debounced save never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
