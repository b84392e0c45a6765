package cli

import (
	"testing"

	"github.com/panebridge/panebridge/internal/config"
)

func TestRootHasCoreCommands(t *testing.T) {
	want := map[string]bool{"serve": false, "sessions": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestSessionsPruneEmptyRegistry(t *testing.T) {
	cfg = config.Default()
	cfg.Storage.DataDir = t.TempDir()

	if err := sessionsPruneCmd.RunE(sessionsPruneCmd, nil); err != nil {
		t.Fatalf("prune on empty registry: %v", err)
	}
}
