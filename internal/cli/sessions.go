package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/panebridge/panebridge/internal/registry"
	"github.com/panebridge/panebridge/internal/tmux"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect persisted sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listSessions()
	},
}

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove sessions whose panes are gone",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := registry.New(cfg.Storage.DataDir, cfg.Capture.RingSize)
		if err := reg.Load(); err != nil {
			return err
		}
		client := tmux.NewClient(cfg.Tmux.CommandTimeout())
		removed := reg.Prune(client)
		if err := reg.Close(); err != nil {
			return err
		}
		fmt.Printf("removed %d session(s)\n", len(removed))
		return nil
	},
}

func listSessions() error {
	reg := registry.New(cfg.Storage.DataDir, cfg.Capture.RingSize)
	if err := reg.Load(); err != nil {
		return err
	}
	client := tmux.NewClient(cfg.Tmux.CommandTimeout())
	reg.VerifyLive(client)

	sessions := reg.List()
	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(sessions)
	}

	if len(sessions) == 0 {
		fmt.Println("no sessions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPANE\tSTATUS\tLAST ACTIVITY")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.Name, s.PaneTarget, s.Status,
			s.LastActivity.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func init() {
	sessionsCmd.AddCommand(sessionsPruneCmd)
}
