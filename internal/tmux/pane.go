package tmux

import (
	"context"
	"fmt"
	"strings"
)

// PaneInfo describes one tmux pane.
type PaneInfo struct {
	ID      string
	Title   string
	Command string
	Active  bool
}

// HasSession reports whether the tmux session or pane target exists.
func (c *Client) HasSession(target string) bool {
	return c.RunSilent("has-session", "-t", target) == nil
}

// PaneExists reports whether the exact pane target is alive.
func (c *Client) PaneExists(target string) bool {
	out, err := c.Run("display-message", "-t", target, "-p", "#{pane_id}")
	return err == nil && out != ""
}

// ListPanes returns all panes across all sessions.
func (c *Client) ListPanes() ([]PaneInfo, error) {
	sep := "|#|"
	format := fmt.Sprintf("#{pane_id}%[1]s#{pane_title}%[1]s#{pane_current_command}%[1]s#{pane_active}", sep)
	output, err := c.Run("list-panes", "-a", "-F", format)
	if err != nil {
		// No server running means no panes, not a failure.
		if strings.Contains(err.Error(), "no server running") ||
			strings.Contains(err.Error(), "error connecting to") {
			return nil, nil
		}
		return nil, err
	}

	var panes []PaneInfo
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, sep)
		if len(parts) < 4 {
			continue
		}
		panes = append(panes, PaneInfo{
			ID:      parts[0],
			Title:   parts[1],
			Command: parts[2],
			Active:  parts[3] == "1",
		})
	}
	return panes, nil
}

// FindPaneByTitle returns the pane id whose title matches exactly, or ""
// when no such pane exists. Used to heal stale pane references after a
// tmux server restart renumbers panes.
func (c *Client) FindPaneByTitle(title string) string {
	panes, err := c.ListPanes()
	if err != nil {
		return ""
	}
	for _, p := range panes {
		if p.Title == title {
			return p.ID
		}
	}
	return ""
}

// CapturePane captures the last n rendered lines of a pane.
func (c *Client) CapturePane(target string, lines int) (string, error) {
	return c.Run("capture-pane", "-t", target, "-p", "-S", fmt.Sprintf("-%d", lines))
}

// CapturePaneContext captures pane content under the caller's context.
func (c *Client) CapturePaneContext(ctx context.Context, target string, lines int) (string, error) {
	return c.RunContext(ctx, "capture-pane", "-t", target, "-p", "-S", fmt.Sprintf("-%d", lines))
}

// SendKeys writes literal text into a pane, then optionally submits it.
func (c *Client) SendKeys(target, keys string, enter bool) error {
	if err := c.RunSilent("send-keys", "-t", target, "-l", "--", keys); err != nil {
		return err
	}
	if enter {
		return c.RunSilent("send-keys", "-t", target, "C-m")
	}
	return nil
}

// SendInterrupt sends Ctrl+C to a pane.
func (c *Client) SendInterrupt(target string) error {
	return c.RunSilent("send-keys", "-t", target, "C-c")
}

// NewSession creates a detached tmux session rooted at directory and
// returns the first pane's id.
func (c *Client) NewSession(name, directory, command string) (string, error) {
	args := []string{"new-session", "-d", "-s", name, "-P", "-F", "#{pane_id}"}
	if directory != "" {
		args = append(args, "-c", directory)
	}
	if command != "" {
		args = append(args, command)
	}
	return c.Run(args...)
}

// KillSession kills a tmux session.
func (c *Client) KillSession(name string) error {
	return c.RunSilent("kill-session", "-t", name)
}

// SetPaneTitle names a pane so it can be found again after restarts.
func (c *Client) SetPaneTitle(target, title string) error {
	return c.RunSilent("select-pane", "-t", target, "-T", title)
}

// PipePane attaches a pipe-pane command streaming pane output into the
// given shell command (typically a cat into a FIFO).
func (c *Client) PipePane(target, shellCmd string) error {
	return c.RunSilent("pipe-pane", "-t", target, shellCmd)
}

// UnpipePane detaches any pipe-pane attachment from the target.
func (c *Client) UnpipePane(target string) error {
	return c.RunSilent("pipe-pane", "-t", target)
}

// ShellQuote quotes a string for safe interpolation into a shell command
// run by tmux pipe-pane.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
