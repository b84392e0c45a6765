// Package tmux wraps the tmux CLI for pane attachment, capture, and input
// delivery. All commands run with a bounded timeout; a missing pane or dead
// server is reported as an error, never a panic.
package tmux

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds every tmux invocation.
const DefaultCommandTimeout = 30 * time.Second

// Client executes tmux commands.
type Client struct {
	Timeout time.Duration
}

// NewClient creates a tmux client with the given command timeout.
// A non-positive timeout falls back to DefaultCommandTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Client{Timeout: timeout}
}

// IsInstalled checks if tmux is available on PATH.
func (c *Client) IsInstalled() bool {
	_, err := exec.LookPath("tmux")
	return err == nil
}

// Run executes a tmux command and returns trimmed stdout.
func (c *Client) Run(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()
	return c.RunContext(ctx, args...)
}

// RunContext executes a tmux command under the caller's context.
func (c *Client) RunContext(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "tmux", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tmux %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// RunSilent executes a tmux command ignoring output.
func (c *Client) RunSilent(args ...string) error {
	_, err := c.Run(args...)
	return err
}
