//go:build !windows

package tmux

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// CreateFIFO creates a named pipe at path, replacing any stale one.
func CreateFIFO(path string) error {
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove stale fifo: %w", err)
		}
	}
	if err := unix.Mkfifo(path, 0600); err != nil {
		return fmt.Errorf("mkfifo %s: %w", path, err)
	}
	return nil
}
