package main

import (
	"os"

	"github.com/panebridge/panebridge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
