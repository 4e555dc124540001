// Command mdnotes keeps a tree of markdown notes in a GitHub repository:
// edits queue locally and are committed through the Contents API on sync.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := fang.Execute(
		ctx,
		rootCmd(),
		fang.WithVersion(Version),
		fang.WithoutManpage(),
	); err != nil {
		stop()
		os.Exit(1)
	}
}
