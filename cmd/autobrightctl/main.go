// autobrightctl is the command-line client for the autobright daemon.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sgnexus/autobright/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cli.Execute(ctx); err != nil {
		// cobra has already printed the error.
		os.Exit(1)
	}
}
