// Command polysignal ranks the top holders of a Polymarket market by track
// record and reports whether the smart money agrees on an outcome.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/polysignal/cmd/polysignal/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := commands.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
