// amalgam runs the feed-amalgamator build targets and talks to Mastodon
// instances with the project's OAuth adapter.
//
// Usage:
//
//	amalgam lint
//	amalgam run test test-coverage --ci
//	amalgam coverage report --fail-under 80
//	amalgam timeline mastodon.social --name local
//
// A failing target exits with the failing tool's own exit code.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dkoosis/amalgam/internal/cli"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cli.Execute(ctx, args, stdout, stderr, os.Getenv)
}
