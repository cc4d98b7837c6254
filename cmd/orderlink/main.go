// orderlink is a command-line client for the order tracking broker.
//
// It watches order, courier and chat destinations, sends one-off payloads
// such as reviews, and offers an interactive console over a single broker
// session.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the command line in args, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on interrupt; commands shut down cleanly when it ends
//   - args: Command-line arguments without the program name
//   - stdout: Destination for command output
//   - stderr: Destination for logs
//
// Returns:
//   - error: nil on clean exit
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
