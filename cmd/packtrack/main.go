package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultFactories())
	cancel()
	os.Exit(code)
}

// run executes one command and turns its error into a message, a remediation
// hint and a non-zero exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, f factories) int {
	root := newRootCmd(stdout, stderr, f)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if h := hint(err); h != "" {
			fmt.Fprintf(stderr, "Hint: %s\n", h)
		}
		return 1
	}
	return 0
}

func setupLogger(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}
