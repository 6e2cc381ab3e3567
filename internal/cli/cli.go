// Package cli implements the servecheck command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"servecheck/internal/logging"
)

// Globals holds the persistent flags shared by every command.
type Globals struct {
	LogLevel string
	LogJSON  bool
	Out      io.Writer

	log zerolog.Logger
}

// Logger returns the logger built from the persistent flags.
func (g *Globals) Logger() zerolog.Logger { return g.log }

func (g *Globals) setup(debug bool) {
	g.log = logging.New(logging.Options{Level: g.LogLevel, Debug: debug, JSON: g.LogJSON, Out: g.Out})
}

// exitError carries a specific exit code without an additional message.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// MainWithArgs runs the command line and returns the process exit code.
func MainWithArgs(args []string) int {
	return mainWith(context.Background(), args, os.Stdout, os.Stderr)
}

func mainWith(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		root := buildRootCmd(&Globals{LogLevel: "info", Out: stderr})
		root.SetOut(stdout)
		_ = root.Usage()
		return 2
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g := &Globals{LogLevel: envOr("SERVECHECK_LOG_LEVEL", "info"), Out: stderr}
	root := buildRootCmd(g)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	return 0
}

// Main returns an exit code for use by cmd/servecheck.
func Main() int { return MainWithArgs(os.Args[1:]) }

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
