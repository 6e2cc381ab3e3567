package procutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// tailBytes bounds how much stderr is kept for error messages.
const tailBytes = 4096

// Cmd describes one external program invocation.
type Cmd struct {
	Path string
	Args []string
	Env  map[string]string // added on top of the inherited environment
	Dir  string
	// Stdout and Stderr receive the program output when set. Stderr is also
	// captured so a failure can carry its tail, unless it is an *os.File.
	Stdout io.Writer
	Stderr io.Writer
}

func (c Cmd) String() string {
	parts := make([]string, 0, len(c.Env)+1+len(c.Args))
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+c.Env[k])
	}
	parts = append(parts, c.Path)
	parts = append(parts, c.Args...)
	return strings.Join(parts, " ")
}

// ExitError is returned when the program could not start or exited nonzero.
type ExitError struct {
	Cmd  string
	Code int // -1 when the program never ran
	Tail string
	Err  error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit code %d", e.Cmd, e.Code)
	if e.Err != nil && e.Code < 0 {
		msg = fmt.Sprintf("%s: %v", e.Cmd, e.Err)
	}
	if t := strings.TrimSpace(e.Tail); t != "" {
		msg += "; stderr tail: " + t
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

// Run executes c and waits for it to finish.
func Run(ctx context.Context, c Cmd) error {
	_, err := run(ctx, c, false)
	return err
}

// Output executes c and returns its stdout.
func Output(ctx context.Context, c Cmd) ([]byte, error) {
	return run(ctx, c, true)
}

func run(ctx context.Context, c Cmd, capture bool) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	cmd.Env = os.Environ()
	for k, v := range c.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	// Files are handed to the child as-is so a daemonizing program does not keep
	// Wait blocked on an inherited pipe.
	var stdout bytes.Buffer
	_, stdoutIsFile := c.Stdout.(*os.File)
	switch {
	case stdoutIsFile && !capture:
		cmd.Stdout = c.Stdout
	case capture && c.Stdout != nil:
		cmd.Stdout = io.MultiWriter(&stdout, c.Stdout)
	case capture:
		cmd.Stdout = &stdout
	default:
		cmd.Stdout = c.Stdout
	}
	var stderr bytes.Buffer
	if f, ok := c.Stderr.(*os.File); ok {
		cmd.Stderr = f
	} else if c.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, c.Stderr)
	} else {
		cmd.Stderr = &stderr
	}
	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}
	code := -1
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		code = ee.ExitCode()
	}
	tail := stderr.String()
	if len(tail) > tailBytes {
		tail = tail[len(tail)-tailBytes:]
	}
	return stdout.Bytes(), &ExitError{Cmd: c.String(), Code: code, Tail: tail, Err: err}
}

// LineLogger forwards complete lines written to it to a zerolog logger at debug level.
// It may be shared as both Stdout and Stderr of one command.
type LineLogger struct {
	Log    zerolog.Logger
	Prefix string

	mu  sync.Mutex
	buf []byte
}

func (lw *LineLogger) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		if line := strings.TrimRight(string(lw.buf[:idx]), "\r"); line != "" {
			lw.Log.Debug().Str("src", lw.Prefix).Msg(line)
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}
