package procutil

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRun_SuccessAndEnv(t *testing.T) {
	requireShell(t)
	out, err := Output(context.Background(), Cmd{Path: "sh", Args: []string{"-c", "echo $SC_TEST"}, Env: map[string]string{"SC_TEST": "hello"}})
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	if strings.TrimSpace(string(out)) != "hello" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRun_NonzeroCarriesTail(t *testing.T) {
	requireShell(t)
	err := Run(context.Background(), Cmd{Path: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}})
	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if ee.Code != 3 || !strings.Contains(ee.Tail, "boom") {
		t.Fatalf("unexpected exit error %+v", ee)
	}
	if !strings.Contains(ee.Error(), "exit code 3") {
		t.Fatalf("unexpected message %q", ee.Error())
	}
}

func TestRun_MissingBinary(t *testing.T) {
	err := Run(context.Background(), Cmd{Path: "/definitely/not/a/binary-12345"})
	var ee *ExitError
	if !errors.As(err, &ee) || ee.Code != -1 {
		t.Fatalf("expected start failure, got %v", err)
	}
}

func TestCmdString(t *testing.T) {
	c := Cmd{Path: "torchserve", Args: []string{"--start"}, Env: map[string]string{"TS_NUMBER_OF_GPU": "0"}}
	if got := c.String(); got != "TS_NUMBER_OF_GPU=0 torchserve --start" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestLineLogger_SplitsLines(t *testing.T) {
	var buf bytes.Buffer
	lw := &LineLogger{Log: zerolog.New(&buf).Level(zerolog.DebugLevel), Prefix: "ts"}
	_, _ = lw.Write([]byte("first\nsec"))
	_, _ = lw.Write([]byte("ond\n\n"))
	s := buf.String()
	if strings.Count(s, "\n") != 2 || !strings.Contains(s, `"message":"first"`) || !strings.Contains(s, `"message":"second"`) {
		t.Fatalf("unexpected log output %q", s)
	}
}

func TestLineLogger_SharedByStdoutAndStderr(t *testing.T) {
	requireShell(t)
	var buf bytes.Buffer
	lw := &LineLogger{Log: zerolog.New(&buf).Level(zerolog.DebugLevel), Prefix: "both"}
	script := `i=0; while [ $i -lt 2000 ]; do echo "out line $i"; echo "err line $i" >&2; i=$((i+1)); done`
	if err := Run(context.Background(), Cmd{Path: "sh", Args: []string{"-c", script}, Stdout: lw, Stderr: lw}); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := buf.String()
	if n := strings.Count(out, `"message":"out line `); n != 2000 {
		t.Fatalf("stdout lines forwarded=%d, want 2000", n)
	}
	if n := strings.Count(out, `"message":"err line `); n != 2000 {
		t.Fatalf("stderr lines forwarded=%d, want 2000", n)
	}
	for _, l := range strings.Split(strings.TrimSpace(out), "\n") {
		if !strings.HasSuffix(l, "}") || strings.Count(l, "line ") != 1 {
			t.Fatalf("corrupted line %q", l)
		}
	}
}
