package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/procfs"
	"github.com/rs/zerolog"
)

type staticHost struct{ cpu, mem float64 }

func (h staticHost) Read() (float64, float64, error) { return h.cpu, h.mem, nil }

type staticGPU struct {
	mu    sync.Mutex
	calls int
	gpus  []GPUSample
	err   error
}

func (g *staticGPU) Read(context.Context) ([]GPUSample, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.gpus, g.err
}

func TestRun_AppendsSamplesUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	gpu := &staticGPU{gpus: []GPUSample{{ID: 0, Load: 42, Memory: 10}}}
	m := &Monitor{Host: staticHost{cpu: 12.5, mem: 50}, GPU: gpu, Interval: 10 * time.Millisecond, Series: &Series{}, Log: zerolog.Nop()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, dir) }()

	deadline := time.Now().Add(2 * time.Second)
	for m.Series.Len() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least 3 samples, got %d", m.Series.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("monitor did not stop after cancel")
	}

	b, err := os.ReadFile(filepath.Join(dir, OutputFile))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	out := string(b)
	if n := strings.Count(out, "CPU 12.5% MEMORY 50.0% GPU"); n < 3 {
		t.Fatalf("expected >=3 blocks, got %d:\n%s", n, out)
	}
	if !strings.Contains(out, "  0  42%  10%") {
		t.Fatalf("gpu row missing:\n%s", out)
	}
	if loads := m.Series.GPULoads()[0]; len(loads) < 3 || loads[0] != 42 {
		t.Fatalf("gpu loads %v", loads)
	}
}

func TestRun_RequiresReader(t *testing.T) {
	m := &Monitor{Log: zerolog.Nop()}
	if err := m.Run(context.Background(), t.TempDir()); err == nil {
		t.Fatalf("expected error without readers")
	}
}

func TestSample_ReaderErrorsLeaveZeroes(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	m := &Monitor{GPU: &staticGPU{err: errors.New("driver gone")}, Log: zerolog.Nop(), now: func() time.Time { return fixed }}
	s := m.Sample(context.Background())
	if s.CPU != 0 || len(s.GPUs) != 0 || !s.Time.Equal(fixed) {
		t.Fatalf("unexpected sample %+v", s)
	}
	if !strings.HasPrefix(s.Format(), "\n2024-05-01-10:30:00\n") {
		t.Fatalf("unexpected format %q", s.Format())
	}
}

func TestParseGPUQuery(t *testing.T) {
	got, err := parseGPUQuery("0, 35, 4096, 16384\n1, 0, 0, 16384\n\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []GPUSample{{ID: 0, Load: 35, Memory: 25}, {ID: 1, Load: 0, Memory: 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if _, err := parseGPUQuery("0, 35\n"); err == nil {
		t.Fatalf("expected error for short row")
	}
	if _, err := parseGPUQuery("0, x, 1, 2\n"); err == nil {
		t.Fatalf("expected error for non-numeric field")
	}
}

func TestCPUAndMemPercent(t *testing.T) {
	prev := procfs.CPUStat{User: 10, System: 10, Idle: 80}
	cur := procfs.CPUStat{User: 30, System: 20, Idle: 110}
	if got := cpuPercent(prev, cur); got != 50 {
		t.Fatalf("cpu=%v want 50", got)
	}
	if got := cpuPercent(cur, cur); got != 0 {
		t.Fatalf("cpu without progress=%v", got)
	}
	total, avail := uint64(1000), uint64(250)
	if got := memPercent(procfs.Meminfo{MemTotal: &total, MemAvailable: &avail}); got != 75 {
		t.Fatalf("mem=%v want 75", got)
	}
	if got := memPercent(procfs.Meminfo{}); got != 0 {
		t.Fatalf("mem without total=%v", got)
	}
}

func TestProcReader_Fixture(t *testing.T) {
	dir := t.TempDir()
	stat := "cpu  100 0 100 800 0 0 0 0 0 0\ncpu0 100 0 100 800 0 0 0 0 0 0\nbtime 1700000000\n"
	meminfo := "MemTotal:       1000 kB\nMemFree:         100 kB\nMemAvailable:    400 kB\n"
	if err := os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "meminfo"), []byte(meminfo), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := NewProcReader(dir)
	if err != nil {
		t.Skipf("procfs unavailable on this platform: %v", err)
	}
	cpu, mem, err := r.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if cpu < 19.9 || cpu > 20.1 {
		t.Fatalf("cpu=%v want 20", cpu)
	}
	if mem != 60 {
		t.Fatalf("mem=%v want 60", mem)
	}
}
