package monitor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/procfs"

	"servecheck/internal/common/procutil"
)

// HostReader reports CPU and memory utilization in percent.
type HostReader interface {
	Read() (cpu, mem float64, err error)
}

// GPUReader reports per-accelerator utilization.
type GPUReader interface {
	Read(ctx context.Context) ([]GPUSample, error)
}

// ProcReader reads /proc through procfs. CPU usage is computed between
// consecutive reads; the first read reports usage since boot.
type ProcReader struct {
	fs procfs.FS

	mu   sync.Mutex
	prev *procfs.CPUStat
}

// NewProcReader opens the proc filesystem at mountPoint ("" for /proc).
func NewProcReader(mountPoint string) (*ProcReader, error) {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	return &ProcReader{fs: fs}, nil
}

func (r *ProcReader) Read() (float64, float64, error) {
	st, err := r.fs.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("read stat: %w", err)
	}
	mi, err := r.fs.Meminfo()
	if err != nil {
		return 0, 0, fmt.Errorf("read meminfo: %w", err)
	}
	r.mu.Lock()
	cur := st.CPUTotal
	var base procfs.CPUStat
	if r.prev != nil {
		base = *r.prev
	}
	r.prev = &cur
	r.mu.Unlock()
	return cpuPercent(base, cur), memPercent(mi), nil
}

func cpuBusyTotal(c procfs.CPUStat) (busy, total float64) {
	idle := c.Idle + c.Iowait
	busy = c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal
	return busy, busy + idle
}

func cpuPercent(prev, cur procfs.CPUStat) float64 {
	pb, pt := cpuBusyTotal(prev)
	cb, ct := cpuBusyTotal(cur)
	if ct-pt <= 0 {
		return 0
	}
	return (cb - pb) / (ct - pt) * 100
}

func memPercent(mi procfs.Meminfo) float64 {
	if mi.MemTotal == nil || *mi.MemTotal == 0 {
		return 0
	}
	avail := uint64(0)
	switch {
	case mi.MemAvailable != nil:
		avail = *mi.MemAvailable
	case mi.MemFree != nil:
		avail = *mi.MemFree
	}
	used := float64(*mi.MemTotal) - float64(avail)
	return used / float64(*mi.MemTotal) * 100
}

// NvidiaSMIReader queries nvidia-smi. A host without nvidia-smi reports no GPUs.
type NvidiaSMIReader struct {
	Bin string
}

func (r NvidiaSMIReader) Read(ctx context.Context) ([]GPUSample, error) {
	bin := r.Bin
	if bin == "" {
		bin = "nvidia-smi"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := procutil.Output(ctx, procutil.Cmd{
		Path: path,
		Args: []string{"--query-gpu=index,utilization.gpu,memory.used,memory.total", "--format=csv,noheader,nounits"},
	})
	if err != nil {
		return nil, err
	}
	return parseGPUQuery(string(out))
}

// parseGPUQuery parses "index, util, mem_used, mem_total" rows.
func parseGPUQuery(out string) ([]GPUSample, error) {
	var gpus []GPUSample
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		f := strings.Split(line, ",")
		if len(f) != 4 {
			return nil, fmt.Errorf("unexpected nvidia-smi row %q", line)
		}
		var vals [4]float64
		for i := range f {
			v, err := strconv.ParseFloat(strings.TrimSpace(f[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("parse nvidia-smi row %q: %w", line, err)
			}
			vals[i] = v
		}
		g := GPUSample{ID: int(vals[0]), Load: vals[1]}
		if vals[3] > 0 {
			g.Memory = vals[2] / vals[3] * 100
		}
		gpus = append(gpus, g)
	}
	return gpus, nil
}

var errNoReaders = errors.New("monitor has neither a host nor a GPU reader")
