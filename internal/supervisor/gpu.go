package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"servecheck/internal/common/procutil"
)

// GPUInfo describes the execution host's accelerators.
type GPUInfo struct {
	// Host is true when the host carries GPU tooling (a GPU instance).
	Host bool
	// Available is true when at least one accelerator answers.
	Available bool
	Count     int
}

// GPUProbe inspects the host for usable accelerators.
type GPUProbe interface {
	Probe(ctx context.Context) GPUInfo
}

// NvidiaSMIProbe detects NVIDIA GPUs through nvidia-smi.
type NvidiaSMIProbe struct {
	Bin string
}

func (p NvidiaSMIProbe) Probe(ctx context.Context) GPUInfo {
	bin := p.Bin
	if bin == "" {
		bin = "nvidia-smi"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return GPUInfo{}
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := procutil.Output(ctx, procutil.Cmd{Path: path, Args: []string{"-L"}})
	if err != nil {
		return GPUInfo{Host: true}
	}
	n := countGPULines(out)
	return GPUInfo{Host: true, Available: n > 0, Count: n}
}

// countGPULines counts "GPU <i>: ..." lines of `nvidia-smi -L`.
func countGPULines(out []byte) int {
	n := 0
	s := bufio.NewScanner(bytes.NewReader(out))
	for s.Scan() {
		if strings.HasPrefix(strings.TrimSpace(s.Text()), "GPU ") {
			n++
		}
	}
	return n
}

// StaticProbe reports a fixed answer.
type StaticProbe GPUInfo

func (p StaticProbe) Probe(context.Context) GPUInfo { return GPUInfo(p) }
