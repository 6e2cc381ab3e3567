// Package monitor samples host CPU, memory and GPU utilization in the
// background and appends each sample to monitor_out.txt.
package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// OutputFile is the file samples are appended to inside the output directory.
const OutputFile = "monitor_out.txt"

// DefaultInterval is the time between samples.
const DefaultInterval = 15 * time.Second

// Monitor periodically samples the host.
type Monitor struct {
	Host     HostReader
	GPU      GPUReader
	Interval time.Duration
	Series   *Series
	Log      zerolog.Logger
	now      func() time.Time
}

// New returns a Monitor reading /proc and nvidia-smi. A host without procfs
// still gets GPU samples.
func New(interval time.Duration, log zerolog.Logger) *Monitor {
	m := &Monitor{GPU: NvidiaSMIReader{}, Interval: interval, Series: &Series{}, Log: log}
	if r, err := NewProcReader(""); err == nil {
		m.Host = r
	} else {
		log.Warn().Err(err).Msg("cpu and memory sampling disabled")
	}
	return m
}

// Run samples immediately and then every Interval until ctx is done. Each sample
// is appended to <outDir>/monitor_out.txt.
func (m *Monitor) Run(ctx context.Context, outDir string) error {
	if m.Host == nil && m.GPU == nil {
		return errNoReaders
	}
	if m.Series == nil {
		m.Series = &Series{}
	}
	interval := m.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("monitor output dir: %w", err)
	}
	path := filepath.Join(outDir, OutputFile)
	m.Log.Info().Str("out", path).Dur("interval", interval).Msg("monitoring started")

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		s := m.Sample(ctx)
		m.Series.Append(s)
		if err := appendFile(path, s.Format()); err != nil {
			m.Log.Warn().Err(err).Msg("write monitor sample")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Sample takes one observation. Reader failures are logged and leave the
// corresponding fields zero.
func (m *Monitor) Sample(ctx context.Context) Sample {
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	s := Sample{Time: now()}
	if m.Host != nil {
		cpu, mem, err := m.Host.Read()
		if err != nil {
			m.Log.Debug().Err(err).Msg("host sample")
		}
		s.CPU, s.Memory = cpu, mem
	}
	if m.GPU != nil {
		gpus, err := m.GPU.Read(ctx)
		if err != nil {
			m.Log.Debug().Err(err).Msg("gpu sample")
		}
		s.GPUs = gpus
	}
	return s
}

func appendFile(path, text string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
