package monitor

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// TimestampLayout formats sample times in the output file.
const TimestampLayout = "2006-01-02-15:04:05"

// GPUSample is one accelerator's utilization in percent.
type GPUSample struct {
	ID     int
	Load   float64
	Memory float64
}

// Sample is one observation of the host.
type Sample struct {
	Time   time.Time
	CPU    float64
	Memory float64
	GPUs   []GPUSample
}

// Format renders s as a text block for monitor_out.txt.
func (s Sample) Format() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(s.Time.Format(TimestampLayout) + "\n")
	fmt.Fprintf(&b, "CPU %.1f%% MEMORY %.1f%% GPU\n", s.CPU, s.Memory)
	b.WriteString(" ID  GPU  MEM\n")
	b.WriteString("--------------\n")
	for _, g := range s.GPUs {
		fmt.Fprintf(&b, " %2d %3.0f%% %3.0f%%\n", g.ID, g.Load, g.Memory)
	}
	return b.String()
}

// Series is an append-only, concurrency-safe list of samples.
type Series struct {
	mu      sync.Mutex
	samples []Sample
}

func (s *Series) Append(v Sample) {
	s.mu.Lock()
	s.samples = append(s.samples, v)
	s.mu.Unlock()
}

// Samples returns a copy of the collected samples.
func (s *Series) Samples() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sample(nil), s.samples...)
}

func (s *Series) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// GPULoads returns the load history of every GPU seen, keyed by ID.
func (s *Series) GPULoads() map[int][]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[int][]float64{}
	for _, smp := range s.samples {
		for _, g := range smp.GPUs {
			out[g.ID] = append(out[g.ID], g.Load)
		}
	}
	return out
}
