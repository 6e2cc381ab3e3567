package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects per-run step and outcome metrics. Each instance owns its
// registry so runs can be exported to a textfile independently.
type Metrics struct {
	reg *prometheus.Registry

	stepDuration *prometheus.HistogramVec
	runs         *prometheus.CounterVec
	inferences   *prometheus.CounterVec
	inferLatency prometheus.Histogram
}

// NewMetrics constructs and registers the run metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "servecheck",
				Name:      "step_duration_seconds",
				Help:      "Duration of run steps in seconds",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"step", "result"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "servecheck",
				Name:      "runs_total",
				Help:      "Completed runs by final state and failure kind",
			},
			[]string{"state", "kind"},
		),
		inferences: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "servecheck",
				Name:      "inferences_total",
				Help:      "Inference requests by model and result",
			},
			[]string{"model", "result"},
		),
		inferLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "servecheck",
				Name:      "inference_duration_seconds",
				Help:      "Duration of single inference requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
	m.reg.MustRegister(m.stepDuration, m.runs, m.inferences, m.inferLatency)
	return m
}

// Registry exposes the metrics for scraping or gathering.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// WriteTextfile writes the metrics in the node exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}

func (m *Metrics) observeStep(s State, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.stepDuration.WithLabelValues(s.String(), result).Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeInference(model string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.inferences.WithLabelValues(model, result).Inc()
	m.inferLatency.Observe(d.Seconds())
}

func (m *Metrics) observeRun(s State, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(s.String(), string(Classify(err))).Inc()
}
