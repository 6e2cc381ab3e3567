package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"servecheck/internal/client"
)

// Defaults applied when the corresponding Options fields are unset.
const (
	defaultStartWait    = 10 * time.Second
	defaultStopWait     = 10 * time.Second
	defaultProbeTimeout = 2 * time.Second
	defaultPollInitial  = 100 * time.Millisecond
	defaultPollMax      = 2 * time.Second
)

// ArchivePackager produces archives in storeDir from a package descriptor.
// *artifact.Packager satisfies it.
type ArchivePackager interface {
	PackageAll(ctx context.Context, descriptorPath, storeDir string) ([]string, error)
}

// Options configure a Supervisor. Launcher and InferenceURL are required.
type Options struct {
	Launcher      Launcher
	Packager      ArchivePackager
	GPUProbe      GPUProbe
	InferenceURL  string
	ManagementURL string
	// StartWait is the maximum time to wait for /ping after launching.
	StartWait time.Duration
	// StopWait is the maximum time to wait for /ping to go away after stopping.
	StopWait     time.Duration
	ProbeTimeout time.Duration
	PollInitial  time.Duration
	PollMax      time.Duration
	Publisher    EventPublisher
	Log          zerolog.Logger
}

// StartOptions are the per-run launch parameters.
type StartOptions struct {
	StoreDir     string
	LogFile      string
	LogConfig    string
	ServerConfig string
	GPUs         int
	// BuildArtifact runs the packaging step on DescriptorPath before launching.
	BuildArtifact  bool
	DescriptorPath string
	// ArchiveID is used as-is when BuildArtifact is false.
	ArchiveID string
	// Models is passed as the explicit startup model list.
	Models []string
}

// ServerHandle represents the running serving process.
type ServerHandle struct {
	StoreDir     string
	LogFile      string
	LogConfig    string
	ServerConfig string
	GPUs         int
	ArchiveID    string

	mu   sync.Mutex
	live bool
}

// Live reports whether the handle still refers to a running server.
func (h *ServerHandle) Live() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live
}

func (h *ServerHandle) setLive(v bool) {
	h.mu.Lock()
	h.live = v
	h.mu.Unlock()
}

// Supervisor starts, stops and probes one serving process.
type Supervisor struct {
	opts Options
	hc   *http.Client
	log  zerolog.Logger

	mu     sync.Mutex
	handle *ServerHandle
}

// New constructs a Supervisor, applying defaults for unset options.
func New(opts Options) *Supervisor {
	if opts.StartWait <= 0 {
		opts.StartWait = defaultStartWait
	}
	if opts.StopWait <= 0 {
		opts.StopWait = defaultStopWait
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	if opts.PollInitial <= 0 {
		opts.PollInitial = defaultPollInitial
	}
	if opts.PollMax <= 0 {
		opts.PollMax = defaultPollMax
	}
	if opts.GPUProbe == nil {
		opts.GPUProbe = NvidiaSMIProbe{}
	}
	if opts.Publisher == nil {
		opts.Publisher = noopPublisher{}
	}
	return &Supervisor{
		opts: opts,
		hc:   &http.Client{Timeout: 0},
		log:  opts.Log.With().Str("component", "supervisor").Logger(),
	}
}

// Handle returns the current server handle, or nil before a successful Start.
func (s *Supervisor) Handle() *ServerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Start packages (optionally), launches and waits for the serving process.
func (s *Supervisor) Start(ctx context.Context, so StartOptions) (*ServerHandle, error) {
	if h := s.Handle(); h.Live() {
		return nil, s.startFailed(&ServerStartError{Reason: "a server started by this supervisor is still running"})
	}
	if s.opts.Launcher == nil {
		return nil, s.startFailed(&ServerStartError{Reason: "no launcher configured"})
	}

	archiveID := so.ArchiveID
	if so.BuildArtifact {
		if s.opts.Packager == nil {
			return nil, s.startFailed(&ServerStartError{Reason: "artifact build requested without a packager"})
		}
		ids, err := s.opts.Packager.PackageAll(ctx, so.DescriptorPath, so.StoreDir)
		if err != nil {
			return nil, s.startFailed(&ServerStartError{Reason: "packaging failed", Err: err})
		}
		archiveID = ids[0]
		s.log.Info().Str("archive", archiveID).Msg("archive generated")
	}

	if err := s.checkPorts(ctx); err != nil {
		return nil, s.startFailed(err)
	}

	gpus := s.effectiveGPUs(ctx, so.GPUs)
	spec := LaunchSpec{
		StoreDir:     so.StoreDir,
		Models:       so.Models,
		ServerConfig: so.ServerConfig,
		LogConfig:    so.LogConfig,
		LogFile:      so.LogFile,
		GPUs:         gpus,
	}
	s.log.Info().Str("store", so.StoreDir).Int("gpus", gpus).Msg("starting server")
	s.opts.Publisher.Publish(Event{Name: EventStart, Fields: map[string]any{"store": so.StoreDir, "gpus": gpus}})
	if err := s.opts.Launcher.Start(ctx, spec); err != nil {
		s.log.Error().Err(err).Msg("server failed to start, make sure it is not running already")
		return nil, s.startFailed(&ServerStartError{Reason: "launch command failed", Err: err})
	}

	if err := s.waitReady(ctx); err != nil {
		// The launch may have left a half-started process behind.
		if stopErr := s.opts.Launcher.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			s.log.Warn().Err(stopErr).Msg("stop after failed readiness")
		}
		return nil, s.startFailed(err)
	}

	h := &ServerHandle{
		StoreDir:     so.StoreDir,
		LogFile:      so.LogFile,
		LogConfig:    so.LogConfig,
		ServerConfig: so.ServerConfig,
		GPUs:         gpus,
		ArchiveID:    archiveID,
		live:         true,
	}
	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()
	s.log.Info().Str("url", s.opts.InferenceURL).Msg("server started")
	s.opts.Publisher.Publish(Event{Name: EventReady, Fields: map[string]any{"url": s.opts.InferenceURL}})
	return h, nil
}

// Stop stops the serving process. It is a no-op returning true when nothing answers
// the probe. Failures are logged and reported as false, never returned.
func (s *Supervisor) Stop(ctx context.Context) bool {
	if !s.ping(ctx) {
		s.log.Debug().Msg("server not reachable, nothing to stop")
		s.markStopped()
		s.opts.Publisher.Publish(Event{Name: EventStopNoop})
		return true
	}
	if s.opts.Launcher == nil {
		s.warnStop(&StopWarning{Reason: "no launcher configured"})
		return false
	}
	s.log.Info().Msg("stopping server")
	if err := s.opts.Launcher.Stop(ctx); err != nil {
		s.warnStop(&StopWarning{Reason: "stop command failed", Err: err})
		return false
	}
	if !s.waitGone(ctx) {
		s.warnStop(&StopWarning{Reason: "server still answering after " + s.opts.StopWait.String()})
		return false
	}
	s.markStopped()
	s.log.Info().Msg("server stopped")
	s.opts.Publisher.Publish(Event{Name: EventStop})
	return true
}

// HealthCheck probes the server and logs the result.
func (s *Supervisor) HealthCheck(ctx context.Context) bool {
	ok := s.ping(ctx)
	s.log.Info().Bool("healthy", ok).Str("url", s.opts.InferenceURL).Msg("health check")
	return ok
}

func (s *Supervisor) ping(ctx context.Context) bool {
	return client.Ping(ctx, s.hc, s.opts.InferenceURL, s.opts.ProbeTimeout)
}

// checkPorts refuses to launch when another server already owns the endpoints.
func (s *Supervisor) checkPorts(ctx context.Context) error {
	if s.ping(ctx) {
		return &ServerStartError{Reason: "a server is already answering on " + s.opts.InferenceURL}
	}
	for _, ep := range []string{s.opts.InferenceURL, s.opts.ManagementURL} {
		if ep == "" {
			continue
		}
		addr, err := hostPort(ep)
		if err != nil {
			return &ServerStartError{Reason: "invalid endpoint", Err: err}
		}
		if isPortBusy(addr) {
			return &ServerStartError{Reason: "port already in use: " + addr}
		}
	}
	return nil
}

// effectiveGPUs honors the request only on a GPU host with an available
// accelerator, else falls back to CPU with a warning.
func (s *Supervisor) effectiveGPUs(ctx context.Context, requested int) int {
	if requested <= 0 {
		s.log.Info().Msg("running on CPU")
		return 0
	}
	info := s.opts.GPUProbe.Probe(ctx)
	if !info.Host || !info.Available {
		s.log.Warn().Int("requested", requested).Bool("gpu_host", info.Host).Bool("accelerator", info.Available).Msg("no usable GPU, running on CPU")
		s.opts.Publisher.Publish(Event{Name: EventGPUFallback, Fields: map[string]any{"requested": requested}})
		return 0
	}
	s.log.Info().Int("gpus", requested).Msg("running on GPU")
	return requested
}

func (s *Supervisor) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(s.opts.StartWait)
	b := newBackoff(s.opts.PollInitial, s.opts.PollMax)
	for {
		if s.ping(ctx) {
			return nil
		}
		wait := b.Next()
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &ServerStartError{Reason: "server not ready within " + s.opts.StartWait.String()}
		}
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return &ServerStartError{Reason: "interrupted while waiting for readiness", Err: ctx.Err()}
		case <-time.After(wait):
		}
	}
}

func (s *Supervisor) waitGone(ctx context.Context) bool {
	deadline := time.Now().Add(s.opts.StopWait)
	b := newBackoff(s.opts.PollInitial, s.opts.PollMax)
	for {
		if !s.ping(ctx) {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		wait := b.Next()
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return !s.ping(context.WithoutCancel(ctx))
		case <-time.After(wait):
		}
	}
}

func (s *Supervisor) markStopped() {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h != nil {
		h.setLive(false)
	}
}

func (s *Supervisor) startFailed(err error) error {
	var se *ServerStartError
	reason := err.Error()
	if errors.As(err, &se) {
		reason = se.Reason
	}
	s.opts.Publisher.Publish(Event{Name: EventStartFailed, Fields: map[string]any{"reason": reason}})
	return err
}

func (s *Supervisor) warnStop(w *StopWarning) {
	s.log.Warn().Err(w).Msg("server failed to stop")
	s.opts.Publisher.Publish(Event{Name: EventStopFailed, Fields: map[string]any{"reason": w.Reason}})
}
