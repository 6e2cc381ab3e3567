// Package orchestrator drives one validation run: prepare the artifact, start the
// serving process, register the model, run inference over every sample,
// unregister, stop and clean up. Cleanup runs on every exit path.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"servecheck/internal/artifact"
	"servecheck/internal/client"
	"servecheck/internal/common/fsutil"
	"servecheck/internal/config"
	"servecheck/internal/registry"
	"servecheck/internal/supervisor"
)

// Sampler is a background resource monitor. Run blocks until ctx is cancelled.
type Sampler interface {
	Run(ctx context.Context, outDir string) error
}

// LauncherFunc builds the process launcher for a resolved run.
type LauncherFunc func(rc config.RunConfig) (supervisor.Launcher, error)

// Options configure an Orchestrator. Only Config is required; every collaborator
// defaults to the real external program named in the resolved RunConfig.
type Options struct {
	Config   config.Config
	Registry *registry.Registry

	Launcher  LauncherFunc
	Archiver  artifact.Archiver
	Exporter  artifact.WeightsExporter
	GPUProbe  supervisor.GPUProbe
	Publisher supervisor.EventPublisher
	Sampler   Sampler
	Metrics   *Metrics
	// MetricsFile receives the run metrics in textfile format when set.
	MetricsFile string

	ProbeTimeout time.Duration
	PollInitial  time.Duration
	PollMax      time.Duration

	// Out receives the success or failure banner regardless of the log level.
	// Without it the banner is logged unleveled.
	Out io.Writer
	Log zerolog.Logger
}

// Result is the outcome of a run.
type Result struct {
	State     State
	Err       error
	Path      []State
	Served    string
	ArchiveID string
	Outcomes  []client.InferenceOutcome
}

// ExitCode is 0 for a successful run and 1 otherwise.
func (r Result) ExitCode() int {
	if r.State == StateDone && r.Err == nil {
		return 0
	}
	return 1
}

// Orchestrator runs the validation state machine.
type Orchestrator struct {
	opts Options
	log  zerolog.Logger
}

// New constructs an Orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{opts: opts, log: opts.Log.With().Str("component", "orchestrator").Logger()}
}

// run carries the collaborators and progress of one Run call.
type run struct {
	o   *Orchestrator
	rc  config.RunConfig
	res *Result

	sup   *supervisor.Supervisor
	mgmt  *client.ManagementClient
	infer *client.InferenceClient

	handler       string
	serverEntered bool
	registered    bool
	// genCreated is set when Preparing created GenDir. Otherwise only the
	// entries listed in generated are removed on cleanup.
	genCreated bool
	generated  []string
}

// Run executes the full sequence. It never panics and always returns a Result
// whose State is StateDone or StateFailed.
func (o *Orchestrator) Run(ctx context.Context) (res Result) {
	r := &run{o: o, res: &res}
	r.enter(StateInit)
	defer func() {
		if p := recover(); p != nil {
			o.log.Error().Interface("panic", p).Bytes("stack", debug.Stack()).Msg("run aborted")
			if res.Err == nil {
				res.Err = &StepError{State: res.State, Err: fmt.Errorf("internal error: %v", p)}
			}
			r.cleanup(ctx)
		}
		r.finish()
	}()

	if err := r.init(); err != nil {
		// Nothing external was touched yet.
		r.fail(StateInit, err)
		return res
	}
	err := r.execute(ctx)
	if err != nil {
		res.Err = err
	}
	r.cleanup(ctx)
	return res
}

func (r *run) enter(s State) {
	r.res.State = s
	r.res.Path = append(r.res.Path, s)
	r.o.log.Debug().Str("state", s.String()).Msg("state")
}

func (r *run) fail(s State, err error) {
	r.res.Err = &StepError{State: s, Err: err}
}

// step runs fn in state s, timing it and wrapping its error with the state.
func (r *run) step(s State, fn func() error) error {
	r.enter(s)
	start := time.Now()
	err := fn()
	r.o.opts.Metrics.observeStep(s, start, err)
	if err != nil {
		return &StepError{State: s, Err: err}
	}
	return nil
}

func (r *run) init() error {
	rc, err := config.Resolve(r.o.opts.Config, r.o.opts.Registry)
	if err != nil {
		return err
	}
	r.rc = rc
	o := r.o
	launch := o.opts.Launcher
	if launch == nil {
		launch = func(rc config.RunConfig) (supervisor.Launcher, error) {
			return supervisor.NewCommandLauncher(rc.Binaries.Server, o.log), nil
		}
	}
	launcher, err := launch(rc)
	if err != nil {
		return fmt.Errorf("launcher: %w", err)
	}
	archiver := o.opts.Archiver
	if archiver == nil {
		archiver = artifact.CommandArchiver{Bin: rc.Binaries.Archiver, Log: o.log}
	}
	r.sup = supervisor.New(supervisor.Options{
		Launcher:      launcher,
		Packager:      artifact.Packager{Archiver: archiver, Log: o.log},
		GPUProbe:      o.opts.GPUProbe,
		InferenceURL:  rc.Endpoints.Inference,
		ManagementURL: rc.Endpoints.Management,
		StartWait:     rc.Timeouts.StartWait,
		StopWait:      rc.Timeouts.StopWait,
		ProbeTimeout:  o.opts.ProbeTimeout,
		PollInitial:   o.opts.PollInitial,
		PollMax:       o.opts.PollMax,
		Publisher:     o.opts.Publisher,
		Log:           o.log,
	})
	r.mgmt = client.NewManagementClient(rc.Endpoints.Management, rc.Timeouts.Request, o.opts.Registry, o.log)
	r.infer = client.NewInferenceClient(rc.Endpoints.Inference, rc.Timeouts.Infer, o.log)
	o.log.Info().
		Str("model", rc.ModelName).
		Str("source", rc.Source.Kind.String()).
		Str("gen", rc.GenDir).
		Int("gpus", rc.GPUs).
		Msg("run configured")
	return nil
}

func (r *run) execute(ctx context.Context) error {
	rc := r.rc
	var archiveID string
	if err := r.step(StatePreparing, func() error {
		var err error
		archiveID, err = r.prepare(ctx)
		return err
	}); err != nil {
		return err
	}

	if s := r.o.opts.Sampler; s != nil {
		mctx, cancel := context.WithCancel(ctx)
		// Cancelled with the run, never joined.
		defer cancel()
		go func() {
			if err := s.Run(mctx, rc.LogsDir()); err != nil && mctx.Err() == nil {
				r.o.log.Warn().Err(err).Msg("resource monitor stopped")
			}
		}()
	}

	// Clear whatever a previous aborted run left on our ports.
	r.sup.Stop(ctx)

	r.serverEntered = true
	if err := r.step(StateServerStarting, func() error {
		h, err := r.sup.Start(ctx, supervisor.StartOptions{
			StoreDir:       rc.StoreDir(),
			LogFile:        rc.LogFile(),
			LogConfig:      rc.LogConfigFile,
			ServerConfig:   rc.ServerConfigFile,
			GPUs:           rc.GPUs,
			BuildArtifact:  rc.BuildArtifact,
			DescriptorPath: rc.DescriptorPath(),
			ArchiveID:      archiveID,
		})
		if err != nil {
			return err
		}
		archiveID = h.ArchiveID
		r.res.ArchiveID = h.ArchiveID
		return nil
	}); err != nil {
		return err
	}
	r.sup.HealthCheck(ctx)

	if err := r.step(StateRegistering, func() error {
		reg, err := r.mgmt.Register(ctx, rc.ModelName, archiveID)
		if err != nil {
			return err
		}
		r.registered = true
		r.res.Served = reg.ServedName
		r.o.log.Info().Str("model", reg.ServedName).Msg("model registered")
		return nil
	}); err != nil {
		return err
	}

	if rc.Source.Kind == config.SourceArchive {
		if err := r.step(StateResolvingServedName, func() error {
			name, err := r.mgmt.ResolveServedName(ctx, rc.ModelName, archiveID)
			if err != nil {
				return err
			}
			if name != r.res.Served {
				r.o.log.Info().Str("requested", rc.ModelName).Str("served", name).Msg("served name differs from model name")
			}
			r.res.Served = name
			return nil
		}); err != nil {
			return err
		}
	}

	if err := r.step(StateInferring, func() error { return r.inferAll(ctx) }); err != nil {
		return err
	}
	if r.handler != "" {
		r.o.log.Info().Str("handler", r.handler).Msg("handler is stable")
	}
	return nil
}

// prepare lays out the generated directory and produces the archive identifier
// the server will load. With a build source and BuildArtifact set the identifier
// is filled in by the packaging step instead.
func (r *run) prepare(ctx context.Context) (string, error) {
	rc := r.rc
	r.genCreated = !fsutil.PathExists(rc.GenDir)
	r.generated = []string{rc.StoreDir(), rc.LogsDir()}
	if err := fsutil.EnsureDirs(rc.StoreDir(), rc.LogsDir()); err != nil {
		return "", err
	}
	switch rc.Source.Kind {
	case config.SourceArchive:
		r.handler = "archive"
		return artifact.ImportArchive(rc.ModelName, rc.Source.ArchivePath, rc.StoreDir())
	case config.SourceBuild:
		if !rc.BuildArtifact {
			// A previous run already produced the archive.
			id := artifact.ArchiveID(rc.ModelName)
			p := filepath.Join(rc.StoreDir(), id)
			if !fsutil.IsFile(p) {
				return "", &artifact.MissingResourceError{Kind: artifact.ResourceArchive, ModelName: rc.ModelName, Path: p}
			}
			r.handler = rc.Source.Build.HandlerRef
			return id, nil
		}
		exporter := r.o.opts.Exporter
		if exporter == nil {
			exporter = artifact.CommandExporter{Cmd: rc.Binaries.Exporter, Log: r.o.log}
		}
		r.generated = append(r.generated, rc.DescriptorPath())
		if rc.Source.Build.WeightsFile == "" {
			r.generated = append(r.generated, filepath.Join(rc.GenDir, artifact.WeightsFileName(rc.ModelName)))
		}
		pkg, err := artifact.NewBuilder(exporter, r.o.log).Build(ctx, rc.ModelName, rc.Source.Build, rc.GenDir)
		if err != nil {
			return "", err
		}
		r.handler = pkg.Handler.Ref()
		return "", nil
	default:
		return "", &config.ConfigError{ModelName: rc.ModelName, Reason: "no artifact source"}
	}
}

// inferAll posts every sample in listing order and stops at the first failure.
func (r *run) inferAll(ctx context.Context) error {
	if r.rc.SamplesDir == "" {
		r.o.log.Warn().Msg("no samples directory, skipping inference")
		return nil
	}
	samples, err := fsutil.ListFiles(r.rc.SamplesDir)
	if err != nil {
		return &client.InferenceError{ServedName: r.res.Served, SamplePath: r.rc.SamplesDir, Err: err}
	}
	for _, s := range samples {
		start := time.Now()
		out, err := r.infer.Infer(ctx, r.res.Served, s)
		r.o.opts.Metrics.observeInference(r.res.Served, time.Since(start), err)
		r.res.Outcomes = append(r.res.Outcomes, out)
		if err != nil {
			r.o.log.Error().Err(err).Str("sample", s).Msg("inference failed")
			return err
		}
		r.o.log.Info().Str("sample", s).Int("status", out.Status).Str("output", string(out.Body)).Msg("inference succeeded")
	}
	return nil
}

// cleanup unregisters, stops and removes generated files as configured. It logs
// and swallows its own failures.
func (r *run) cleanup(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.o.log.Error().Interface("panic", p).Msg("cleanup aborted")
		}
	}()
	ctx = context.WithoutCancel(ctx)
	rc := r.rc
	failed := r.res.Err != nil

	if r.registered {
		r.enter(StateUnregistering)
		r.registered = false
		if err := r.mgmt.Unregister(ctx, r.res.Served); err != nil {
			r.o.log.Warn().Err(err).Msg("unregister failed")
		}
	}

	stopped := !r.serverEntered
	if r.serverEntered && (failed || rc.StopServer) {
		r.enter(StateStopping)
		stopped = r.sup.Stop(ctx)
	}

	if rc.Cleanup && stopped && rc.GenDir != "" {
		var err error
		if r.genCreated {
			err = fsutil.RemoveDir(rc.GenDir)
		} else {
			// GenDir predates the run and may hold user files.
			err = fsutil.RemovePaths(r.generated...)
		}
		if err != nil {
			r.o.log.Warn().Err(err).Str("dir", rc.GenDir).Msg("cleanup failed")
		} else {
			r.o.log.Debug().Str("dir", rc.GenDir).Bool("whole_dir", r.genCreated).Msg("generated files removed")
		}
	}
}

func (r *run) banner(text string) {
	if out := r.o.opts.Out; out != nil {
		fmt.Fprintln(out, text)
		return
	}
	r.o.log.WithLevel(zerolog.NoLevel).Msg(text)
}

func (r *run) finish() {
	res := r.res
	if res.Err != nil {
		res.State = StateFailed
		res.Path = append(res.Path, StateFailed)
		r.o.log.Error().Err(res.Err).Str("kind", string(Classify(res.Err))).Msg("run failed")
		r.banner(FailureBanner(res.Err))
	} else {
		res.State = StateDone
		res.Path = append(res.Path, StateDone)
		r.o.log.Info().Str("model", r.rc.ModelName).Int("samples", len(res.Outcomes)).Msg("run succeeded")
		r.banner(SuccessBanner(r.rc.ModelName, len(res.Outcomes)))
	}
	m := r.o.opts.Metrics
	m.observeRun(res.State, res.Err)
	if m != nil && r.o.opts.MetricsFile != "" {
		if err := m.WriteTextfile(r.o.opts.MetricsFile); err != nil {
			r.o.log.Warn().Err(err).Str("path", r.o.opts.MetricsFile).Msg("write metrics file")
		}
	}
}
