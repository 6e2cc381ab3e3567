package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"servecheck/internal/config"
	"servecheck/internal/fakeserve"
	"servecheck/internal/monitor"
	"servecheck/internal/orchestrator"
	"servecheck/internal/registry"
	"servecheck/internal/supervisor"
)

type runOptions struct {
	cfg             config.Config
	configFile      string
	metricsFile     string
	monitorInterval time.Duration
	startWait       time.Duration
	inferTimeout    time.Duration
	dryRun          bool
	out             io.Writer
}

// loadRunConfig overlays the command-line values onto the optional config file.
func loadRunConfig(o *runOptions) (config.Config, *registry.Registry, error) {
	cfg := o.cfg
	if o.configFile != "" {
		fileCfg, err := config.Load(o.configFile)
		if err != nil {
			return cfg, nil, fmt.Errorf("load config %s: %w", o.configFile, err)
		}
		cfg = config.Merge(fileCfg, o.cfg)
	}
	var reg *registry.Registry
	if cfg.RegistryPath != "" {
		r, err := registry.Load(cfg.RegistryPath, cfg.ModelsRoot)
		if err != nil {
			return cfg, nil, fmt.Errorf("load registry %s: %w", cfg.RegistryPath, err)
		}
		reg = r
	}
	return cfg, reg, nil
}

func runValidation(ctx context.Context, o *runOptions, log zerolog.Logger) (int, error) {
	cfg, reg, err := loadRunConfig(o)
	if err != nil {
		return 1, err
	}
	opts := orchestrator.Options{
		Config:      cfg,
		Registry:    reg,
		Metrics:     orchestrator.NewMetrics(),
		MetricsFile: o.metricsFile,
		Out:         o.out,
		Log:         log,
	}
	if o.monitorInterval > 0 {
		opts.Sampler = monitor.New(o.monitorInterval, log)
	}
	if o.dryRun {
		srv := fakeserve.New(fakeserve.Options{Log: log})
		opts.Launcher = func(rc config.RunConfig) (supervisor.Launcher, error) {
			return fakeserve.NewLauncher(srv, rc.Endpoints.Inference, rc.Endpoints.Management)
		}
		opts.Archiver = fakeserve.Archiver{}
		opts.Exporter = fakeserve.Exporter{}
		opts.GPUProbe = supervisor.StaticProbe{}
		log.Info().Msg("dry run: serving from the in-process stub")
	}
	res := orchestrator.New(opts).Run(ctx)
	return res.ExitCode(), nil
}
