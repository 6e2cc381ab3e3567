package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"servecheck/internal/common/fsutil"
	"servecheck/internal/registry"
)

// Defaults applied by Resolve when the corresponding Config fields are unset.
const (
	DefaultGenFolder     = "gen"
	DefaultServerBin     = "torchserve"
	DefaultArchiverBin   = "torch-model-archiver"
	DefaultInferenceURL  = "http://localhost:8080"
	DefaultManagementURL = "http://localhost:8081"
	DefaultMetricsURL    = "http://localhost:8082"
	DefaultHandler       = "image_classifier"

	DefaultStartWait      = 10 * time.Second
	DefaultStopWait       = 10 * time.Second
	DefaultInferTimeout   = 120 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// DefaultExporterCmd writes <model>-default.pt for a weights identifier.
var DefaultExporterCmd = []string{"python", "create_model_pt_file.py"}

// SourceKind tags which variant an ArtifactSource holds.
type SourceKind int

const (
	// SourceBuild packages the model from weights, architecture and handler.
	SourceBuild SourceKind = iota + 1
	// SourceArchive serves an existing archive as-is.
	SourceArchive
)

func (k SourceKind) String() string {
	switch k {
	case SourceBuild:
		return "build"
	case SourceArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// BuildSource lists the inputs of the artifact builder. Exactly one of WeightsFile
// and WeightsID is set.
type BuildSource struct {
	WeightsFile  string
	WeightsID    string
	ArchFile     string
	ClassMap     string
	HandlerRef   string
	Extras       []string
	AssetDir     string
	FromRegistry bool
}

// ArtifactSource is either a build spec or a pre-built archive path.
type ArtifactSource struct {
	Kind        SourceKind
	Build       *BuildSource
	ArchivePath string
}

// Endpoints are the serving process base URLs.
type Endpoints struct {
	Inference  string
	Management string
	Metrics    string
}

// Timeouts bound every blocking step of a run.
type Timeouts struct {
	StartWait time.Duration
	StopWait  time.Duration
	Infer     time.Duration
	Request   time.Duration
}

// Binaries names the external programs a run invokes.
type Binaries struct {
	Server   string
	Archiver string
	Exporter []string
}

// RunConfig is the resolved configuration of one run. It is built by Resolve and
// only read afterwards.
type RunConfig struct {
	ModelName  string
	Source     ArtifactSource
	SamplesDir string
	GPUs       int
	GenDir     string

	BuildArtifact bool
	StopServer    bool
	Cleanup       bool
	Debug         bool

	ServerConfigFile string
	LogConfigFile    string

	Endpoints Endpoints
	Timeouts  Timeouts
	Binaries  Binaries
}

// StoreDir is where archives are exported and served from.
func (rc RunConfig) StoreDir() string { return filepath.Join(rc.GenDir, "model_store") }

// LogsDir holds the server console log and monitor output.
func (rc RunConfig) LogsDir() string { return filepath.Join(rc.GenDir, "logs") }

// LogFile is the server console log.
func (rc RunConfig) LogFile() string { return filepath.Join(rc.LogsDir(), "ts_console.log") }

// DescriptorPath is the package descriptor written by the artifact builder.
func (rc RunConfig) DescriptorPath() string { return filepath.Join(rc.GenDir, "mar_config.json") }

// Resolve validates cfg, fills missing artifact fields from reg (which may be nil)
// and applies defaults. It returns a *ConfigError for anything unresolved.
func Resolve(cfg Config, reg *registry.Registry) (RunConfig, error) {
	rc := RunConfig{ModelName: cfg.ModelName, Debug: cfg.Debug}
	if cfg.ModelName == "" {
		return rc, &ConfigError{Reason: "model name is required"}
	}
	if cfg.GPUs < 0 {
		return rc, &ConfigError{ModelName: cfg.ModelName, Reason: fmt.Sprintf("gpu count must be >= 0, got %d", cfg.GPUs)}
	}
	rc.GPUs = cfg.GPUs

	workDir := cfg.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return rc, &ConfigError{ModelName: cfg.ModelName, Reason: "cannot determine working directory: " + err.Error()}
		}
		workDir = wd
	}
	abs := func(p string) (string, error) { return fsutil.Resolve(workDir, p) }

	src, err := resolveSource(cfg, reg, abs)
	if err != nil {
		return rc, err
	}
	rc.Source = src

	gen := cfg.GenFolder
	if gen == "" {
		gen = DefaultGenFolder
	}
	if rc.GenDir, err = abs(gen); err != nil {
		return rc, &ConfigError{ModelName: cfg.ModelName, Reason: err.Error()}
	}
	if rc.SamplesDir, err = abs(cfg.DataDir); err != nil {
		return rc, &ConfigError{ModelName: cfg.ModelName, Reason: err.Error()}
	}
	if rc.ServerConfigFile, err = abs(cfg.ServerConfig); err != nil {
		return rc, &ConfigError{ModelName: cfg.ModelName, Reason: err.Error()}
	}
	if rc.LogConfigFile, err = abs(cfg.LogConfig); err != nil {
		return rc, &ConfigError{ModelName: cfg.ModelName, Reason: err.Error()}
	}

	rc.BuildArtifact = boolOr(cfg.GenMar, true) && src.Kind == SourceBuild
	rc.StopServer = boolOr(cfg.StopServer, true)
	rc.Cleanup = boolOr(cfg.Cleanup, true)

	if rc.Endpoints, err = resolveEndpoints(cfg); err != nil {
		return rc, &ConfigError{ModelName: cfg.ModelName, Reason: err.Error()}
	}
	rc.Timeouts = Timeouts{
		StartWait: secondsOr(cfg.StartWaitSeconds, DefaultStartWait),
		StopWait:  secondsOr(cfg.StopWaitSeconds, DefaultStopWait),
		Infer:     secondsOr(cfg.InferTimeoutSeconds, DefaultInferTimeout),
		Request:   secondsOr(cfg.RequestTimeoutSeconds, DefaultRequestTimeout),
	}
	rc.Binaries = Binaries{
		Server:   stringOr(cfg.ServerBin, DefaultServerBin),
		Archiver: stringOr(cfg.ArchiverBin, DefaultArchiverBin),
		Exporter: cfg.ExporterCmd,
	}
	if len(rc.Binaries.Exporter) == 0 {
		rc.Binaries.Exporter = append([]string(nil), DefaultExporterCmd...)
	}
	return rc, nil
}

func resolveSource(cfg Config, reg *registry.Registry, abs func(string) (string, error)) (ArtifactSource, error) {
	hasBuild := cfg.ModelPath != "" || cfg.Weights != "" || cfg.ModelArchPath != "" ||
		cfg.HandlerPath != "" || cfg.ClassesPath != "" || len(cfg.ExtraFiles) > 0
	if cfg.ArchivePath != "" {
		if hasBuild {
			return ArtifactSource{}, &ConfigError{ModelName: cfg.ModelName, Reason: "both a pre-built archive and build inputs were given"}
		}
		p, err := abs(cfg.ArchivePath)
		if err != nil {
			return ArtifactSource{}, &ConfigError{ModelName: cfg.ModelName, Reason: err.Error()}
		}
		return ArtifactSource{Kind: SourceArchive, ArchivePath: p}, nil
	}
	if cfg.ModelPath != "" && cfg.Weights != "" {
		return ArtifactSource{}, &ConfigError{ModelName: cfg.ModelName, Reason: "both a weights file and a weights identifier were given"}
	}

	b := &BuildSource{}
	var err error
	if b.HandlerRef, err = handlerRef(cfg.HandlerPath, abs); err != nil {
		return ArtifactSource{}, &ConfigError{ModelName: cfg.ModelName, Reason: err.Error()}
	}
	if b.WeightsFile, err = abs(cfg.ModelPath); err != nil {
		return ArtifactSource{}, &ConfigError{ModelName: cfg.ModelName, Reason: err.Error()}
	}
	b.WeightsID = cfg.Weights
	if b.ArchFile, err = abs(cfg.ModelArchPath); err != nil {
		return ArtifactSource{}, &ConfigError{ModelName: cfg.ModelName, Reason: err.Error()}
	}
	if b.ClassMap, err = abs(cfg.ClassesPath); err != nil {
		return ArtifactSource{}, &ConfigError{ModelName: cfg.ModelName, Reason: err.Error()}
	}
	for _, e := range cfg.ExtraFiles {
		p, err := abs(e)
		if err != nil {
			return ArtifactSource{}, &ConfigError{ModelName: cfg.ModelName, Reason: err.Error()}
		}
		b.Extras = append(b.Extras, p)
	}

	needsRegistry := (b.WeightsFile == "" && b.WeightsID == "") || b.ArchFile == "" || b.ClassMap == "" || b.HandlerRef == ""
	if entry, ok := reg.Lookup(cfg.ModelName); ok && needsRegistry {
		if err := fillFromRegistry(b, entry, reg.AssetDir(cfg.ModelName)); err != nil {
			return ArtifactSource{}, &ConfigError{ModelName: cfg.ModelName, Reason: err.Error()}
		}
	}

	var missing []string
	if b.WeightsFile == "" && b.WeightsID == "" {
		missing = append(missing, "weights")
	}
	if b.ArchFile == "" {
		missing = append(missing, "model_arch_file")
	}
	if b.ClassMap == "" {
		missing = append(missing, "class_map")
	}
	if len(missing) > 0 {
		reason := "artifact source is unresolved"
		if _, ok := reg.Lookup(cfg.ModelName); !ok {
			reason = "model is not in the named-model registry and explicit paths are incomplete"
		}
		return ArtifactSource{}, &ConfigError{ModelName: cfg.ModelName, Reason: reason, Missing: missing}
	}
	if b.HandlerRef == "" {
		b.HandlerRef = DefaultHandler
	}
	return ArtifactSource{Kind: SourceBuild, Build: b}, nil
}

// handlerRef resolves a handler given on the command line or in the config file
// against the working directory. Bare names that are not files there are kept
// as built-in handler names.
func handlerRef(ref string, abs func(string) (string, error)) (string, error) {
	if ref == "" {
		return "", nil
	}
	p, err := abs(ref)
	if err != nil {
		return "", err
	}
	isPath := strings.ContainsAny(ref, `/\`) || strings.HasPrefix(ref, "~") || filepath.Ext(ref) != ""
	if isPath || fsutil.IsFile(p) {
		return p, nil
	}
	return ref, nil
}

// fillFromRegistry only sets fields the caller left empty. Registry file references
// resolve under the model's asset directory.
func fillFromRegistry(b *BuildSource, e registry.Entry, assetDir string) error {
	b.AssetDir = assetDir
	b.FromRegistry = true
	if b.WeightsFile == "" && b.WeightsID == "" && e.Weights != "" {
		p, err := fsutil.Resolve(assetDir, e.Weights)
		if err != nil {
			return err
		}
		if fsutil.IsFile(p) {
			b.WeightsFile = p
		} else {
			b.WeightsID = e.Weights
		}
	}
	if b.ArchFile == "" && e.ModelArchFile != "" {
		p, err := fsutil.Resolve(assetDir, e.ModelArchFile)
		if err != nil {
			return err
		}
		b.ArchFile = p
	}
	if b.ClassMap == "" && e.ClassMap != "" {
		p, err := fsutil.Resolve(assetDir, e.ClassMap)
		if err != nil {
			return err
		}
		b.ClassMap = p
	}
	if b.HandlerRef == "" {
		b.HandlerRef = e.Handler
	}
	return nil
}

func resolveEndpoints(cfg Config) (Endpoints, error) {
	ep := Endpoints{
		Inference:  stringOr(cfg.InferenceURL, DefaultInferenceURL),
		Management: stringOr(cfg.ManagementURL, DefaultManagementURL),
		Metrics:    stringOr(cfg.MetricsURL, DefaultMetricsURL),
	}
	for _, raw := range []string{ep.Inference, ep.Management, ep.Metrics} {
		u, err := url.Parse(raw)
		if err != nil {
			return ep, fmt.Errorf("invalid endpoint %q: %w", raw, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
			return ep, fmt.Errorf("invalid endpoint %q: want http(s)://host:port", raw)
		}
	}
	return ep, nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func secondsOr(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
