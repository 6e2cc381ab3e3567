package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"servecheck/internal/common/fsutil"
)

// Defaults applied when a registry entry omits serving parameters
// (or the model is absent from the registry).
const (
	DefaultInitialWorkers  = 1
	DefaultBatchSize       = 1
	DefaultMaxBatchDelay   = 200 * time.Millisecond
	DefaultResponseTimeout = 2000 * time.Millisecond
)

// Entry is one named model. File references may be relative to the model's
// asset directory (<models_root>/<name>).
type Entry struct {
	Weights           string `json:"weights" yaml:"weights" toml:"weights"`
	ModelArchFile     string `json:"model_arch_file" yaml:"model_arch_file" toml:"model_arch_file"`
	ClassMap          string `json:"class_map" yaml:"class_map" toml:"class_map"`
	Handler           string `json:"handler" yaml:"handler" toml:"handler"`
	InitialWorkers    *int   `json:"initial_workers,omitempty" yaml:"initial_workers,omitempty" toml:"initial_workers,omitempty"`
	BatchSize         *int   `json:"batch_size,omitempty" yaml:"batch_size,omitempty" toml:"batch_size,omitempty"`
	MaxBatchDelayMS   *int   `json:"max_batch_delay,omitempty" yaml:"max_batch_delay,omitempty" toml:"max_batch_delay,omitempty"`
	ResponseTimeoutMS *int   `json:"response_timeout,omitempty" yaml:"response_timeout,omitempty" toml:"response_timeout,omitempty"`
}

// ServingParams are the registration parameters sent to the management endpoint.
type ServingParams struct {
	InitialWorkers  int
	BatchSize       int
	MaxBatchDelay   time.Duration
	ResponseTimeout time.Duration
}

// DefaultServingParams returns the parameters used when nothing is configured.
func DefaultServingParams() ServingParams {
	return ServingParams{
		InitialWorkers:  DefaultInitialWorkers,
		BatchSize:       DefaultBatchSize,
		MaxBatchDelay:   DefaultMaxBatchDelay,
		ResponseTimeout: DefaultResponseTimeout,
	}
}

// Registry is a read-only set of named models.
type Registry struct {
	entries    map[string]Entry
	modelsRoot string
}

// New builds a registry from entries. modelsRoot anchors relative file references.
func New(entries map[string]Entry, modelsRoot string) *Registry {
	cp := make(map[string]Entry, len(entries))
	for k, v := range entries {
		cp[k] = v
	}
	return &Registry{entries: cp, modelsRoot: modelsRoot}
}

// Load reads a registry file based on its extension.
// Supports: .json, .yaml/.yml, .toml
func Load(path, modelsRoot string) (*Registry, error) {
	if path == "" {
		return nil, fmt.Errorf("empty registry path")
	}
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	entries := map[string]Entry{}
	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".json":
		err = json.Unmarshal(b, &entries)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &entries)
	case ".toml":
		err = toml.Unmarshal(b, &entries)
	default:
		return nil, fmt.Errorf("unsupported registry extension: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", p, err)
	}
	if modelsRoot == "" {
		modelsRoot = filepath.Dir(p)
	}
	return New(entries, modelsRoot), nil
}

// Lookup returns the entry for name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	e, ok := r.entries[name]
	return e, ok
}

// Names returns the registered model names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AssetDir is the directory relative entry paths resolve against.
func (r *Registry) AssetDir(name string) string {
	if r == nil || r.modelsRoot == "" {
		return ""
	}
	return filepath.Join(r.modelsRoot, name)
}

// ServingParams resolves registration parameters for name, falling back to the
// defaults for any field (or the whole entry) that is missing.
func (r *Registry) ServingParams(name string) ServingParams {
	p := DefaultServingParams()
	e, ok := r.Lookup(name)
	if !ok {
		return p
	}
	if e.InitialWorkers != nil && *e.InitialWorkers > 0 {
		p.InitialWorkers = *e.InitialWorkers
	}
	if e.BatchSize != nil && *e.BatchSize > 0 {
		p.BatchSize = *e.BatchSize
	}
	if e.MaxBatchDelayMS != nil && *e.MaxBatchDelayMS >= 0 {
		p.MaxBatchDelay = time.Duration(*e.MaxBatchDelayMS) * time.Millisecond
	}
	if e.ResponseTimeoutMS != nil && *e.ResponseTimeoutMS > 0 {
		p.ResponseTimeout = time.Duration(*e.ResponseTimeoutMS) * time.Millisecond
	}
	return p
}
