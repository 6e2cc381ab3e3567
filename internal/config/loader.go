package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of a validation run as it appears in a config file
// or on the command line. Zero values mean "unspecified" and are replaced by
// defaults in Resolve. Booleans that default to true are pointers.
type Config struct {
	ModelName     string   `json:"model_name" yaml:"model_name" toml:"model_name"`
	ModelPath     string   `json:"model_path" yaml:"model_path" toml:"model_path"`
	Weights       string   `json:"weights" yaml:"weights" toml:"weights"`
	ModelArchPath string   `json:"model_arch_path" yaml:"model_arch_path" toml:"model_arch_path"`
	HandlerPath   string   `json:"handler_path" yaml:"handler_path" toml:"handler_path"`
	ClassesPath   string   `json:"classes" yaml:"classes" toml:"classes"`
	ExtraFiles    []string `json:"extra_files" yaml:"extra_files" toml:"extra_files"`
	ArchivePath   string   `json:"mar" yaml:"mar" toml:"mar"`
	DataDir       string   `json:"data" yaml:"data" toml:"data"`
	GPUs          int      `json:"gpus" yaml:"gpus" toml:"gpus"`

	WorkDir    string `json:"work_dir" yaml:"work_dir" toml:"work_dir"`
	GenFolder  string `json:"gen_folder" yaml:"gen_folder" toml:"gen_folder"`
	GenMar     *bool  `json:"gen_mar" yaml:"gen_mar" toml:"gen_mar"`
	StopServer *bool  `json:"stop_server" yaml:"stop_server" toml:"stop_server"`
	Cleanup    *bool  `json:"cleanup" yaml:"cleanup" toml:"cleanup"`
	Debug      bool   `json:"debug" yaml:"debug" toml:"debug"`

	RegistryPath string `json:"registry" yaml:"registry" toml:"registry"`
	ModelsRoot   string `json:"models_root" yaml:"models_root" toml:"models_root"`

	ServerBin     string   `json:"server_bin" yaml:"server_bin" toml:"server_bin"`
	ArchiverBin   string   `json:"archiver_bin" yaml:"archiver_bin" toml:"archiver_bin"`
	ExporterCmd   []string `json:"exporter_cmd" yaml:"exporter_cmd" toml:"exporter_cmd"`
	ServerConfig  string   `json:"server_config" yaml:"server_config" toml:"server_config"`
	LogConfig     string   `json:"log_config" yaml:"log_config" toml:"log_config"`
	InferenceURL  string   `json:"inference_url" yaml:"inference_url" toml:"inference_url"`
	ManagementURL string   `json:"management_url" yaml:"management_url" toml:"management_url"`
	MetricsURL    string   `json:"metrics_url" yaml:"metrics_url" toml:"metrics_url"`

	StartWaitSeconds      int `json:"start_wait_seconds" yaml:"start_wait_seconds" toml:"start_wait_seconds"`
	StopWaitSeconds       int `json:"stop_wait_seconds" yaml:"stop_wait_seconds" toml:"stop_wait_seconds"`
	InferTimeoutSeconds   int `json:"infer_timeout_seconds" yaml:"infer_timeout_seconds" toml:"infer_timeout_seconds"`
	RequestTimeoutSeconds int `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Merge overlays every non-zero field of override onto base and returns the result.
// It is used to apply command-line flags on top of a config file.
func Merge(base, override Config) Config {
	out := base
	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	str(&out.ModelName, override.ModelName)
	str(&out.ModelPath, override.ModelPath)
	str(&out.Weights, override.Weights)
	str(&out.ModelArchPath, override.ModelArchPath)
	str(&out.HandlerPath, override.HandlerPath)
	str(&out.ClassesPath, override.ClassesPath)
	str(&out.ArchivePath, override.ArchivePath)
	str(&out.DataDir, override.DataDir)
	str(&out.WorkDir, override.WorkDir)
	str(&out.GenFolder, override.GenFolder)
	str(&out.RegistryPath, override.RegistryPath)
	str(&out.ModelsRoot, override.ModelsRoot)
	str(&out.ServerBin, override.ServerBin)
	str(&out.ArchiverBin, override.ArchiverBin)
	str(&out.ServerConfig, override.ServerConfig)
	str(&out.LogConfig, override.LogConfig)
	str(&out.InferenceURL, override.InferenceURL)
	str(&out.ManagementURL, override.ManagementURL)
	str(&out.MetricsURL, override.MetricsURL)
	if len(override.ExtraFiles) > 0 {
		out.ExtraFiles = append([]string(nil), override.ExtraFiles...)
	}
	if len(override.ExporterCmd) > 0 {
		out.ExporterCmd = append([]string(nil), override.ExporterCmd...)
	}
	if override.GPUs != 0 {
		out.GPUs = override.GPUs
	}
	if override.GenMar != nil {
		out.GenMar = override.GenMar
	}
	if override.StopServer != nil {
		out.StopServer = override.StopServer
	}
	if override.Cleanup != nil {
		out.Cleanup = override.Cleanup
	}
	if override.Debug {
		out.Debug = true
	}
	if override.StartWaitSeconds > 0 {
		out.StartWaitSeconds = override.StartWaitSeconds
	}
	if override.StopWaitSeconds > 0 {
		out.StopWaitSeconds = override.StopWaitSeconds
	}
	if override.InferTimeoutSeconds > 0 {
		out.InferTimeoutSeconds = override.InferTimeoutSeconds
	}
	if override.RequestTimeoutSeconds > 0 {
		out.RequestTimeoutSeconds = override.RequestTimeoutSeconds
	}
	return out
}
