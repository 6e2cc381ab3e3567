package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"servecheck/internal/registry"
)

func newRegistry(t *testing.T, root string) *registry.Registry {
	t.Helper()
	return registry.New(map[string]registry.Entry{
		"resnet50": {
			Weights:       "ResNet50_Weights.DEFAULT",
			ModelArchFile: "resnet50_arch.py",
			ClassMap:      "index_to_name.json",
			Handler:       "image_classifier",
		},
	}, root)
}

func TestResolve_FillsFromRegistry(t *testing.T) {
	root := t.TempDir()
	work := t.TempDir()
	rc, err := Resolve(Config{ModelName: "resnet50", WorkDir: work, DataDir: "samples"}, newRegistry(t, root))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rc.Source.Kind != SourceBuild || rc.Source.Build == nil {
		t.Fatalf("expected build source, got %+v", rc.Source)
	}
	b := rc.Source.Build
	if b.WeightsID != "ResNet50_Weights.DEFAULT" || b.WeightsFile != "" {
		t.Fatalf("weights should be an identifier: %+v", b)
	}
	if b.ArchFile != filepath.Join(root, "resnet50", "resnet50_arch.py") {
		t.Fatalf("arch file not resolved under asset dir: %s", b.ArchFile)
	}
	if b.HandlerRef != "image_classifier" || !b.FromRegistry {
		t.Fatalf("unexpected handler/origin: %+v", b)
	}
	if rc.GenDir != filepath.Join(work, "gen") || rc.SamplesDir != filepath.Join(work, "samples") {
		t.Fatalf("unexpected dirs: gen=%s samples=%s", rc.GenDir, rc.SamplesDir)
	}
	if !rc.BuildArtifact || !rc.StopServer || !rc.Cleanup {
		t.Fatalf("flags should default to true: %+v", rc)
	}
	if rc.Endpoints.Inference != DefaultInferenceURL || rc.Endpoints.Management != DefaultManagementURL {
		t.Fatalf("unexpected endpoints: %+v", rc.Endpoints)
	}
	if rc.Timeouts.StartWait != 10*time.Second || rc.Timeouts.Infer != 120*time.Second {
		t.Fatalf("unexpected timeouts: %+v", rc.Timeouts)
	}
	if rc.Binaries.Server != "torchserve" || len(rc.Binaries.Exporter) != 2 {
		t.Fatalf("unexpected binaries: %+v", rc.Binaries)
	}
	if rc.StoreDir() != filepath.Join(rc.GenDir, "model_store") || rc.LogFile() != filepath.Join(rc.GenDir, "logs", "ts_console.log") {
		t.Fatalf("unexpected layout: %s %s", rc.StoreDir(), rc.LogFile())
	}
}

func TestResolve_RegistryWeightsFileDetected(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "bert"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "bert", "bert.pt"), []byte("w"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	reg := registry.New(map[string]registry.Entry{
		"bert": {Weights: "bert.pt", ModelArchFile: "arch.py", ClassMap: "labels.json", Handler: "handler.py"},
	}, root)
	rc, err := Resolve(Config{ModelName: "bert", WorkDir: t.TempDir()}, reg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rc.Source.Build.WeightsFile != filepath.Join(root, "bert", "bert.pt") {
		t.Fatalf("expected weights file, got %+v", rc.Source.Build)
	}
}

func TestResolve_ExplicitOverridesRegistry(t *testing.T) {
	work := t.TempDir()
	rc, err := Resolve(Config{ModelName: "resnet50", WorkDir: work, ModelArchPath: "my_arch.py"}, newRegistry(t, t.TempDir()))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rc.Source.Build.ArchFile != filepath.Join(work, "my_arch.py") {
		t.Fatalf("explicit arch path lost: %s", rc.Source.Build.ArchFile)
	}
}

func TestResolve_UnknownModelIsConfigError(t *testing.T) {
	_, err := Resolve(Config{ModelName: "nope", WorkDir: t.TempDir()}, newRegistry(t, t.TempDir()))
	if !IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	ce := err.(*ConfigError)
	if len(ce.Missing) != 3 {
		t.Fatalf("expected weights/arch/class_map missing, got %v", ce.Missing)
	}
}

func TestResolve_Archive(t *testing.T) {
	work := t.TempDir()
	rc, err := Resolve(Config{ModelName: "m", WorkDir: work, ArchivePath: "m.mar"}, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rc.Source.Kind != SourceArchive || rc.Source.ArchivePath != filepath.Join(work, "m.mar") {
		t.Fatalf("unexpected source %+v", rc.Source)
	}
	if rc.BuildArtifact {
		t.Fatalf("pre-built archive must not be rebuilt")
	}
}

func TestResolve_Contradictions(t *testing.T) {
	cases := []Config{
		{},
		{ModelName: "m", ArchivePath: "m.mar", ModelPath: "w.pt"},
		{ModelName: "m", ModelPath: "w.pt", Weights: "W.DEFAULT", ModelArchPath: "a", ClassesPath: "c"},
		{ModelName: "m", GPUs: -1},
		{ModelName: "m", ArchivePath: "m.mar", InferenceURL: "localhost:8080"},
	}
	for i, c := range cases {
		c.WorkDir = t.TempDir()
		if _, err := Resolve(c, nil); !IsConfigError(err) {
			t.Fatalf("case %d: expected ConfigError, got %v", i, err)
		}
	}
}

func TestResolve_DefaultHandlerWithoutRegistry(t *testing.T) {
	rc, err := Resolve(Config{ModelName: "m", WorkDir: t.TempDir(), ModelPath: "w.pt", ModelArchPath: "a.py", ClassesPath: "c.json"}, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rc.Source.Build.HandlerRef != DefaultHandler {
		t.Fatalf("expected default handler, got %q", rc.Source.Build.HandlerRef)
	}
}

func TestResolve_HandlerPathRelativeToWorkDir(t *testing.T) {
	work := t.TempDir()
	base := Config{ModelName: "m", WorkDir: work, ModelPath: "w.pt", ModelArchPath: "a.py", ClassesPath: "c.json"}
	cases := []struct {
		ref  string
		want string
	}{
		{"handlers/custom_handler.py", filepath.Join(work, "handlers", "custom_handler.py")},
		{"my_handler", filepath.Join(work, "my_handler")},
		{"object_detector", "object_detector"},
	}
	if err := os.WriteFile(filepath.Join(work, "my_handler"), []byte("pass\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, c := range cases {
		cfg := base
		cfg.HandlerPath = c.ref
		rc, err := Resolve(cfg, nil)
		if err != nil {
			t.Fatalf("%s: resolve: %v", c.ref, err)
		}
		if got := rc.Source.Build.HandlerRef; got != c.want {
			t.Fatalf("%s: handler=%q want %q", c.ref, got, c.want)
		}
	}
}

func TestSourceKindString(t *testing.T) {
	if SourceBuild.String() != "build" || SourceArchive.String() != "archive" || SourceKind(0).String() != "unknown" {
		t.Fatalf("unexpected kind names")
	}
}
