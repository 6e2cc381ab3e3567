package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"servecheck/pkg/types"
)

// DefaultVersion is stamped on every package the builder writes.
const DefaultVersion = "1.0"

// DescriptorFile is the descriptor name inside the generated directory.
const DescriptorFile = "mar_config.json"

// Package is the unit the serving process loads, before archiving.
type Package struct {
	ModelName      string
	Version        string
	ModelFile      string
	SerializedFile string
	Handler        Handler
	// ExtraFiles holds the class map first, then any additional files.
	ExtraFiles []string
}

// ArchiveID is the archive file name the packaging step produces for modelName.
func ArchiveID(modelName string) string { return modelName + ".mar" }

// Descriptor converts p to its on-disk form.
func (p Package) Descriptor() types.PackageDescriptor {
	return types.PackageDescriptor{
		ModelName:           p.ModelName,
		Version:             p.Version,
		ModelFile:           p.ModelFile,
		SerializedFileLocal: p.SerializedFile,
		Handler:             p.Handler.Ref(),
		ExtraFiles:          strings.Join(p.ExtraFiles, ","),
	}
}

// FromDescriptor rebuilds a Package from its on-disk form.
func FromDescriptor(d types.PackageDescriptor) Package {
	p := Package{
		ModelName:      d.ModelName,
		Version:        d.Version,
		ModelFile:      d.ModelFile,
		SerializedFile: d.SerializedFileLocal,
	}
	if k, ok := builtinHandlers[d.Handler]; ok {
		p.Handler = Handler{Kind: k, Name: d.Handler}
	} else {
		p.Handler = Handler{Kind: HandlerCustom, Path: d.Handler}
	}
	for _, f := range strings.Split(d.ExtraFiles, ",") {
		if f = strings.TrimSpace(f); f != "" {
			p.ExtraFiles = append(p.ExtraFiles, f)
		}
	}
	return p
}

// WriteDescriptors writes pkgs as a JSON array to path.
func WriteDescriptors(path string, pkgs ...Package) error {
	ds := make([]types.PackageDescriptor, 0, len(pkgs))
	for _, p := range pkgs {
		ds = append(ds, p.Descriptor())
	}
	b, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	return nil
}

// ReadDescriptors reads every package from a descriptor file.
func ReadDescriptors(path string) ([]Package, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	var ds []types.PackageDescriptor
	if err := json.Unmarshal(b, &ds); err != nil {
		return nil, fmt.Errorf("parse descriptor %s: %w", path, err)
	}
	pkgs := make([]Package, 0, len(ds))
	for _, d := range ds {
		pkgs = append(pkgs, FromDescriptor(d))
	}
	return pkgs, nil
}
