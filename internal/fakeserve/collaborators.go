package fakeserve

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"servecheck/internal/artifact"
)

// Archiver writes a placeholder archive holding the package descriptor.
type Archiver struct{}

var _ artifact.Archiver = Archiver{}

func (Archiver) Archive(_ context.Context, pkg artifact.Package, storeDir string) (string, error) {
	b, err := json.Marshal(pkg.Descriptor())
	if err != nil {
		return "", err
	}
	id := artifact.ArchiveID(pkg.ModelName)
	if err := os.WriteFile(filepath.Join(storeDir, id), b, 0o644); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}
	return id, nil
}

// Exporter writes a placeholder weights file naming the weights identifier.
type Exporter struct{}

var _ artifact.WeightsExporter = Exporter{}

func (Exporter) Export(_ context.Context, modelName, weightsID, outDir string) (string, error) {
	p := filepath.Join(outDir, artifact.WeightsFileName(modelName))
	if err := os.WriteFile(p, []byte(weightsID+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write weights: %w", err)
	}
	return p, nil
}
