package artifact

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"servecheck/internal/common/fsutil"
	"servecheck/internal/config"
)

// Builder validates build inputs and writes the package descriptor.
type Builder struct {
	exporter WeightsExporter
	log      zerolog.Logger
}

// NewBuilder constructs a Builder. exporter may be nil when every run supplies a
// weights file.
func NewBuilder(exporter WeightsExporter, log zerolog.Logger) *Builder {
	return &Builder{exporter: exporter, log: log.With().Str("component", "artifact").Logger()}
}

// Build checks every referenced file, exports weights when only an identifier is
// known, and writes the descriptor into genDir.
func (b *Builder) Build(ctx context.Context, modelName string, src *config.BuildSource, genDir string) (Package, error) {
	if modelName == "" {
		return Package{}, errors.New("artifact: model name is empty")
	}
	if src == nil {
		return Package{}, fmt.Errorf("artifact: no build inputs for model %s", modelName)
	}
	if src.ArchFile == "" || !fsutil.IsFile(src.ArchFile) {
		return Package{}, &MissingResourceError{Kind: ResourceArchitecture, ModelName: modelName, Path: src.ArchFile}
	}
	if src.ClassMap == "" || !fsutil.IsFile(src.ClassMap) {
		return Package{}, &MissingResourceError{Kind: ResourceClassMap, ModelName: modelName, Path: src.ClassMap}
	}
	h, err := ResolveHandler(modelName, src.HandlerRef, src.AssetDir)
	if err != nil {
		return Package{}, err
	}
	for _, e := range src.Extras {
		if !fsutil.IsFile(e) {
			return Package{}, &MissingResourceError{Kind: ResourceExtraFile, ModelName: modelName, Path: e}
		}
	}
	weights, err := b.weights(ctx, modelName, src, genDir)
	if err != nil {
		return Package{}, err
	}

	pkg := Package{
		ModelName:      modelName,
		Version:        DefaultVersion,
		ModelFile:      src.ArchFile,
		SerializedFile: weights,
		Handler:        h,
		ExtraFiles:     append([]string{src.ClassMap}, src.Extras...),
	}
	path := filepath.Join(genDir, DescriptorFile)
	if err := WriteDescriptors(path, pkg); err != nil {
		return Package{}, err
	}
	b.log.Debug().Str("model", modelName).Str("descriptor", path).Str("handler", h.Ref()).Msg("package descriptor written")
	return pkg, nil
}

func (b *Builder) weights(ctx context.Context, modelName string, src *config.BuildSource, genDir string) (string, error) {
	if src.WeightsFile != "" {
		if !fsutil.IsFile(src.WeightsFile) {
			return "", &MissingResourceError{Kind: ResourceWeights, ModelName: modelName, Path: src.WeightsFile}
		}
		return src.WeightsFile, nil
	}
	if src.WeightsID == "" || b.exporter == nil {
		return "", &MissingResourceError{Kind: ResourceWeights, ModelName: modelName}
	}
	b.log.Info().Str("model", modelName).Str("weights", src.WeightsID).Msg("exporting weights")
	p, err := b.exporter.Export(ctx, modelName, src.WeightsID, genDir)
	if err != nil {
		return "", fmt.Errorf("export weights for %s: %w", modelName, err)
	}
	if !fsutil.IsFile(p) {
		return "", &MissingResourceError{Kind: ResourceWeights, ModelName: modelName, Path: p}
	}
	return p, nil
}
