package artifact

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/rs/zerolog"

	"servecheck/internal/common/procutil"
)

// WeightsExporter serializes a model's weights given an identifier such as
// "ResNet50_Weights.DEFAULT" and returns the written file path.
type WeightsExporter interface {
	Export(ctx context.Context, modelName, weightsID, outDir string) (string, error)
}

// WeightsFileName is the file an exporter writes for modelName.
func WeightsFileName(modelName string) string { return modelName + "-default.pt" }

// CommandExporter runs an external exporter program:
//
//	<cmd...> --model_name <name> --weight <id> --output_dir <dir>
type CommandExporter struct {
	Cmd []string
	Log zerolog.Logger
}

func (e CommandExporter) Export(ctx context.Context, modelName, weightsID, outDir string) (string, error) {
	if len(e.Cmd) == 0 {
		return "", errors.New("exporter command is empty")
	}
	args := append(append([]string(nil), e.Cmd[1:]...),
		"--model_name", modelName,
		"--weight", weightsID,
		"--output_dir", outDir,
	)
	lw := &procutil.LineLogger{Log: e.Log, Prefix: "exporter"}
	if err := procutil.Run(ctx, procutil.Cmd{Path: e.Cmd[0], Args: args, Stdout: lw, Stderr: lw}); err != nil {
		return "", err
	}
	return filepath.Join(outDir, WeightsFileName(modelName)), nil
}
