package artifact

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"servecheck/internal/common/fsutil"
	"servecheck/internal/common/procutil"
)

// Archiver turns a Package into an archive inside storeDir and returns the
// archive identifier (its file name).
type Archiver interface {
	Archive(ctx context.Context, pkg Package, storeDir string) (string, error)
}

// CommandArchiver shells out to torch-model-archiver.
type CommandArchiver struct {
	Bin string
	Log zerolog.Logger
}

func (a CommandArchiver) Archive(ctx context.Context, pkg Package, storeDir string) (string, error) {
	args := []string{
		"--model-name", pkg.ModelName,
		"--version", pkg.Version,
		"--model-file", pkg.ModelFile,
		"--serialized-file", pkg.SerializedFile,
		"--handler", pkg.Handler.Ref(),
		"--export-path", storeDir,
		"--force",
	}
	if len(pkg.ExtraFiles) > 0 {
		args = append(args, "--extra-files", strings.Join(pkg.ExtraFiles, ","))
	}
	lw := &procutil.LineLogger{Log: a.Log, Prefix: "archiver"}
	if err := procutil.Run(ctx, procutil.Cmd{Path: a.Bin, Args: args, Stdout: lw, Stderr: lw}); err != nil {
		return "", fmt.Errorf("archive %s: %w", pkg.ModelName, err)
	}
	id := ArchiveID(pkg.ModelName)
	if !fsutil.IsFile(filepath.Join(storeDir, id)) {
		return "", &MissingResourceError{Kind: ResourceArchive, ModelName: pkg.ModelName, Path: filepath.Join(storeDir, id)}
	}
	return id, nil
}

// Packager archives every package listed in a descriptor file.
type Packager struct {
	Archiver Archiver
	Log      zerolog.Logger
}

// PackageAll reads descriptorPath and archives each entry into storeDir. It returns
// the archive identifiers in descriptor order.
func (p Packager) PackageAll(ctx context.Context, descriptorPath, storeDir string) ([]string, error) {
	pkgs, err := ReadDescriptors(descriptorPath)
	if err != nil {
		return nil, err
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("descriptor %s lists no packages", descriptorPath)
	}
	ids := make([]string, 0, len(pkgs))
	for _, pkg := range pkgs {
		p.Log.Info().Str("model", pkg.ModelName).Str("store", storeDir).Msg("generating archive")
		id, err := p.Archiver.Archive(ctx, pkg, storeDir)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ImportArchive places a pre-built archive into storeDir and returns its identifier.
func ImportArchive(modelName, src, storeDir string) (string, error) {
	if !fsutil.IsFile(src) {
		return "", &MissingResourceError{Kind: ResourceArchive, ModelName: modelName, Path: src}
	}
	id := filepath.Base(src)
	dst := filepath.Join(storeDir, id)
	if filepath.Clean(src) == filepath.Clean(dst) {
		return id, nil
	}
	if err := fsutil.CopyFile(src, dst); err != nil {
		return "", fmt.Errorf("import archive: %w", err)
	}
	return id, nil
}
