package artifact

import (
	"servecheck/internal/common/fsutil"
)

// HandlerKind tags a Handler variant.
type HandlerKind int

const (
	HandlerImageClassifier HandlerKind = iota + 1
	HandlerImageSegmenter
	HandlerObjectDetector
	HandlerTextClassifier
	// HandlerCustom points at a handler source file.
	HandlerCustom
)

var builtinHandlers = map[string]HandlerKind{
	"image_classifier": HandlerImageClassifier,
	"image_segmenter":  HandlerImageSegmenter,
	"object_detector":  HandlerObjectDetector,
	"text_classifier":  HandlerTextClassifier,
}

// Handler is either one of the serving runtime's built-in handlers or a custom file.
type Handler struct {
	Kind HandlerKind
	// Name is the built-in name; empty for custom handlers.
	Name string
	// Path is the resolved handler file; empty for built-ins.
	Path string
}

// Ref is the value written into the package descriptor.
func (h Handler) Ref() string {
	if h.Kind == HandlerCustom {
		return h.Path
	}
	return h.Name
}

// IsBuiltin reports whether h names a built-in handler.
func (h Handler) IsBuiltin() bool { return h.Kind != HandlerCustom && h.Kind != 0 }

// ResolveHandler maps ref to a built-in handler by name, or else to a file under
// assetDir (absolute refs are used as-is). The file must exist.
func ResolveHandler(modelName, ref, assetDir string) (Handler, error) {
	if k, ok := builtinHandlers[ref]; ok {
		return Handler{Kind: k, Name: ref}, nil
	}
	if ref == "" {
		return Handler{}, &MissingResourceError{Kind: ResourceHandler, ModelName: modelName}
	}
	p, err := fsutil.Resolve(assetDir, ref)
	if err != nil {
		return Handler{}, err
	}
	if !fsutil.IsFile(p) {
		return Handler{}, &MissingResourceError{Kind: ResourceHandler, ModelName: modelName, Path: p}
	}
	return Handler{Kind: HandlerCustom, Path: p}, nil
}
