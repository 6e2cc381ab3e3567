package artifact

import (
	"errors"
	"fmt"
)

// ResourceKind names the referenced input that was not found.
type ResourceKind string

const (
	ResourceWeights      ResourceKind = "weights"
	ResourceArchitecture ResourceKind = "architecture"
	ResourceClassMap     ResourceKind = "class-map"
	ResourceHandler      ResourceKind = "handler"
	ResourceExtraFile    ResourceKind = "extra-file"
	ResourceArchive      ResourceKind = "archive"
)

// MissingResourceError reports a referenced file that does not exist.
type MissingResourceError struct {
	Kind      ResourceKind
	ModelName string
	Path      string
}

func (e *MissingResourceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("missing %s for model %s", e.Kind, e.ModelName)
	}
	return fmt.Sprintf("missing %s for model %s: %s", e.Kind, e.ModelName, e.Path)
}

// IsMissingResource reports whether err is (or wraps) a MissingResourceError.
func IsMissingResource(err error) bool {
	var me *MissingResourceError
	return errors.As(err, &me)
}
