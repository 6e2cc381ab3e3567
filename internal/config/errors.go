package config

import (
	"errors"
	"strings"
)

// ConfigError reports missing or contradictory run parameters. Nothing external has
// been started when it is returned.
type ConfigError struct {
	ModelName string
	Reason    string
	// Missing lists unresolved required fields, if any.
	Missing []string
}

func (e *ConfigError) Error() string {
	msg := "config error"
	if e.ModelName != "" {
		msg += " for model " + e.ModelName
	}
	msg += ": " + e.Reason
	if len(e.Missing) > 0 {
		msg += " (missing: " + strings.Join(e.Missing, ", ") + ")"
	}
	return msg
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
