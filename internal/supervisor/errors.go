package supervisor

import (
	"errors"
	"fmt"
)

// ServerStartError is returned when packaging, launching or readiness fails.
type ServerStartError struct {
	Reason string
	Err    error
}

func (e *ServerStartError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("server start failed: %s: %v", e.Reason, e.Err)
	}
	return "server start failed: " + e.Reason
}

func (e *ServerStartError) Unwrap() error { return e.Err }

// IsServerStartError reports whether err is (or wraps) a ServerStartError.
func IsServerStartError(err error) bool {
	var se *ServerStartError
	return errors.As(err, &se)
}

// StopWarning describes a failed stop. It is only ever logged.
type StopWarning struct {
	Reason string
	Err    error
}

func (e *StopWarning) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("server stop: %s: %v", e.Reason, e.Err)
	}
	return "server stop: " + e.Reason
}

func (e *StopWarning) Unwrap() error { return e.Err }
