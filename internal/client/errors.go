package client

import (
	"errors"
	"fmt"
)

// RegistrationError is returned when the management endpoint refuses or fails a
// registration (or the served name cannot be resolved afterwards).
type RegistrationError struct {
	ModelName string
	Status    int
	Body      string
	Err       error
}

func (e *RegistrationError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("register %s: %v", e.ModelName, e.Err)
	default:
		return fmt.Sprintf("register %s: http %d: %s", e.ModelName, e.Status, e.Body)
	}
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// InferenceError is returned when a prediction call fails for one sample.
type InferenceError struct {
	ServedName string
	SamplePath string
	Status     int
	Body       string
	Err        error
}

func (e *InferenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("inference %s on %s: %v", e.ServedName, e.SamplePath, e.Err)
	}
	return fmt.Sprintf("inference %s on %s: http %d: %s", e.ServedName, e.SamplePath, e.Status, e.Body)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// UnregistrationWarning reports a failed unregister call. Callers log it; it
// never changes a run's outcome.
type UnregistrationWarning struct {
	ServedName string
	Status     int
	Err        error
}

func (e *UnregistrationWarning) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unregister %s: %v", e.ServedName, e.Err)
	}
	return fmt.Sprintf("unregister %s: http %d", e.ServedName, e.Status)
}

func (e *UnregistrationWarning) Unwrap() error { return e.Err }

// IsRegistrationError reports whether err is (or wraps) a RegistrationError.
func IsRegistrationError(err error) bool {
	var re *RegistrationError
	return errors.As(err, &re)
}

// IsInferenceError reports whether err is (or wraps) an InferenceError.
func IsInferenceError(err error) bool {
	var ie *InferenceError
	return errors.As(err, &ie)
}
