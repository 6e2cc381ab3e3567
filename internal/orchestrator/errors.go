package orchestrator

import (
	"errors"
	"fmt"

	"servecheck/internal/artifact"
	"servecheck/internal/client"
	"servecheck/internal/config"
	"servecheck/internal/supervisor"
)

// FailureKind classifies the error that failed a run.
type FailureKind string

const (
	FailureNone            FailureKind = ""
	FailureConfig          FailureKind = "config"
	FailureMissingResource FailureKind = "missing_resource"
	FailureServerStart     FailureKind = "server_start"
	FailureRegistration    FailureKind = "registration"
	FailureInference       FailureKind = "inference"
	FailureInternal        FailureKind = "internal"
)

// Classify maps err onto the run failure taxonomy. A ServerStartError wins over
// a MissingResourceError it wraps, so a packaging failure during ServerStarting
// is reported as server_start.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case config.IsConfigError(err):
		return FailureConfig
	case supervisor.IsServerStartError(err):
		return FailureServerStart
	case artifact.IsMissingResource(err):
		return FailureMissingResource
	case client.IsRegistrationError(err):
		return FailureRegistration
	case client.IsInferenceError(err):
		return FailureInference
	default:
		return FailureInternal
	}
}

// StepError records the state a run failed in.
type StepError struct {
	State State
	Err   error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s: %v", e.State, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

// FailedState returns the state err was raised in, or StateInit when unknown.
func FailedState(err error) State {
	var se *StepError
	if errors.As(err, &se) {
		return se.State
	}
	return StateInit
}
