// Package uerrors names the error taxonomy Uberfuzz's components propagate
// across API boundaries. Steady-state failures (transient I/O races,
// scorer failures) are never wrapped in these types: they are logged at the
// call site and swallowed so a long-running campaign does not die mid-run.
package uerrors

import "fmt"

// ConfigError reports contradictory or incomplete configuration detected at
// construction time. Fatal to the constructor that returns it.
type ConfigError struct {
	Component string
	Reason    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Component, e.Reason)
}

// NewConfigError builds a ConfigError for the named component.
func NewConfigError(component, reason string) *ConfigError {
	return &ConfigError{Component: component, Reason: reason}
}

// StartFailure reports that a child process could not be spawned or a
// required directory could not be created. Fatal to Start(); triggers
// rollback of any adapters already started.
type StartFailure struct {
	Component string
	Err       error
}

func (e *StartFailure) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Component, e.Err)
}

func (e *StartFailure) Unwrap() error { return e.Err }

// NewStartFailure wraps err as a StartFailure for the named component.
func NewStartFailure(component string, err error) *StartFailure {
	return &StartFailure{Component: component, Err: err}
}
