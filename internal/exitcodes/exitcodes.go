// Package exitcodes defines stable exit codes for CLI operations, so
// orchestration environments (Airflow, Kubernetes) can tell retryable
// failures from permanent ones.
package exitcodes

import (
	"errors"

	"github.com/kanataki-zwei/pipecraft/internal/engine"
)

const (
	// Success - the operation completed without errors
	Success = 0

	// ConfigError - bad definitions or unknown dialect (don't retry)
	ConfigError = 1

	// ConnectionError - source or destination unreachable (retryable)
	ConnectionError = 2

	// ExecutionError - the copy itself failed (don't retry blindly)
	ExecutionError = 3

	// IntrospectionError - schema or table listing failed
	IntrospectionError = 4

	// GeneralError - anything unclassified
	GeneralError = 10
)

// FromError maps an engine error to an exit code.
func FromError(err error) int {
	if err == nil {
		return Success
	}

	var configErr *engine.ConfigError
	if errors.As(err, &configErr) {
		return ConfigError
	}
	var connErr *engine.ConnectivityError
	if errors.As(err, &connErr) {
		return ConnectionError
	}
	var introspectionErr *engine.IntrospectionError
	if errors.As(err, &introspectionErr) {
		return IntrospectionError
	}
	var execErr *engine.ExecutionError
	if errors.As(err, &execErr) {
		return ExecutionError
	}
	return GeneralError
}
