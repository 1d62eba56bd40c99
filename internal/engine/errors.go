package engine

// The engine classifies every failure into one of four kinds. The kind
// decides what happens to the run: config and introspection failures are
// rejected before a run exists, connectivity and execution failures resolve
// an already-running run to failed. Error text passes through verbatim so
// the run ledger captures what the driver actually said.

// ConfigError reports an unusable stored definition: an unknown dialect or
// a reference that does not resolve. Surfaced before any run is created.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// ConnectivityError reports an unreachable source or destination.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string { return e.Err.Error() }
func (e *ConnectivityError) Unwrap() error { return e.Err }

// IntrospectionError reports a schema, table, or column listing failure.
// Introspection never has run side effects.
type IntrospectionError struct {
	Err error
}

func (e *IntrospectionError) Error() string { return e.Err.Error() }
func (e *IntrospectionError) Unwrap() error { return e.Err }

// ExecutionError reports a failure during the copy itself: read, create,
// truncate, or insert. Always resolves the run to failed with the
// destination transaction rolled back.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string { return e.Err.Error() }
func (e *ExecutionError) Unwrap() error { return e.Err }
