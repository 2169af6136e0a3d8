package mqtt

import "errors"

// Errors returned by the adapter. Use errors.Is to check for them.
var (
	// ErrMonitorRunning is returned by Run when a monitor already runs.
	ErrMonitorRunning = errors.New("mqtt: connection monitor already running")

	// ErrConnectionFailed is returned when a connect attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("mqtt: operation timed out")

	// ErrInvalidOptions is returned by New for unusable options.
	ErrInvalidOptions = errors.New("mqtt: invalid options")
)
