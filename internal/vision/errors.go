package vision

import "errors"

// Common errors returned by vision backend implementations
var (
	// ErrBackendTimeout is returned when a step's external call does not
	// complete within its bounded timeout
	ErrBackendTimeout = errors.New("vision backend call timed out")

	// ErrBackendProtocol is returned when the backend response is malformed
	// or does not match the step's expected schema
	ErrBackendProtocol = errors.New("malformed response from vision backend")

	// ErrBackendUnavailable is returned when the backend cannot be reached
	ErrBackendUnavailable = errors.New("vision backend unavailable")

	// ErrInvalidConfig is returned when the backend configuration is invalid
	ErrInvalidConfig = errors.New("invalid vision backend configuration")
)
