package bus

import "errors"

// Domain-specific errors for bus session operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectTimeout is returned by publish operations when no broker
	// connection becomes available within the bounded wait.
	ErrConnectTimeout = errors.New("bus: timed out waiting for broker connection")

	// ErrSessionClosed is returned when publishing on a closed session.
	ErrSessionClosed = errors.New("bus: session closed")
)
