package agent

import "errors"

// Fault categories for command failures. Every failure acknowledgment
// wraps one of these so logs and telemetry can distinguish operator
// mistakes from infrastructure problems.
var (
	// ErrValidation marks a malformed or unknown command. The command
	// was understood well enough to acknowledge but cannot be executed.
	ErrValidation = errors.New("invalid command")

	// ErrCommunication marks a failure reaching the object store,
	// including the store not being configured yet.
	ErrCommunication = errors.New("communication failure")

	// ErrDisplay marks a panel failure, including dimension mismatches.
	ErrDisplay = errors.New("display failure")
)
