package runtime

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrEngineUnavailable is returned when the container engine cannot be
	// reached.
	ErrEngineUnavailable = errors.New("container engine unavailable")

	// ErrApplyFailed is returned when converging a manifest fails. Apply has
	// already cleaned up whatever it created.
	ErrApplyFailed = errors.New("manifest apply failed")

	// ErrTeardownFailed is returned when removing region resources fails.
	ErrTeardownFailed = errors.New("region teardown failed")

	// ErrPortTaken is returned when the host port in the manifest is bound by
	// something outside the ledger's control.
	ErrPortTaken = errors.New("host port already bound")
)

// RuntimeError wraps engine errors with the region and operation that failed.
type RuntimeError struct {
	Op      string
	Region  string
	Message string
	Err     error
}

func (e *RuntimeError) Error() string {
	if e.Region != "" {
		return fmt.Sprintf("%s region %s: %s", e.Op, e.Region, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError.
func NewRuntimeError(op, region, message string, err error) *RuntimeError {
	return &RuntimeError{
		Op:      op,
		Region:  region,
		Message: message,
		Err:     err,
	}
}
