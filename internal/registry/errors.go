package registry

import (
	"errors"
	"fmt"
)

// AlreadyRunningError rejects admission while another run is active.
type AlreadyRunningError struct {
	RunID string // the run currently holding the slot
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("a scrape run is already active: %s", e.RunID)
}

// NotFoundError reports an unknown run id.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("run not found: %s", e.RunID)
}

// AlreadyTerminalError rejects cancellation of a finished run.
type AlreadyTerminalError struct {
	RunID  string
	Status string
}

func (e *AlreadyTerminalError) Error() string {
	return fmt.Sprintf("run %s already finished with status %s", e.RunID, e.Status)
}

// IsAlreadyRunning reports whether err is an admission rejection.
func IsAlreadyRunning(err error) bool {
	var target *AlreadyRunningError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is an unknown-run error.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsAlreadyTerminal reports whether err is a cancel-after-finish error.
func IsAlreadyTerminal(err error) bool {
	var target *AlreadyTerminalError
	return errors.As(err, &target)
}
