package shell

import (
	"errors"
	"fmt"
)

// ExitError carries the process exit code out of a shell run.
type ExitError struct {
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("shell exited with %d", e.ExitCode)
}

func NewExitError(exitCode int) *ExitError {
	return &ExitError{ExitCode: exitCode}
}

// ExitCodeOf extracts the exit code from an error returned by Run.
// Errors that are not ExitError map to exit code 1.
func ExitCodeOf(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode
	}

	return 1
}
