package errors

import (
	"fmt"
)

// ScanError reports a file that could not be read or hashed.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("failed to scan %q: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

func NewScanError(path string, err error) *ScanError {
	return &ScanError{Path: path, Err: err}
}

// CommandError carries the process exit code of a failed command.
type CommandError struct {
	ExitCode    int
	CommonError string
	Err         error
}

// Error implements the error interface, returning the message from the common error.
func (e *CommandError) Error() string {
	return e.CommonError
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError wraps err with an exit code.
func NewCommandError(err error, code int) *CommandError {
	return &CommandError{
		ExitCode:    code,
		CommonError: err.Error(),
		Err:         err,
	}
}
