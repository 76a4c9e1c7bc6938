package types

import (
	"errors"
	"fmt"
	"os"
)

// TestFailure indicates that a test's own assertions failed. It is recorded
// as a "fail" outcome and execution of the remaining tests continues unless
// the suite is configured to fail fast.
type TestFailure struct {
	Message string
}

func (e *TestFailure) Error() string {
	return fmt.Sprintf("test failure: %s", e.Message)
}

// NewTestFailure creates a new TestFailure.
func NewTestFailure(format string, args ...any) *TestFailure {
	return &TestFailure{Message: fmt.Sprintf(format, args...)}
}

// IsTestFailure checks if the error is or wraps a TestFailure.
func IsTestFailure(err error) bool {
	var testErr *TestFailure
	return err != nil && errors.As(err, &testErr)
}

// ServerFailure indicates that the deployment under test misbehaved (crashed,
// lost its primary, stopped accepting writes). It always stops the owning
// job regardless of the fail-fast setting.
type ServerFailure struct {
	Message string
}

func (e *ServerFailure) Error() string {
	return fmt.Sprintf("server failure: %s", e.Message)
}

// NewServerFailure creates a new ServerFailure.
func NewServerFailure(format string, args ...any) *ServerFailure {
	return &ServerFailure{Message: fmt.Sprintf(format, args...)}
}

// IsServerFailure checks if the error is or wraps a ServerFailure.
func IsServerFailure(err error) bool {
	var srvErr *ServerFailure
	return err != nil && errors.As(err, &srvErr)
}

// FixtureError indicates that a fixture could not be set up, confirmed ready
// or torn down. Raised during executor-level setup it aborts the whole suite.
type FixtureError struct {
	Err error
}

func (e *FixtureError) Error() string {
	return fmt.Sprintf("fixture error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface.
func (e *FixtureError) Unwrap() error {
	return e.Err
}

// NewFixtureError creates a new FixtureError wrapping err.
func NewFixtureError(err error) *FixtureError {
	return &FixtureError{Err: err}
}

// IsFixtureError checks if the error is or wraps a FixtureError.
func IsFixtureError(err error) bool {
	var fixErr *FixtureError
	return err != nil && errors.As(err, &fixErr)
}

// StopExecution is the internal control-flow signal meaning "this job's loop
// must end now". It never escapes a job boundary.
type StopExecution struct {
	Reason string
}

func (e *StopExecution) Error() string {
	return fmt.Sprintf("stopping execution: %s", e.Reason)
}

// NewStopExecution creates a new StopExecution.
func NewStopExecution(format string, args ...any) *StopExecution {
	return &StopExecution{Reason: fmt.Sprintf(format, args...)}
}

// IsStopExecution checks if the error is or wraps a StopExecution.
func IsStopExecution(err error) bool {
	var stopErr *StopExecution
	return err != nil && errors.As(err, &stopErr)
}

// ErrUserInterrupt is the operator-requested cancellation, escalated to a
// suite-level interrupted status with exit code 130.
var ErrUserInterrupt = errors.New("user interrupt")

// IsUserInterrupt checks whether the error is the user interrupt signal.
func IsUserInterrupt(err error) bool {
	return errors.Is(err, ErrUserInterrupt)
}

// IsIOError reports whether the error originates from the operating system's
// I/O layer (file or syscall failures), which halts a suite with exit code 74.
func IsIOError(err error) bool {
	var pathErr *os.PathError
	var linkErr *os.LinkError
	var sysErr *os.SyscallError
	return err != nil &&
		(errors.As(err, &pathErr) || errors.As(err, &linkErr) || errors.As(err, &sysErr))
}
