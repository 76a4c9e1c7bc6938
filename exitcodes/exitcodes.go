// Package exitcodes defines the standard exit codes used by shoal.
package exitcodes

// Exit code constants used by shoal
// These constants define the exit codes that the harness uses to indicate
// various states when it exits:
//
// * Success (0): Used when every suite ran to completion and all tests passed
// * TestFailure (1): Used when one or more tests failed or errored
// * RuntimeErr (2): Used for fixture errors, panics or other internal failures
// * IOErr (74): Used when a suite was halted by an I/O error
// * Interrupted (130): Used when execution was interrupted by a user signal
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
	IOErr       = 74
	Interrupted = 130
)
