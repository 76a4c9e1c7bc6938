package runner

import "sync/atomic"

// JobCoordinator is the shared flag object of one suite run. Jobs check the
// interrupted flag before claiming each test, which turns one job's failure
// or a user signal into a cooperative cluster-wide halt without synchronous
// cross-job calls.
type JobCoordinator struct {
	interrupted   atomic.Bool
	teardownError atomic.Bool
}

// NewJobCoordinator returns a coordinator with both flags clear.
func NewJobCoordinator() *JobCoordinator {
	return &JobCoordinator{}
}

// SetInterrupted tells every job to stop claiming tests.
func (c *JobCoordinator) SetInterrupted() {
	c.interrupted.Store(true)
}

// Interrupted reports whether a job or signal handler requested a halt.
func (c *JobCoordinator) Interrupted() bool {
	return c.interrupted.Load()
}

// SetTeardownError records that some job failed to tear its fixture down.
func (c *JobCoordinator) SetTeardownError() {
	c.teardownError.Store(true)
}

// TeardownError reports whether any job failed to tear its fixture down.
func (c *JobCoordinator) TeardownError() bool {
	return c.teardownError.Load()
}
