package report

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dbtestlabs/shoal/logging"
	"github.com/dbtestlabs/shoal/types"
)

// TestReport records the outcomes produced by a single worker thread. It
// wraps an Info with a mutex so a job and the hooks it runs can record
// concurrently, and it wires per-test log files in when file logging is
// enabled.
type TestReport struct {
	mu   sync.Mutex
	info *Info

	jobLogger log.Logger
	options   types.SuiteOptions
	files     *logging.FileLogger

	// openLogs maps a pending test id to its open log file so StopTest can
	// close it.
	openLogs map[string]*logging.TestLog
}

// NewTestReport returns a TestReport for one worker thread. files may be nil
// when file logging is disabled.
func NewTestReport(jobLogger log.Logger, options types.SuiteOptions, files *logging.FileLogger) *TestReport {
	return &TestReport{
		info:      NewInfo(),
		jobLogger: jobLogger,
		options:   options,
		files:     files,
		openLogs:  make(map[string]*logging.TestLog),
	}
}

// StartTest records the start of the given test and returns the logger the
// test should write its output to. With file logging enabled this is a
// logger backed by a fresh per-test file; otherwise it is the job logger.
func (r *TestReport) StartTest(testID string, dynamic bool) (log.Logger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := r.info.StartTest(testID, dynamic)
	if r.files == nil {
		return r.jobLogger.New("test", testID), nil
	}
	tl, err := r.files.NewTestLog(testID)
	if err != nil {
		return nil, err
	}
	info.LogPath = tl.Path()
	r.openLogs[testID] = tl
	return tl.Logger(), nil
}

// StopTest records the end of the given test, closes its log file and
// returns the elapsed time. Logs of tests that did not pass are copied into
// the failed-tests directory once closed.
func (r *TestReport) StopTest(testID string) (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed, err := r.info.StopTest(testID)
	if tl, ok := r.openLogs[testID]; ok {
		delete(r.openLogs, testID)
		if cerr := tl.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if info, gerr := r.info.GetByID(testID); gerr == nil {
		if info.Status != types.TestStatusPass && !info.Pending() {
			r.markFailedLocked(info)
		}
	}
	return elapsed, err
}

// PassTest records a success outcome for the given test.
func (r *TestReport) PassTest(testID string, returnCode int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info.PassTest(testID, returnCode)
}

// FailTest records a failure outcome for the given test.
func (r *TestReport) FailTest(testID string, returnCode int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info.FailTest(testID, returnCode, r.options.ReportFailureStatus)
}

// ErrorTest records an error outcome for the given test.
func (r *TestReport) ErrorTest(testID string, returnCode int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info.ErrorTest(testID, returnCode)
}

// UpdateFailure changes the outcome of an already-stopped test to a failure.
func (r *TestReport) UpdateFailure(testID string, returnCode int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.info.UpdateFailure(testID, returnCode, r.options.ReportFailureStatus); err != nil {
		return err
	}
	if info, gerr := r.info.GetByID(testID); gerr == nil {
		r.markFailedLocked(info)
	}
	return nil
}

// UpdateError changes the outcome of an already-stopped test to an error.
func (r *TestReport) UpdateError(testID string, returnCode int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.info.UpdateError(testID, returnCode); err != nil {
		return err
	}
	if info, gerr := r.info.GetByID(testID); gerr == nil {
		r.markFailedLocked(info)
	}
	return nil
}

// StartFailStop records a complete failed attempt for the given test in one
// call. Used for outcomes discovered without running the test, such as a
// fixture found dead before the test could start.
func (r *TestReport) StartFailStop(testID string, dynamic bool, returnCode int) error {
	if _, err := r.StartTest(testID, dynamic); err != nil {
		return err
	}
	if err := r.FailTest(testID, returnCode); err != nil {
		return err
	}
	_, err := r.StopTest(testID)
	return err
}

// StartErrorStop records a complete errored attempt for the given test in
// one call.
func (r *TestReport) StartErrorStop(testID string, dynamic bool, returnCode int) error {
	if _, err := r.StartTest(testID, dynamic); err != nil {
		return err
	}
	if err := r.ErrorTest(testID, returnCode); err != nil {
		return err
	}
	_, err := r.StopTest(testID)
	return err
}

// GetByID returns the most recently started TestInfo with the given id.
func (r *TestReport) GetByID(testID string) (*TestInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info.GetByID(testID)
}

// Info returns a snapshot copy of the underlying report.
func (r *TestReport) Info() *Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info.Clone()
}

// WasSuccessful reports whether no failures, errors or interruptions were
// recorded.
func (r *TestReport) WasSuccessful() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info.WasSuccessful()
}

// markFailedLocked copies the test's log to the failed directory. Failures
// to copy are logged and otherwise ignored; the outcome is already recorded.
func (r *TestReport) markFailedLocked(info *TestInfo) {
	if r.files == nil || info.LogPath == "" {
		return
	}
	if err := r.files.MarkFailed(info.LogPath); err != nil {
		r.jobLogger.Warn("Failed to copy log of failed test", "test", info.TestID, "error", err)
	}
}
