// Package report holds the result data model of the harness: per-test
// outcomes, per-job reports, per-execution and per-suite aggregates, and the
// JSON round-trip used to merge reports from independently-run invocations.
package report

import (
	"fmt"
	"time"

	"github.com/dbtestlabs/shoal/types"
)

// TestInfo holds the status and timing information of one test execution
// attempt.
type TestInfo struct {
	TestID  string
	Dynamic bool

	StartTime time.Time
	EndTime   time.Time

	Status types.TestStatus
	// ExternalStatus is the status reported outside the harness; errors and
	// timeouts are folded into "fail".
	ExternalStatus string
	ReturnCode     int

	// LogPath points at the test's log file, when file logging is enabled.
	LogPath string
}

// Pending reports whether the test has not yet been assigned an outcome.
func (t *TestInfo) Pending() bool {
	return t.Status == types.TestStatusPending
}

// Stopped reports whether the test's end time has been recorded.
func (t *TestInfo) Stopped() bool {
	return !t.EndTime.IsZero()
}

// Info is the aggregate of TestInfos for one execution attempt of a suite.
// Outcomes are kept in start order so the most recent outcome for an id can
// be found by scanning backwards; dynamic hook tests share a base id prefix
// with the test they follow.
//
// Info is not synchronized; TestReport wraps it with a lock for concurrent
// use by a job, and Combine only runs after worker threads are joined.
type Info struct {
	testInfos []*TestInfo

	NumDynamic     int
	NumSucceeded   int
	NumFailed      int
	NumErrored     int
	NumInterrupted int
}

// NewInfo returns an empty Info.
func NewInfo() *Info {
	return &Info{}
}

// Clone returns a copy of the Info sharing the TestInfo values.
func (i *Info) Clone() *Info {
	clone := NewInfo()
	clone.testInfos = append([]*TestInfo(nil), i.testInfos...)
	clone.NumDynamic = i.NumDynamic
	clone.NumSucceeded = i.NumSucceeded
	clone.NumFailed = i.NumFailed
	clone.NumErrored = i.NumErrored
	clone.NumInterrupted = i.NumInterrupted
	return clone
}

// StartTest records the start of one execution attempt of the given test.
func (i *Info) StartTest(testID string, dynamic bool) *TestInfo {
	info := &TestInfo{
		TestID:    testID,
		Dynamic:   dynamic,
		StartTime: time.Now(),
		Status:    types.TestStatusPending,
	}
	i.testInfos = append(i.testInfos, info)
	if dynamic {
		i.NumDynamic++
	}
	return info
}

// StopTest records the end time of the given test and returns the elapsed
// time. It is an error to stop a test that was never started or to stop the
// same attempt twice.
func (i *Info) StopTest(testID string) (time.Duration, error) {
	info, err := i.GetByID(testID)
	if err != nil {
		return 0, err
	}
	if info.Stopped() {
		return 0, fmt.Errorf("test %s was already marked as stopped", testID)
	}
	info.EndTime = time.Now()
	return info.EndTime.Sub(info.StartTime), nil
}

// PassTest records a success outcome for the given test.
func (i *Info) PassTest(testID string, returnCode int) error {
	info, err := i.GetByID(testID)
	if err != nil {
		return err
	}
	info.Status = types.TestStatusPass
	info.ExternalStatus = types.ExternalStatusPass
	info.ReturnCode = returnCode
	i.NumSucceeded++
	return nil
}

// FailTest records a failure outcome for the given test. Dynamic tests are
// used for data consistency checks, so their failures are never silenced by
// the report-failure-status policy.
func (i *Info) FailTest(testID string, returnCode int, reportFailureStatus string) error {
	info, err := i.GetByID(testID)
	if err != nil {
		return err
	}
	info.Status = types.TestStatusFail
	if info.Dynamic {
		info.ExternalStatus = types.ExternalStatusFail
	} else {
		info.ExternalStatus = reportFailureStatus
	}
	info.ReturnCode = returnCode
	i.NumFailed++
	return nil
}

// ErrorTest records an error outcome for the given test.
func (i *Info) ErrorTest(testID string, returnCode int) error {
	info, err := i.GetByID(testID)
	if err != nil {
		return err
	}
	info.Status = types.TestStatusError
	info.ExternalStatus = types.ExternalStatusFail
	info.ReturnCode = returnCode
	i.NumErrored++
	return nil
}

// UpdateFailure changes the outcome of an already-stopped test to a failure.
// Used when a hook discovers a problem after the base test reported success.
func (i *Info) UpdateFailure(testID string, returnCode int, reportFailureStatus string) error {
	info, err := i.GetByID(testID)
	if err != nil {
		return err
	}
	if !info.Stopped() {
		return fmt.Errorf("test %s was not stopped", testID)
	}
	info.Status = types.TestStatusFail
	if info.Dynamic {
		info.ExternalStatus = types.ExternalStatusFail
	} else {
		info.ExternalStatus = reportFailureStatus
	}
	info.ReturnCode = returnCode
	i.recomputeCounts()
	return nil
}

// UpdateError changes the outcome of an already-stopped test to an error.
func (i *Info) UpdateError(testID string, returnCode int) error {
	info, err := i.GetByID(testID)
	if err != nil {
		return err
	}
	if !info.Stopped() {
		return fmt.Errorf("test %s was not stopped", testID)
	}
	info.Status = types.TestStatusError
	info.ExternalStatus = types.ExternalStatusFail
	info.ReturnCode = returnCode
	i.recomputeCounts()
	return nil
}

// GetByID returns the most recently started TestInfo with the given id.
func (i *Info) GetByID(testID string) (*TestInfo, error) {
	// Search backwards to efficiently find a test that was recently started.
	for n := len(i.testInfos) - 1; n >= 0; n-- {
		if i.testInfos[n].TestID == testID {
			return i.testInfos[n], nil
		}
	}
	return nil, fmt.Errorf("details for %s not found in the report", testID)
}

// ByStatus returns all TestInfos with the given status, in start order.
func (i *Info) ByStatus(status types.TestStatus) []*TestInfo {
	var infos []*TestInfo
	for _, info := range i.testInfos {
		if info.Status == status {
			infos = append(infos, info)
		}
	}
	return infos
}

// TestInfos returns the recorded outcomes in start order.
func (i *Info) TestInfos() []*TestInfo {
	return i.testInfos
}

// NumRun returns how many tests have a recorded outcome.
func (i *Info) NumRun() int {
	return i.NumSucceeded + i.NumErrored + i.NumFailed + i.NumInterrupted
}

// WasSuccessful reports whether no failures, errors or interruptions were
// recorded.
func (i *Info) WasSuccessful() bool {
	return i.NumFailed == 0 && i.NumErrored == 0 && i.NumInterrupted == 0
}

// endReport finalizes any still-pending outcomes using endTime. A pending
// test is considered interrupted: it might have passed if the execution ran
// to completion, but we wouldn't know for sure, so it is reported as a
// timeout with the reserved sentinel return code.
func (i *Info) endReport(endTime time.Time) {
	for _, info := range i.testInfos {
		if info.Pending() {
			info.Status = types.TestStatusTimeout
			info.ExternalStatus = types.ExternalStatusFail
			info.ReturnCode = types.ReturnCodeTimeout
		}
		if !info.Stopped() {
			info.EndTime = endTime
		}
	}
}

func (i *Info) recomputeCounts() {
	i.NumSucceeded = len(i.ByStatus(types.TestStatusPass))
	i.NumFailed = len(i.ByStatus(types.TestStatusFail))
	i.NumErrored = len(i.ByStatus(types.TestStatusError))
	i.NumInterrupted = len(i.ByStatus(types.TestStatusTimeout))
}

// Combine merges the given reports into a single Info. All still-pending
// outcomes are finalized with a shared end time, and the status counts are
// recomputed from a full scan rather than trusted from the inputs, so clones
// and partially-updated reports combine correctly. Combine is associative.
func Combine(infos []*Info) *Info {
	combined := NewInfo()
	combiningTime := time.Now()
	for _, info := range infos {
		info.endReport(combiningTime)
		combined.testInfos = append(combined.testInfos, info.testInfos...)
		combined.NumDynamic += info.NumDynamic
	}
	combined.recomputeCounts()
	return combined
}
