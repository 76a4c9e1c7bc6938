package report

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dbtestlabs/shoal/exitcodes"
	"github.com/dbtestlabs/shoal/logging"
	"github.com/dbtestlabs/shoal/types"
)

// Summary holds the aggregate counters of a suite execution, using the
// arithmetic of the summary line: skipped is the shortfall between the tests
// we expected to run (plus the dynamic tests that appeared) and the tests
// that actually ran, and failed folds interrupted tests in.
type Summary struct {
	NumRun       int
	NumSucceeded int
	NumFailed    int
	NumErrored   int
	NumSkipped   int
	Elapsed      time.Duration
}

func (s Summary) String() string {
	if s.NumRun == 0 {
		return "No tests ran."
	}
	return fmt.Sprintf("%d test(s) ran in %.2f seconds (%d succeeded, %d were skipped, %d failed, %d errored)",
		s.NumRun, s.Elapsed.Seconds(), s.NumSucceeded, s.NumSkipped, s.NumFailed, s.NumErrored)
}

// Add returns the element-wise sum of two summaries.
func (s Summary) Add(other Summary) Summary {
	return Summary{
		NumRun:       s.NumRun + other.NumRun,
		NumSucceeded: s.NumSucceeded + other.NumSucceeded,
		NumFailed:    s.NumFailed + other.NumFailed,
		NumErrored:   s.NumErrored + other.NumErrored,
		NumSkipped:   s.NumSkipped + other.NumSkipped,
		Elapsed:      s.Elapsed + other.Elapsed,
	}
}

// SuiteReport tracks the lifetime of one suite run: overall start and end
// times, the start and end of each execution attempt, the finished reports
// of past executions and the live per-job reports of the one in flight.
type SuiteReport struct {
	mu sync.Mutex

	name          string
	expectedTests int

	suiteStart time.Time
	suiteEnd   time.Time

	executionStarts []time.Time
	executionEnds   []time.Time
	executions      []*Info
	current         []*TestReport

	interrupted bool
	returnCode  int
}

// NewSuiteReport returns a SuiteReport for the named suite. expectedTests is
// the number of selected tests per execution attempt.
func NewSuiteReport(name string, expectedTests int) *SuiteReport {
	return &SuiteReport{name: name, expectedTests: expectedTests, returnCode: exitcodes.Success}
}

// Name returns the suite's display name.
func (s *SuiteReport) Name() string { return s.name }

// ReturnCode returns the suite's resolved return code.
func (s *SuiteReport) ReturnCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.returnCode
}

// Interrupted reports whether the suite run was cut short by the user.
func (s *SuiteReport) Interrupted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupted
}

// RecordSuiteStart records the wall-clock start of the suite run.
func (s *SuiteReport) RecordSuiteStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suiteStart = time.Now()
}

// RecordSuiteEnd records the wall-clock end of the suite run.
func (s *SuiteReport) RecordSuiteEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suiteEnd = time.Now()
}

// RecordExecutionStart begins a new execution attempt. At most one execution
// may be in flight at a time.
func (s *SuiteReport) RecordExecutionStart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.executionStarts) != len(s.executionEnds) {
		return fmt.Errorf("execution %d of suite %s is still in flight", len(s.executionStarts), s.name)
	}
	s.executionStarts = append(s.executionStarts, time.Now())
	s.current = nil
	return nil
}

// RecordExecutionEnd ends the in-flight execution attempt, combining its
// per-job reports into a single finished report.
func (s *SuiteReport) RecordExecutionEnd() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.executionStarts) != len(s.executionEnds)+1 {
		return fmt.Errorf("suite %s has no execution in flight", s.name)
	}
	s.executionEnds = append(s.executionEnds, time.Now())

	infos := make([]*Info, 0, len(s.current))
	for _, tr := range s.current {
		infos = append(infos, tr.Info())
	}
	s.executions = append(s.executions, Combine(infos))
	s.current = nil
	return nil
}

// CreateTestReport registers a per-job report with the in-flight execution
// and returns it.
func (s *SuiteReport) CreateTestReport(jobLogger log.Logger, options types.SuiteOptions, files *logging.FileLogger) *TestReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr := NewTestReport(jobLogger, options, files)
	s.current = append(s.current, tr)
	return tr
}

// CombinedReport merges all finished executions into one report.
func (s *SuiteReport) CombinedReport() *Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Combine(s.executions)
}

// SetSuccess resolves the return code from the recorded outcomes: zero when
// every test in every execution passed, the test-failure code otherwise.
func (s *SuiteReport) SetSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if Combine(s.executions).WasSuccessful() {
		s.returnCode = exitcodes.Success
	} else {
		s.returnCode = exitcodes.TestFailure
	}
}

// SetInterrupted marks the suite as cut short and records the return code.
func (s *SuiteReport) SetInterrupted(returnCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupted = true
	s.returnCode = returnCode
}

// SetError records a harness-level error return code.
func (s *SuiteReport) SetError(returnCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.returnCode = returnCode
}

// Summary aggregates the counters of all finished executions.
func (s *SuiteReport) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum Summary
	for n := range s.executions {
		sum = sum.Add(s.executionSummaryLocked(n))
	}
	return sum
}

// LastExecutionSummary returns the counters of the most recent finished
// execution.
func (s *SuiteReport) LastExecutionSummary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.executions) == 0 {
		return Summary{}
	}
	return s.executionSummaryLocked(len(s.executions) - 1)
}

// NumExecutions returns how many execution attempts have finished.
func (s *SuiteReport) NumExecutions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.executions)
}

func (s *SuiteReport) executionSummaryLocked(n int) Summary {
	info := s.executions[n]
	return Summary{
		NumRun:       info.NumRun(),
		NumSucceeded: info.NumSucceeded,
		NumFailed:    info.NumFailed + info.NumInterrupted,
		NumErrored:   info.NumErrored,
		NumSkipped:   s.expectedTests + info.NumDynamic - info.NumRun(),
		Elapsed:      s.executionEnds[n].Sub(s.executionStarts[n]),
	}
}

// HarnessReport aggregates the suite reports of one harness invocation.
type HarnessReport struct {
	mu sync.Mutex

	start  time.Time
	end    time.Time
	suites []*SuiteReport
}

// NewHarnessReport returns an empty HarnessReport.
func NewHarnessReport() *HarnessReport {
	return &HarnessReport{}
}

// RecordStart records the start of the invocation.
func (h *HarnessReport) RecordStart() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.start = time.Now()
}

// RecordEnd records the end of the invocation.
func (h *HarnessReport) RecordEnd() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.end = time.Now()
}

// AddSuite registers a suite report with the invocation.
func (h *HarnessReport) AddSuite(s *SuiteReport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.suites = append(h.suites, s)
}

// Suites returns the registered suite reports in registration order.
func (h *HarnessReport) Suites() []*SuiteReport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*SuiteReport(nil), h.suites...)
}

// CombinedReport merges every execution of every suite into one report.
func (h *HarnessReport) CombinedReport() *Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	var infos []*Info
	for _, s := range h.suites {
		infos = append(infos, s.CombinedReport())
	}
	return Combine(infos)
}

// Summary renders a multi-line summary of all suites.
func (h *HarnessReport) Summary() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var b strings.Builder
	fmt.Fprintf(&b, "Summary of all suites: %d suites ran in %.2f seconds\n", len(h.suites), h.end.Sub(h.start).Seconds())
	for _, s := range h.suites {
		fmt.Fprintf(&b, "    %s: %s\n", s.Name(), s.Summary())
	}
	return b.String()
}
