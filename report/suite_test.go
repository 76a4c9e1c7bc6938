package report

import (
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbtestlabs/shoal/exitcodes"
	"github.com/dbtestlabs/shoal/types"
)

func discardLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func runPassingTest(t *testing.T, tr *TestReport, id string) {
	t.Helper()
	_, err := tr.StartTest(id, false)
	require.NoError(t, err)
	require.NoError(t, tr.PassTest(id, 0))
	_, err = tr.StopTest(id)
	require.NoError(t, err)
}

func runFailingTest(t *testing.T, tr *TestReport, id string) {
	t.Helper()
	_, err := tr.StartTest(id, false)
	require.NoError(t, err)
	require.NoError(t, tr.FailTest(id, 1))
	_, err = tr.StopTest(id)
	require.NoError(t, err)
}

func TestSuiteReportSingleExecution(t *testing.T) {
	s := NewSuiteReport("core", 3)
	s.RecordSuiteStart()

	require.NoError(t, s.RecordExecutionStart())
	tr := s.CreateTestReport(discardLogger(), types.DefaultSuiteOptions(), nil)
	runPassingTest(t, tr, "a.sql")
	runPassingTest(t, tr, "b.sql")
	runFailingTest(t, tr, "c.sql")
	require.NoError(t, s.RecordExecutionEnd())
	s.RecordSuiteEnd()

	s.SetSuccess()
	assert.Equal(t, exitcodes.TestFailure, s.ReturnCode())
	assert.False(t, s.Interrupted())
	assert.Equal(t, 1, s.NumExecutions())

	sum := s.Summary()
	assert.Equal(t, 3, sum.NumRun)
	assert.Equal(t, 2, sum.NumSucceeded)
	assert.Equal(t, 1, sum.NumFailed)
	assert.Equal(t, 0, sum.NumSkipped)
}

func TestSuiteReportAllPassed(t *testing.T) {
	s := NewSuiteReport("core", 1)
	require.NoError(t, s.RecordExecutionStart())
	tr := s.CreateTestReport(discardLogger(), types.DefaultSuiteOptions(), nil)
	runPassingTest(t, tr, "a.sql")
	require.NoError(t, s.RecordExecutionEnd())

	s.SetSuccess()
	assert.Equal(t, exitcodes.Success, s.ReturnCode())
}

func TestSuiteReportOverlappingExecutions(t *testing.T) {
	s := NewSuiteReport("core", 1)
	require.NoError(t, s.RecordExecutionStart())
	err := s.RecordExecutionStart()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still in flight")

	require.NoError(t, s.RecordExecutionEnd())
	err = s.RecordExecutionEnd()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no execution in flight")
}

func TestSuiteReportRepeatedExecutions(t *testing.T) {
	s := NewSuiteReport("core", 2)
	for n := 0; n < 3; n++ {
		require.NoError(t, s.RecordExecutionStart())
		tr := s.CreateTestReport(discardLogger(), types.DefaultSuiteOptions(), nil)
		runPassingTest(t, tr, "a.sql")
		runPassingTest(t, tr, "b.sql")
		require.NoError(t, s.RecordExecutionEnd())
	}

	assert.Equal(t, 3, s.NumExecutions())

	// The combined report holds every execution's outcomes and the overall
	// summary is the sum of the per-execution summaries.
	combined := s.CombinedReport()
	assert.Equal(t, 6, combined.NumRun())
	assert.Equal(t, 6, combined.NumSucceeded)

	sum := s.Summary()
	assert.Equal(t, 6, sum.NumRun)
	assert.Equal(t, 6, sum.NumSucceeded)

	last := s.LastExecutionSummary()
	assert.Equal(t, 2, last.NumRun)
}

func TestSuiteReportSkippedCounts(t *testing.T) {
	// Five tests were selected but the execution stopped after two of them.
	s := NewSuiteReport("core", 5)
	require.NoError(t, s.RecordExecutionStart())
	tr := s.CreateTestReport(discardLogger(), types.DefaultSuiteOptions(), nil)
	runPassingTest(t, tr, "a.sql")
	runFailingTest(t, tr, "b.sql")
	require.NoError(t, s.RecordExecutionEnd())

	sum := s.LastExecutionSummary()
	assert.Equal(t, 2, sum.NumRun)
	assert.Equal(t, 3, sum.NumSkipped)
}

func TestSuiteReportInterruptedFoldsIntoFailed(t *testing.T) {
	s := NewSuiteReport("core", 1)
	require.NoError(t, s.RecordExecutionStart())
	tr := s.CreateTestReport(discardLogger(), types.DefaultSuiteOptions(), nil)
	_, err := tr.StartTest("a.sql", false)
	require.NoError(t, err)
	// The test never reports an outcome; combining finalizes it as a timeout.
	require.NoError(t, s.RecordExecutionEnd())

	sum := s.LastExecutionSummary()
	assert.Equal(t, 1, sum.NumRun)
	assert.Equal(t, 1, sum.NumFailed)
	assert.Equal(t, 0, sum.NumSkipped)
}

func TestSuiteReportSetInterrupted(t *testing.T) {
	s := NewSuiteReport("core", 1)
	s.SetInterrupted(exitcodes.Interrupted)
	assert.True(t, s.Interrupted())
	assert.Equal(t, exitcodes.Interrupted, s.ReturnCode())
}

func TestSummaryString(t *testing.T) {
	assert.Equal(t, "No tests ran.", Summary{}.String())

	s := Summary{NumRun: 4, NumSucceeded: 3, NumFailed: 1}
	str := s.String()
	assert.Contains(t, str, "4 test(s) ran")
	assert.Contains(t, str, "3 succeeded")
	assert.Contains(t, str, "1 failed")
}

func TestHarnessReport(t *testing.T) {
	h := NewHarnessReport()
	h.RecordStart()

	s1 := NewSuiteReport("core", 1)
	require.NoError(t, s1.RecordExecutionStart())
	tr := s1.CreateTestReport(discardLogger(), types.DefaultSuiteOptions(), nil)
	runPassingTest(t, tr, "a.sql")
	require.NoError(t, s1.RecordExecutionEnd())
	h.AddSuite(s1)

	s2 := NewSuiteReport("replication", 1)
	require.NoError(t, s2.RecordExecutionStart())
	tr = s2.CreateTestReport(discardLogger(), types.DefaultSuiteOptions(), nil)
	runFailingTest(t, tr, "b.sql")
	require.NoError(t, s2.RecordExecutionEnd())
	h.AddSuite(s2)

	h.RecordEnd()

	require.Len(t, h.Suites(), 2)
	combined := h.CombinedReport()
	assert.Equal(t, 2, combined.NumRun())
	assert.Equal(t, 1, combined.NumFailed)

	summary := h.Summary()
	assert.Contains(t, summary, "2 suites ran")
	assert.Contains(t, summary, "core:")
	assert.Contains(t, summary, "replication:")
}
