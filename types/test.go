package types

// TestStatus represents the possible states of a test execution
type TestStatus string

const (
	// TestStatusPending is the state of a test that has started but not yet
	// reported an outcome. Pending tests are finalized as TestStatusTimeout
	// when their report is combined.
	TestStatusPending TestStatus = "pending"
	TestStatusPass    TestStatus = "pass"
	TestStatusFail    TestStatus = "fail"
	TestStatusError   TestStatus = "error"
	TestStatusTimeout TestStatus = "timeout"
)

// Externally reported statuses. Errors and timeouts are folded into "fail"
// for external reporting; the ReportFailureStatus suite option may silence
// non-dynamic failures to "silentfail".
const (
	ExternalStatusPass       = "success"
	ExternalStatusFail       = "fail"
	ExternalStatusSilentFail = "silentfail"
)

// ReturnCodeTimeout is the reserved sentinel return code assigned to tests
// that were still pending when their report was finalized.
const ReturnCodeTimeout = -2

// ReturnCodeCrash is the return code recorded for a test whose fixture was
// found dead after the test ran, and for hook-inflicted server failures.
const ReturnCodeCrash = 2
