package hook

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dbtestlabs/shoal/fixture"
	"github.com/dbtestlabs/shoal/report"
	"github.com/dbtestlabs/shoal/testcase"
	"github.com/dbtestlabs/shoal/types"
)

// DynamicTestKind tags the test cases hooks synthesize.
const DynamicTestKind = "hook_test"

// TestCaseHook runs its behavior as a dynamic test case after every real
// test, so the behavior's outcome shows up in the report like any other
// test. The synthesized case is named "<base-test-id>:<hook-class-name>"
// and is built fresh for every call, so no state leaks between tests.
//
// Embedding hooks supply Body, the behavior to run, and may supply
// ShouldRun to skip some tests.
type TestCaseHook struct {
	NopHook

	logger  log.Logger
	class   string
	fixture fixture.Fixture

	// ShouldRun decides per test whether the hook fires. Nil means always.
	ShouldRun func(tc testcase.TestCase) bool

	// Body is the behavior run as the dynamic test's body.
	Body func(logger log.Logger) error
}

// NewTestCaseHook returns a TestCaseHook for an embedding hook class.
func NewTestCaseHook(logger log.Logger, class string, fix fixture.Fixture) TestCaseHook {
	return TestCaseHook{logger: logger, class: class, fixture: fix}
}

// Name returns the hook's class name.
func (h *TestCaseHook) Name() string { return h.class }

// Logger returns the hook's logger.
func (h *TestCaseHook) Logger() log.Logger { return h.logger }

// Fixture returns the fixture the hook is bound to.
func (h *TestCaseHook) Fixture() fixture.Fixture { return h.fixture }

// AfterTest synthesizes the dynamic test case and runs it through the
// ordinary test machinery. A non-zero return code from the dynamic case
// stops the owning job.
func (h *TestCaseHook) AfterTest(tc testcase.TestCase, rep *report.TestReport) error {
	if h.ShouldRun != nil && !h.ShouldRun(tc) {
		return nil
	}

	name := fmt.Sprintf("%s:%s", tc.Name(), h.class)
	dynamic := testcase.NewDynamic(DynamicTestKind, name, h.Body)
	if err := dynamic.Configure(h.fixture, 1); err != nil {
		return err
	}
	if err := dynamic.Run(h.logger, rep); err != nil {
		return err
	}
	if rc := dynamic.ReturnCode(); rc != 0 {
		return types.NewStopExecution("%s returned %d", name, rc)
	}
	return nil
}
