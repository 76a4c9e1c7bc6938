package runner

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dbtestlabs/shoal/fixture"
	"github.com/dbtestlabs/shoal/report"
	"github.com/dbtestlabs/shoal/testcase"
	"github.com/dbtestlabs/shoal/types"
)

func discardLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

// fakeTest is a scripted test case. It records its outcome through the
// report the way real kinds do: a scripted failure is swallowed after being
// recorded, any other scripted error propagates.
type fakeTest struct {
	name   string
	fail   bool
	runErr error
	// killFix, when set, is killed as the test's last act, simulating a
	// deployment crash surfaced by the post-test liveness probe.
	killFix *fakeFixture

	mu         sync.Mutex
	fix        fixture.Fixture
	configured bool
	runs       int
}

func (f *fakeTest) Kind() string  { return "fake_test" }
func (f *fakeTest) Name() string  { return f.name }
func (f *fakeTest) Dynamic() bool { return false }

func (f *fakeTest) Configure(fix fixture.Fixture, numClients int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.configured {
		return fmt.Errorf("test %s was already configured", f.name)
	}
	f.configured = true
	f.fix = fix
	return nil
}

func (f *fakeTest) Run(jobLogger log.Logger, rep *report.TestReport) error {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()

	if _, err := rep.StartTest(f.name, false); err != nil {
		return err
	}

	var recErr error
	result := f.runErr
	switch {
	case result != nil:
		recErr = rep.ErrorTest(f.name, 2)
	case f.fail:
		recErr = rep.FailTest(f.name, 1)
	default:
		recErr = rep.PassTest(f.name, 0)
	}
	if recErr != nil {
		return recErr
	}
	if _, err := rep.StopTest(f.name); err != nil {
		return err
	}
	if f.killFix != nil {
		f.killFix.kill()
	}
	return result
}

func (f *fakeTest) Reset()                   {}
func (f *fakeTest) ReturnCode() int          { return 0 }
func (f *fakeTest) Failure() error           { return nil }
func (f *fakeTest) ShortDescription() string { return "fake_test " + f.name }

func (f *fakeTest) timesRun() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

// fakeFixture is a scripted deployment with a controllable liveness probe.
type fakeFixture struct {
	mu        sync.Mutex
	running   bool
	setups    int
	teardowns int

	setupErr error
	readyErr error
}

func newFakeFixture() *fakeFixture {
	return &fakeFixture{running: true}
}

func (f *fakeFixture) Class() string { return "FakeFixture" }

func (f *fakeFixture) Setup() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setups++
	if f.setupErr != nil {
		return f.setupErr
	}
	f.running = true
	return nil
}

func (f *fakeFixture) AwaitReady() error { return f.readyErr }

func (f *fakeFixture) Teardown(finished bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teardowns++
	f.running = false
	return nil
}

func (f *fakeFixture) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeFixture) ConnString() string { return "postgres://stub" }

func (f *fakeFixture) kill() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
}

func (f *fakeFixture) numTeardowns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.teardowns
}

// callRecorder collects the ordered hook invocations of a job.
type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *callRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// fakeHook reports its invocations to a shared recorder and fails on
// scripted phases.
type fakeHook struct {
	name     string
	recorder *callRecorder

	beforeSuiteErr error
	afterSuiteErr  error
	beforeTestErr  error
	afterTestErr   error
}

func (h *fakeHook) Name() string { return h.name }

func (h *fakeHook) BeforeSuite(rep *report.TestReport) error {
	h.recorder.record(h.name + ".BeforeSuite")
	return h.beforeSuiteErr
}

func (h *fakeHook) AfterSuite(rep *report.TestReport) error {
	h.recorder.record(h.name + ".AfterSuite")
	return h.afterSuiteErr
}

func (h *fakeHook) BeforeTest(tc testcase.TestCase, rep *report.TestReport) error {
	h.recorder.record(h.name + ".BeforeTest." + tc.Name())
	return h.beforeTestErr
}

func (h *fakeHook) AfterTest(tc testcase.TestCase, rep *report.TestReport) error {
	h.recorder.record(h.name + ".AfterTest." + tc.Name())
	return h.afterTestErr
}

func defaultOptions() types.SuiteOptions {
	return types.DefaultSuiteOptions()
}

func newTestReport() *report.TestReport {
	return report.NewTestReport(discardLogger(), defaultOptions(), nil)
}
