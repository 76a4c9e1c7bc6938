package runner

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/dbtestlabs/shoal/exitcodes"
	"github.com/dbtestlabs/shoal/fixture"
	"github.com/dbtestlabs/shoal/hook"
	"github.com/dbtestlabs/shoal/logging"
	"github.com/dbtestlabs/shoal/report"
	"github.com/dbtestlabs/shoal/suite"
	"github.com/dbtestlabs/shoal/types"
)

// joinTimeout is the ceiling on one wait for the queue to empty. Effectively
// unbounded but not infinite; the wait loops until the queue reports done.
const joinTimeout = 24 * time.Hour

// worker is the per-job state that survives across repeat executions: the
// fixture stays warm between executions, the hooks keep their counters.
type worker struct {
	jobNum  int
	logger  log.Logger
	fixture fixture.Fixture
	hooks   []hook.Hook
}

// SuiteExecutor runs one suite: it builds a fixture and hook set per job,
// brings all fixtures up, runs the configured number of executions against
// them and tears the fixtures down after the last one.
type SuiteExecutor struct {
	logger      log.Logger
	testSuite   *suite.Suite
	suiteReport *report.SuiteReport
	files       *logging.FileLogger
	runID       string

	coordinator *JobCoordinator
	workers     []*worker

	mu    sync.Mutex
	queue *TestQueue
}

// NewSuiteExecutor prepares an executor for the given suite. The fixture
// class is overridden to the no-op variant when the options carry an
// external connection string. Port allocations are reset so fixtures of an
// earlier suite's run can have their ports reused.
func NewSuiteExecutor(logger log.Logger, s *suite.Suite, suiteReport *report.SuiteReport,
	files *logging.FileLogger, runID string) (*SuiteExecutor, error) {
	e := &SuiteExecutor{
		logger:      logger.New("suite", s.DisplayName()),
		testSuite:   s,
		suiteReport: suiteReport,
		files:       files,
		runID:       runID,
		coordinator: NewJobCoordinator(),
	}

	fixture.ResetPorts()
	if err := e.makeWorkers(); err != nil {
		return nil, err
	}
	return e, nil
}

// makeWorkers builds one fixture and hook set per job. Only as many jobs as
// there are tests are created, so no idle worker ever holds a fixture.
func (e *SuiteExecutor) makeWorkers() error {
	opts := e.testSuite.Options()

	numJobs := opts.NumJobs
	if numTests := e.testSuite.NumTests(); numTests < numJobs {
		e.logger.Info("Reducing the number of jobs since there are fewer tests",
			"requested", numJobs, "tests", numTests)
		numJobs = numTests
	}

	fixtureClass, err := e.testSuite.FixtureClass()
	if err != nil {
		return err
	}
	fixtureOpts := e.testSuite.FixtureOptions()
	if opts.ConnString != "" {
		// An externally-provided deployment replaces whatever the suite
		// configures.
		fixtureClass = fixture.NoopFixtureClass
		fixtureOpts = map[string]any{"conn_string": opts.ConnString}
	}

	for jobNum := 0; jobNum < numJobs; jobNum++ {
		jobLogger := e.logger.New("job", jobNum)
		fix, err := fixture.New(fixtureClass, jobLogger, jobNum, fixtureOpts)
		if err != nil {
			return err
		}
		hooks, err := e.makeHooks(jobLogger, fix)
		if err != nil {
			return err
		}
		e.workers = append(e.workers, &worker{
			jobNum:  jobNum,
			logger:  jobLogger,
			fixture: fix,
			hooks:   hooks,
		})
	}
	return nil
}

func (e *SuiteExecutor) makeHooks(jobLogger log.Logger, fix fixture.Fixture) ([]hook.Hook, error) {
	var hooks []hook.Hook
	for _, config := range e.testSuite.HookConfigs() {
		class, err := types.ClassName(config)
		if err != nil {
			return nil, err
		}
		h, err := hook.New(class, jobLogger, fix, types.ClassOptions(config))
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, h)
	}
	return hooks, nil
}

// Run executes the whole suite and resolves the suite report's return code:
// success when every execution completed, interrupted with the signal exit
// code on a coordinator interruption, the I/O exit code on an I/O error and
// the internal-error exit code on a fixture or unexpected error.
func (e *SuiteExecutor) Run() {
	err := e.run()
	switch {
	case err == nil:
		e.suiteReport.SetSuccess()
	case types.IsUserInterrupt(err):
		e.logger.Warn("Suite execution stopping after user interrupt")
		e.suiteReport.SetInterrupted(exitcodes.Interrupted)
	case types.IsIOError(err):
		e.logger.Warn("Suite execution stopping after I/O error", "error", err)
		e.suiteReport.SetError(exitcodes.IOErr)
	case types.IsFixtureError(err):
		e.logger.Warn("Suite execution stopping after fixture error", "error", err)
		e.suiteReport.SetError(exitcodes.RuntimeErr)
	default:
		e.logger.Error("Encountered an error when running the suite",
			"suite", e.testSuite.DisplayName(), "kind", e.testSuite.TestKind(), "error", err)
		e.suiteReport.SetError(exitcodes.RuntimeErr)
	}
}

func (e *SuiteExecutor) run() error {
	e.logger.Info("Starting execution", "kind", e.testSuite.TestKind(), "tests", e.testSuite.NumTests(), "jobs", len(e.workers))

	if err := e.setupFixtures(); err != nil {
		return err
	}

	lastExecution := false
	defer func() {
		// An execution that ended early leaves fixtures up; the last
		// execution's jobs tear down their own.
		if !lastExecution {
			e.teardownFixtures()
		}
	}()

	for remaining := e.testSuite.Options().NumRepeats; remaining > 0; remaining-- {
		lastExecution = remaining == 1

		queue, err := e.makeTestQueue()
		if err != nil {
			return err
		}
		if err := e.suiteReport.RecordExecutionStart(); err != nil {
			return err
		}
		e.runExecution(queue, lastExecution)
		if err := e.suiteReport.RecordExecutionEnd(); err != nil {
			return err
		}
		if e.coordinator.Interrupted() {
			return types.ErrUserInterrupt
		}
		e.logger.Info("Execution finished", "summary", e.suiteReport.LastExecutionSummary().String())
	}
	return nil
}

// runExecution launches one job thread per worker against the queue and
// blocks until every queued item is done and every thread exited.
func (e *SuiteExecutor) runExecution(queue *TestQueue, teardown bool) {
	e.mu.Lock()
	e.queue = queue
	e.mu.Unlock()

	opts := e.testSuite.Options()
	var wg sync.WaitGroup
	for _, w := range e.workers {
		rep := e.suiteReport.CreateTestReport(w.logger, opts, e.files)
		job := NewJob(w.logger, w.jobNum, w.fixture, w.hooks, rep, opts, e.testSuite.DisplayName(), e.runID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			job.Run(queue, e.coordinator, teardown)
		}()
		e.staggerJobs()
	}

	for !queue.Join(joinTimeout) {
	}
	wg.Wait()
}

// staggerJobs spaces out job launches when enough jobs are configured for a
// thundering herd of fixture connections to matter.
func (e *SuiteExecutor) staggerJobs() {
	opts := e.testSuite.Options()
	if opts.StaggerJobs && len(e.workers) >= 5 {
		time.Sleep(opts.StaggerDelay)
	}
}

// makeTestQueue builds one execution's queue: fresh test cases, reshuffled
// when configured, plus one shutdown sentinel per job.
func (e *SuiteExecutor) makeTestQueue() (*TestQueue, error) {
	tests, err := e.testSuite.MakeTests()
	if err != nil {
		return nil, err
	}
	queue := NewTestQueue()
	for _, tc := range tests {
		queue.Put(tc)
	}
	for range e.workers {
		queue.Put(nil)
	}
	return queue, nil
}

// setupFixtures brings every worker's fixture up: all setups first, then all
// readiness waits, each phase batched across jobs so one slow fixture does
// not serialize the others. A failure aborts the suite without tearing down
// fixtures that never became ready.
func (e *SuiteExecutor) setupFixtures() error {
	var g errgroup.Group
	for _, w := range e.workers {
		g.Go(w.fixture.Setup)
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var ready errgroup.Group
	for _, w := range e.workers {
		ready.Go(w.fixture.AwaitReady)
	}
	return ready.Wait()
}

// teardownFixtures tears every fixture down at final cleanup.
func (e *SuiteExecutor) teardownFixtures() {
	for _, w := range e.workers {
		if err := w.fixture.Teardown(true); err != nil {
			w.logger.Error("Failed to tear down the fixture", "error", err)
			e.coordinator.SetTeardownError()
		}
	}
}

// Interrupt asks the running execution to stop: jobs stop claiming tests and
// the drained queue unblocks the join. In-flight tests run to completion.
func (e *SuiteExecutor) Interrupt() {
	e.coordinator.SetInterrupted()
	e.mu.Lock()
	queue := e.queue
	e.mu.Unlock()
	if queue != nil {
		queue.Drain()
	}
}
