package runner

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/dbtestlabs/shoal/fixture"
	"github.com/dbtestlabs/shoal/hook"
	"github.com/dbtestlabs/shoal/metrics"
	"github.com/dbtestlabs/shoal/report"
	"github.com/dbtestlabs/shoal/testcase"
	"github.com/dbtestlabs/shoal/types"
)

// Job is one worker of a suite execution. It exclusively owns one fixture
// and one ordered hook list and drains the shared queue, running each
// claimed test through the hook pipeline. Within a job tests run strictly
// sequentially.
type Job struct {
	logger  log.Logger
	jobNum  int
	fixture fixture.Fixture
	hooks   []hook.Hook
	report  *report.TestReport
	options types.SuiteOptions

	suiteName string
	runID     string
}

// NewJob returns a worker bound to the given fixture and hooks.
func NewJob(logger log.Logger, jobNum int, fix fixture.Fixture, hooks []hook.Hook,
	rep *report.TestReport, options types.SuiteOptions, suiteName, runID string) *Job {
	return &Job{
		logger:    logger.New("job", jobNum),
		jobNum:    jobNum,
		fixture:   fix,
		hooks:     hooks,
		report:    rep,
		options:   options,
		suiteName: suiteName,
		runID:     runID,
	}
}

// Report returns the job's report.
func (j *Job) Report() *report.TestReport { return j.report }

// Fixture returns the fixture the job owns.
func (j *Job) Fixture() fixture.Fixture { return j.fixture }

// Run drains the queue until a sentinel, an interruption or a fatal error
// ends the loop. A fatal error interrupts the coordinator and drains the
// queue so the producer's join unblocks; it never propagates past the job.
// With teardown set, the fixture is torn down once the loop ends.
func (j *Job) Run(queue *TestQueue, coord *JobCoordinator, teardown bool) {
	defer func() {
		if teardown {
			j.teardownFixture(coord)
		}
	}()

	if err := j.run(queue, coord); err != nil {
		if types.IsStopExecution(err) {
			j.logger.Warn("Stopping the execution of remaining tests", "reason", err)
		} else {
			j.logger.Error("Encountered an unexpected error, stopping", "error", err)
		}
		coord.SetInterrupted()
		queue.Drain()
	}
}

func (j *Job) run(queue *TestQueue, coord *JobCoordinator) (err error) {
	if err := j.runSuiteHooks("before", hook.Hook.BeforeSuite); err != nil {
		return err
	}
	// The after-suite hooks run exactly once however the loop ends, so
	// hooks with background activity always get to stop it.
	defer func() {
		if aerr := j.runSuiteHooks("after", hook.Hook.AfterSuite); aerr != nil && err == nil {
			err = aerr
		}
	}()

	for {
		if coord.Interrupted() {
			j.logger.Debug("Interrupt flag is set, not claiming further tests")
			// The interrupt may predate this queue, leaving its items and
			// sentinels unclaimed; draining here keeps the producer's join
			// from waiting on them.
			queue.Drain()
			return nil
		}
		tc, ok := queue.Get()
		if !ok {
			return nil
		}
		if tc == nil {
			// Shutdown sentinel. Marked done to keep the join count
			// balanced.
			queue.TaskDone()
			return nil
		}
		err := j.executeTest(tc)
		queue.TaskDone()
		j.recordTestMetric(tc)
		if err != nil {
			return err
		}
	}
}

// executeTest runs one test through the full pipeline: configure, before
// hooks, the test itself, fixture liveness check, after hooks.
func (j *Job) executeTest(tc testcase.TestCase) error {
	if err := tc.Configure(j.fixture, j.options.NumClientsPerFixture); err != nil {
		return err
	}

	if err := j.runHooksBeforeTest(tc); err != nil {
		return err
	}

	if err := tc.Run(j.logger, j.report); err != nil {
		return err
	}

	if j.options.FailFast && !j.report.WasSuccessful() {
		return types.NewStopExecution("%s failed and the suite fails fast", tc.ShortDescription())
	}

	if !j.fixture.IsRunning() {
		metrics.RecordFixtureFailure(j.suiteName, j.fixture.Class())
		if err := j.report.UpdateError(tc.Name(), types.ReturnCodeCrash); err != nil {
			return err
		}
		return types.NewStopExecution("%s marked as a failure because the fixture crashed during the test", tc.ShortDescription())
	}

	return j.runHooksAfterTest(tc)
}

// runHooksBeforeTest runs the before-test point of every hook in configured
// order. The test has not started yet, so a hook failure records a
// synthesized complete attempt: a test failure records a failed outcome and
// skips the remaining hooks, a server failure records a failed outcome with
// the crash return code and stops the job, any other error records an
// errored outcome and stops the job.
func (j *Job) runHooksBeforeTest(tc testcase.TestCase) error {
	for _, h := range j.hooks {
		err := h.BeforeTest(tc, j.report)
		if err == nil {
			continue
		}
		switch {
		case types.IsStopExecution(err):
			return err

		case types.IsServerFailure(err):
			j.logger.Error("Test marked as a failure by a hook's before-test", "hook", h.Name(), "test", tc.Name(), "error", err)
			if rerr := j.report.StartFailStop(tc.Name(), tc.Dynamic(), types.ReturnCodeCrash); rerr != nil {
				return rerr
			}
			return types.NewStopExecution("before-test of hook %s failed", h.Name())

		case types.IsTestFailure(err):
			j.logger.Warn("Test marked as a failure by a hook's before-test", "hook", h.Name(), "test", tc.Name(), "error", err)
			if rerr := j.report.StartFailStop(tc.Name(), tc.Dynamic(), 1); rerr != nil {
				return rerr
			}
			if j.options.FailFast {
				return types.NewStopExecution("before-test of hook %s failed", h.Name())
			}
			// Remaining hooks of the point are skipped, the job goes on.
			return nil

		default:
			j.logger.Error("Hook encountered an unexpected error before a test", "hook", h.Name(), "test", tc.Name(), "error", err)
			if rerr := j.report.StartErrorStop(tc.Name(), tc.Dynamic(), types.ReturnCodeCrash); rerr != nil {
				return rerr
			}
			return err
		}
	}
	return nil
}

// runHooksAfterTest runs the after-test point of every hook in configured
// order. The test already has an outcome, so a hook failure updates it in
// place with the same classification runHooksBeforeTest applies.
func (j *Job) runHooksAfterTest(tc testcase.TestCase) error {
	for _, h := range j.hooks {
		err := h.AfterTest(tc, j.report)
		if err == nil {
			continue
		}
		switch {
		case types.IsStopExecution(err):
			return err

		case types.IsServerFailure(err):
			j.logger.Error("Test marked as a failure by a hook's after-test", "hook", h.Name(), "test", tc.Name(), "error", err)
			if rerr := j.report.UpdateFailure(tc.Name(), types.ReturnCodeCrash); rerr != nil {
				return rerr
			}
			return types.NewStopExecution("after-test of hook %s failed", h.Name())

		case types.IsTestFailure(err):
			j.logger.Warn("Test marked as a failure by a hook's after-test", "hook", h.Name(), "test", tc.Name(), "error", err)
			if rerr := j.report.UpdateFailure(tc.Name(), 1); rerr != nil {
				return rerr
			}
			if j.options.FailFast {
				return types.NewStopExecution("after-test of hook %s failed", h.Name())
			}
			return nil

		default:
			j.logger.Error("Hook encountered an unexpected error after a test", "hook", h.Name(), "test", tc.Name(), "error", err)
			if rerr := j.report.UpdateError(tc.Name(), types.ReturnCodeCrash); rerr != nil {
				return rerr
			}
			return err
		}
	}
	return nil
}

// runSuiteHooks runs one suite-level phase of every hook in configured
// order.
func (j *Job) runSuiteHooks(phase string, call func(hook.Hook, *report.TestReport) error) error {
	for _, h := range j.hooks {
		if err := call(h, j.report); err != nil {
			j.logger.Error("Suite hook failed", "hook", h.Name(), "phase", phase, "error", err)
			return err
		}
	}
	return nil
}

// teardownFixture tears the job's fixture down at the end of the final
// execution, surfacing a failure through the coordinator.
func (j *Job) teardownFixture(coord *JobCoordinator) {
	j.logger.Info("Tearing down the fixture")
	if err := j.fixture.Teardown(true); err != nil {
		j.logger.Error("Failed to tear down the fixture", "error", err)
		coord.SetTeardownError()
		return
	}
	j.logger.Info("Fixture torn down")
}

// recordTestMetric publishes the claimed test's resolved status.
func (j *Job) recordTestMetric(tc testcase.TestCase) {
	info, err := j.report.GetByID(tc.Name())
	if err != nil {
		return
	}
	metrics.RecordTest(j.suiteName, j.runID, tc.Kind(), info.Status)
}
