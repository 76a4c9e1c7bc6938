package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbtestlabs/shoal/hook"
	"github.com/dbtestlabs/shoal/types"
)

func newQueue(jobs int, tests ...*fakeTest) *TestQueue {
	q := NewTestQueue()
	for _, tc := range tests {
		q.Put(tc)
	}
	for n := 0; n < jobs; n++ {
		q.Put(nil)
	}
	return q
}

func TestJobRunsAllTests(t *testing.T) {
	tests := []*fakeTest{{name: "a.sql"}, {name: "b.sql"}, {name: "c.sql"}}
	queue := newQueue(1, tests...)
	rep := newTestReport()
	coord := NewJobCoordinator()

	job := NewJob(discardLogger(), 0, newFakeFixture(), nil, rep, defaultOptions(), "core", "run-1")
	job.Run(queue, coord, false)

	require.True(t, queue.Join(time.Second))
	assert.False(t, coord.Interrupted())
	for _, tc := range tests {
		assert.Equal(t, 1, tc.timesRun(), tc.name)
	}
	info := rep.Info()
	assert.Equal(t, 3, info.NumSucceeded)
	assert.True(t, rep.WasSuccessful())
}

func TestJobsShareQueueExactlyOnce(t *testing.T) {
	tests := []*fakeTest{{name: "a.sql"}, {name: "b.sql"}, {name: "c.sql"}}
	queue := newQueue(2, tests...)
	coord := NewJobCoordinator()

	rep0 := newTestReport()
	rep1 := newTestReport()
	job0 := NewJob(discardLogger(), 0, newFakeFixture(), nil, rep0, defaultOptions(), "core", "run-1")
	job1 := NewJob(discardLogger(), 1, newFakeFixture(), nil, rep1, defaultOptions(), "core", "run-1")

	done := make(chan struct{})
	go func() {
		job0.Run(queue, coord, false)
		done <- struct{}{}
	}()
	go func() {
		job1.Run(queue, coord, false)
		done <- struct{}{}
	}()
	<-done
	<-done

	require.True(t, queue.Join(time.Second))
	// Every test ran exactly once across the two jobs.
	for _, tc := range tests {
		assert.Equal(t, 1, tc.timesRun(), tc.name)
	}
	assert.Equal(t, 3, rep0.Info().NumRun()+rep1.Info().NumRun())
}

func TestJobFailFast(t *testing.T) {
	tests := []*fakeTest{
		{name: "a.sql"},
		{name: "b.sql", fail: true},
		{name: "c.sql"},
		{name: "d.sql"},
		{name: "e.sql"},
	}
	queue := newQueue(1, tests...)
	rep := newTestReport()
	coord := NewJobCoordinator()

	opts := defaultOptions()
	opts.FailFast = true
	job := NewJob(discardLogger(), 0, newFakeFixture(), nil, rep, opts, "core", "run-1")
	job.Run(queue, coord, false)

	// The failure stops the job: two outcomes recorded, the rest untouched,
	// and the drained queue lets the join complete.
	assert.True(t, coord.Interrupted())
	require.True(t, queue.Join(time.Second))

	info := rep.Info()
	assert.Equal(t, 2, info.NumRun())
	assert.Equal(t, 1, info.NumSucceeded)
	assert.Equal(t, 1, info.NumFailed)
	for _, tc := range tests[2:] {
		assert.Equal(t, 0, tc.timesRun(), tc.name)
	}
}

func TestJobContinuesPastFailureWithoutFailFast(t *testing.T) {
	tests := []*fakeTest{
		{name: "a.sql", fail: true},
		{name: "b.sql"},
	}
	queue := newQueue(1, tests...)
	rep := newTestReport()
	coord := NewJobCoordinator()

	job := NewJob(discardLogger(), 0, newFakeFixture(), nil, rep, defaultOptions(), "core", "run-1")
	job.Run(queue, coord, false)

	assert.False(t, coord.Interrupted())
	info := rep.Info()
	assert.Equal(t, 2, info.NumRun())
	assert.Equal(t, 1, info.NumFailed)
	assert.Equal(t, 1, info.NumSucceeded)
}

func TestJobFixtureCrashRecordsError(t *testing.T) {
	fix := newFakeFixture()
	tests := []*fakeTest{
		{name: "a.sql", killFix: fix},
		{name: "b.sql"},
	}
	queue := newQueue(1, tests...)
	rep := newTestReport()
	coord := NewJobCoordinator()

	job := NewJob(discardLogger(), 0, fix, nil, rep, defaultOptions(), "core", "run-1")
	job.Run(queue, coord, false)

	assert.True(t, coord.Interrupted())
	require.True(t, queue.Join(time.Second))

	// The passing outcome was downgraded to an error with the crash code.
	info, err := rep.GetByID("a.sql")
	require.NoError(t, err)
	assert.Equal(t, types.TestStatusError, info.Status)
	assert.Equal(t, types.ReturnCodeCrash, info.ReturnCode)
	assert.Equal(t, 0, tests[1].timesRun())
}

func TestJobHookOrder(t *testing.T) {
	rec := &callRecorder{}
	hooks := []hook.Hook{
		&fakeHook{name: "H1", recorder: rec},
		&fakeHook{name: "H2", recorder: rec},
	}
	queue := newQueue(1, &fakeTest{name: "a.sql"})
	rep := newTestReport()
	coord := NewJobCoordinator()

	job := NewJob(discardLogger(), 0, newFakeFixture(), hooks, rep, defaultOptions(), "core", "run-1")
	job.Run(queue, coord, false)

	assert.Equal(t, []string{
		"H1.BeforeSuite",
		"H2.BeforeSuite",
		"H1.BeforeTest.a.sql",
		"H2.BeforeTest.a.sql",
		"H1.AfterTest.a.sql",
		"H2.AfterTest.a.sql",
		"H1.AfterSuite",
		"H2.AfterSuite",
	}, rec.recorded())
}

func TestJobBeforeTestHookFailure(t *testing.T) {
	rec := &callRecorder{}
	hooks := []hook.Hook{
		&fakeHook{name: "H1", recorder: rec, beforeTestErr: types.NewTestFailure("precondition violated")},
		&fakeHook{name: "H2", recorder: rec},
	}
	tests := []*fakeTest{{name: "a.sql"}, {name: "b.sql"}}
	queue := newQueue(1, tests...)
	rep := newTestReport()
	coord := NewJobCoordinator()

	job := NewJob(discardLogger(), 0, newFakeFixture(), hooks, rep, defaultOptions(), "core", "run-1")
	job.Run(queue, coord, false)

	// The test never ran but has a complete failed outcome, and the second
	// hook's before-test point was skipped. The job kept going.
	assert.False(t, coord.Interrupted())
	assert.Equal(t, 0, tests[0].timesRun())

	info, err := rep.GetByID("a.sql")
	require.NoError(t, err)
	assert.Equal(t, types.TestStatusFail, info.Status)
	assert.Equal(t, 1, info.ReturnCode)
	assert.True(t, info.Stopped())

	calls := rec.recorded()
	assert.NotContains(t, calls, "H2.BeforeTest.a.sql")
	assert.Contains(t, calls, "H1.BeforeTest.b.sql")
}

func TestJobBeforeTestHookServerFailureStopsJob(t *testing.T) {
	rec := &callRecorder{}
	hooks := []hook.Hook{
		&fakeHook{name: "H1", recorder: rec, beforeTestErr: types.NewServerFailure("primary is gone")},
	}
	tests := []*fakeTest{{name: "a.sql"}, {name: "b.sql"}}
	queue := newQueue(1, tests...)
	rep := newTestReport()
	coord := NewJobCoordinator()

	job := NewJob(discardLogger(), 0, newFakeFixture(), hooks, rep, defaultOptions(), "core", "run-1")
	job.Run(queue, coord, false)

	assert.True(t, coord.Interrupted())
	info, err := rep.GetByID("a.sql")
	require.NoError(t, err)
	assert.Equal(t, types.TestStatusFail, info.Status)
	assert.Equal(t, types.ReturnCodeCrash, info.ReturnCode)
	assert.Equal(t, 0, tests[1].timesRun())
}

func TestJobAfterTestHookFailureUpdatesOutcome(t *testing.T) {
	rec := &callRecorder{}
	hooks := []hook.Hook{
		&fakeHook{name: "H1", recorder: rec, afterTestErr: types.NewTestFailure("data mismatch")},
	}
	tests := []*fakeTest{{name: "a.sql"}, {name: "b.sql"}}
	queue := newQueue(1, tests...)
	rep := newTestReport()
	coord := NewJobCoordinator()

	job := NewJob(discardLogger(), 0, newFakeFixture(), hooks, rep, defaultOptions(), "core", "run-1")
	job.Run(queue, coord, false)

	// The test itself passed; the hook downgraded it afterwards.
	assert.False(t, coord.Interrupted())
	info, err := rep.GetByID("a.sql")
	require.NoError(t, err)
	assert.Equal(t, types.TestStatusFail, info.Status)
	assert.Equal(t, 1, info.ReturnCode)
	assert.Equal(t, 1, tests[1].timesRun())
}

func TestJobAfterSuiteHooksRunAfterStop(t *testing.T) {
	rec := &callRecorder{}
	hooks := []hook.Hook{
		&fakeHook{name: "H1", recorder: rec},
	}
	queue := newQueue(1, &fakeTest{name: "a.sql", fail: true})
	rep := newTestReport()
	coord := NewJobCoordinator()

	opts := defaultOptions()
	opts.FailFast = true
	job := NewJob(discardLogger(), 0, newFakeFixture(), hooks, rep, opts, "core", "run-1")
	job.Run(queue, coord, false)

	assert.True(t, coord.Interrupted())
	assert.Contains(t, rec.recorded(), "H1.AfterSuite")
}

func TestJobTearsDownFixtureWhenAsked(t *testing.T) {
	fix := newFakeFixture()
	queue := newQueue(1, &fakeTest{name: "a.sql"})
	rep := newTestReport()
	coord := NewJobCoordinator()

	job := NewJob(discardLogger(), 0, fix, nil, rep, defaultOptions(), "core", "run-1")
	job.Run(queue, coord, true)

	assert.Equal(t, 1, fix.numTeardowns())
	assert.False(t, fix.IsRunning())
}

func TestJobStopsClaimingWhenInterrupted(t *testing.T) {
	tests := []*fakeTest{{name: "a.sql"}}
	queue := newQueue(1, tests...)
	rep := newTestReport()
	coord := NewJobCoordinator()
	coord.SetInterrupted()

	job := NewJob(discardLogger(), 0, newFakeFixture(), nil, rep, defaultOptions(), "core", "run-1")
	job.Run(queue, coord, false)

	assert.Equal(t, 0, tests[0].timesRun())
	assert.Equal(t, 0, rep.Info().NumRun())

	// The unclaimed items were drained, so the producer's join does not wait
	// on them.
	assert.True(t, queue.Join(time.Second))
}
