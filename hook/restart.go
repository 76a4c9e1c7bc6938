package hook

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/dbtestlabs/shoal/fixture"
	"github.com/dbtestlabs/shoal/testcase"
	"github.com/dbtestlabs/shoal/types"
)

// RestartEveryNClass restarts the job's whole deployment after every N
// tests, exercising recovery from a cold start with existing data.
const RestartEveryNClass = "RestartEveryN"

const defaultRestartInterval = 20

func init() {
	Register(RestartEveryNClass, newRestartEveryN)
}

type restartOptions struct {
	// N is how many tests run between restarts.
	N int `yaml:"n"`
}

type restartEveryN struct {
	TestCaseHook
	n     int
	since int
}

func newRestartEveryN(logger log.Logger, fix fixture.Fixture, opts map[string]any) (Hook, error) {
	var o restartOptions
	if err := types.DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	if o.N == 0 {
		o.N = defaultRestartInterval
	}
	h := &restartEveryN{TestCaseHook: NewTestCaseHook(logger, RestartEveryNClass, fix), n: o.N}
	h.ShouldRun = h.intervalElapsed
	h.Body = h.restart
	return h, nil
}

// intervalElapsed counts tests the hook has seen, firing on every Nth.
func (h *restartEveryN) intervalElapsed(testcase.TestCase) bool {
	h.since++
	if h.since < h.n {
		return false
	}
	h.since = 0
	return true
}

func (h *restartEveryN) restart(logger log.Logger) error {
	logger.Info("Restarting the deployment", "tests_since_start", h.n)
	fix := h.Fixture()
	if err := fix.Teardown(false); err != nil {
		return types.NewServerFailure("stopping deployment for restart: %v", err)
	}
	if err := fix.Setup(); err != nil {
		return types.NewServerFailure("restarting deployment: %v", err)
	}
	if err := fix.AwaitReady(); err != nil {
		return types.NewServerFailure("restarted deployment never became ready: %v", err)
	}
	logger.Info("Deployment restarted")
	return nil
}
