package hook

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dbtestlabs/shoal/fixture"
	"github.com/dbtestlabs/shoal/report"
	"github.com/dbtestlabs/shoal/testcase"
	"github.com/dbtestlabs/shoal/types"
)

// ContinuousStepdownClass steps the replica set's primary down repeatedly
// while tests run. The stepdown thread is resumed before each test and
// paused after it, so stepdowns land inside test windows and never overlap
// other hooks' validation.
const ContinuousStepdownClass = "ContinuousStepdown"

const defaultStepdownInterval = 8 * time.Second

func init() {
	Register(ContinuousStepdownClass, newContinuousStepdown)
}

type stepdownOptions struct {
	// Interval is the pause between stepdowns while resumed.
	Interval types.Duration `yaml:"interval"`
}

type continuousStepdown struct {
	NopHook

	logger   log.Logger
	replset  fixture.ReplicaFixture
	interval time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	paused  bool
	idle    bool
	stopped bool
	lastErr error

	done chan struct{}
}

func newContinuousStepdown(logger log.Logger, fix fixture.Fixture, opts map[string]any) (Hook, error) {
	replset, ok := fix.(fixture.ReplicaFixture)
	if !ok {
		return nil, types.NewServerFailure("%s requires a replica-set-shaped fixture, got %s", ContinuousStepdownClass, fix.Class())
	}
	var o stepdownOptions
	if err := types.DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	if o.Interval == 0 {
		o.Interval = types.Duration(defaultStepdownInterval)
	}
	h := &continuousStepdown{
		logger:   logger,
		replset:  replset,
		interval: o.Interval.Std(),
	}
	h.cond = sync.NewCond(&h.mu)
	return h, nil
}

func (h *continuousStepdown) Name() string { return ContinuousStepdownClass }

// BeforeSuite starts the stepdown thread in the paused state.
func (h *continuousStepdown) BeforeSuite(*report.TestReport) error {
	h.mu.Lock()
	h.paused = true
	h.idle = true
	h.stopped = false
	h.lastErr = nil
	h.mu.Unlock()
	h.done = make(chan struct{})
	go h.loop()
	return nil
}

// AfterSuite stops the stepdown thread and waits for it to exit.
func (h *continuousStepdown) AfterSuite(*report.TestReport) error {
	h.mu.Lock()
	h.stopped = true
	h.cond.Broadcast()
	h.mu.Unlock()
	<-h.done
	return h.takeErr()
}

// BeforeTest resumes stepdowns for the duration of the test.
func (h *continuousStepdown) BeforeTest(testcase.TestCase, *report.TestReport) error {
	h.mu.Lock()
	h.paused = false
	h.cond.Broadcast()
	h.mu.Unlock()
	return nil
}

// AfterTest pauses stepdowns, waiting out any stepdown in flight, and
// surfaces a stepdown failure as a server failure.
func (h *continuousStepdown) AfterTest(testcase.TestCase, *report.TestReport) error {
	h.mu.Lock()
	h.paused = true
	h.cond.Broadcast()
	for !h.idle && !h.stopped {
		h.cond.Wait()
	}
	h.mu.Unlock()
	return h.takeErr()
}

func (h *continuousStepdown) takeErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastErr == nil {
		return nil
	}
	err := h.lastErr
	h.lastErr = nil
	return types.NewServerFailure("stepping down primary: %v", err)
}

func (h *continuousStepdown) loop() {
	defer close(h.done)
	for {
		h.mu.Lock()
		for h.paused && !h.stopped {
			h.idle = true
			h.cond.Broadcast()
			h.cond.Wait()
		}
		if h.stopped {
			h.idle = true
			h.cond.Broadcast()
			h.mu.Unlock()
			return
		}
		h.idle = false
		h.mu.Unlock()

		time.Sleep(h.interval)

		h.mu.Lock()
		stopped, paused := h.stopped, h.paused
		h.mu.Unlock()
		if stopped || paused {
			h.mu.Lock()
			h.idle = true
			h.cond.Broadcast()
			h.mu.Unlock()
			continue
		}

		h.logger.Info("Stepping down the primary")
		if err := h.replset.StepdownPrimary(); err != nil {
			h.logger.Error("Stepdown failed", "error", err)
			h.mu.Lock()
			h.lastErr = err
			h.mu.Unlock()
		}

		h.mu.Lock()
		h.idle = true
		h.cond.Broadcast()
		h.mu.Unlock()
	}
}
