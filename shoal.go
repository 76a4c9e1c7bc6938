// Package shoal is the top-level orchestrator of the harness: it loads the
// configured suites, runs them in order through the suite executor, handles
// operator signals, prints the consolidated results and resolves the process
// exit code.
package shoal

import (
	"errors"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"

	"github.com/dbtestlabs/shoal/exitcodes"
	"github.com/dbtestlabs/shoal/logging"
	"github.com/dbtestlabs/shoal/metrics"
	"github.com/dbtestlabs/shoal/report"
	"github.com/dbtestlabs/shoal/runner"
	"github.com/dbtestlabs/shoal/suite"
	"github.com/dbtestlabs/shoal/types"
)

// Harness runs a sequence of suites in one invocation.
type Harness struct {
	config *Config
	report *report.HarnessReport
	files  *logging.FileLogger
	runID  string

	interrupted atomic.Bool

	mu      sync.Mutex
	current *runner.SuiteExecutor
}

// New creates a Harness from the given configuration.
func New(config *Config) (*Harness, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	h := &Harness{
		config: config,
		report: report.NewHarnessReport(),
		runID:  uuid.NewString(),
	}
	if config.LogDir != "" {
		files, err := logging.NewFileLogger(config.LogDir, h.runID)
		if err != nil {
			return nil, err
		}
		h.files = files
	}
	return h, nil
}

// RunID returns the invocation's unique id, used in log paths and metrics.
func (h *Harness) RunID() string { return h.runID }

// Run executes the configured mode and returns the process exit code.
func (h *Harness) Run() int {
	suites, err := h.loadSuites()
	if err != nil {
		h.config.Log.Error("Failed to load suites", "error", err)
		return exitcodes.RuntimeErr
	}

	switch {
	case h.config.ListSuites:
		h.listSuites(suites)
		return exitcodes.Success
	case h.config.DryRun:
		h.dryRun(suites)
		return exitcodes.Success
	default:
		return h.runTests(suites)
	}
}

func (h *Harness) loadSuites() ([]*suite.Suite, error) {
	var suites []*suite.Suite
	for _, path := range h.config.SuiteFiles {
		s, err := suite.Load(path, h.config.Options)
		if err != nil {
			return nil, err
		}
		suites = append(suites, s)
	}
	return suites, nil
}

func (h *Harness) listSuites(suites []*suite.Suite) {
	for _, s := range suites {
		h.config.Log.Info("Suite available to execute",
			"suite", s.DisplayName(), "kind", s.TestKind(), "tests", s.NumTests())
	}
}

func (h *Harness) dryRun(suites []*suite.Suite) {
	for _, s := range suites {
		files := s.TestFiles()
		if len(files) == 0 {
			h.config.Log.Info("Suite would run no tests", "suite", s.DisplayName())
			continue
		}
		for _, f := range files {
			h.config.Log.Info("Test would be run", "suite", s.DisplayName(), "test", f)
		}
	}
}

func (h *Harness) runTests(suites []*suite.Suite) int {
	h.report.RecordStart()
	h.setupSignalHandler()

	for _, s := range suites {
		if h.interrupted.Load() {
			h.config.Log.Warn("Skipping the remaining suites after user interrupt")
			break
		}
		suiteReport := report.NewSuiteReport(s.DisplayName(), s.NumTests())
		h.report.AddSuite(suiteReport)

		h.runSuite(s, suiteReport)

		// A user interruption or a fail-fast failure ends the invocation
		// without running the remaining suites.
		if suiteReport.Interrupted() || (s.Options().FailFast && suiteReport.ReturnCode() != exitcodes.Success) {
			break
		}
	}
	h.report.RecordEnd()

	h.config.Log.Info(h.report.Summary())
	h.printResultsTable()
	if h.files != nil {
		if err := h.files.WriteSummary(h.report.Summary()); err != nil {
			h.config.Log.Warn("Failed to write the run summary file", "error", err)
		}
	}

	exitCode := exitcodes.Success
	for _, sr := range h.report.Suites() {
		if sr.ReturnCode() > exitCode {
			exitCode = sr.ReturnCode()
		}
	}
	// A signal that landed outside any suite's run still ends the invocation
	// with the signal exit code.
	if h.interrupted.Load() && exitCode < exitcodes.Interrupted {
		exitCode = exitcodes.Interrupted
	}

	if err := h.writeReportFile(); err != nil {
		h.config.Log.Error("Failed to write the report file", "path", h.config.ReportFile, "error", err)
		if exitCode < exitcodes.IOErr {
			exitCode = exitcodes.IOErr
		}
	}
	return exitCode
}

func (h *Harness) runSuite(s *suite.Suite, suiteReport *report.SuiteReport) {
	logger := h.config.Log

	if s.NumTests() == 0 {
		logger.Info("Skipping suite, no tests to run", "suite", s.DisplayName(), "kind", s.TestKind())
		return
	}

	executor, err := runner.NewSuiteExecutor(logger, s, suiteReport, h.files, h.runID)
	if err != nil {
		logger.Error("Failed to prepare the suite", "suite", s.DisplayName(), "error", err)
		suiteReport.SetError(exitcodes.RuntimeErr)
		return
	}
	h.setCurrent(executor)
	defer h.setCurrent(nil)

	suiteReport.RecordSuiteStart()
	executor.Run()
	suiteReport.RecordSuiteEnd()

	summary := suiteReport.Summary()
	logger.Info("Suite finished", "suite", s.DisplayName(), "summary", summary.String(), "rc", suiteReport.ReturnCode())
	h.logFailedTests(suiteReport)

	result := types.ExternalStatusPass
	if suiteReport.ReturnCode() != exitcodes.Success {
		result = types.ExternalStatusFail
	}
	metrics.RecordSuite(s.DisplayName(), h.runID, result, summary.NumRun, summary.NumFailed+summary.NumErrored, summary.Elapsed)
}

// logFailedTests lists the ids and return codes of every test that did not
// pass.
func (h *Harness) logFailedTests(suiteReport *report.SuiteReport) {
	for _, info := range suiteReport.CombinedReport().TestInfos() {
		switch info.Status {
		case types.TestStatusPass, types.TestStatusPending:
			continue
		}
		h.config.Log.Warn("Test did not pass",
			"suite", suiteReport.Name(), "test", info.TestID, "status", info.Status, "rc", info.ReturnCode)
	}
}

func (h *Harness) setCurrent(executor *runner.SuiteExecutor) {
	h.mu.Lock()
	h.current = executor
	h.mu.Unlock()
	// A signal that raced this registration set the flag but saw no
	// executor; the new executor picks the interrupt up here.
	if executor != nil && h.interrupted.Load() {
		executor.Interrupt()
	}
}

// interrupt records the interruption and forwards it to the running executor.
// The flag is sticky: when no executor is registered yet, the next one is
// interrupted as it registers and the suite loop stops.
func (h *Harness) interrupt() {
	h.interrupted.Store(true)
	h.mu.Lock()
	executor := h.current
	h.mu.Unlock()
	if executor != nil {
		executor.Interrupt()
	}
}

// setupSignalHandler forwards the first interrupt or termination signal to
// the harness. In-flight tests run to completion; the interruption takes
// effect before the next test.
func (h *Harness) setupSignalHandler() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		h.config.Log.Warn("Received signal, interrupting the run", "signal", sig)
		h.interrupt()
	}()
}

func (h *Harness) writeReportFile() error {
	if h.config.ReportFile == "" {
		return nil
	}
	return WriteReportFile(h.config.ReportFile, h.report.CombinedReport())
}
