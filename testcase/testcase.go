// Package testcase provides the polymorphic unit of work the harness
// dispatches to jobs. A test case is configured against a fixture once, runs
// zero or more times and classifies its own outcome into the report.
// Concrete kinds are registered by name and looked up from the suite's
// test-kind configuration.
package testcase

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dbtestlabs/shoal/fixture"
	"github.com/dbtestlabs/shoal/report"
	"github.com/dbtestlabs/shoal/types"
)

// TestCase is one test file or program invocation.
type TestCase interface {
	// Kind returns the registered kind tag of the test case.
	Kind() string

	// Name returns the test's id, the file path or synthetic name outcomes
	// are recorded under.
	Name() string

	// Dynamic reports whether the case was synthesized by a hook.
	Dynamic() bool

	// Configure binds the case to a fixture. It may be called exactly once;
	// a second call is an error.
	Configure(fix fixture.Fixture, numClients int) error

	// Run executes the test, recording start, outcome and stop in the
	// report. A failure of the test's own assertions is recorded and
	// swallowed; any other error is recorded and returned.
	Run(jobLogger log.Logger, rep *report.TestReport) error

	// Reset clears the return code and captured failure so the same case
	// can run again.
	Reset()

	// ReturnCode returns the process return code of the last run.
	ReturnCode() int

	// Failure returns the captured failure of the last run, nil if it
	// passed.
	Failure() error

	// ShortDescription names the case for log lines.
	ShortDescription() string
}

// Factory constructs a test case for the named test file. opts is the
// test-kind option bag from suite configuration.
type Factory func(name string, opts map[string]any) (TestCase, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a test-case kind available for lookup by name. Registering
// a duplicate kind panics.
func Register(kind string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[kind]; ok {
		panic(fmt.Sprintf("test kind %q registered twice", kind))
	}
	registry[kind] = factory
}

// New constructs a test case of the named kind.
func New(kind, name string, opts map[string]any) (TestCase, error) {
	registryMu.RLock()
	factory, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown test kind %q (known: %v)", kind, Kinds())
	}
	return factory(name, opts)
}

// Kinds returns the registered kind tags, sorted.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Base carries the state shared by every test-case kind and implements the
// run protocol around a kind-specific execute function.
type Base struct {
	kind    string
	name    string
	dynamic bool

	fixture    fixture.Fixture
	numClients int
	configured bool

	returnCode int
	failure    error

	// execute runs the test body against the bound fixture, logging output
	// to the given logger. It reports assertion failures as TestFailure and
	// must have set the return code via setReturnCode before returning.
	execute func(logger log.Logger) error
}

// NewBase returns a Base for a kind-specific test case. The embedding type
// must assign execute before Run is called.
func NewBase(kind, name string) *Base {
	return &Base{kind: kind, name: name}
}

// NewDynamic returns a ready-to-run dynamic test case with the given execute
// function. Used by hooks to synthesize derived tests.
func NewDynamic(kind, name string, execute func(logger log.Logger) error) *Base {
	return &Base{kind: kind, name: name, dynamic: true, execute: execute}
}

func (b *Base) Kind() string    { return b.kind }
func (b *Base) Name() string    { return b.name }
func (b *Base) Dynamic() bool   { return b.dynamic }
func (b *Base) ReturnCode() int { return b.returnCode }
func (b *Base) Failure() error  { return b.failure }

// ShortName returns the test's id without leading path components.
func (b *Base) ShortName() string {
	return filepath.Base(b.name)
}

// BaseName returns the test's id without the dynamic suffix a hook appended.
func (b *Base) BaseName() string {
	if i := strings.IndexByte(b.name, ':'); i >= 0 {
		return b.name[:i]
	}
	return b.name
}

func (b *Base) ShortDescription() string {
	return fmt.Sprintf("%s %s", b.kind, b.name)
}

// Configure binds the case to its fixture. The binding is permanent for the
// life of the case.
func (b *Base) Configure(fix fixture.Fixture, numClients int) error {
	if b.configured {
		return fmt.Errorf("test %s was already configured", b.name)
	}
	b.configured = true
	b.fixture = fix
	b.numClients = numClients
	return nil
}

// Fixture returns the bound fixture. Valid after Configure.
func (b *Base) Fixture() fixture.Fixture { return b.fixture }

// NumClients returns the client count the case was configured with.
func (b *Base) NumClients() int { return b.numClients }

// Reset clears per-run state so the case can run again.
func (b *Base) Reset() {
	b.returnCode = 0
	b.failure = nil
}

// setExecute installs the kind-specific test body.
func (b *Base) setExecute(execute func(logger log.Logger) error) {
	b.execute = execute
}

// setReturnCode records the process return code of the current run.
func (b *Base) setReturnCode(rc int) {
	b.returnCode = rc
}

// Run executes the test and classifies its outcome. An assertion failure is
// recorded as a fail outcome and kept in Failure without stopping the
// caller; any other error is recorded as an error outcome and returned.
func (b *Base) Run(jobLogger log.Logger, rep *report.TestReport) error {
	if !b.configured {
		return fmt.Errorf("test %s was never configured", b.name)
	}

	testLogger, err := rep.StartTest(b.name, b.dynamic)
	if err != nil {
		return err
	}
	defer func() {
		elapsed, serr := rep.StopTest(b.name)
		if serr != nil {
			jobLogger.Error("Failed to record test stop", "test", b.name, "error", serr)
			return
		}
		jobLogger.Info("Test finished", "test", b.name, "elapsed", elapsed)
	}()

	jobLogger.Info("Running test", "test", b.name, "kind", b.kind)
	runErr := b.execute(testLogger)
	switch {
	case runErr == nil:
		return rep.PassTest(b.name, b.returnCode)
	case types.IsTestFailure(runErr):
		b.failure = runErr
		if b.returnCode == 0 {
			b.returnCode = 1
		}
		jobLogger.Warn("Test failed", "test", b.name, "rc", b.returnCode, "error", runErr)
		return rep.FailTest(b.name, b.returnCode)
	default:
		b.failure = runErr
		jobLogger.Error("Test encountered an error", "test", b.name, "error", runErr)
		if rerr := rep.ErrorTest(b.name, b.returnCode); rerr != nil {
			return rerr
		}
		return runErr
	}
}
