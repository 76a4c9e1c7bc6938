// Package hook provides the behaviors a suite injects around its tests: a
// hook sees the suite start and end, and every test before and after it
// runs. A hook is bound to one fixture for its whole life, the same fixture
// its job owns. Concrete hooks are registered by class name and looked up
// from suite configuration.
package hook

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dbtestlabs/shoal/fixture"
	"github.com/dbtestlabs/shoal/report"
	"github.com/dbtestlabs/shoal/testcase"
	"github.com/dbtestlabs/shoal/types"
)

// Hook is one before/after behavior of a suite. The job calls the four
// methods at fixed points: BeforeSuite exactly once before any test,
// BeforeTest and AfterTest around every test, AfterSuite exactly once after
// the last test. Hooks run in configured order at all four points.
//
// An error from BeforeTest or AfterTest is classified by the job:
// ServerFailure and StopExecution end the job, TestFailure records a failed
// outcome and continues unless the suite fails fast.
type Hook interface {
	// Name returns the registered class name of the hook.
	Name() string

	BeforeSuite(rep *report.TestReport) error
	AfterSuite(rep *report.TestReport) error
	BeforeTest(tc testcase.TestCase, rep *report.TestReport) error
	AfterTest(tc testcase.TestCase, rep *report.TestReport) error
}

// Factory constructs a hook bound to the given fixture. opts is the
// constructor option bag decoded from suite configuration.
type Factory func(logger log.Logger, fix fixture.Fixture, opts map[string]any) (Hook, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a hook class available for lookup by name. Registering a
// duplicate name panics.
func Register(class string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[class]; ok {
		panic(fmt.Sprintf("hook class %q registered twice", class))
	}
	registry[class] = factory
}

// New constructs the named hook class against the given fixture.
func New(class string, logger log.Logger, fix fixture.Fixture, opts map[string]any) (Hook, error) {
	registryMu.RLock()
	factory, ok := registry[class]
	registryMu.RUnlock()
	if !ok {
		return nil, types.NewServerFailure("unknown hook class %q (known: %v)", class, Classes())
	}
	return factory(logger.New("hook", class), fix, opts)
}

// Classes returns the registered class names, sorted.
func Classes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	classes := make([]string, 0, len(registry))
	for class := range registry {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes
}

// NopHook implements the full protocol with no behavior. Concrete hooks
// embed it and override the points they care about.
type NopHook struct{}

func (NopHook) BeforeSuite(*report.TestReport) error                   { return nil }
func (NopHook) AfterSuite(*report.TestReport) error                    { return nil }
func (NopHook) BeforeTest(testcase.TestCase, *report.TestReport) error { return nil }
func (NopHook) AfterTest(testcase.TestCase, *report.TestReport) error  { return nil }
