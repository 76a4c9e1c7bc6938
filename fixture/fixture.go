// Package fixture provides the deployment topologies tests run against. A
// fixture owns the full lifecycle of one deployment: start it, wait until it
// accepts an acknowledged write, probe its liveness, and stop it. Concrete
// fixtures are registered by class name and looked up from suite
// configuration.
package fixture

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dbtestlabs/shoal/types"
)

// Fixture is one deployment topology, exclusively owned by one job.
//
// Lifecycle: Setup starts the deployment, AwaitReady blocks until it has
// accepted at least one acknowledged write, Teardown stops it. Teardown with
// finished=true must not fail for a deployment that already stopped.
type Fixture interface {
	// Class returns the registered class name of the fixture.
	Class() string

	// Setup starts the deployment. A deployment that cannot be started
	// returns a FixtureError.
	Setup() error

	// AwaitReady blocks until the deployment accepts an acknowledged write,
	// returning a FixtureError on timeout.
	AwaitReady() error

	// Teardown stops the deployment. finished is true at final cleanup,
	// where an already-stopped deployment is not an error.
	Teardown(finished bool) error

	// IsRunning is a non-blocking liveness probe.
	IsRunning() bool

	// ConnString returns the connection string clients use to reach the
	// deployment. Valid once the fixture is ready.
	ConnString() string
}

// ReplicaFixture is a fixture shaped as a primary with replicating
// secondaries.
type ReplicaFixture interface {
	Fixture

	// PrimaryConnString returns the connection string of the current
	// primary.
	PrimaryConnString() (string, error)

	// SecondaryConnStrings returns the connection strings of the current
	// secondaries.
	SecondaryConnStrings() []string

	// StepdownPrimary demotes the current primary and promotes a secondary
	// in its place.
	StepdownPrimary() error
}

// Factory constructs a fixture for one job. opts is the constructor option
// bag decoded from suite configuration.
type Factory func(logger log.Logger, jobNum int, opts map[string]any) (Fixture, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a fixture class available for lookup by name. Registering a
// duplicate name panics.
func Register(class string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[class]; ok {
		panic(fmt.Sprintf("fixture class %q registered twice", class))
	}
	registry[class] = factory
}

// New constructs the named fixture class for the given job.
func New(class string, logger log.Logger, jobNum int, opts map[string]any) (Fixture, error) {
	registryMu.RLock()
	factory, ok := registry[class]
	registryMu.RUnlock()
	if !ok {
		return nil, types.NewServerFailure("unknown fixture class %q (known: %v)", class, Classes())
	}
	return factory(logger.New("fixture", class, "job", jobNum), jobNum, opts)
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
