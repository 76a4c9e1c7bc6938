package fixture

import (
	"fmt"
	"sync"

	"github.com/dbtestlabs/shoal/types"
)

// Fixtures spawned in the same suite run take ports from disjoint contiguous
// ranges so sibling jobs never collide. The allocator is reset once per
// suite, not per job, which lets sequentially-run suites reuse the same
// range.
const (
	// BasePort is the first port handed out after a reset.
	BasePort = 20000

	// PortsPerJob is the width of the contiguous range reserved per job.
	PortsPerJob = 250

	maxPort = 65535
)

// PortAllocator hands out contiguous port ranges keyed by job ordinal.
type PortAllocator struct {
	mu   sync.Mutex
	next map[int]int
}

var globalAllocator = &PortAllocator{next: make(map[int]int)}

// Reset forgets all allocations. Called once per suite before any fixture
// setup.
func (a *PortAllocator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next = make(map[int]int)
}

// NextPort returns the next unused port in the given job's range.
func (a *PortAllocator) NextPort(jobNum int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	offset, ok := a.next[jobNum]
	if !ok {
		offset = 0
	}
	if offset >= PortsPerJob {
		return 0, errPortsExhausted(jobNum)
	}
	port := BasePort + jobNum*PortsPerJob + offset
	if port > maxPort {
		return 0, errPortsExhausted(jobNum)
	}
	a.next[jobNum] = offset + 1
	return port, nil
}

// ResetPorts resets the process-wide allocator.
func ResetPorts() {
	globalAllocator.Reset()
}

// NextPort returns the next unused port for the job from the process-wide
// allocator.
func NextPort(jobNum int) (int, error) {
	return globalAllocator.NextPort(jobNum)
}

func errPortsExhausted(jobNum int) error {
	return types.NewFixtureError(fmt.Errorf("job %d exhausted its range of %d ports", jobNum, PortsPerJob))
}
