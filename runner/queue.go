// Package runner contains the execution engine: the shared work queue, the
// per-job worker loop, the coordinator flags jobs use for cooperative
// cancellation, and the suite executor that ties them together.
package runner

import (
	"sync"
	"time"

	"github.com/dbtestlabs/shoal/testcase"
)

// TestQueue is the blocking FIFO one execution's jobs drain. The producer
// enqueues every test case plus one nil sentinel per job; a consumer that
// dequeues the sentinel stops looping. Join blocks until every enqueued item
// has had a matching TaskDone.
type TestQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	items      []testcase.TestCase
	unfinished int
	drained    bool
}

// NewTestQueue returns an empty queue.
func NewTestQueue() *TestQueue {
	q := &TestQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put enqueues one item. The nil item is the per-job shutdown sentinel.
func (q *TestQueue) Put(tc testcase.TestCase) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, tc)
	q.unfinished++
	q.cond.Broadcast()
}

// Get dequeues the next item, blocking while the queue is empty. ok is false
// when the queue was drained out from under the caller; no TaskDone is owed
// for that case.
func (q *TestQueue) Get() (tc testcase.TestCase, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if q.drained {
			return nil, false
		}
		q.cond.Wait()
	}
	tc = q.items[0]
	q.items = q.items[1:]
	return tc, true
}

// TaskDone marks one previously-dequeued item as finished.
func (q *TestQueue) TaskDone() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unfinished > 0 {
		q.unfinished--
		if q.unfinished == 0 {
			q.cond.Broadcast()
		}
	}
}

// Join blocks until every Put has had a matching TaskDone, returning true,
// or until the timeout elapses, returning false.
func (q *TestQueue) Join(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.unfinished > 0 {
		if time.Now().After(deadline) {
			return false
		}
		q.cond.Wait()
	}
	return true
}

// Drain removes all remaining items, marking each finished, so a Join in
// progress can unblock after an interruption. Racing drains are harmless;
// consumers blocked in Get return with ok=false.
func (q *TestQueue) Drain() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.drained = true
	for range q.items {
		if q.unfinished > 0 {
			q.unfinished--
		}
	}
	q.items = nil
	q.cond.Broadcast()
}

// Len returns how many items are waiting to be dequeued.
func (q *TestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
