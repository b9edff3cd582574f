// Package thread implements the per-thread Executor event loop and the
// Pool that maps thread labels to running goroutines.
package thread

import (
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/nexxt-run/nexxt/nxlog"
	"github.com/nexxt-run/nexxt/port"
)

// MaxLoopsFinalize bounds how many times finalize() may deliver to a
// single input port while draining, preventing an infinite loop if
// filters keep producing samples during shutdown.
const MaxLoopsFinalize = 5

// Deliverer receives a sample already appended to its input queue and
// runs the owning filter's onPortDataChanged under the state-machine's
// gating rules. FilterEnvironment implements this.
type Deliverer interface {
	DeliverPortData(p *port.InputPort)
}

// event is one FIFO entry: a sample has been enqueued on inputPort and
// is ready for delivery to deliverer. sem, if non-nil, is released once
// delivery completes (the queued-transport backpressure slot).
type event struct {
	deliverer Deliverer
	inputPort *port.InputPort
	sem       *semaphore.Weighted
}

// Executor runs the FIFO event loop for one non-main thread. Re-entrant
// transmissions from within onPortDataChanged enqueue instead of
// recursing, using a "blocked filter" set keyed by Deliverer identity.
type Executor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []event
	blocked map[Deliverer]bool
	stopped bool
	running bool
}

// NewExecutor creates an idle Executor. Run must be called on a
// dedicated goroutine to start its event loop.
func NewExecutor() *Executor {
	e := &Executor{blocked: map[Deliverer]bool{}}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Post enqueues a receive event. Discarded once the executor has been
// cleared: further register-events are silently dropped.
func (e *Executor) Post(d Deliverer, p *port.InputPort, sem *semaphore.Weighted) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		nxlog.Warnw("executor stopped, discarding event", "port", p.Name())
		return
	}
	e.queue = append(e.queue, event{deliverer: d, inputPort: p, sem: sem})
	e.cond.Signal()
}

// Run executes the event loop until Clear is called. Intended to run on
// its own goroutine, one per named thread (excluding "main", which never
// blocks on this loop).
func (e *Executor) Run() {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	for {
		e.mu.Lock()
		for !e.stopped && !e.hasDeliverableLocked() {
			e.cond.Wait()
		}
		if e.stopped && !e.hasDeliverableLocked() {
			e.mu.Unlock()
			return
		}
		ev, ok := e.popDeliverableLocked()
		if !ok {
			e.mu.Unlock()
			continue
		}
		e.blocked[ev.deliverer] = true
		e.mu.Unlock()

		ev.deliverer.DeliverPortData(ev.inputPort)
		if ev.sem != nil {
			ev.sem.Release(1)
		}

		e.mu.Lock()
		delete(e.blocked, ev.deliverer)
		e.mu.Unlock()
	}
}

// hasDeliverableLocked reports whether any queued event targets a
// deliverer not currently in the blocked set. Caller holds e.mu.
func (e *Executor) hasDeliverableLocked() bool {
	for _, ev := range e.queue {
		if !e.blocked[ev.deliverer] {
			return true
		}
	}
	return false
}

// popDeliverableLocked removes and returns the first deliverable event.
// Caller holds e.mu.
func (e *Executor) popDeliverableLocked() (event, bool) {
	for i, ev := range e.queue {
		if !e.blocked[ev.deliverer] {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			return ev, true
		}
	}
	return event{}, false
}

// Finalize drains the queue at shutdown, bounded to MaxLoopsFinalize
// deliveries per input port so a filter that keeps producing samples in
// onPortDataChanged cannot stall shutdown indefinitely. Remaining events
// are discarded.
func (e *Executor) Finalize() {
	e.mu.Lock()
	counts := map[*port.InputPort]int{}
	var kept []event
	for _, ev := range e.queue {
		if counts[ev.inputPort] >= MaxLoopsFinalize {
			if ev.sem != nil {
				ev.sem.Release(1)
			}
			continue
		}
		counts[ev.inputPort]++
		kept = append(kept, ev)
	}
	e.queue = kept
	e.mu.Unlock()

	delivered := map[*port.InputPort]int{}
	for {
		e.mu.Lock()
		ev, ok := e.popDeliverableLocked()
		e.mu.Unlock()
		if !ok {
			break
		}
		if delivered[ev.inputPort] >= MaxLoopsFinalize {
			if ev.sem != nil {
				ev.sem.Release(1)
			}
			continue
		}
		delivered[ev.inputPort]++
		ev.deliverer.DeliverPortData(ev.inputPort)
		if ev.sem != nil {
			ev.sem.Release(1)
		}
	}
}

// Clear marks the executor stopped; Post calls after Clear are
// discarded, and Run returns once the queue drains.
func (e *Executor) Clear() {
	e.mu.Lock()
	e.stopped = true
	e.queue = nil
	e.cond.Broadcast()
	e.mu.Unlock()
}

// QueueLen reports the number of pending events, used by the queued
// transport's dynamic-permit reconciliation.
func (e *Executor) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}
