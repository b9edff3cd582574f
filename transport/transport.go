// Package transport implements Direct (intra-thread) and Queued
// (inter-thread) sample delivery, plus thread-graph deadlock detection.
package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/nexxt-run/nexxt/nxerrors"
	"github.com/nexxt-run/nexxt/nxlog"
	"github.com/nexxt-run/nexxt/port"
	"github.com/nexxt-run/nexxt/sample"
	"github.com/nexxt-run/nexxt/thread"
)

// Transport delivers a transmitted sample from an output port to an
// input port.
type Transport interface {
	Transmit(s *sample.Sample) error
	// SetStopped flips the stop-gating flag checked before every Transmit.
	SetStopped(stopped bool)
}

// Direct synchronously invokes the sink's receive path on the producer's
// own goroutine: append to the queue, then deliver. Used when producer
// and consumer share a thread.
type Direct struct {
	sink       *port.InputPort
	deliverer  thread.Deliverer
	stopped    atomic.Bool
	dropLogger *rate.Limiter
}

// NewDirect wires a Direct transport from an output port to sink, owned
// by deliverer (the sink's FilterEnvironment).
func NewDirect(sink *port.InputPort, deliverer thread.Deliverer) *Direct {
	return &Direct{sink: sink, deliverer: deliverer, dropLogger: rate.NewLimiter(rate.Every(time.Second), 1)}
}

func (d *Direct) SetStopped(stopped bool) { d.stopped.Store(stopped) }

// Transmit appends s to the sink's queue and immediately invokes its
// owner's onPortDataChanged. No buffering happens beyond the input
// port's own queue.
func (d *Direct) Transmit(s *sample.Sample) error {
	if d.stopped.Load() {
		if d.dropLogger.Allow() {
			nxlog.Warnw("direct transport stopped, dropping sample", "port", d.sink.Name())
		}
		return nil
	}
	d.sink.Enqueue(s)
	d.deliverer.DeliverPortData(d.sink)
	return nil
}

// retryInterval is how often a blocked Queued.Transmit re-checks the
// stopped flag while waiting for a permit.
const retryInterval = 10 * time.Millisecond

// Queued hands a sample to the sink thread's Executor through a bounded
// semaphore, imposing backpressure on the producer when the sink falls
// behind.
type Queued struct {
	sink      *port.InputPort
	deliverer thread.Deliverer
	executor  *thread.Executor

	mu      sync.Mutex
	sem     *semaphore.Weighted
	cap     int64
	dynamic bool

	stopped    atomic.Bool
	dropLogger *rate.Limiter
}

// NewQueued wires a Queued transport. capacity is 1 for a fixed
// single-slot semaphore, or the sink's queueSizeSamples when the sink's
// interthreadDynamicQueue flag is enabled.
func NewQueued(sink *port.InputPort, deliverer thread.Deliverer, executor *thread.Executor) *Queued {
	dynamic := sink.InterthreadDynamicQueue()
	cap := int64(1)
	if dynamic {
		cap = int64(sink.QueueSizeSamples())
		if cap < 1 {
			cap = 1
		}
	}
	return &Queued{
		sink:       sink,
		deliverer:  deliverer,
		executor:   executor,
		sem:        semaphore.NewWeighted(cap),
		cap:        cap,
		dynamic:    dynamic,
		dropLogger: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (q *Queued) SetStopped(stopped bool) { q.stopped.Store(stopped) }

// Transmit acquires a permit (blocking with periodic stopped-flag
// retries), appends the sample to the sink's queue, and posts a receive
// event to the sink's Executor. The permit is released once the
// executor actually delivers the sample.
func (q *Queued) Transmit(s *sample.Sample) error {
	for {
		if q.stopped.Load() {
			if q.dropLogger.Allow() {
				nxlog.Warnw("queued transport stopped, dropping sample", "port", q.sink.Name())
			}
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), retryInterval)
		err := q.sem.Acquire(ctx, 1)
		cancel()
		if err == nil {
			break
		}
		// timed out: loop back and re-check stopped.
	}

	if q.dynamic {
		q.reconcileDynamicPermits()
	}

	q.sink.Enqueue(s)
	q.executor.Post(q.deliverer, q.sink, q.sem)
	return nil
}

// reconcileDynamicPermits implements the dynamic-queue variant: if the
// sink's current queue length is smaller than the configured capacity,
// release extra permits so the producer doesn't block until the sink
// queue is truly full; surplus permits beyond capacity are absorbed via
// non-blocking TryAcquire.
func (q *Queued) reconcileDynamicPermits() {
	q.mu.Lock()
	defer q.mu.Unlock()

	queueLen := int64(q.executor.QueueLen())
	slack := q.cap - queueLen
	if slack > 0 {
		q.sem.Release(slack - 1) // one permit is already being held by this Transmit call
	} else if slack < 0 {
		q.sem.TryAcquire(-slack)
	}
}

// ThreadEdge is one directed edge of the thread-graph used for deadlock
// detection: a connection with width>0 crossing from one thread to
// another.
type ThreadEdge struct {
	From  string
	To    string
	Width int
}

// DetectCycle reports whether edges (excluding width==0, which are
// non-blocking by definition) contain a cycle, and if so returns a
// human-readable description such as "T1->T2->T1".
func DetectCycle(edges []ThreadEdge) (cycleDescription string, found bool) {
	adj := map[string][]string{}
	for _, e := range edges {
		if e.Width == 0 || e.From == e.To {
			continue
		}
		adj[e.From] = append(adj[e.From], e.To)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var path []string

	var visit func(n string) (string, bool)
	visit = func(n string) (string, bool) {
		color[n] = gray
		path = append(path, n)
		for _, next := range adj[n] {
			switch color[next] {
			case white:
				if desc, ok := visit(next); ok {
					return desc, true
				}
			case gray:
				cyclePath := append(append([]string{}, path...), next)
				return describeCycle(cyclePath), true
			}
		}
		path = path[:len(path)-1]
		color[n] = black
		return "", false
	}

	for n := range adj {
		if color[n] == white {
			if desc, ok := visit(n); ok {
				return desc, true
			}
		}
	}
	return "", false
}

func describeCycle(path []string) string {
	desc := ""
	for i, n := range path {
		if i > 0 {
			desc += "->"
		}
		desc += n
	}
	return desc
}

// NewPossibleDeadlockError wraps nxerrors.ErrPossibleDeadlock with the
// offending cycle description.
func NewPossibleDeadlockError(cycle string) error {
	return nxerrors.Wrapf(nxerrors.ErrPossibleDeadlock, "cycle detected: %s", fmt.Sprint(cycle))
}
