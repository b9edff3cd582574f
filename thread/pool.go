package thread

import (
	"fmt"
	"sync"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/nexxt-run/nexxt/nxlog"
)

// MainThreadName is the always-present orchestration thread; it never
// runs an Executor event loop.
const MainThreadName = "main"

// Thread pairs a named label with the Executor that owns its filters'
// onPortDataChanged delivery.
type Thread struct {
	Name     string
	Executor *Executor

	wg      sync.WaitGroup
	started bool
}

// Pool maps thread labels to running Threads, created on demand.
type Pool struct {
	mu      sync.Mutex
	threads map[string]*Thread
}

// NewPool creates a Pool that always includes the main thread (with no
// Executor, since main never blocks on an event loop).
func NewPool() *Pool {
	return &Pool{threads: map[string]*Thread{
		MainThreadName: {Name: MainThreadName},
	}}
}

// Get returns the named thread, creating and starting its Executor
// goroutine on first use.
func (p *Pool) Get(name string) *Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.threads[name]
	if !ok {
		t = &Thread{Name: name, Executor: NewExecutor()}
		p.threads[name] = t
	}
	if name != MainThreadName && !t.started {
		t.started = true
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.Executor.Run()
		}()
	}
	return t
}

// Threads returns every thread created so far.
func (p *Pool) Threads() []*Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Thread, 0, len(p.threads))
	for _, t := range p.threads {
		out = append(out, t)
	}
	return out
}

// StopAll finalizes and clears every non-main executor, then waits for
// its goroutine to return.
func (p *Pool) StopAll() {
	p.mu.Lock()
	threads := make([]*Thread, 0, len(p.threads))
	for _, t := range p.threads {
		threads = append(threads, t)
	}
	p.mu.Unlock()

	for _, t := range threads {
		if t.Name == MainThreadName {
			continue
		}
		t.Executor.Finalize()
		t.Executor.Clear()
		t.wg.Wait()
	}
}

// memoryPerWorkerGB and memoryBufferGB budget how many concurrently
// active threads available system memory can comfortably support, each
// assumed to need a generic per-thread working set since nexxT threads
// run arbitrary filter callbacks rather than a fixed workload.
const (
	memoryPerWorkerGB = 0.5
	memoryBufferGB    = 1.0
)

func calculateSafeThreadCount(availableGB float64) int {
	if availableGB < memoryBufferGB {
		return 1
	}
	usable := availableGB - memoryBufferGB
	recommended := int(usable / memoryPerWorkerGB)
	if recommended < 1 {
		return 1
	}
	if recommended > 64 {
		return 64
	}
	return recommended
}

// CheckMemoryPressure logs a warning if the number of active threads
// exceeds what available system memory can comfortably support. It is a
// diagnostic only: ActiveApplication never refuses to start based on
// this check.
func (p *Pool) CheckMemoryPressure() {
	v, err := mem.VirtualMemory()
	if err != nil {
		nxlog.Debugw("memory pressure check skipped", "error", err.Error())
		return
	}

	availableGB := float64(v.Available) / 1024 / 1024 / 1024
	totalGB := float64(v.Total) / 1024 / 1024 / 1024
	recommended := calculateSafeThreadCount(availableGB)

	p.mu.Lock()
	active := len(p.threads)
	p.mu.Unlock()

	if active > recommended {
		nxlog.Warnw("thread count may exceed available memory",
			"active", active, "recommended", recommended,
			"message", fmt.Sprintf("available %.1f/%.1fGB", availableGB, totalGB))
	}
}
