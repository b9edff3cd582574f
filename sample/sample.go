// Package sample implements DataSample, the immutable, reference-counted
// envelope of opaque bytes that flows through a nexxT graph.
package sample

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimestampRes is the fixed unit of a Sample timestamp, in seconds.
const TimestampRes = 1e-6

// clockResolution records the smallest observed gap between two
// successive CurrentTime() calls on this process, exposed as a
// diagnostic for callers that care about platform clock resolution.
var (
	clockResMu  sync.Mutex
	lastTime    int64
	clockResNs  int64 = 1 << 62
)

// Sample is an immutable envelope of bytes, a free-form datatype tag, and
// a timestamp. Once published, Content() and Timestamp() never change;
// every Content() call returns an independent copy so a caller mutating
// the returned slice cannot affect other readers.
//
// Lifetime is reference-counted: Retain/Release mirror C++ nexxT's
// shared_ptr-based DataSample lifetime. A Sample created
// with New starts with a reference count of 1.
type Sample struct {
	payload   []byte
	datatype  string
	timestamp int64 // microseconds, per TimestampRes

	refs int32
}

// New creates a Sample owning a private copy of data. The timestamp is in
// units of TimestampRes seconds (i.e. microseconds).
func New(data []byte, datatype string, timestamp int64) *Sample {
	cp := make([]byte, len(data))
	copy(cp, data)
	return &Sample{
		payload:   cp,
		datatype:  datatype,
		timestamp: timestamp,
		refs:      1,
	}
}

// Content returns an independent copy of the payload. Mutating the
// returned slice never affects the Sample or any other caller's copy.
func (s *Sample) Content() []byte {
	cp := make([]byte, len(s.payload))
	copy(cp, s.payload)
	return cp
}

// Datatype returns the producer/consumer-defined type tag.
func (s *Sample) Datatype() string { return s.datatype }

// Timestamp returns the sample's timestamp in units of TimestampRes
// seconds.
func (s *Sample) Timestamp() int64 { return s.timestamp }

// Copy returns a new, independently-owned Sample with the same content,
// datatype and timestamp.
func (s *Sample) Copy() *Sample {
	return New(s.payload, s.datatype, s.timestamp)
}

// Retain increments the reference count. Every Retain must be matched by
// a Release.
func (s *Sample) Retain() {
	atomic.AddInt32(&s.refs, 1)
}

// Release decrements the reference count, freeing the payload once the
// last reader drops it. Release is a no-op once the count reaches zero.
func (s *Sample) Release() {
	if atomic.AddInt32(&s.refs, -1) == 0 {
		s.payload = nil
	}
}

// CurrentTime returns a timestamp, in units of TimestampRes seconds,
// synchronized with wall-clock time. Successive calls on a single
// goroutine are monotonically non-decreasing.
func CurrentTime() int64 {
	now := time.Now().UnixMicro()

	clockResMu.Lock()
	defer clockResMu.Unlock()
	if lastTime != 0 {
		if now <= lastTime {
			now = lastTime + 1
		}
		if gap := now - lastTime; gap < clockResNs {
			clockResNs = gap
		}
	}
	lastTime = now
	return now
}

// ClockResolution reports the smallest observed gap, in microseconds,
// between successive CurrentTime() calls, or 0 before two calls have
// been made.
func ClockResolution() int64 {
	clockResMu.Lock()
	defer clockResMu.Unlock()
	if clockResNs == 1<<62 {
		return 0
	}
	return clockResNs
}

// Pool is a per-datatype byte-buffer allocator backed by sync.Pool,
// reducing churn on high-frequency OutputPort.Transmit producers that
// publish fixed-size frames repeatedly. Not part of C++/Python nexxT's
// public API, but present in spirit there, which reuses sample buffers
// across frames rather than reallocating every one.
type Pool struct {
	pools sync.Map // datatype string -> *sync.Pool
}

// NewPool creates an empty Pool.
func NewPool() *Pool { return &Pool{} }

// Get returns a Sample for datatype with at least size bytes of backing
// capacity, reused from a prior Release if one is available. The
// returned Sample's Content() is undefined until the caller fills and
// publishes it; Pool.Get never returns a Sample already holding another
// producer's data.
func (p *Pool) Get(datatype string, size int, timestamp int64) *Sample {
	v, _ := p.pools.LoadOrStore(datatype, &sync.Pool{
		New: func() interface{} { return &Sample{} },
	})
	sp := v.(*sync.Pool)
	s := sp.Get().(*Sample)

	if cap(s.payload) < size {
		s.payload = make([]byte, size)
	} else {
		s.payload = s.payload[:size]
		clear(s.payload)
	}
	s.datatype = datatype
	s.timestamp = timestamp
	s.refs = 1
	return s
}

// Put returns s's backing buffer to the pool for datatype reuse. Callers
// must not touch s after calling Put; it is equivalent to Release
// reaching zero, except the memory is recycled instead of discarded.
func (p *Pool) Put(s *Sample) {
	v, ok := p.pools.Load(s.datatype)
	if !ok {
		return
	}
	sp := v.(*sync.Pool)
	s.payload = s.payload[:0]
	sp.Put(s)
}
