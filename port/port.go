// Package port implements the Port, InputPort, and OutputPort types that
// make up a filter's connection surface.
package port

import (
	"sync"

	"github.com/nexxt-run/nexxt/nxerrors"
	"github.com/nexxt-run/nexxt/nxlog"
	"github.com/nexxt-run/nexxt/sample"
)

// Direction distinguishes input from output ports.
type Direction int

const (
	Input Direction = iota
	Output
)

// Owner is the minimal view a Port needs of its owning filter environment:
// the fully-qualified name used in log lines and WrongThread errors, and a
// way to check which goroutine (thread) currently owns filter execution.
type Owner interface {
	FullyQualifiedName() string
	OnThread() bool
	State() string
}

// Port is the common base of InputPort and OutputPort.
type Port struct {
	owner     Owner
	name      string
	direction Direction
	dynamic   bool
}

// NewPort constructs the common Port fields. Callers embed it in
// InputPort/OutputPort.
func NewPort(owner Owner, name string, direction Direction, dynamic bool) Port {
	return Port{owner: owner, name: name, direction: direction, dynamic: dynamic}
}

func (p *Port) Name() string           { return p.name }
func (p *Port) Direction() Direction   { return p.direction }
func (p *Port) Dynamic() bool          { return p.dynamic }
func (p *Port) Owner() Owner           { return p.owner }

// earlyState reports whether the owner is in one of the states that allow
// queue-policy reconfiguration: CONSTRUCTING, CONSTRUCTED, INITIALIZING,
// INITIALIZED.
func earlyState(s string) bool {
	switch s {
	case "CONSTRUCTING", "CONSTRUCTED", "INITIALIZING", "INITIALIZED":
		return true
	default:
		return false
	}
}

// queueEntry is one buffered sample; GetData's delaySeconds lookup reads
// the sample's own timestamp.
type queueEntry struct {
	s *sample.Sample
}

// InputPort buffers the most recent samples delivered to it and exposes
// delay-addressed lookup.
type InputPort struct {
	Port

	mu                      sync.Mutex
	queueSizeSamples        int
	queueSizeSeconds        float64
	interthreadDynamicQueue bool
	entries                 []queueEntry // entries[0] is newest
}

// NewInputPort constructs an InputPort with the default queue size of 1
// sample.
func NewInputPort(owner Owner, name string, dynamic bool) *InputPort {
	return &InputPort{
		Port:             NewPort(owner, name, Input, dynamic),
		queueSizeSamples: 1,
	}
}

// SetQueueSize configures the retention policy. May only be called while
// the owning filter is in an early state. If both samples and seconds are
// non-positive, the queue is forced to hold exactly 1 sample and a
// warning is logged.
func (p *InputPort) SetQueueSize(samples int, seconds float64) error {
	if !earlyState(p.owner.State()) {
		return nxerrors.Wrapf(nxerrors.ErrFilterStateMachine, "SetQueueSize on port %s in state %s", p.name, p.owner.State())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if samples <= 0 && seconds <= 0 {
		nxlog.Warnw("non-positive queue size, holding 1 sample", "filter", p.owner.FullyQualifiedName(), "port", p.name)
		p.queueSizeSamples = 1
		p.queueSizeSeconds = 0
		return nil
	}
	p.queueSizeSamples = samples
	p.queueSizeSeconds = seconds
	return nil
}

// SetInterthreadDynamicQueue enables or disables the dynamic-capacity
// queued-transport variant. May only be called while the owning filter
// is in an early state.
func (p *InputPort) SetInterthreadDynamicQueue(enabled bool) error {
	if !earlyState(p.owner.State()) {
		return nxerrors.Wrapf(nxerrors.ErrFilterStateMachine, "SetInterthreadDynamicQueue on port %s in state %s", p.name, p.owner.State())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interthreadDynamicQueue = enabled
	return nil
}

// InterthreadDynamicQueue reports the current flag value.
func (p *InputPort) InterthreadDynamicQueue() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interthreadDynamicQueue
}

// QueueSizeSamples reports the configured sample-count retention bound,
// used by the queued transport to size its dynamic semaphore.
func (p *InputPort) QueueSizeSamples() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queueSizeSamples
}

// Enqueue adds a newly-arrived sample as the newest entry and applies both
// retention limits in turn: when queueSizeSeconds is set, entries older
// than the newest by more than that many seconds are dropped; then, when
// queueSizeSamples is set, only that many newest entries are kept.
func (p *InputPort) Enqueue(s *sample.Sample) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = append([]queueEntry{{s: s}}, p.entries...)

	if p.queueSizeSeconds > 0 && len(p.entries) > 0 {
		newest := p.entries[0].s.Timestamp()
		cutoff := int64(p.queueSizeSeconds / sample.TimestampRes)
		kept := p.entries[:0:0]
		for _, e := range p.entries {
			if newest-e.s.Timestamp() <= cutoff {
				kept = append(kept, e)
			}
		}
		p.entries = kept
	}

	if p.queueSizeSamples > 0 && len(p.entries) > p.queueSizeSamples {
		p.entries = p.entries[:p.queueSizeSamples]
	}
}

// QueueLen reports the number of buffered samples, used by the queued
// transport's dynamic-permit reconciliation.
func (p *InputPort) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// GetData returns the delaySamples-th most recent sample (0 = newest), or
// when delaySeconds is non-nil, the first sample at least that many
// seconds older than the newest buffered sample. Returns nil if no
// matching sample is buffered.
func (p *InputPort) GetData(delaySamples int, delaySeconds *float64) *sample.Sample {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) == 0 {
		return nil
	}

	if delaySeconds != nil {
		newest := p.entries[0].s.Timestamp()
		threshold := int64(*delaySeconds / sample.TimestampRes)
		for _, e := range p.entries {
			if newest-e.s.Timestamp() >= threshold {
				return e.s
			}
		}
		return nil
	}

	if delaySamples < 0 || delaySamples >= len(p.entries) {
		return nil
	}
	return p.entries[delaySamples].s
}

// OutputPort transmits samples to whatever transport has been wired to
// it. Transmit may only be called from the owning filter's thread.
type OutputPort struct {
	Port

	mu        sync.RWMutex
	transport Transmitter
}

// Transmitter is implemented by the transport package's Direct and
// Queued transports; kept as an interface here so port does not import
// transport (which itself imports port for queue access).
type Transmitter interface {
	Transmit(s *sample.Sample) error
}

// NewOutputPort constructs an unwired OutputPort.
func NewOutputPort(owner Owner, name string, dynamic bool) *OutputPort {
	return &OutputPort{Port: NewPort(owner, name, Output, dynamic)}
}

// SetTransport wires this port to the transport instance responsible for
// delivering its samples (set once by ActiveApplication at Start time).
func (p *OutputPort) SetTransport(t Transmitter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transport = t
}

// Transmit hands a sample to the wired transport. Fails with WrongThread
// if invoked off the owning filter's thread, and is a silent no-op if no
// transport has been wired yet (e.g. a filter transmitting before Start).
func (p *OutputPort) Transmit(s *sample.Sample) error {
	if !p.owner.OnThread() {
		return nxerrors.Wrapf(nxerrors.ErrWrongThread, "Transmit on port %s called off owning thread", p.name)
	}
	p.mu.RLock()
	t := p.transport
	p.mu.RUnlock()
	if t == nil {
		return nil
	}
	return t.Transmit(s)
}
