// Package filter implements the Filter interface and the FilterEnvironment
// state machine that hosts a filter instance.
package filter

import (
	"sync"

	"github.com/nexxt-run/nexxt/nxerrors"
	"github.com/nexxt-run/nexxt/nxlog"
	"github.com/nexxt-run/nexxt/port"
	"github.com/nexxt-run/nexxt/property"
)

// State names the FilterEnvironment state machine's nodes, in
// traversal order.
type State string

const (
	Constructing   State = "CONSTRUCTING"
	Constructed    State = "CONSTRUCTED"
	Initializing   State = "INITIALIZING"
	Initialized    State = "INITIALIZED"
	Opening        State = "OPENING"
	Opened         State = "OPENED"
	Starting       State = "STARTING"
	Active         State = "ACTIVE"
	Stopping       State = "STOPPING"
	Closing        State = "CLOSING"
	Deinitializing State = "DEINITIALIZING"
	Destructing    State = "DESTRUCTING"
	Destructed     State = "DESTRUCTED"
)

// Filter is the user-derived callback surface. Every method may be a
// no-op; embedding Base supplies no-op defaults so implementations only
// override what they need.
type Filter interface {
	OnInit(env *Environment) error
	OnOpen(env *Environment) error
	OnStart(env *Environment) error
	OnStop(env *Environment) error
	OnClose(env *Environment) error
	OnDeinit(env *Environment) error
	OnPortDataChanged(env *Environment, p *port.InputPort) error
	// OnSuggestDynamicPorts is consulted when a graph loader needs to
	// auto-populate dynamic ports for a filter that declares support for
	// them. Filters that don't support dynamic ports return (nil, nil, nil).
	OnSuggestDynamicPorts() (inNames, outNames []string, err error)
	SupportsDynamicInputPorts() bool
	SupportsDynamicOutputPorts() bool
}

// Base provides no-op implementations of every Filter method. User
// filters embed Base and override only what they need.
type Base struct{}

func (Base) OnInit(*Environment) error  { return nil }
func (Base) OnOpen(*Environment) error  { return nil }
func (Base) OnStart(*Environment) error { return nil }
func (Base) OnStop(*Environment) error  { return nil }
func (Base) OnClose(*Environment) error { return nil }
func (Base) OnDeinit(*Environment) error { return nil }
func (Base) OnPortDataChanged(*Environment, *port.InputPort) error { return nil }
func (Base) OnSuggestDynamicPorts() ([]string, []string, error)   { return nil, nil, nil }
func (Base) SupportsDynamicInputPorts() bool                      { return false }
func (Base) SupportsDynamicOutputPorts() bool                     { return false }

// transitions maps each legal (source, op) pair to its destination
// state as a table rather than a chain of if-statements.
type transitionKey struct {
	from State
	op   string
}

var transitions = map[transitionKey]State{
	{Constructing, "construct"}: Constructed,

	{Constructed, "init"}:  Initializing,
	{Initializing, "done"}: Initialized,

	{Initialized, "open"}: Opening,
	{Opening, "done"}:     Opened,

	{Opened, "start"}: Starting,
	{Starting, "done"}: Active,

	{Active, "stop"}:  Stopping,
	{Stopping, "done"}: Opened,

	{Opened, "close"}:      Closing,
	{Closing, "done"}:      Initialized,

	{Initialized, "deinit"}:     Deinitializing,
	{Deinitializing, "done"}:    Constructed,

	{Constructed, "destruct"}: Destructing,
	{Destructing, "done"}:     Destructed,
}

// operationOf maps an operation name to the transient state it drives
// through: on callback error, the state reverts to its pre-transition
// source rather than getting stuck mid-transition.
var operationOf = map[string]State{
	"init":    Initializing,
	"open":    Opening,
	"start":   Starting,
	"stop":    Stopping,
	"close":   Closing,
	"deinit":  Deinitializing,
}

// Environment hosts one Filter instance: its ports, property collection,
// and state. It implements port.Owner so InputPort/OutputPort can consult
// state and thread ownership without importing this package.
type Environment struct {
	mu sync.RWMutex

	fqName string
	filter Filter
	state  State

	props *property.Collection
	guiProps *property.Collection

	inputs  map[string]*port.InputPort
	outputs map[string]*port.OutputPort

	threadName string
	onThreadFn func() bool // set by the thread package once assigned
}

// New constructs a FilterEnvironment in the CONSTRUCTING state and
// immediately advances it to CONSTRUCTED, mirroring C++ nexxT where
// construction is atomic from the graph's point of view.
func New(fqName string, f Filter) *Environment {
	e := &Environment{
		fqName:     fqName,
		filter:     f,
		state:      Constructing,
		props:      property.NewCollection(fqName),
		guiProps:   property.NewCollection(fqName + ".guiState"),
		inputs:     map[string]*port.InputPort{},
		outputs:    map[string]*port.OutputPort{},
		threadName: "main",
	}
	e.state = Constructed
	return e
}

func (e *Environment) FullyQualifiedName() string { return e.fqName }

func (e *Environment) State() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return string(e.state)
}

// OnThread reports whether the calling goroutine owns this filter's
// thread. Defaults to true until the thread package wires SetOnThreadFunc,
// so standalone tests can exercise ports before full Executor wiring.
func (e *Environment) OnThread() bool {
	e.mu.RLock()
	fn := e.onThreadFn
	e.mu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// SetOnThreadFunc lets the thread package install the real ownership
// check once a filter is assigned to an Executor.
func (e *Environment) SetOnThreadFunc(fn func() bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onThreadFn = fn
}

func (e *Environment) ThreadName() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.threadName
}

func (e *Environment) SetThreadName(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.threadName = name
}

func (e *Environment) Properties() *property.Collection     { return e.props }
func (e *Environment) GUIProperties() *property.Collection  { return e.guiProps }

// AddInputPort registers a static or dynamic input port. A dynamic port
// requires the filter to support dynamic input ports and may only be
// added while the filter is CONSTRUCTING, CONSTRUCTED or INITIALIZING;
// static ports are not gated by state.
func (e *Environment) AddInputPort(name string, dynamic bool) (*port.InputPort, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if dynamic && !e.filter.SupportsDynamicInputPorts() {
		return nil, nxerrors.Wrapf(nxerrors.ErrDynamicPortUnsupported, "filter %s does not support dynamic input ports", e.fqName)
	}
	if dynamic && e.state != Constructing && e.state != Constructed && e.state != Initializing {
		return nil, nxerrors.Wrapf(nxerrors.ErrDynamicPortState, "cannot add dynamic input port %s in state %s", name, e.state)
	}
	if _, exists := e.inputs[name]; exists {
		return nil, nxerrors.Wrapf(nxerrors.ErrPortExists, "input port %s already exists on %s", name, e.fqName)
	}
	p := port.NewInputPort(e, name, dynamic)
	e.inputs[name] = p
	return p, nil
}

// AddOutputPort registers a static or dynamic output port with the same
// rules as AddInputPort.
func (e *Environment) AddOutputPort(name string, dynamic bool) (*port.OutputPort, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if dynamic && !e.filter.SupportsDynamicOutputPorts() {
		return nil, nxerrors.Wrapf(nxerrors.ErrDynamicPortUnsupported, "filter %s does not support dynamic output ports", e.fqName)
	}
	if dynamic && e.state != Constructing && e.state != Constructed && e.state != Initializing {
		return nil, nxerrors.Wrapf(nxerrors.ErrDynamicPortState, "cannot add dynamic output port %s in state %s", name, e.state)
	}
	if _, exists := e.outputs[name]; exists {
		return nil, nxerrors.Wrapf(nxerrors.ErrPortExists, "output port %s already exists on %s", name, e.fqName)
	}
	p := port.NewOutputPort(e, name, dynamic)
	e.outputs[name] = p
	return p, nil
}

func (e *Environment) InputPort(name string) (*port.InputPort, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.inputs[name]
	return p, ok
}

func (e *Environment) OutputPort(name string) (*port.OutputPort, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.outputs[name]
	return p, ok
}

func (e *Environment) InputPorts() map[string]*port.InputPort {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]*port.InputPort, len(e.inputs))
	for k, v := range e.inputs {
		out[k] = v
	}
	return out
}

// Transition runs the named operation (init/open/start/stop/close/deinit)
// if legal from the current state, invoking the matching Filter callback.
// It is PreAdapt immediately followed by InvokeCallback; callers
// coordinating many environments across threads should call the two
// separately instead, so that every environment has already moved into
// its transient state before any of their callbacks run.
func (e *Environment) Transition(op string) error {
	src, err := e.PreAdapt(op)
	if err != nil {
		return err
	}
	return e.InvokeCallback(op, src)
}

// PreAdapt moves the environment into op's transient destination state
// (e.g. OPENED -> STARTING) without invoking the Filter callback, and
// returns the pre-transition source state for a matching InvokeCallback
// call. A coordinator calls PreAdapt on every environment before
// invoking any of their callbacks, so a callback that queries a peer's
// state or ports (dynamic port negotiation during onInit is the
// motivating case) observes every filter already parked in its
// transient state rather than a mix of old and new.
func (e *Environment) PreAdapt(op string) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	src := e.state
	dst, ok := transitions[transitionKey{src, op}]
	if !ok {
		return src, nxerrors.Wrapf(nxerrors.ErrFilterStateMachine, "illegal transition %q from %s on %s", op, src, e.fqName)
	}
	e.state = dst
	return src, nil
}

// InvokeCallback runs op's Filter callback and settles the transition,
// advancing to the operation's destination state on success or reverting
// to src on failure. src must be the source state returned by the
// PreAdapt call that put the environment into op's transient state; on
// callback error, the error is logged and swallowed rather than
// propagated, so one failing filter can't block every other filter's
// coordinated transition.
func (e *Environment) InvokeCallback(op string, src State) error {
	if err := e.invokeCallback(op); err != nil {
		nxlog.Errorw("filter callback failed, reverting state",
			"filter", e.fqName, "operation", op, "error", err.Error())
		e.mu.Lock()
		e.state = src
		e.mu.Unlock()
		return nil // log-and-continue: coordination proceeds regardless
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if done, ok := transitions[transitionKey{e.state, "done"}]; ok {
		e.state = done
	}
	return nil
}

// Destruct runs the destruct endpoint, which has no filter callback:
// CONSTRUCTING/DESTRUCTING are the state machine's only endpoints with
// no associated callback.
func (e *Environment) Destruct() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Constructed {
		return nxerrors.Wrapf(nxerrors.ErrFilterStateMachine, "destruct from %s on %s", e.state, e.fqName)
	}
	e.state = Destructed
	return nil
}

func (e *Environment) invokeCallback(op string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = nxerrors.Wrapf(nxerrors.ErrInternal, "panic in %s callback: %v", op, r)
		}
	}()
	switch op {
	case "init":
		return e.filter.OnInit(e)
	case "open":
		return e.filter.OnOpen(e)
	case "start":
		return e.filter.OnStart(e)
	case "stop":
		return e.filter.OnStop(e)
	case "close":
		return e.filter.OnClose(e)
	case "deinit":
		return e.filter.OnDeinit(e)
	default:
		return nxerrors.Wrapf(nxerrors.ErrInternal, "unknown operation %q", op)
	}
}

// DeliverPortData is called by the executor (direct or queued transport)
// once a sample has been enqueued on an input port. Delivery is gated by
// state: ACTIVE delivers normally; OPENED silently drops (shutdown race
// tolerance); any other state discards with a log line.
func (e *Environment) DeliverPortData(p *port.InputPort) {
	e.mu.RLock()
	st := e.state
	e.mu.RUnlock()

	switch st {
	case Active:
		if err := e.filter.OnPortDataChanged(e, p); err != nil {
			nxlog.Errorw("onPortDataChanged failed",
				"filter", e.fqName, "port", p.Name(), "error", err.Error())
		}
	case Opened:
		// tolerated: drop silently, no log line.
	default:
		nxlog.Warnw("discarding port data, filter not active",
			"filter", e.fqName, "port", p.Name(), "state", st)
	}
}
