package active

import (
	"golang.org/x/sync/errgroup"

	"github.com/nexxt-run/nexxt/filter"
	"github.com/nexxt-run/nexxt/nxerrors"
	"github.com/nexxt-run/nexxt/nxlog"
	"github.com/nexxt-run/nexxt/port"
	"github.com/nexxt-run/nexxt/transport"
)

// opTransitions maps an orchestration-API operation name to the expected
// application source state and the filter.Environment.Transition op it
// broadcasts.
var opTransitions = map[string]struct {
	from filter.State
	op   string
}{
	"init":   {filter.Constructed, "init"},
	"open":   {filter.Initialized, "open"},
	"start":  {filter.Opened, "start"},
	"stop":   {filter.Active, "stop"},
	"close":  {filter.Opened, "close"},
	"deinit": {filter.Initialized, "deinit"},
}

// broadcast runs op on every filter environment in two phases, so that a
// callback invoked on one thread never observes a peer still parked in
// its pre-transition state. Phase one pre-adapts every environment on
// every thread, sequentially; this is the barrier, since phase two does
// not begin until it returns. Phase two then invokes each environment's
// callback, grouping work by thread so that filters on the same thread
// run sequentially (preserving per-thread FIFO semantics) while distinct
// threads run concurrently.
func (a *ActiveApplication) broadcast(op string) error {
	byThread := map[string][]*filter.Environment{}
	a.mu.RLock()
	for _, env := range a.envs {
		byThread[env.ThreadName()] = append(byThread[env.ThreadName()], env)
	}
	a.mu.RUnlock()

	srcStates := map[*filter.Environment]filter.State{}
	for _, envs := range byThread {
		for _, env := range envs {
			src, err := env.PreAdapt(op)
			if err != nil {
				return err
			}
			srcStates[env] = src
		}
	}

	var g errgroup.Group
	for _, envs := range byThread {
		envs := envs
		g.Go(func() error {
			for _, env := range envs {
				if err := env.InvokeCallback(op, srcStates[env]); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// transition runs the named orchestration-API operation: verifies the
// application is in the expected source state, broadcasts to every
// thread, then advances the aggregate state once every environment has
// reported completion.
func (a *ActiveApplication) transition(opName string) error {
	spec, ok := opTransitions[opName]
	if !ok {
		return nxerrors.Wrapf(nxerrors.ErrInternal, "unknown operation %q", opName)
	}

	a.mu.Lock()
	if a.state != spec.from {
		a.mu.Unlock()
		return nxerrors.Wrapf(nxerrors.ErrFilterStateMachine, "operation %q requires state %s, got %s", opName, spec.from, a.state)
	}
	a.mu.Unlock()

	if err := a.broadcast(spec.op); err != nil {
		return err
	}

	a.mu.Lock()
	a.state = destStateOf(spec.op)
	a.mu.Unlock()
	nxlog.Infow("active application transitioned", "run_id", a.runID, "operation", opName, "state", a.state)
	return nil
}

func destStateOf(op string) filter.State {
	switch op {
	case "init":
		return filter.Initialized
	case "open":
		return filter.Opened
	case "start":
		return filter.Active
	case "stop":
		return filter.Opened
	case "close":
		return filter.Initialized
	case "deinit":
		return filter.Constructed
	default:
		return filter.Constructed
	}
}

// Init advances every filter from CONSTRUCTED to INITIALIZED.
func (a *ActiveApplication) Init() error { return a.transition("init") }

// Open advances every filter from INITIALIZED to OPENED.
func (a *ActiveApplication) Open() error { return a.transition("open") }

// Start wires transports, runs deadlock detection, and advances every
// filter from OPENED to ACTIVE. On deadlock detection failure, the
// application reverts to OPENED synchronously and returns the error;
// the caller is then expected to drive close+deinit (e.g. via Shutdown)
// rather than retry Start on the same wiring.
func (a *ActiveApplication) Start() error {
	a.mu.Lock()
	if a.state != filter.Opened {
		a.mu.Unlock()
		return nxerrors.Wrapf(nxerrors.ErrFilterStateMachine, "start requires state OPENED, got %s", a.state)
	}
	a.state = filter.Starting
	a.mu.Unlock()

	if err := a.wireTransports(); err != nil {
		a.mu.Lock()
		a.state = filter.Opened
		a.mu.Unlock()
		nxlog.Errorw("start aborted, deadlock detected", "run_id", a.runID, "error", err.Error())
		return err
	}

	if err := a.broadcast("start"); err != nil {
		return err
	}

	a.setAllTransportsStopped(false)

	a.mu.Lock()
	a.state = filter.Active
	a.mu.Unlock()
	nxlog.Infow("active application started", "run_id", a.runID)
	return nil
}

// Stop flips every queued transport's stopped flag first (so no new
// cross-thread samples enter the system during teardown), then
// broadcasts stop.
func (a *ActiveApplication) Stop() error {
	a.mu.Lock()
	if a.state != filter.Active {
		a.mu.Unlock()
		return nxerrors.Wrapf(nxerrors.ErrFilterStateMachine, "stop requires state ACTIVE, got %s", a.state)
	}
	a.state = filter.Stopping
	a.mu.Unlock()

	a.setAllTransportsStopped(true)

	if err := a.broadcast("stop"); err != nil {
		return err
	}

	a.pool.StopAll()

	a.mu.Lock()
	a.state = filter.Opened
	a.mu.Unlock()
	nxlog.Infow("active application stopped", "run_id", a.runID)
	return nil
}

// Close advances every filter from OPENED to INITIALIZED.
func (a *ActiveApplication) Close() error { return a.transition("close") }

// Deinit advances every filter from INITIALIZED to CONSTRUCTED.
func (a *ActiveApplication) Deinit() error { return a.transition("deinit") }

// Destruct finalizes every filter environment. No filter callback is
// invoked; CONSTRUCTING/DESTRUCTING are the state machine's only
// endpoints with no associated callback.
func (a *ActiveApplication) Destruct() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != filter.Constructed {
		return nxerrors.Wrapf(nxerrors.ErrFilterStateMachine, "destruct requires state CONSTRUCTED, got %s", a.state)
	}
	for _, env := range a.envs {
		if err := env.Destruct(); err != nil {
			return err
		}
	}
	a.state = filter.Destructed
	return nil
}

// Shutdown advances through whichever states are needed to reach
// DESTRUCTED, tolerating a partially-activated application; calling
// Shutdown twice is safe.
func (a *ActiveApplication) Shutdown() error {
	order := []struct {
		from filter.State
		fn   func() error
	}{
		{filter.Active, a.Stop},
		{filter.Opened, a.Close},
		{filter.Initialized, a.Deinit},
		{filter.Constructed, a.Destruct},
	}
	for _, step := range order {
		if a.State() == step.from {
			if err := step.fn(); err != nil {
				return err
			}
		}
	}
	return nil
}

// wireTransports builds a Direct or Queued transport for each expanded
// connection depending on whether the endpoints share a thread, runs
// deadlock detection over the resulting cross-thread edge set, and only
// then attaches the built transports to their output ports. No output
// port is touched unless the whole set passes DetectCycle, so a failed
// Start leaves every port exactly as it was before Start was called.
func (a *ActiveApplication) wireTransports() error {
	type pending struct {
		outPort *port.OutputPort
		wire    wiredConnection
	}

	var edges []transport.ThreadEdge
	var pendings []pending

	for _, c := range a.pendingConns {
		fromEnv, ok := a.envs[c.FromNode]
		if !ok {
			continue
		}
		toEnv, ok := a.envs[c.ToNode]
		if !ok {
			continue
		}
		outPort, ok := fromEnv.OutputPort(c.FromPort)
		if !ok {
			return nxerrors.Wrapf(nxerrors.ErrPortNotFound, "output port %s.%s not found", c.FromNode, c.FromPort)
		}
		inPort, ok := toEnv.InputPort(c.ToPort)
		if !ok {
			return nxerrors.Wrapf(nxerrors.ErrPortNotFound, "input port %s.%s not found", c.ToNode, c.ToPort)
		}

		fromThrd, toThrd := fromEnv.ThreadName(), toEnv.ThreadName()
		var tr transport.Transport
		if fromThrd == toThrd {
			tr = transport.NewDirect(inPort, toEnv)
		} else {
			th := a.pool.Get(toThrd)
			tr = transport.NewQueued(inPort, toEnv, th.Executor)
			edges = append(edges, transport.ThreadEdge{From: fromThrd, To: toThrd, Width: c.Width})
		}
		pendings = append(pendings, pending{
			outPort: outPort,
			wire:    wiredConnection{transport: tr, width: c.Width, fromThrd: fromThrd, toThrd: toThrd},
		})
	}

	if desc, found := transport.DetectCycle(edges); found {
		return transport.NewPossibleDeadlockError(desc)
	}

	wires := make([]wiredConnection, 0, len(pendings))
	for _, p := range pendings {
		p.outPort.SetTransport(p.wire.transport)
		wires = append(wires, p.wire)
	}

	a.mu.Lock()
	a.wires = wires
	a.mu.Unlock()
	return nil
}

func (a *ActiveApplication) setAllTransportsStopped(stopped bool) {
	a.mu.RLock()
	wires := append([]wiredConnection(nil), a.wires...)
	a.mu.RUnlock()
	for _, w := range wires {
		w.transport.SetStopped(stopped)
	}
}
