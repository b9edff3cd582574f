// Package active implements ActiveApplication, the runtime orchestrator
// that flattens a graph, assigns filters to threads, wires transports,
// and drives the coordinated filter state machine.
package active

import (
	"sync"

	"github.com/google/uuid"

	"github.com/nexxt-run/nexxt/filter"
	"github.com/nexxt-run/nexxt/graph"
	"github.com/nexxt-run/nexxt/nxerrors"
	"github.com/nexxt-run/nexxt/thread"
	"github.com/nexxt-run/nexxt/transport"
)

// State mirrors filter.State at the application level: an
// ActiveApplication is considered to be in state S once every one of its
// filters has completed the transition into S.
type State = filter.State

// FilterFactory constructs a filter instance from a node's library URL
// and factory name (implemented by the pluginloader package).
type FilterFactory func(node *graph.Node) (filter.Filter, error)

// ActiveApplication coordinates one activated Application graph.
type ActiveApplication struct {
	mu sync.RWMutex

	runID          string
	app            *graph.SubConfiguration
	lookup         graph.CompositeLookup
	factory        FilterFactory
	singleThreaded bool

	state State

	pool          *thread.Pool
	envs          map[string]*filter.Environment // fully-qualified name -> environment
	pendingConns  []graph.ExpandedConnection
	wires         []wiredConnection
}

type wiredConnection struct {
	transport transport.Transport
	width     int
	fromThrd  string
	toThrd    string
}

// RunID returns the UUID correlating this activation's log lines.
func (a *ActiveApplication) RunID() string { return a.runID }

// New constructs an ActiveApplication for app, expanding composites via
// lookup and resolving filter instances via factory. singleThreaded
// forces every filter onto the main thread, overriding per-node
// "_nexxT.thread" properties.
func New(app *graph.SubConfiguration, lookup graph.CompositeLookup, factory FilterFactory, singleThreaded bool) (*ActiveApplication, error) {
	a := &ActiveApplication{
		runID:          uuid.NewString(),
		app:            app,
		lookup:         lookup,
		factory:        factory,
		singleThreaded: singleThreaded,
		state:          filter.Constructed,
		pool:           thread.NewPool(),
		envs:           map[string]*filter.Environment{},
	}

	conns, assignments, err := graph.Expand(app.Graph, lookup, thread.MainThreadName)
	if err != nil {
		return nil, err
	}
	a.pendingConns = conns

	for fqName, threadName := range assignments {
		if singleThreaded {
			threadName = thread.MainThreadName
		}
		node, ok := findNode(app.Graph, lookup, fqName)
		if !ok {
			continue
		}

		var f filter.Filter
		if factory != nil {
			f, err = factory(node)
			if err != nil {
				return nil, nxerrors.Wrapf(err, "constructing filter %s", fqName)
			}
		} else {
			f = filter.Base{}
		}

		env := filter.New(fqName, f)
		env.SetThreadName(threadName)
		a.envs[fqName] = env

		for _, name := range node.StaticInputs {
			if _, err := env.AddInputPort(name, false); err != nil {
				return nil, err
			}
		}
		for _, name := range node.StaticOutputs {
			if _, err := env.AddOutputPort(name, false); err != nil {
				return nil, err
			}
		}
	}

	return a, nil
}

// Environment returns the FilterEnvironment for a fully-qualified filter
// name.
func (a *ActiveApplication) Environment(fqName string) (*filter.Environment, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.envs[fqName]
	return e, ok
}

// State reports the application's current aggregate state.
func (a *ActiveApplication) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// CheckMemoryPressure runs the thread pool's memory-pressure diagnostic
// (see thread.Pool.CheckMemoryPressure), exposed here so callers outside
// this package never need direct access to the pool.
func (a *ActiveApplication) CheckMemoryPressure() {
	a.pool.CheckMemoryPressure()
}

// findNode resolves a fully-qualified (dotted, possibly composite-nested)
// name back to its Node definition, walking into composite subgraphs as
// needed. graph.Expand never assigns a thread to a CompositeInput/
// CompositeOutput node, so findNode is never asked to resolve one.
func findNode(g *graph.Graph, lookup graph.CompositeLookup, fqName string) (*graph.Node, bool) {
	parts := splitDotted(fqName)
	cur := g
	for i, part := range parts {
		n, ok := cur.Node(part)
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return n, true
		}
		sub, ok := lookup(n.Factory)
		if !ok {
			return nil, false
		}
		cur = sub.Graph
	}
	return nil, false
}

func splitDotted(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
