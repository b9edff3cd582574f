package active

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexxt-run/nexxt/filter"
	"github.com/nexxt-run/nexxt/graph"
)

func noComposites(string) (*graph.SubConfiguration, bool) { return nil, false }

func baseFactory(*graph.Node) (filter.Filter, error) { return filter.Base{}, nil }

func TestLifecycleHappyPathIntraThread(t *testing.T) {
	app := graph.NewApplication("demo")
	require.NoError(t, app.Graph.AddNode(&graph.Node{Name: "src", StaticOutputs: []string{"out0"}}))
	require.NoError(t, app.Graph.AddNode(&graph.Node{Name: "sink", StaticInputs: []string{"in0"}}))
	require.NoError(t, app.Graph.AddConnection(graph.Connection{FromNode: "src", FromPort: "out0", ToNode: "sink", ToPort: "in0", Width: 1}))

	a, err := New(app, noComposites, baseFactory, false)
	require.NoError(t, err)

	require.NoError(t, a.Init())
	require.Equal(t, filter.Initialized, a.State())

	require.NoError(t, a.Open())
	require.Equal(t, filter.Opened, a.State())

	require.NoError(t, a.Start())
	require.Equal(t, filter.Active, a.State())

	require.NoError(t, a.Stop())
	require.Equal(t, filter.Opened, a.State())

	require.NoError(t, a.Close())
	require.Equal(t, filter.Initialized, a.State())

	require.NoError(t, a.Deinit())
	require.Equal(t, filter.Constructed, a.State())

	require.NoError(t, a.Destruct())
	require.Equal(t, filter.Destructed, a.State())
}

func TestShutdownIsIdempotent(t *testing.T) {
	app := graph.NewApplication("demo")
	require.NoError(t, app.Graph.AddNode(&graph.Node{Name: "src", StaticOutputs: []string{"out0"}}))

	a, err := New(app, noComposites, baseFactory, false)
	require.NoError(t, err)
	require.NoError(t, a.Init())
	require.NoError(t, a.Open())
	require.NoError(t, a.Start())

	require.NoError(t, a.Shutdown())
	require.Equal(t, filter.Destructed, a.State())

	require.NoError(t, a.Shutdown())
	require.Equal(t, filter.Destructed, a.State())
}

func TestStartFailsOnDeadlockAndReturnsToOpened(t *testing.T) {
	app := graph.NewApplication("demo")
	require.NoError(t, app.Graph.AddNode(&graph.Node{Name: "a", StaticInputs: []string{"in0"}, StaticOutputs: []string{"out0"}, Properties: map[string]interface{}{"_nexxT.thread": "T1"}}))
	require.NoError(t, app.Graph.AddNode(&graph.Node{Name: "b", StaticInputs: []string{"in0"}, StaticOutputs: []string{"out0"}, Properties: map[string]interface{}{"_nexxT.thread": "T2"}}))
	require.NoError(t, app.Graph.AddConnection(graph.Connection{FromNode: "a", FromPort: "out0", ToNode: "b", ToPort: "in0", Width: 1}))
	require.NoError(t, app.Graph.AddConnection(graph.Connection{FromNode: "b", FromPort: "out0", ToNode: "a", ToPort: "in0", Width: 1}))

	a, err := New(app, noComposites, baseFactory, false)
	require.NoError(t, err)
	require.NoError(t, a.Init())
	require.NoError(t, a.Open())

	err = a.Start()
	require.Error(t, err)
	require.Equal(t, filter.Opened, a.State())
}

func TestStartFailureLeavesNoLiveTransportsWired(t *testing.T) {
	app := graph.NewApplication("demo")
	require.NoError(t, app.Graph.AddNode(&graph.Node{Name: "a", StaticInputs: []string{"in0"}, StaticOutputs: []string{"out0"}, Properties: map[string]interface{}{"_nexxT.thread": "T1"}}))
	require.NoError(t, app.Graph.AddNode(&graph.Node{Name: "b", StaticInputs: []string{"in0"}, StaticOutputs: []string{"out0"}, Properties: map[string]interface{}{"_nexxT.thread": "T2"}}))
	require.NoError(t, app.Graph.AddConnection(graph.Connection{FromNode: "a", FromPort: "out0", ToNode: "b", ToPort: "in0", Width: 1}))
	require.NoError(t, app.Graph.AddConnection(graph.Connection{FromNode: "b", FromPort: "out0", ToNode: "a", ToPort: "in0", Width: 1}))

	a, err := New(app, noComposites, baseFactory, false)
	require.NoError(t, err)
	require.NoError(t, a.Init())
	require.NoError(t, a.Open())

	require.Error(t, a.Start())

	envA, ok := a.Environment("a")
	require.True(t, ok)
	outA, ok := envA.OutputPort("out0")
	require.True(t, ok)
	envB, ok := a.Environment("b")
	require.True(t, ok)
	inB, ok := envB.InputPort("in0")
	require.True(t, ok)

	// A failed Start must leave "a"'s output port unwired: transmitting
	// through it is a silent no-op, not a live delivery to "b".
	require.NoError(t, outA.Transmit(nil))
	require.Equal(t, 0, inB.QueueLen())
}

type peerObservingFilter struct {
	filter.Base
	peerName string
	app      *ActiveApplication
	observed *string
}

func (f *peerObservingFilter) OnInit(*filter.Environment) error {
	if f.app == nil {
		return nil
	}
	if peerEnv, ok := f.app.Environment(f.peerName); ok {
		*f.observed = peerEnv.State()
	}
	return nil
}

// TestBroadcastPreAdaptsAllFiltersBeforeInvokingAnyCallback exercises the
// two-phase barrier directly: "a" and "b" sit on different threads, so
// without the barrier "a"'s onInit could run concurrently with "b" still
// sitting in its old state. Phase one moves every filter into its
// transient state before phase two invokes any callback, so "a" must
// never observe "b" still CONSTRUCTED.
func TestBroadcastPreAdaptsAllFiltersBeforeInvokingAnyCallback(t *testing.T) {
	app := graph.NewApplication("demo")
	require.NoError(t, app.Graph.AddNode(&graph.Node{Name: "a", Properties: map[string]interface{}{"_nexxT.thread": "T1"}}))
	require.NoError(t, app.Graph.AddNode(&graph.Node{Name: "b", Properties: map[string]interface{}{"_nexxT.thread": "T2"}}))

	var observedPeerState string
	fa := &peerObservingFilter{peerName: "b", observed: &observedPeerState}

	factory := func(node *graph.Node) (filter.Filter, error) {
		if node.Name == "a" {
			return fa, nil
		}
		return filter.Base{}, nil
	}

	a, err := New(app, noComposites, factory, false)
	require.NoError(t, err)
	fa.app = a

	require.NoError(t, a.Init())
	require.NotEmpty(t, observedPeerState)
	require.NotEqual(t, string(filter.Constructed), observedPeerState)
}

func TestSingleThreadedOverrideForcesMainThread(t *testing.T) {
	app := graph.NewApplication("demo")
	require.NoError(t, app.Graph.AddNode(&graph.Node{Name: "a", Properties: map[string]interface{}{"_nexxT.thread": "T1"}}))

	a, err := New(app, noComposites, baseFactory, true)
	require.NoError(t, err)
	env, ok := a.Environment("a")
	require.True(t, ok)
	require.Equal(t, "main", env.ThreadName())
}
