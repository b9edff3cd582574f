package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddNodeDuplicateRejected(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode(&Node{Name: "a"}))
	err := g.AddNode(&Node{Name: "a"})
	require.Error(t, err)
}

func TestAddNodeRejectsInvalidIdentifier(t *testing.T) {
	g := New()
	err := g.AddNode(&Node{Name: "bad name"})
	require.Error(t, err)

	err = g.AddNode(&Node{Name: "0leading"})
	require.Error(t, err)

	require.NoError(t, g.AddNode(&Node{Name: "valid_name-1"}))
}

func TestRenameNodeRejectsInvalidIdentifier(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode(&Node{Name: "a"}))
	err := g.RenameNode("a", "bad name")
	require.Error(t, err)
}

func TestAddConnectionValidatesPorts(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode(&Node{Name: "a", StaticOutputs: []string{"out0"}}))
	require.NoError(t, g.AddNode(&Node{Name: "b", StaticInputs: []string{"in0"}}))

	err := g.AddConnection(Connection{FromNode: "a", FromPort: "missing", ToNode: "b", ToPort: "in0"})
	require.Error(t, err)

	require.NoError(t, g.AddConnection(Connection{FromNode: "a", FromPort: "out0", ToNode: "b", ToPort: "in0", Width: 1}))

	err = g.AddConnection(Connection{FromNode: "a", FromPort: "out0", ToNode: "b", ToPort: "in0", Width: 1})
	require.Error(t, err)
}

func TestRenameNodeRewritesConnections(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode(&Node{Name: "a", StaticOutputs: []string{"out0"}}))
	require.NoError(t, g.AddNode(&Node{Name: "b", StaticInputs: []string{"in0"}}))
	require.NoError(t, g.AddConnection(Connection{FromNode: "a", FromPort: "out0", ToNode: "b", ToPort: "in0"}))

	require.NoError(t, g.RenameNode("a", "a2"))

	conns := g.Connections()
	require.Len(t, conns, 1)
	require.Equal(t, "a2", conns[0].FromNode)
}

func TestProtectedNodeCannotBeRenamedOrDeleted(t *testing.T) {
	comp := NewCompositeFilter("comp1")
	err := comp.Graph.RenameNode(CompositeInputNode, "x")
	require.Error(t, err)
	err = comp.Graph.RemoveNode(CompositeOutputNode)
	require.Error(t, err)
}

func TestExpandFlatGraphNoComposites(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode(&Node{Name: "src", StaticOutputs: []string{"out0"}}))
	require.NoError(t, g.AddNode(&Node{Name: "sink", StaticInputs: []string{"in0"}}))
	require.NoError(t, g.AddConnection(Connection{FromNode: "src", FromPort: "out0", ToNode: "sink", ToPort: "in0", Width: 1}))

	conns, assignments, err := Expand(g, func(string) (*SubConfiguration, bool) { return nil, false }, "main")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	require.Equal(t, "src", conns[0].FromNode)
	require.Equal(t, "sink", conns[0].ToNode)
	require.Equal(t, "main", assignments["src"])
	require.Equal(t, "main", assignments["sink"])
}

func TestExpandCollapsesCompositeBoundaryToInteriorFilter(t *testing.T) {
	comp := NewCompositeFilter("comp1")
	in, _ := comp.Graph.Node(CompositeInputNode)
	in.DynamicOutputs = []string{"in0"}
	out, _ := comp.Graph.Node(CompositeOutputNode)
	out.DynamicInputs = []string{"out0"}

	require.NoError(t, comp.Graph.AddNode(&Node{Name: "inner", StaticInputs: []string{"in0"}, StaticOutputs: []string{"out0"}}))
	require.NoError(t, comp.Graph.AddConnection(Connection{FromNode: CompositeInputNode, FromPort: "in0", ToNode: "inner", ToPort: "in0"}))
	require.NoError(t, comp.Graph.AddConnection(Connection{FromNode: "inner", FromPort: "out0", ToNode: CompositeOutputNode, ToPort: "out0"}))

	root := New()
	require.NoError(t, root.AddNode(&Node{Name: "producer", StaticOutputs: []string{"out0"}}))
	require.NoError(t, root.AddNode(&Node{
		Name: "ref", Library: "composite://ref", Factory: "comp1",
		StaticInputs: []string{"in0"}, StaticOutputs: []string{"out0"},
	}))
	require.NoError(t, root.AddNode(&Node{Name: "sink", StaticInputs: []string{"in0"}}))
	require.NoError(t, root.AddConnection(Connection{FromNode: "producer", FromPort: "out0", ToNode: "ref", ToPort: "in0"}))
	require.NoError(t, root.AddConnection(Connection{FromNode: "ref", FromPort: "out0", ToNode: "sink", ToPort: "in0"}))

	lookup := func(name string) (*SubConfiguration, bool) {
		if name == "comp1" {
			return comp, true
		}
		return nil, false
	}

	conns, assignments, err := Expand(root, lookup, "main")
	require.NoError(t, err)
	require.Equal(t, "main", assignments["ref.inner"])

	// No CompositeInput/CompositeOutput node survives expansion: the
	// producer connects straight to the interior filter, and the
	// interior filter connects straight to the sink.
	require.Len(t, conns, 2)
	byEnds := map[string]bool{}
	for _, c := range conns {
		require.NotContains(t, c.FromNode, CompositeInputNode)
		require.NotContains(t, c.FromNode, CompositeOutputNode)
		require.NotContains(t, c.ToNode, CompositeInputNode)
		require.NotContains(t, c.ToNode, CompositeOutputNode)
		byEnds[c.FromNode+"."+c.FromPort+"->"+c.ToNode+"."+c.ToPort] = true
	}
	require.True(t, byEnds["producer.out0->ref.inner.in0"])
	require.True(t, byEnds["ref.inner.out0->sink.in0"])

	_, hasInputNode := assignments["ref."+CompositeInputNode]
	_, hasOutputNode := assignments["ref."+CompositeOutputNode]
	require.False(t, hasInputNode)
	require.False(t, hasOutputNode)
}

func TestExpandFanOutThroughCompositeInputPort(t *testing.T) {
	comp := NewCompositeFilter("comp1")
	in, _ := comp.Graph.Node(CompositeInputNode)
	in.DynamicOutputs = []string{"in0"}

	require.NoError(t, comp.Graph.AddNode(&Node{Name: "a", StaticInputs: []string{"in0"}}))
	require.NoError(t, comp.Graph.AddNode(&Node{Name: "b", StaticInputs: []string{"in0"}}))
	require.NoError(t, comp.Graph.AddConnection(Connection{FromNode: CompositeInputNode, FromPort: "in0", ToNode: "a", ToPort: "in0"}))
	require.NoError(t, comp.Graph.AddConnection(Connection{FromNode: CompositeInputNode, FromPort: "in0", ToNode: "b", ToPort: "in0"}))

	root := New()
	require.NoError(t, root.AddNode(&Node{Name: "producer", StaticOutputs: []string{"out0"}}))
	require.NoError(t, root.AddNode(&Node{
		Name: "ref", Library: "composite://ref", Factory: "comp1",
		StaticInputs: []string{"in0"},
	}))
	require.NoError(t, root.AddConnection(Connection{FromNode: "producer", FromPort: "out0", ToNode: "ref", ToPort: "in0"}))

	lookup := func(name string) (*SubConfiguration, bool) {
		if name == "comp1" {
			return comp, true
		}
		return nil, false
	}

	conns, _, err := Expand(root, lookup, "main")
	require.NoError(t, err)
	require.Len(t, conns, 2)

	byEnds := map[string]bool{}
	for _, c := range conns {
		byEnds[c.FromNode+"."+c.FromPort+"->"+c.ToNode+"."+c.ToPort] = true
	}
	require.True(t, byEnds["producer.out0->ref.a.in0"])
	require.True(t, byEnds["producer.out0->ref.b.in0"])
}

func TestExpandUnconnectedCompositePortYieldsNoEdge(t *testing.T) {
	comp := NewCompositeFilter("comp1")
	in, _ := comp.Graph.Node(CompositeInputNode)
	in.DynamicOutputs = []string{"in0"}
	// in0 is declared but never wired to anything inside comp1.

	root := New()
	require.NoError(t, root.AddNode(&Node{Name: "producer", StaticOutputs: []string{"out0"}}))
	require.NoError(t, root.AddNode(&Node{
		Name: "ref", Library: "composite://ref", Factory: "comp1",
		StaticInputs: []string{"in0"},
	}))
	require.NoError(t, root.AddConnection(Connection{FromNode: "producer", FromPort: "out0", ToNode: "ref", ToPort: "in0"}))

	lookup := func(name string) (*SubConfiguration, bool) {
		if name == "comp1" {
			return comp, true
		}
		return nil, false
	}

	conns, _, err := Expand(root, lookup, "main")
	require.NoError(t, err)
	require.Empty(t, conns)
}

func TestExpandDetectsCompositeRecursion(t *testing.T) {
	comp := NewCompositeFilter("comp1")
	require.NoError(t, comp.Graph.AddNode(&Node{Name: "ref", Library: "composite://ref", Factory: "comp1"}))

	root := New()
	require.NoError(t, root.AddNode(&Node{Name: "ref", Library: "composite://ref", Factory: "comp1"}))

	lookup := func(name string) (*SubConfiguration, bool) {
		if name == "comp1" {
			return comp, true
		}
		return nil, false
	}

	_, _, err := Expand(root, lookup, "main")
	require.Error(t, err)
}
