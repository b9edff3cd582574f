// Package graph implements the nexxT graph model: Nodes, Connections,
// and SubConfigurations (Application/CompositeFilter) with composite
// expansion.
package graph

import (
	"fmt"
	"regexp"

	"github.com/nexxt-run/nexxt/nxerrors"
	"github.com/nexxt-run/nexxt/property"
)

// identifierPattern is the grammar node and property names must satisfy:
// a letter or underscore, then any run of letters, digits, underscores,
// or hyphens.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

func validateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return nxerrors.Wrapf(nxerrors.ErrInvalidIdentifier, "%q is not a valid identifier", name)
	}
	return nil
}

// Boundary node names used by composite filters, installed under the
// "composite://port" synthetic library.
const (
	CompositeInputNode  = "CompositeInput"
	CompositeOutputNode = "CompositeOutput"
)

// Node is one vertex of a Graph: a named filter instance with its
// declared port names in insertion order.
type Node struct {
	Name       string
	Library    string // e.g. "composite://ref", "binary://...", "entry_point://..."
	Factory    string
	Thread     string
	Properties map[string]interface{}

	StaticInputs   []string
	StaticOutputs  []string
	DynamicInputs  []string
	DynamicOutputs []string

	// Protected marks boundary nodes (CompositeInput/CompositeOutput)
	// that may not be renamed or deleted.
	Protected bool
}

func (n *Node) hasInput(name string) bool {
	return contains(n.StaticInputs, name) || contains(n.DynamicInputs, name)
}

func (n *Node) hasOutput(name string) bool {
	return contains(n.StaticOutputs, name) || contains(n.DynamicOutputs, name)
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// Connection is a directed edge between two node ports, carrying a
// width used for queue sizing.
type Connection struct {
	FromNode string
	FromPort string
	ToNode   string
	ToPort   string
	Width    int
}

func (c Connection) key() string {
	return fmt.Sprintf("%s.%s->%s.%s", c.FromNode, c.FromPort, c.ToNode, c.ToPort)
}

// Graph is a directed multigraph of Nodes connected by Connections.
type Graph struct {
	nodes       map[string]*Node
	order       []string
	connections map[string]Connection
	connOrder   []string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:       map[string]*Node{},
		connections: map[string]Connection{},
	}
}

// AddNode registers n. Returns ErrInvalidIdentifier if n.Name doesn't
// match the node-name grammar, or ErrNodeExists if the name is taken.
func (g *Graph) AddNode(n *Node) error {
	if err := validateIdentifier(n.Name); err != nil {
		return err
	}
	if _, exists := g.nodes[n.Name]; exists {
		return nxerrors.Wrapf(nxerrors.ErrNodeExists, "node %s already exists", n.Name)
	}
	g.nodes[n.Name] = n
	g.order = append(g.order, n.Name)
	return nil
}

// Node returns the named node.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Nodes returns every node in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.nodes[name])
	}
	return out
}

// RemoveNode deletes a node and every connection touching it. Protected
// nodes cannot be removed.
func (g *Graph) RemoveNode(name string) error {
	n, ok := g.nodes[name]
	if !ok {
		return nxerrors.Wrapf(nxerrors.ErrNodeNotFound, "node %s not found", name)
	}
	if n.Protected {
		return nxerrors.Wrapf(nxerrors.ErrNodeProtected, "node %s is protected", name)
	}
	delete(g.nodes, name)
	g.order = removeString(g.order, name)

	for key, c := range g.connections {
		if c.FromNode == name || c.ToNode == name {
			delete(g.connections, key)
			g.connOrder = removeString(g.connOrder, key)
		}
	}
	return nil
}

// RenameNode renames a node and atomically rewrites every connection
// referencing it. Protected nodes cannot be renamed.
func (g *Graph) RenameNode(oldName, newName string) error {
	n, ok := g.nodes[oldName]
	if !ok {
		return nxerrors.Wrapf(nxerrors.ErrNodeNotFound, "node %s not found", oldName)
	}
	if n.Protected {
		return nxerrors.Wrapf(nxerrors.ErrNodeProtected, "node %s is protected", oldName)
	}
	if err := validateIdentifier(newName); err != nil {
		return err
	}
	if _, clash := g.nodes[newName]; clash {
		return nxerrors.Wrapf(nxerrors.ErrNodeExists, "node %s already exists", newName)
	}

	delete(g.nodes, oldName)
	n.Name = newName
	g.nodes[newName] = n
	for i, name := range g.order {
		if name == oldName {
			g.order[i] = newName
		}
	}

	newConns := map[string]Connection{}
	newOrder := make([]string, 0, len(g.connOrder))
	for _, key := range g.connOrder {
		c := g.connections[key]
		if c.FromNode == oldName {
			c.FromNode = newName
		}
		if c.ToNode == oldName {
			c.ToNode = newName
		}
		newConns[c.key()] = c
		newOrder = append(newOrder, c.key())
	}
	g.connections = newConns
	g.connOrder = newOrder
	return nil
}

// AddConnection validates and registers a Connection. Referenced ports
// must exist on their nodes and duplicate connections are rejected.
func (g *Graph) AddConnection(c Connection) error {
	from, ok := g.nodes[c.FromNode]
	if !ok {
		return nxerrors.Wrapf(nxerrors.ErrNodeNotFound, "connection references unknown node %s", c.FromNode)
	}
	to, ok := g.nodes[c.ToNode]
	if !ok {
		return nxerrors.Wrapf(nxerrors.ErrNodeNotFound, "connection references unknown node %s", c.ToNode)
	}
	if !from.hasOutput(c.FromPort) {
		return nxerrors.Wrapf(nxerrors.ErrPortNotFound, "node %s has no output port %s", c.FromNode, c.FromPort)
	}
	if !to.hasInput(c.ToPort) {
		return nxerrors.Wrapf(nxerrors.ErrPortNotFound, "node %s has no input port %s", c.ToNode, c.ToPort)
	}
	if _, exists := g.connections[c.key()]; exists {
		return nxerrors.Wrapf(nxerrors.ErrConnectionExists, "connection %s already exists", c.key())
	}
	g.connections[c.key()] = c
	g.connOrder = append(g.connOrder, c.key())
	return nil
}

// RemoveConnection deletes a previously-added connection.
func (g *Graph) RemoveConnection(c Connection) error {
	key := c.key()
	if _, exists := g.connections[key]; !exists {
		return nxerrors.Wrapf(nxerrors.ErrConnectionNotFound, "connection %s not found", key)
	}
	delete(g.connections, key)
	g.connOrder = removeString(g.connOrder, key)
	return nil
}

// Connections returns every connection in insertion order.
func (g *Graph) Connections() []Connection {
	out := make([]Connection, 0, len(g.connOrder))
	for _, key := range g.connOrder {
		out = append(out, g.connections[key])
	}
	return out
}

func removeString(xs []string, x string) []string {
	out := xs[:0:0]
	for _, v := range xs {
		if v != x {
			out = append(out, v)
		}
	}
	return out
}

// SubConfiguration is a named graph with its own root property
// collection: an Application (activatable) or CompositeFilter (reusable,
// with CompositeInput/CompositeOutput boundary nodes).
type SubConfiguration struct {
	Name       string
	Kind       Kind
	Graph      *Graph
	Properties *property.Collection
}

// Kind distinguishes the two SubConfiguration shapes.
type Kind int

const (
	ApplicationKind Kind = iota
	CompositeFilterKind
)

// NewApplication creates an empty, activatable application graph.
func NewApplication(name string) *SubConfiguration {
	return &SubConfiguration{
		Name:       name,
		Kind:       ApplicationKind,
		Graph:      New(),
		Properties: property.NewCollection(name),
	}
}

// NewCompositeFilter creates a reusable composite with its boundary
// nodes pre-installed and protected against rename/delete.
func NewCompositeFilter(name string) *SubConfiguration {
	g := New()
	_ = g.AddNode(&Node{Name: CompositeInputNode, Library: "composite://port", StaticOutputs: nil, Protected: true})
	_ = g.AddNode(&Node{Name: CompositeOutputNode, Library: "composite://port", StaticInputs: nil, Protected: true})
	return &SubConfiguration{
		Name:       name,
		Kind:       CompositeFilterKind,
		Graph:      g,
		Properties: property.NewCollection(name),
	}
}
