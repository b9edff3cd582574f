package graph

import (
	"fmt"

	"github.com/nexxt-run/nexxt/nxerrors"
)

// CompositeLookup resolves a composite filter's name to its
// SubConfiguration, as stored on a Configuration.
type CompositeLookup func(name string) (*SubConfiguration, bool)

// ExpandedConnection is a fully-resolved connection produced by Expand:
// composite boundaries have been substituted away, leaving only concrete
// producer-to-consumer pairs with a width for queue sizing.
type ExpandedConnection struct {
	FromNode string // fully-qualified, e.g. "comp1.inner"
	FromPort string
	ToNode   string
	ToPort   string
	Width    int
}

// ThreadAssignment maps a fully-qualified filter name to its thread
// label.
type ThreadAssignment map[string]string

// resolvedEnd is one concrete (node, port) endpoint, already fully
// qualified and guaranteed not to be a composite boundary node.
type resolvedEnd struct {
	node string
	port string
}

// boundary collects, for one composite instance, the real interior
// endpoints its CompositeInput/CompositeOutput ports forward to or from.
// in[portName] lists every concrete consumer fed by that input port;
// out[portName] lists every concrete producer feeding that output port.
// Both are built bottom-up, so by the time a composite's boundary is
// handed to its caller, every endpoint in it is already concrete: no
// CompositeInput/CompositeOutput node ever appears in a final
// ExpandedConnection or ThreadAssignment.
type boundary struct {
	in  map[string][]resolvedEnd
	out map[string][]resolvedEnd
}

func newBoundary() *boundary {
	return &boundary{in: map[string][]resolvedEnd{}, out: map[string][]resolvedEnd{}}
}

// Expand recursively substitutes every composite-reference node in root
// with its subgraph, threading external connections straight through to
// the concrete interior filter each composite boundary resolves to, and
// returns the flattened connection list and thread assignments.
// defaultThread is used for any node whose "_nexxT.thread" property is
// unset. No CompositeInput/CompositeOutput node survives expansion: they
// exist only to route connections during the recursion and never appear
// in the result or get a thread assignment.
func Expand(root *Graph, lookup CompositeLookup, defaultThread string) ([]ExpandedConnection, ThreadAssignment, error) {
	assignments := ThreadAssignment{}
	conns, _, err := expandGraph(root, "", lookup, defaultThread, map[string]bool{}, assignments)
	if err != nil {
		return nil, nil, err
	}
	return conns, assignments, nil
}

// expandGraph expands g, whose nodes are prefixed by prefix (empty for
// the root graph). visiting tracks the composite names currently being
// expanded on this path: composite references must form an acyclic
// dependency graph, and recursion is a defined error. It returns g's own
// flattened interior connections (excluding anything that merely
// forwards through g's own boundary nodes) plus g's boundary map, which
// the caller uses to resolve any external connection that terminates on
// a composite reference to g.
func expandGraph(g *Graph, prefix string, lookup CompositeLookup, defaultThread string, visiting map[string]bool, assignments ThreadAssignment) ([]ExpandedConnection, *boundary, error) {
	concreteConns := []ExpandedConnection{}
	childBoundaries := map[string]*boundary{} // composite ref node name (local to g) -> its resolved boundary

	for _, n := range g.Nodes() {
		fq := qualify(prefix, n.Name)
		switch {
		case n.Library == "composite://ref":
			compName := n.Factory
			if visiting[compName] {
				return nil, nil, nxerrors.Wrapf(nxerrors.ErrCompositeRecursion, "composite %s recursively references itself", compName)
			}
			sub, ok := lookup(compName)
			if !ok {
				return nil, nil, nxerrors.Wrapf(nxerrors.ErrNodeNotFound, "composite %s not found", compName)
			}

			visiting[compName] = true
			innerConns, innerBoundary, err := expandGraph(sub.Graph, fq, lookup, defaultThread, visiting, assignments)
			delete(visiting, compName)
			if err != nil {
				return nil, nil, err
			}
			concreteConns = append(concreteConns, innerConns...)
			childBoundaries[n.Name] = innerBoundary
		case n.Library == "composite://port":
			// g's own boundary node: virtual, never gets a thread
			// assignment or survives into the result as a real node.
			continue
		default:
			assignments[fq] = threadOf(n, defaultThread)
		}
	}

	own := newBoundary()

	for _, c := range g.Connections() {
		fromEnds, err := resolveEnd(g, c.FromNode, c.FromPort, prefix, childBoundaries, true)
		if err != nil {
			return nil, nil, err
		}
		toEnds, err := resolveEnd(g, c.ToNode, c.ToPort, prefix, childBoundaries, false)
		if err != nil {
			return nil, nil, err
		}

		fromIsInput := c.FromNode == CompositeInputNode
		toIsOutput := c.ToNode == CompositeOutputNode

		for _, from := range fromEnds {
			for _, to := range toEnds {
				if fromIsInput {
					own.in[c.FromPort] = append(own.in[c.FromPort], to)
				}
				if toIsOutput {
					own.out[c.ToPort] = append(own.out[c.ToPort], from)
				}
				if fromIsInput || toIsOutput {
					continue // pure boundary forwarding, not a real edge at this level
				}
				concreteConns = append(concreteConns, ExpandedConnection{
					FromNode: from.node, FromPort: from.port,
					ToNode: to.node, ToPort: to.port,
					Width: c.Width,
				})
			}
		}
	}

	own.resolvePassthrough(prefix)

	return concreteConns, own, nil
}

// resolvePassthrough collapses the rare case of a composite wiring its
// own CompositeInput port straight to its own CompositeOutput port with
// no interior filter in between: without this, the direct connection
// would leave own.in/own.out holding a reference to this composite's own
// boundary node instead of the real endpoint on the other side.
// Self-referencing ports (a composite wired back into itself with no
// interior hop) are dropped rather than followed forever.
func (b *boundary) resolvePassthrough(prefix string) {
	inNode := qualify(prefix, CompositeInputNode)
	outNode := qualify(prefix, CompositeOutputNode)

	var resolve func(node, port string, visiting map[string]bool) []resolvedEnd
	resolve = func(node, port string, visiting map[string]bool) []resolvedEnd {
		key := node + "." + port
		if visiting[key] {
			return nil
		}
		visiting[key] = true

		var src []resolvedEnd
		if node == inNode {
			src = b.in[port]
		} else {
			src = b.out[port]
		}
		out := make([]resolvedEnd, 0, len(src))
		for _, e := range src {
			if e.node == inNode || e.node == outNode {
				out = append(out, resolve(e.node, e.port, visiting)...)
				continue
			}
			out = append(out, e)
		}
		return out
	}

	resolved := map[string][]resolvedEnd{}
	for port := range b.in {
		resolved[port] = resolve(inNode, port, map[string]bool{})
	}
	b.in = resolved

	resolved = map[string][]resolvedEnd{}
	for port := range b.out {
		resolved[port] = resolve(outNode, port, map[string]bool{})
	}
	b.out = resolved
}

// resolveEnd resolves one side of a connection declared in g. When the
// node is a plain filter, it returns its single fully-qualified (node,
// port). When the node is a composite reference, the connection actually
// terminates inside that composite: isSource selects whether we want the
// concrete producers feeding the composite's output port (isSource=true,
// i.e. this composite instance is the "from" of an external connection)
// or the concrete consumers fed by the composite's input port
// (isSource=false). Either way the result is already fully resolved by
// the time childBoundaries was built, so no boundary node is ever
// returned. A composite port with nothing wired to it internally
// resolves to zero ends, which the caller's cartesian-product loop turns
// into zero edges: a legal, silently-unconnected port rather than an
// error.
func resolveEnd(g *Graph, nodeName, portName, prefix string, childBoundaries map[string]*boundary, isSource bool) ([]resolvedEnd, error) {
	n, ok := g.Node(nodeName)
	if !ok {
		return nil, nxerrors.Wrapf(nxerrors.ErrNodeNotFound, "node %s not found", nodeName)
	}
	if n.Library != "composite://ref" {
		return []resolvedEnd{{node: qualify(prefix, nodeName), port: portName}}, nil
	}

	b, ok := childBoundaries[nodeName]
	if !ok || b == nil {
		return nil, nxerrors.Wrapf(nxerrors.ErrInternal, "composite reference %s has no resolved boundary", nodeName)
	}
	if isSource {
		return b.out[portName], nil
	}
	return b.in[portName], nil
}

func qualify(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return fmt.Sprintf("%s.%s", prefix, name)
}

func threadOf(n *Node, defaultThread string) string {
	if raw, ok := n.Properties["_nexxT.thread"]; ok {
		if s, ok := raw.(string); ok && s != "" {
			return s
		}
	}
	if n.Thread != "" {
		return n.Thread
	}
	return defaultThread
}
