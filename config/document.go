package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nexxt-run/nexxt/graph"
	"github.com/nexxt-run/nexxt/nxerrors"
)

// Document is the top-level JSON configuration file: a CFGFILE path
// (injected at load, not persisted), an opaque GUI state blob, a
// variable scope, and the composite filters and applications defined
// in this file.
type Document struct {
	CFGFile          string                   `json:"-"`
	GUIState         json.RawMessage          `json:"_guiState,omitempty"`
	Variables        map[string]string        `json:"variables,omitempty"`
	CompositeFilters []*subConfigDoc          `json:"composite_filters,omitempty"`
	Applications     []*subConfigDoc          `json:"applications,omitempty"`
}

type subConfigDoc struct {
	Name        string          `json:"name"`
	Nodes       []*nodeDoc      `json:"nodes"`
	Connections []string        `json:"connections"`
	GUIState    json.RawMessage `json:"_guiState,omitempty"`
	Properties  map[string]interface{} `json:"properties,omitempty"`
}

type nodeDoc struct {
	Name              string                 `json:"name"`
	Library           string                 `json:"library"`
	FactoryFunction   string                 `json:"factoryFunction"`
	Thread            string                 `json:"thread,omitempty"`
	Properties        map[string]interface{} `json:"properties,omitempty"`
	DynamicInputPorts []string               `json:"dynamicInputPorts,omitempty"`
	StaticInputPorts  []string               `json:"staticInputPorts,omitempty"`
	DynamicOutputPorts []string              `json:"dynamicOutputPorts,omitempty"`
	StaticOutputPorts []string               `json:"staticOutputPorts,omitempty"`
}

// Load reads and parses a nexxT graph configuration file, seeding the
// CFGFILE field from path. CFGFILE is injected at load time and never
// persisted back to disk.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nxerrors.Wrapf(err, "reading config %s", path)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nxerrors.Wrapf(nxerrors.ErrPropertyParse, "parsing config %s: %v", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	doc.CFGFile = abs
	return &doc, nil
}

// Save writes doc back to path as indented JSON, the inverse of Load,
// omitting CFGFile since it is a load-time derived value, not a
// persisted one.
func Save(doc *Document, path string) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nxerrors.Wrapf(err, "marshaling config")
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return nxerrors.Wrapf(err, "writing config %s", path)
	}
	return nil
}

// SaveWithBackup rotates up to three numbered backups (.back3, the
// oldest, is dropped; .back2 shifts to .back3, .back1 to .back2, and the
// previous file content to .back1) before writing the new content, so a
// bad save never destroys the last three known-good versions.
func SaveWithBackup(doc *Document, path string) error {
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path + ".back3")
		_ = os.Rename(path+".back2", path+".back3")
		_ = os.Rename(path+".back1", path+".back2")
		if err := os.Rename(path, path+".back1"); err != nil {
			return nxerrors.Wrapf(err, "rotating backup for %s", path)
		}
	}
	return Save(doc, path)
}

// ToGraph converts every composite filter and application subsection of
// the document into graph.SubConfiguration values, returned as two maps
// keyed by name (composites, then applications). Lookup wraps the
// composites map as the resolver graph.Expand takes.
func (d *Document) ToGraph() (composites map[string]*graph.SubConfiguration, apps map[string]*graph.SubConfiguration, err error) {
	composites = map[string]*graph.SubConfiguration{}
	apps = map[string]*graph.SubConfiguration{}

	for _, cd := range d.CompositeFilters {
		sub, err := cd.toSubConfiguration(graph.CompositeFilterKind)
		if err != nil {
			return nil, nil, nxerrors.Wrapf(err, "composite filter %s", cd.Name)
		}
		composites[cd.Name] = sub
	}
	for _, ad := range d.Applications {
		sub, err := ad.toSubConfiguration(graph.ApplicationKind)
		if err != nil {
			return nil, nil, nxerrors.Wrapf(err, "application %s", ad.Name)
		}
		apps[ad.Name] = sub
	}
	return composites, apps, nil
}

// Lookup returns a graph.CompositeLookup closed over this document's
// composite filters, suitable for passing to graph.Expand.
func (d *Document) Lookup() (graph.CompositeLookup, error) {
	composites, _, err := d.ToGraph()
	if err != nil {
		return nil, err
	}
	return func(name string) (*graph.SubConfiguration, bool) {
		sub, ok := composites[name]
		return sub, ok
	}, nil
}

func (sd *subConfigDoc) toSubConfiguration(kind graph.Kind) (*graph.SubConfiguration, error) {
	var sub *graph.SubConfiguration
	if kind == graph.CompositeFilterKind {
		sub = graph.NewCompositeFilter(sd.Name)
	} else {
		sub = graph.NewApplication(sd.Name)
	}

	for _, nd := range sd.Nodes {
		if nd.Name == graph.CompositeInputNode || nd.Name == graph.CompositeOutputNode {
			// Boundary nodes are pre-installed by NewCompositeFilter;
			// skip re-adding them but still merge declared properties.
			if n, ok := sub.Graph.Node(nd.Name); ok {
				n.Properties = nd.Properties
			}
			continue
		}
		n := &graph.Node{
			Name:               nd.Name,
			Library:            nd.Library,
			Factory:            nd.FactoryFunction,
			Thread:             nd.Thread,
			Properties:         nd.Properties,
			StaticInputs:       nd.StaticInputPorts,
			StaticOutputs:      nd.StaticOutputPorts,
			DynamicInputs:      nd.DynamicInputPorts,
			DynamicOutputs:     nd.DynamicOutputPorts,
		}
		if nd.Library == "composite://ref" {
			// Referenced composite instances expose their parent's
			// boundary ports as their own static ports so AddConnection
			// validation in graph.Graph succeeds; full resolution to
			// the referenced composite's actual ports happens later in
			// graph.Expand.
			n.StaticInputs = append(n.StaticInputs, nd.StaticInputPorts...)
			n.StaticOutputs = append(n.StaticOutputs, nd.StaticOutputPorts...)
		}
		if err := sub.Graph.AddNode(n); err != nil {
			return nil, err
		}
	}

	for _, raw := range sd.Connections {
		conn, err := parseConnectionString(raw)
		if err != nil {
			return nil, err
		}
		if err := sub.Graph.AddConnection(conn); err != nil {
			return nil, err
		}
	}

	if err := sub.Properties.LoadFromConfig(sd.Properties); err != nil {
		return nil, err
	}

	return sub, nil
}

// parseConnectionString parses the "fromNode.fromPort -> toNode.toPort"
// connection syntax, with an optional trailing ":width" on the to-port.
func parseConnectionString(raw string) (graph.Connection, error) {
	parts := strings.SplitN(raw, "->", 2)
	if len(parts) != 2 {
		return graph.Connection{}, nxerrors.Wrapf(nxerrors.ErrPropertyParse, "malformed connection %q", raw)
	}
	from, err := splitNodePort(parts[0])
	if err != nil {
		return graph.Connection{}, err
	}

	toRaw := strings.TrimSpace(parts[1])
	width := 1
	if idx := strings.LastIndex(toRaw, ":"); idx >= 0 {
		if w, werr := strconv.Atoi(strings.TrimSpace(toRaw[idx+1:])); werr == nil {
			width = w
			toRaw = toRaw[:idx]
		}
	}
	to, err := splitNodePort(toRaw)
	if err != nil {
		return graph.Connection{}, err
	}
	return graph.Connection{FromNode: from[0], FromPort: from[1], ToNode: to[0], ToPort: to[1], Width: width}, nil
}

func splitNodePort(s string) ([2]string, error) {
	s = strings.TrimSpace(s)
	idx := strings.LastIndex(s, ".")
	if idx < 0 {
		return [2]string{}, nxerrors.Wrapf(nxerrors.ErrPropertyParse, "malformed node.port reference %q", s)
	}
	return [2]string{s[:idx], s[idx+1:]}, nil
}

// FromGraph converts an in-memory SubConfiguration back into the
// serializable document shape, the inverse half of ToGraph used by
// Save. Connection width is recorded as a synthetic ":<n>" suffix only
// when it differs from 1, keeping the common case's string
// human-readable.
func FromGraph(sub *graph.SubConfiguration) *subConfigDoc {
	sd := &subConfigDoc{Name: sub.Name, Properties: sub.Properties.ToConfig()}

	for _, n := range sub.Graph.Nodes() {
		sd.Nodes = append(sd.Nodes, &nodeDoc{
			Name:               n.Name,
			Library:            n.Library,
			FactoryFunction:    n.Factory,
			Thread:             n.Thread,
			Properties:         n.Properties,
			StaticInputPorts:   n.StaticInputs,
			StaticOutputPorts:  n.StaticOutputs,
			DynamicInputPorts:  n.DynamicInputs,
			DynamicOutputPorts: n.DynamicOutputs,
		})
	}

	conns := sub.Graph.Connections()
	sort.Slice(conns, func(i, j int) bool {
		return connString(conns[i]) < connString(conns[j])
	})
	for _, c := range conns {
		sd.Connections = append(sd.Connections, connString(c))
	}
	return sd
}

func connString(c graph.Connection) string {
	if c.Width != 1 {
		return fmt.Sprintf("%s.%s -> %s.%s:%s", c.FromNode, c.FromPort, c.ToNode, c.ToPort, strconv.Itoa(c.Width))
	}
	return fmt.Sprintf("%s.%s -> %s.%s", c.FromNode, c.FromPort, c.ToNode, c.ToPort)
}
