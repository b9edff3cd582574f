// Package property implements PropertyCollection, the hierarchical typed
// property tree that parameterizes filters and subconfigurations, and its
// attached Variables scope.
package property

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/nexxt-run/nexxt/nxerrors"
	"github.com/nexxt-run/nexxt/nxlog"
	"github.com/nexxt-run/nexxt/variable"
)

// identifierPattern is the grammar property names must satisfy: a letter
// or underscore, then any run of letters, digits, underscores, or
// hyphens.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Handler validates and marshals a single property's value. Built-in
// handlers exist for int, float, string-with-enum, and bool; a custom
// Handler may be supplied for other types.
type Handler interface {
	// FromConfig parses a JSON-decoded value (as produced by
	// encoding/json, so numbers arrive as float64) into the handler's
	// canonical Go representation.
	FromConfig(raw interface{}) (interface{}, error)
	// ToConfig converts a canonical value back into a JSON-marshalable
	// form.
	ToConfig(value interface{}) interface{}
	// ToViewValue renders value as a display string, for logs and a
	// future GUI.
	ToViewValue(value interface{}) string
	// Validate clamps or coerces value to the handler's constraints,
	// returning an error only when the value cannot be made to fit the
	// type at all (e.g. wrong Go type).
	Validate(value interface{}) (interface{}, error)
}

// property is one entry in a Collection.
type property struct {
	name        string
	value       interface{}
	defaultVal  interface{}
	help        string
	handler     Handler
	used        bool
}

// ChangeListener is notified when a property's value changes (not on
// equal-value writes).
type ChangeListener func(collection *Collection, name string, value interface{})

// Collection is one node in the PropertyCollection tree.
type Collection struct {
	mu sync.RWMutex

	name     string
	parent   *Collection
	children map[string]*Collection

	props map[string]*property
	order []string // insertion order, for deterministic Save output

	vars *variable.Scope

	listeners []ChangeListener
}

// NewCollection creates a root collection with its own Variables scope.
func NewCollection(name string) *Collection {
	return &Collection{
		name:     name,
		children: map[string]*Collection{},
		props:    map[string]*property{},
		vars:     variable.New(),
	}
}

// NewChildCollection creates and registers a child collection named
// name, whose Variables scope inherits from the parent's.
func (c *Collection) NewChildCollection(name string) (*Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.children[name]; exists {
		return nil, nxerrors.Wrapf(nxerrors.ErrCollectionExists, "child collection %s already exists under %s", name, c.name)
	}
	child := &Collection{
		name:     name,
		parent:   c,
		children: map[string]*Collection{},
		props:    map[string]*property{},
		vars:     variable.NewChild(c.vars),
	}
	c.children[name] = child
	return child, nil
}

// RemoveChildCollection deletes a previously-added child collection.
func (c *Collection) RemoveChildCollection(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.children[name]; !exists {
		return nxerrors.Wrapf(nxerrors.ErrCollectionNotFound, "child collection %s not found under %s", name, c.name)
	}
	delete(c.children, name)
	return nil
}

// RenameChildCollection renames a child, preserving its subtree.
func (c *Collection) RenameChildCollection(oldName, newName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	child, exists := c.children[oldName]
	if !exists {
		return nxerrors.Wrapf(nxerrors.ErrCollectionNotFound, "child collection %s not found under %s", oldName, c.name)
	}
	if _, clash := c.children[newName]; clash {
		return nxerrors.Wrapf(nxerrors.ErrCollectionExists, "child collection %s already exists under %s", newName, c.name)
	}
	delete(c.children, oldName)
	child.name = newName
	c.children[newName] = child
	return nil
}

func (c *Collection) Child(name string) (*Collection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	child, ok := c.children[name]
	return child, ok
}

func (c *Collection) Name() string { return c.name }

// Variables returns the collection's attached Variables scope.
func (c *Collection) Variables() *variable.Scope { return c.vars }

// AddChangeListener registers fn to be called whenever a property in this
// collection changes value.
func (c *Collection) AddChangeListener(fn ChangeListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// DefineProperty declares a property, returning its current value: the
// default if newly introduced, or the prior value if one is already
// stored (e.g. loaded from a configuration file before the filter that
// owns it was constructed). Repeated calls must match the original
// definition's default, help text, and handler identity; a mismatch
// raises ErrPropertyRedefinition.
func (c *Collection) DefineProperty(name string, def interface{}, help string, handler Handler) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !identifierPattern.MatchString(name) {
		return nil, nxerrors.Wrapf(nxerrors.ErrInvalidIdentifier, "%q is not a valid property name", name)
	}

	if p, exists := c.props[name]; exists {
		if p.handler == nil && p.defaultVal == nil && p.help == "" {
			// Stored by LoadFromConfig before any definition: adopt this
			// definition and validate the loaded raw value through handler.
			if handler != nil {
				parsed, err := handler.FromConfig(p.value)
				if err == nil {
					parsed, err = handler.Validate(parsed)
				}
				if err != nil {
					return nil, nxerrors.Wrapf(nxerrors.ErrPropertyParse, "property %s: %v", name, err)
				}
				p.value = parsed
			}
			p.defaultVal, p.help, p.handler, p.used = def, help, handler, true
			return p.value, nil
		}
		if !sameHandler(p.handler, handler) || !equalValue(p.defaultVal, def) || p.help != help {
			return nil, nxerrors.Wrapf(nxerrors.ErrPropertyRedefinition, "property %s redefined inconsistently on %s", name, c.name)
		}
		p.used = true
		return p.value, nil
	}

	c.props[name] = &property{
		name:       name,
		value:      def,
		defaultVal: def,
		help:       help,
		handler:    handler,
		used:       true,
	}
	c.order = append(c.order, name)
	return def, nil
}

func sameHandler(a, b Handler) bool {
	if a == nil || b == nil {
		return a == b
	}
	return fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
}

func equalValue(a, b interface{}) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// SetProperty validates and stores value. Equal-value writes suppress the
// change signal.
func (c *Collection) SetProperty(name string, value interface{}) error {
	c.mu.Lock()
	p, exists := c.props[name]
	if !exists {
		c.mu.Unlock()
		return nxerrors.Wrapf(nxerrors.ErrPropertyNotFound, "property %s not defined on %s", name, c.name)
	}
	if p.handler != nil {
		validated, err := p.handler.Validate(value)
		if err != nil {
			c.mu.Unlock()
			return nxerrors.Wrapf(err, "validating property %s on %s", name, c.name)
		}
		value = validated
	}
	if equalValue(p.value, value) {
		c.mu.Unlock()
		return nil
	}
	p.value = value
	listeners := append([]ChangeListener(nil), c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l(c, name, value)
	}
	return nil
}

// Property returns the current value of name.
func (c *Collection) Property(name string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.props[name]
	if !ok {
		return nil, false
	}
	return p.value, true
}

// MarkAllUnused flags every currently-defined property as unused, the
// first half of the redefinition cycle: callers then re-run
// DefineProperty for everything still wanted, and finally call
// DeleteUnused to prune what wasn't re-declared.
func (c *Collection) MarkAllUnused() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.props {
		p.used = false
	}
}

// DeleteUnused removes every property not marked used since the last
// MarkAllUnused call.
func (c *Collection) DeleteUnused() {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.order[:0:0]
	for _, name := range c.order {
		if c.props[name].used {
			kept = append(kept, name)
			continue
		}
		delete(c.props, name)
	}
	c.order = kept
}

// Names returns defined property names in definition order.
func (c *Collection) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// ToConfig marshals every defined property through its handler (or
// verbatim if it has none) into a name→value map suitable for JSON
// encoding.
func (c *Collection) ToConfig() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.props))
	for _, name := range c.order {
		p := c.props[name]
		if p.handler != nil {
			out[name] = p.handler.ToConfig(p.value)
		} else {
			out[name] = p.value
		}
	}
	return out
}

// LoadFromConfig stores raw (JSON-decoded) values into already-defined
// properties, running them through each handler's FromConfig. Properties
// present in raw but not yet defined are stored unhandled and validated
// lazily the first time DefineProperty is called for them, so a value
// loaded before its owning filter is constructed still takes effect.
func (c *Collection) LoadFromConfig(raw map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, v := range raw {
		p, exists := c.props[name]
		if !exists {
			c.props[name] = &property{name: name, value: v}
			c.order = append(c.order, name)
			continue
		}
		if p.handler != nil {
			parsed, err := p.handler.FromConfig(v)
			if err != nil {
				return nxerrors.Wrapf(nxerrors.ErrPropertyParse, "property %s: %v", name, err)
			}
			p.value = parsed
		} else {
			p.value = v
		}
	}
	return nil
}

// Describe logs a human-readable dump of the collection's properties.
func (c *Collection) Describe() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := append([]string(nil), c.order...)
	sort.Strings(names)
	for _, name := range names {
		p := c.props[name]
		view := fmt.Sprint(p.value)
		if p.handler != nil {
			view = p.handler.ToViewValue(p.value)
		}
		nxlog.Debugw("property", "collection", c.name, "name", name, "value", view)
	}
}
