// Package pluginloader resolves a filter library URL and factory name to
// a filter constructor, supporting four URL schemes: pyfile://,
// binary://, entry_point://, and pymod://.
package pluginloader

import (
	"context"
	"fmt"
	"net/url"
	"os"
	goplugin "plugin"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/tetratelabs/wazero"

	"github.com/nexxt-run/nexxt/filter"
	"github.com/nexxt-run/nexxt/nxerrors"
	"github.com/nexxt-run/nexxt/nxlog"
)

// Constructor builds a new filter instance. Native and entry_point
// sources resolve directly to a Constructor; script sources (pyfile,
// pymod) are wrapped in a wasmFilter adapter that calls into a compiled
// WASM module's exports.
type Constructor func() (filter.Filter, error)

type entryPointEntry struct {
	constructor Constructor
	constraint  string
}

var (
	regMu        sync.RWMutex
	entryPoints  = map[string]entryPointEntry{}
	nexxtVersion = "0.0.0"
)

// SetVersion records the running nexxt version used to evaluate
// entry_point:// version constraints. Called once at startup from
// cmd/nexxt with the value reported by the version package.
func SetVersion(v string) {
	regMu.Lock()
	defer regMu.Unlock()
	nexxtVersion = v
}

// RegisterEntryPoint publishes a statically-linked filter constructor
// under name, gated by a semver constraint evaluated against the
// running nexxt version (e.g. ">= 1.0.0, < 2.0.0"). An empty constraint
// matches any version.
func RegisterEntryPoint(name, constraint string, ctor Constructor) {
	regMu.Lock()
	defer regMu.Unlock()
	entryPoints[name] = entryPointEntry{constructor: ctor, constraint: constraint}
}

// Loader resolves library URLs, caching native and script handles by
// URL so a second reference to the same library reuses the loaded
// artifact. Unload is deferred: native libraries are
// never explicitly unloaded since Go's plugin package provides no
// mechanism to do so safely, and prematurely dropping the compiled WASM
// module could crash holders of stale filter instances.
type Loader struct {
	mu      sync.Mutex
	natives map[string]*goplugin.Plugin
	runtime wazero.Runtime
	modules map[string]wazero.CompiledModule
}

// New creates an empty Loader. The WASM runtime is constructed lazily on
// first script load so processes that never use pyfile:///pymod:// pay
// no wazero startup cost.
func New() *Loader {
	return &Loader{
		natives: map[string]*goplugin.Plugin{},
		modules: map[string]wazero.CompiledModule{},
	}
}

// Close releases the WASM runtime, if one was started.
func (l *Loader) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.runtime != nil {
		return l.runtime.Close(ctx)
	}
	return nil
}

// Create resolves libraryURL+factory into a new filter instance.
func (l *Loader) Create(ctx context.Context, libraryURL, factory string) (filter.Filter, error) {
	u, err := url.Parse(libraryURL)
	if err != nil {
		return nil, nxerrors.Wrapf(nxerrors.ErrPluginScheme, "invalid library URL %q: %v", libraryURL, err)
	}

	switch u.Scheme {
	case "binary":
		return l.createBinary(u, factory)
	case "entry_point":
		return l.createEntryPoint(entryPointName(u))
	case "pyfile", "pymod":
		return l.createScript(ctx, u, factory)
	default:
		return nil, nxerrors.Wrapf(nxerrors.ErrPluginScheme, "unsupported library scheme %q", u.Scheme)
	}
}

func entryPointName(u *url.URL) string {
	if u.Opaque != "" {
		return u.Opaque
	}
	return u.Host + u.Path
}

// createBinary loads a native Go plugin (.so) and resolves factory as a
// symbol of type func() (filter.Filter, error).
func (l *Loader) createBinary(u *url.URL, factory string) (filter.Filter, error) {
	path := u.Path
	if path == "" {
		path = u.Opaque
	}

	l.mu.Lock()
	p, cached := l.natives[path]
	l.mu.Unlock()

	if !cached {
		var err error
		p, err = goplugin.Open(path)
		if err != nil {
			return nil, nxerrors.Wrapf(nxerrors.ErrPluginLoadFailed, "opening native library %s: %v", path, err)
		}
		l.mu.Lock()
		l.natives[path] = p
		l.mu.Unlock()
	}

	sym, err := p.Lookup(factory)
	if err != nil {
		return nil, nxerrors.Wrapf(nxerrors.ErrPluginFactoryUnknown, "factory %s not found in %s: %v", factory, path, err)
	}
	ctor, ok := sym.(func() (filter.Filter, error))
	if !ok {
		return nil, nxerrors.Wrapf(nxerrors.ErrPluginFactoryUnknown, "symbol %s in %s has wrong type", factory, path)
	}
	return ctor()
}

// createEntryPoint resolves a statically-registered filter constructor,
// checking its semver constraint against the running version.
func (l *Loader) createEntryPoint(name string) (filter.Filter, error) {
	regMu.RLock()
	entry, ok := entryPoints[name]
	version := nexxtVersion
	regMu.RUnlock()

	if !ok {
		return nil, nxerrors.Wrapf(nxerrors.ErrPluginFactoryUnknown, "entry point %s not registered", name)
	}
	if entry.constraint != "" {
		v, err := semver.NewVersion(version)
		if err != nil {
			return nil, nxerrors.Wrapf(nxerrors.ErrPluginVersion, "invalid running version %q: %v", version, err)
		}
		c, err := semver.NewConstraint(entry.constraint)
		if err != nil {
			return nil, nxerrors.Wrapf(nxerrors.ErrPluginVersion, "invalid constraint %q for %s: %v", entry.constraint, name, err)
		}
		if !c.Check(v) {
			return nil, nxerrors.Wrapf(nxerrors.ErrPluginVersion, "entry point %s requires %s, running %s", name, entry.constraint, version)
		}
	}
	return entry.constructor()
}

// createScript compiles (or reuses the cached compilation of) a WASM
// module and wraps it as a filter.Filter via wasmFilter. pyfile:// and
// pymod:// URLs name a compiled WASM module rather than source text, so
// script filters run sandboxed instead of through an embedded
// interpreter.
func (l *Loader) createScript(ctx context.Context, u *url.URL, factory string) (filter.Filter, error) {
	path := u.Path
	if path == "" {
		path = u.Opaque
	}

	l.mu.Lock()
	if l.runtime == nil {
		l.runtime = wazero.NewRuntime(ctx)
	}
	mod, cached := l.modules[path]
	rt := l.runtime
	l.mu.Unlock()

	if !cached {
		wasmBytes, err := os.ReadFile(path)
		if err != nil {
			return nil, nxerrors.Wrapf(nxerrors.ErrPluginLoadFailed, "reading wasm module %s: %v", path, err)
		}
		compiled, err := rt.CompileModule(ctx, wasmBytes)
		if err != nil {
			return nil, nxerrors.Wrapf(nxerrors.ErrPluginLoadFailed, "compiling wasm module %s: %v", path, err)
		}
		l.mu.Lock()
		l.modules[path] = compiled
		l.mu.Unlock()
		mod = compiled
	}

	instance, err := rt.InstantiateModule(ctx, mod, wazero.NewModuleConfig().WithName(fmt.Sprintf("%s#%s", path, factory)))
	if err != nil {
		return nil, nxerrors.Wrapf(nxerrors.ErrPluginLoadFailed, "instantiating wasm module %s: %v", path, err)
	}

	nxlog.Debugw("loaded script filter", "path", path, "factory", factory)
	return newWasmFilter(ctx, instance, factory), nil
}
