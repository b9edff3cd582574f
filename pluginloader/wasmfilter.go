package pluginloader

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/nexxt-run/nexxt/filter"
	"github.com/nexxt-run/nexxt/nxlog"
	"github.com/nexxt-run/nexxt/port"
)

// wasmFilter adapts a compiled WASM module instance to the filter.Filter
// interface: each lifecycle callback invokes the module's matching
// export by name, if present. A module that omits an export is treated
// as a no-op for that callback, the WASM-side equivalent of embedding
// filter.Base.
type wasmFilter struct {
	filter.Base

	ctx     context.Context
	module  api.Module
	prefix  string
}

func newWasmFilter(ctx context.Context, module api.Module, factoryPrefix string) *wasmFilter {
	return &wasmFilter{ctx: ctx, module: module, prefix: factoryPrefix}
}

func (f *wasmFilter) OnInit(*filter.Environment) error  { return f.callLifecycle("on_init") }
func (f *wasmFilter) OnOpen(*filter.Environment) error  { return f.callLifecycle("on_open") }
func (f *wasmFilter) OnStart(*filter.Environment) error { return f.callLifecycle("on_start") }
func (f *wasmFilter) OnStop(*filter.Environment) error  { return f.callLifecycle("on_stop") }
func (f *wasmFilter) OnClose(*filter.Environment) error { return f.callLifecycle("on_close") }
func (f *wasmFilter) OnDeinit(*filter.Environment) error { return f.callLifecycle("on_deinit") }

// OnPortDataChanged invokes the module's "on_port_data_changed" export,
// if present, passing no sample payload across the ABI boundary. The
// script is expected to call back into the host to read port data via a
// narrower, module-specific import, out of scope for the minimal ABI
// implemented here.
func (f *wasmFilter) OnPortDataChanged(_ *filter.Environment, p *port.InputPort) error {
	return f.callLifecycle("on_port_data_changed")
}

func (f *wasmFilter) callLifecycle(export string) error {
	fn := f.module.ExportedFunction(export)
	if fn == nil {
		return nil
	}
	if _, err := fn.Call(f.ctx); err != nil {
		nxlog.Errorw("wasm filter callback failed", "export", export, "error", err.Error())
		return err
	}
	return nil
}
