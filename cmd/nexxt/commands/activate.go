// Package commands implements the nexxt CLI surface on top of cobra.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nexxt-run/nexxt/active"
	"github.com/nexxt-run/nexxt/config"
	"github.com/nexxt-run/nexxt/filter"
	"github.com/nexxt-run/nexxt/graph"
	"github.com/nexxt-run/nexxt/nxlog"
	"github.com/nexxt-run/nexxt/pluginloader"
	"github.com/nexxt-run/nexxt/version"
)

// Options collects the root command's flags, threaded down into
// RootCmd's RunE so the command itself stays a thin dispatcher.
type Options struct {
	ActiveApp              string
	LogFile                string
	Verbosity              string
	Quiet                  bool
	ExecPython             string
	ExecScript             string
	SingleThreaded         bool
	DisableUnloadHeuristic bool
	NoProfiling            bool
	SaveMemory             bool
	GUI                    bool
}

var opts Options

// RootCmd is the nexxt CLI entry point: nexxt [flags] CONFIGFILE.
var RootCmd = &cobra.Command{
	Use:   "nexxt CONFIGFILE",
	Short: "nexxt - extensible dataflow runtime for sensor and vision pipelines",
	Long: `nexxt loads a graph configuration file, activates one of its
applications, and drives the resulting filter graph until interrupted.

Examples:
  nexxt graph.json                    # activate the first application in the file
  nexxt graph.json --active=Pipeline  # activate a specific application
  nexxt graph.json --single-threaded  # force every filter onto one thread`,
	Args: cobra.ExactArgs(1),
	RunE: runActivate,
}

func init() {
	RootCmd.AddCommand(VersionCmd)

	f := RootCmd.Flags()
	f.StringVar(&opts.ActiveApp, "active", "", "name of the application to activate (default: first application in the file)")
	f.StringVar(&opts.LogFile, "logfile", "", "write logs to this file (a .db suffix selects the SQLite sink)")
	f.StringVar(&opts.Verbosity, "verbosity", "INFO", "log verbosity: INTERNAL, DEBUG, INFO, WARN, ERROR, FATAL, CRITICAL")
	f.BoolVar(&opts.Quiet, "quiet", false, "suppress the console log sink")
	f.StringVar(&opts.ExecPython, "execpython", "", "path to a WASM script module to run as a script filter (see pluginloader)")
	f.StringVar(&opts.ExecScript, "execscript", "", "alias for --execpython")
	f.BoolVar(&opts.SingleThreaded, "single-threaded", false, "force every filter onto the main thread, overriding per-node thread assignment")
	f.BoolVar(&opts.DisableUnloadHeuristic, "disable-unload-heuristic", false, "never unload a native plugin library once loaded")
	f.BoolVar(&opts.NoProfiling, "no-profiling", false, "disable the thread pool's periodic memory-pressure diagnostic")
	f.BoolVar(&opts.SaveMemory, "save-memory", false, "accepted for command-line compatibility; has no effect")
	f.BoolVar(&opts.GUI, "gui", false, "watch the configuration file for changes and live-reload it")
}

func runActivate(cmd *cobra.Command, args []string) error {
	if err := nxlog.Initialize(nxlog.Options{Verbosity: opts.Verbosity, LogFile: opts.LogFile, Quiet: opts.Quiet}); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer nxlog.Cleanup()

	pluginloader.SetVersion(version.Get().SemVer())

	cfgPath := args[0]
	doc, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	lookup, err := doc.Lookup()
	if err != nil {
		return err
	}
	_, apps, err := doc.ToGraph()
	if err != nil {
		return err
	}

	appName := opts.ActiveApp
	if appName == "" && len(doc.Applications) > 0 {
		appName = doc.Applications[0].Name
	}
	appSub, err := selectApplication(apps, appName)
	if err != nil {
		return err
	}

	config.SeedRootVariables(appSub.Properties, doc.CFGFile)
	for k, v := range doc.Variables {
		_ = appSub.Properties.Variables().Set(k, v)
	}

	loader := pluginloader.New()
	defer loader.Close(context.Background())

	factory := func(node *graph.Node) (filter.Filter, error) {
		return loader.Create(context.Background(), node.Library, node.Factory)
	}

	app, err := active.New(appSub, lookup, factory, opts.SingleThreaded)
	if err != nil {
		return err
	}

	printStartupBanner(appSub.Name, opts.Verbosity)

	if scriptPath := firstNonEmpty(opts.ExecPython, opts.ExecScript); scriptPath != "" {
		runScriptExtension(loader, scriptPath)
	}

	if !opts.NoProfiling {
		go watchMemoryPressure(app)
	}

	spinner, _ := pterm.DefaultSpinner.Start("activating " + appSub.Name)
	if err := activateChain(app); err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success("activated " + appSub.Name)

	if opts.GUI {
		startGUIWatcher(cfgPath, app)
	}

	waitForShutdownSignal()

	pterm.Info.Println("shutting down...")
	return app.Shutdown()
}

func activateChain(app *active.ActiveApplication) error {
	for _, step := range []func() error{app.Init, app.Open, app.Start} {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func selectApplication(apps map[string]*graph.SubConfiguration, name string) (*graph.SubConfiguration, error) {
	if name != "" {
		sub, ok := apps[name]
		if !ok {
			return nil, fmt.Errorf("application %q not found in configuration", name)
		}
		return sub, nil
	}
	for _, sub := range apps {
		return sub, nil
	}
	return nil, fmt.Errorf("configuration declares no applications")
}

// runScriptExtension loads scriptPath as a WASM module through the same
// pluginloader backend graph nodes use and drives its lifecycle once,
// outside the graph. --execpython/--execscript name a compiled WASM
// module rather than literal source text, since no host-language
// interpreter is embedded in this binary.
func runScriptExtension(loader *pluginloader.Loader, scriptPath string) {
	f, err := loader.Create(context.Background(), "pyfile://"+scriptPath, "main")
	if err != nil {
		nxlog.Warnw("script extension failed to load", "path", scriptPath, "error", err.Error())
		return
	}
	if err := f.OnInit(nil); err != nil {
		nxlog.Warnw("script extension on_init failed", "path", scriptPath, "error", err.Error())
		return
	}
	if err := f.OnStart(nil); err != nil {
		nxlog.Warnw("script extension on_start failed", "path", scriptPath, "error", err.Error())
	}
}

func firstNonEmpty(xs ...string) string {
	for _, x := range xs {
		if x != "" {
			return x
		}
	}
	return ""
}

func watchMemoryPressure(app *active.ActiveApplication) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		app.CheckMemoryPressure()
	}
}

func startGUIWatcher(cfgPath string, app *active.ActiveApplication) {
	w, err := config.NewWatcher(cfgPath)
	if err != nil {
		nxlog.Warnw("gui watcher unavailable", "error", err.Error())
		return
	}
	w.OnReload(func(*config.Document) error {
		nxlog.Infow("configuration changed on disk; restart nexxt to apply it", "run_id", app.RunID())
		return nil
	})
	w.Start()
}

func waitForShutdownSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
