// Package nxlog is the structured logging layer shared by every nexxt
// component. It wraps a package-level *zap.SugaredLogger, adding a
// verbosity-to-level mapping and `--logfile`/`--quiet` sink selection.
package nxlog

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide logger. It starts as a no-op sink so early
// package-init code never dereferences nil.
var Logger *zap.SugaredLogger

func init() {
	Logger = zap.NewNop().Sugar()
}

// Options configure Initialize.
type Options struct {
	// Verbosity is one of: INTERNAL, DEBUG, INFO, WARN, ERROR, FATAL,
	// CRITICAL.
	Verbosity string
	// LogFile is the --logfile path. Empty disables file output. A ".db"
	// suffix selects the SQLite sink (see sqlite_sink.go).
	LogFile string
	// Quiet disables the stderr console sink.
	Quiet bool
}

// Initialize builds the global logger from CLI-level options.
func Initialize(opts Options) error {
	level := VerbosityToLevel(opts.Verbosity)

	var cores []zapcore.Core
	if !opts.Quiet {
		cores = append(cores, zapcore.NewCore(
			consoleEncoder(),
			zapcore.Lock(os.Stderr),
			level,
		))
	}

	if opts.LogFile != "" {
		if strings.HasSuffix(opts.LogFile, ".db") {
			sink, err := newSQLiteSink(opts.LogFile)
			if err != nil {
				return err
			}
			cores = append(cores, zapcore.NewCore(jsonEncoder(), sink, level))
		} else {
			f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return err
			}
			cores = append(cores, zapcore.NewCore(jsonEncoder(), zapcore.AddSync(f), level))
		}
	}

	if len(cores) == 0 {
		// Always keep at least one sink so CRITICAL/FATAL logs surface
		// even when --quiet is set and no --logfile was given.
		cores = append(cores, zapcore.NewCore(consoleEncoder(), zapcore.Lock(os.Stderr), zapcore.DPanicLevel))
	}

	Logger = zap.New(zapcore.NewTee(cores...)).Sugar()
	return nil
}

func consoleEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func jsonEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	return zapcore.NewJSONEncoder(cfg)
}

// Cleanup flushes buffered log entries. Sync errors on stdout/stderr on
// some platforms are expected and ignorable.
func Cleanup() error {
	if Logger != nil {
		return Logger.Sync()
	}
	return nil
}

// Named returns a child logger scoped to the given component name, the
// way FullQualifiedFilterName-scoped loggers are derived per filter.
func Named(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

func Info(args ...interface{})                        { Logger.Info(args...) }
func Infof(format string, args ...interface{})         { Logger.Infof(format, args...) }
func Infow(msg string, kv ...interface{})              { Logger.Infow(msg, kv...) }
func Warn(args ...interface{})                         { Logger.Warn(args...) }
func Warnf(format string, args ...interface{})         { Logger.Warnf(format, args...) }
func Warnw(msg string, kv ...interface{})              { Logger.Warnw(msg, kv...) }
func Error(args ...interface{})                        { Logger.Error(args...) }
func Errorf(format string, args ...interface{})        { Logger.Errorf(format, args...) }
func Errorw(msg string, kv ...interface{})             { Logger.Errorw(msg, kv...) }
func Debug(args ...interface{})                        { Logger.Debug(args...) }
func Debugf(format string, args ...interface{})        { Logger.Debugf(format, args...) }
func Debugw(msg string, kv ...interface{})             { Logger.Debugw(msg, kv...) }
