package nxlog

import "go.uber.org/zap/zapcore"

// Verbosity levels accepted by the --verbosity flag. INTERNAL is the
// most detailed (below zap's own DebugLevel floor, so it maps to Debug);
// CRITICAL and FATAL both map to zap's FatalLevel-adjacent levels since
// zap has no dedicated CRITICAL level.
const (
	Internal = "INTERNAL"
	Debug    = "DEBUG"
	Info     = "INFO"
	Warn     = "WARN"
	Error    = "ERROR"
	Fatal    = "FATAL"
	Critical = "CRITICAL"
)

// VerbosityToLevel maps a verbosity name to a zap level. Unknown names
// default to INFO, the CLI's documented default.
func VerbosityToLevel(verbosity string) zapcore.Level {
	switch verbosity {
	case Internal, Debug:
		return zapcore.DebugLevel
	case Info, "":
		return zapcore.InfoLevel
	case Warn:
		return zapcore.WarnLevel
	case Error:
		return zapcore.ErrorLevel
	case Critical:
		return zapcore.DPanicLevel
	case Fatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// LevelName returns a human-readable description of a verbosity name,
// used by the startup banner.
func LevelName(verbosity string) string {
	if verbosity == "" {
		return Info
	}
	return verbosity
}
