// Package logger defines the logging interface used by the simulator and
// adapters for popular logger libraries.
//
// The interface matches the method set of slog.Logger, so a *slog.Logger can
// be used directly. Example with zap:
//
//	zapLogger, _ := zap.NewProduction()
//	m, err := machine.New(cfg, machine.WithLogger(logger.NewZap(zapLogger)))
package logger

// Logger receives structured log messages as a message and key-value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Discard is a Logger that drops everything.
var Discard Logger = discardLogger{}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}

func (discardLogger) Info(string, ...any) {}

func (discardLogger) Warn(string, ...any) {}

func (discardLogger) Error(string, ...any) {}

// OrDiscard returns l, or Discard if l is nil.
func OrDiscard(l Logger) Logger {
	if l == nil {
		return Discard
	}

	return l
}
