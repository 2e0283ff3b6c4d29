package logger

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Logrus wraps a logrus.Logger to implement Logger.
type Logrus struct {
	logger *logrus.Logger
}

// NewLogrus creates a Logger from a logrus.Logger.
func NewLogrus(logger *logrus.Logger) Logger {
	return &Logrus{logger: logger}
}

// Debug logs a debug message with key-value pairs.
func (l *Logrus) Debug(msg string, args ...any) {
	l.logger.WithFields(argsToFields(args)).Debug(msg)
}

// Info logs an info message with key-value pairs.
func (l *Logrus) Info(msg string, args ...any) {
	l.logger.WithFields(argsToFields(args)).Info(msg)
}

// Warn logs a warning message with key-value pairs.
func (l *Logrus) Warn(msg string, args ...any) {
	l.logger.WithFields(argsToFields(args)).Warn(msg)
}

// Error logs an error message with key-value pairs.
func (l *Logrus) Error(msg string, args ...any) {
	l.logger.WithFields(argsToFields(args)).Error(msg)
}

func argsToFields(args []any) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i < len(args)-1; i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		fields[key] = args[i+1]
	}
	return fields
}
