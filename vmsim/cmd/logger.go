package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"
	"go.uber.org/zap"

	"github.com/sarchlab/vmsim/logger"
)

// newLogger creates a logger that writes to stderr. The format is zap, logrus
// or none.
func newLogger(format, level string) (logger.Logger, error) {
	switch format {
	case "zap":
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}

		cfg := zap.NewProductionConfig()
		cfg.Level = lvl
		l, err := cfg.Build()
		if err != nil {
			return nil, err
		}
		atexit.Register(func() { _ = l.Sync() })

		return logger.NewZap(l), nil
	case "logrus":
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, err
		}

		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetLevel(lvl)

		return logger.NewLogrus(l), nil
	case "none":
		return logger.Discard, nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
