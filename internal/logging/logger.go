// Package logging builds the logr.Logger the CLI threads into the client,
// watcher, and exec channel.
package logging

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/klog/v2"
	crzap "sigs.k8s.io/controller-runtime/pkg/log/zap"
)

var levels = map[string]zapcore.Level{
	"":        zapcore.InfoLevel,
	"info":    zapcore.InfoLevel,
	"debug":   zapcore.DebugLevel,
	"warn":    zapcore.WarnLevel,
	"warning": zapcore.WarnLevel,
	"error":   zapcore.ErrorLevel,
}

// Option adjusts logger construction before the zap backend is built.
type Option func(*crzap.Options)

// WithDevelopment forces the development encoder regardless of level.
func WithDevelopment() Option {
	return func(o *crzap.Options) { o.Development = true }
}

// New returns a zap-backed logger for the given level string. The debug
// level implies the development encoder.
func New(level string, opts ...Option) (logr.Logger, error) {
	zapLevel, ok := levels[strings.ToLower(level)]
	if !ok {
		return logr.Logger{}, fmt.Errorf("invalid log level %q: choose debug, info, warn, or error", level)
	}
	atomic := zap.NewAtomicLevelAt(zapLevel)
	cr := crzap.Options{
		Level:       &atomic,
		Development: zapLevel == zapcore.DebugLevel,
	}
	for _, opt := range opts {
		opt(&cr)
	}
	return crzap.New(crzap.UseFlagOptions(&cr)), nil
}

// Install routes klog output through the given logger so everything in the
// process logs to the same sink.
func Install(log logr.Logger) {
	klog.SetLogger(log)
}
