package util

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns the compiler's logger. Verbose mode logs phase statistics at debug level; otherwise only
// warnings, such as unresolved call targets, are shown. Output goes to stderr so that assembler written to stdout
// stays clean.
func NewLogger(opt Options) (*zap.Logger, error) {
	lvl := zapcore.WarnLevel
	if opt.Verbose {
		lvl = zapcore.DebugLevel
	}
	if len(opt.LogLevel) > 0 {
		if err := lvl.UnmarshalText([]byte(opt.LogLevel)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opt.LogLevel, err)
		}
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = !opt.Verbose
	return cfg.Build()
}
