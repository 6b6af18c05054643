package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a production zap.Logger at the given level ("debug",
// "info", "warn", "error"). An unrecognized level panics at startup
// rather than silently falling back, matching GetEnv's fail-fast style
// for malformed configuration.
func NewLogger(level string) *zap.Logger {
	var lvl zapcore.Level

	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		panic(fmt.Sprintf("invalid log level %q: %s", level, err))
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("building logger: %s", err))
	}

	return l
}
