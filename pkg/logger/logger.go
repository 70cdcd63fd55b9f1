// Package logger builds the process logger for the qpager binaries.
// Everything else in qpager is configured through the environment, and
// the logger follows suit: QPAGER_LOG_LEVEL and QPAGER_LOG_FORMAT set
// the defaults, and an explicit level from the caller wins.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// EnvLogLevel names the environment variable holding the minimum
	// log level ("debug", "info", "warn", "error").
	EnvLogLevel = "QPAGER_LOG_LEVEL"
	// EnvLogFormat names the environment variable selecting "json"
	// or "console" output.
	EnvLogFormat = "QPAGER_LOG_FORMAT"
)

// New builds a zap logger writing to stderr, so benchmark results on
// stdout stay machine-readable. A non-empty level argument overrides
// EnvLogLevel; levels that parse as nothing fall back to info.
func New(level string) *zap.Logger {
	if level == "" {
		level = os.Getenv(EnvLogLevel)
	}
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		parsed = zapcore.InfoLevel
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	var encoder zapcore.Encoder
	if strings.EqualFold(os.Getenv(EnvLogFormat), "json") {
		encoder = zapcore.NewJSONEncoder(cfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), parsed)
	return zap.New(core, zap.AddCaller(), zap.Fields(zap.String("service", "qpager")))
}
