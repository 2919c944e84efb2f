// Package logging wraps zap with a silent-by-default global logger shared by
// every engine. Engines accept a *zap.Logger directly; this package only
// covers the cmd/upnpcli entrypoint and tests that want console output.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelEnvVar controls verbosity when no explicit level is passed to
// Initialize. Unset means silent (nop logger), so CLI output stays
// predictable by default.
const LevelEnvVar = "UPNPCLI_LOG_LEVEL"

var global = zap.NewNop()

// Initialize builds the global logger at the given level ("debug", "info",
// "warn", "error"). An empty level falls back to LevelEnvVar, and if that is
// also empty, logging stays silent.
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LevelEnvVar)
	}
	if level == "" {
		global = zap.NewNop()
		return nil
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	global = logger
	return nil
}

// L returns the global logger. Safe to call before Initialize: returns a
// nop logger until one is configured.
func L() *zap.Logger {
	return global
}

// Sync flushes the global logger's buffers.
func Sync() {
	_ = global.Sync()
}
