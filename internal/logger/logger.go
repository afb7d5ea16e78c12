package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide root logger. Components receive children of it
// via dependency injection; only main touches this variable directly.
var Logger *zap.Logger

// Init builds the root logger at the given level (debug, info, warn, error,
// fatal, panic). An empty or unrecognized level falls back to info. Debug
// level switches to the human-readable development encoder.
func Init(logLevel string) error {
	var level zapcore.Level
	normalized := strings.ToLower(strings.TrimSpace(logLevel))
	if err := level.UnmarshalText([]byte(normalized)); err != nil || normalized == "" {
		level = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	if level == zapcore.DebugLevel {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.MessageKey = "message"
	}
	config.Level = zap.NewAtomicLevelAt(level)

	built, err := config.Build()
	if err != nil {
		return err
	}
	Logger = built
	return nil
}

// Sync flushes buffered entries. Safe to defer before Init has run.
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}
