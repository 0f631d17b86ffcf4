// Package logging holds the process-wide structured logger. It starts as a
// no-op so packages can log safely before main wires the real logger in.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.SugaredLogger

func init() {
	logger = zap.NewNop().Sugar()
}

// Initialize replaces the global logger. With json set, output is
// production-style structured JSON; otherwise a human-readable console
// encoder is used. level accepts zap level names ("debug", "info", ...).
func Initialize(level string, json bool) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}

	var cfg zap.Config
	if json {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	built, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	logger = built.Sugar()
	return nil
}

// Sync flushes buffered entries. Called on shutdown.
func Sync() {
	_ = logger.Sync()
}

// Debugf logs a formatted debug message.
func Debugf(format string, args ...interface{}) { logger.Debugf(format, args...) }

// Infof logs a formatted info message.
func Infof(format string, args ...interface{}) { logger.Infof(format, args...) }

// Infow logs an info message with structured fields.
func Infow(msg string, keysAndValues ...interface{}) { logger.Infow(msg, keysAndValues...) }

// Warnf logs a formatted warning.
func Warnf(format string, args ...interface{}) { logger.Warnf(format, args...) }

// Errorf logs a formatted error.
func Errorf(format string, args ...interface{}) { logger.Errorf(format, args...) }

// Errorw logs an error with structured fields.
func Errorw(msg string, keysAndValues ...interface{}) { logger.Errorw(msg, keysAndValues...) }

// Fatalf logs a formatted message and exits.
func Fatalf(format string, args ...interface{}) { logger.Fatalf(format, args...) }
