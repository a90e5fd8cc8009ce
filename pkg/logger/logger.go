// Package logger wraps zap with the conventions shared by all services:
// structured fields only, service-named loggers, and a process-wide default
// for code without an injected logger.
package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a thin wrapper around zap.Logger.
type Logger struct {
	*zap.Logger
}

// Config holds logger settings.
type Config struct {
	// ServiceName is attached to every log line.
	ServiceName string
	// Environment selects encoder defaults: "development" uses console
	// encoding, anything else uses production JSON.
	Environment string
	// Level is the minimum level ("debug", "info", "warn", "error").
	Level string
}

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

func init() {
	// Safe default until Init runs; mains replace it.
	l, _ := zap.NewProduction()
	defaultLogger = &Logger{l}
}

// Init builds the process logger and installs it as the default.
func Init(cfg *Config) (*Logger, error) {
	var zapCfg zap.Config
	if cfg.Environment == "development" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.TimeKey = "ts"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	base, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	if cfg.ServiceName != "" {
		base = base.With(zap.String("service", cfg.ServiceName))
	}

	l := &Logger{base}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
	return l, nil
}

// Get returns the process default logger.
func Get() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// Named returns a child logger with the given name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{l.Logger.Named(name)}
}

// With returns a child logger with the given fields attached.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{l.Logger.With(fields...)}
}

// Sync flushes the default logger's buffered entries. Called by mains on
// shutdown; the error is ignored because stderr does not support fsync.
func Sync() {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	_ = defaultLogger.Logger.Sync()
}

// NewNop returns a logger that discards everything. For tests.
func NewNop() *Logger {
	return &Logger{zap.NewNop()}
}
