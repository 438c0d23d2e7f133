/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package log provides structured logging based on github.com/ssgreg/logf.
// All components of the library accept FieldLogger.
package log

import (
	"io"
	"os"

	"github.com/ssgreg/logf"
)

// LogFunc writes a message at the level bound by FieldLogger.AtLevel.
// nolint: revive
type LogFunc = logf.LogFunc

// CloseFunc flushes buffered entries and stops the writer goroutine.
type CloseFunc logf.ChannelWriterCloseFunc

// FieldLogger is a structured logger.
type FieldLogger interface {
	With(fields ...Field) FieldLogger

	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// AtLevel calls fn only if the level is enabled, so expensive fields are not built in vain.
	AtLevel(level Level, fn func(logFunc LogFunc))

	// WithLevel returns a logger that additionally drops entries below the level.
	WithLevel(level Level) FieldLogger
}

// LogfAdapter implements FieldLogger over logf.Logger.
type LogfAdapter struct {
	Logger *logf.Logger
}

var _ FieldLogger = (*LogfAdapter)(nil)

// NewLogger creates a logger writing to the output from the configuration.
// Every entry has the "pid" field. CloseFunc must be called before the process exits.
func NewLogger(cfg *Config) (FieldLogger, CloseFunc) {
	logger, closeFunc := newLogfLogger(cfg, newAppender(cfg, openOutput(cfg)))
	logger = logger.With(logf.Int("pid", os.Getpid()))
	if cfg.AddCaller {
		// Skip the adapter frame.
		logger = logger.WithCaller().WithCallerSkip(1)
	}
	return &LogfAdapter{logger}, closeFunc
}

// NewLoggerFromWriter creates a logger writing to w. Output and file settings of the configuration are ignored.
func NewLoggerFromWriter(cfg *Config, w io.Writer) (FieldLogger, CloseFunc) {
	logger, closeFunc := newLogfLogger(cfg, newAppender(cfg, w))
	return &LogfAdapter{logger}, closeFunc
}

// NewDisabledLogger creates a logger that drops everything.
func NewDisabledLogger() FieldLogger {
	return &LogfAdapter{logf.NewDisabledLogger()}
}

func newLogfLogger(cfg *Config, appender logf.Appender) (*logf.Logger, CloseFunc) {
	channel, closeFunc := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          appender,
		EnableSyncOnError: true,
	})
	return logf.NewLogger(logfLevel(cfg.Level), channel), CloseFunc(closeFunc)
}

// With implements FieldLogger.
func (l *LogfAdapter) With(fields ...Field) FieldLogger {
	return &LogfAdapter{l.Logger.With(fields...)}
}

// Debug implements FieldLogger.
func (l *LogfAdapter) Debug(msg string, fields ...Field) {
	l.Logger.Debug(msg, fields...)
}

// Info implements FieldLogger.
func (l *LogfAdapter) Info(msg string, fields ...Field) {
	l.Logger.Info(msg, fields...)
}

// Warn implements FieldLogger.
func (l *LogfAdapter) Warn(msg string, fields ...Field) {
	l.Logger.Warn(msg, fields...)
}

// Error implements FieldLogger.
func (l *LogfAdapter) Error(msg string, fields ...Field) {
	l.Logger.Error(msg, fields...)
}

// AtLevel implements FieldLogger.
func (l *LogfAdapter) AtLevel(level Level, fn func(logFunc LogFunc)) {
	l.Logger.AtLevel(logfLevel(level), fn)
}

// WithLevel implements FieldLogger.
func (l *LogfAdapter) WithLevel(level Level) FieldLogger {
	return &LogfAdapter{l.Logger.WithLevel(logfLevel(level))}
}

func logfLevel(level Level) logf.Level {
	switch level {
	case LevelError:
		return logf.LevelError
	case LevelWarn:
		return logf.LevelWarn
	case LevelDebug:
		return logf.LevelDebug
	default:
		return logf.LevelInfo
	}
}
