package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how log entries are written.
type Config struct {
	Level  string
	Format string // "json" or "text"

	// File enables rotated file output through lumberjack when set.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// LogrusLogger wraps a logrus logger to implement the Logger interface.
type LogrusLogger struct {
	logger *logrus.Logger
	entry  *logrus.Entry
	closer io.Closer
}

// NewLogrusLogger creates a new LogrusLogger writing JSON to stdout.
func NewLogrusLogger(level string) *LogrusLogger {
	return NewLogrusLoggerWithConfig(Config{Level: level, Format: "json"})
}

// NewLogrusLoggerWithConfig creates a LogrusLogger from a full logging config.
func NewLogrusLoggerWithConfig(cfg Config) *LogrusLogger {
	logger := logrus.New()

	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	var closer io.Closer
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, rotator))
		closer = rotator
	} else {
		logger.SetOutput(os.Stdout)
	}

	// Parse and set log level
	logLevel, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	return &LogrusLogger{
		logger: logger,
		entry:  logrus.NewEntry(logger),
		closer: closer,
	}
}

// Close releases the rotated log file, if any.
func (l *LogrusLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Debug logs a debug-level message.
func (l *LogrusLogger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	l.with(fields).Debug(msg)
}

// Info logs an info-level message.
func (l *LogrusLogger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	l.with(fields).Info(msg)
}

// Warn logs a warning-level message.
func (l *LogrusLogger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	l.with(fields).Warn(msg)
}

// Error logs an error-level message.
func (l *LogrusLogger) Error(ctx context.Context, msg string, fields map[string]interface{}) {
	l.with(fields).Error(msg)
}

// WithField returns a new logger with the given field added.
func (l *LogrusLogger) WithField(key string, value interface{}) Logger {
	return &LogrusLogger{
		logger: l.logger,
		entry:  l.entry.WithField(key, value),
		closer: l.closer,
	}
}

// WithFields returns a new logger with the given fields added.
func (l *LogrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &LogrusLogger{
		logger: l.logger,
		entry:  l.entry.WithFields(fields),
		closer: l.closer,
	}
}

func (l *LogrusLogger) with(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		return l.entry
	}
	return l.entry.WithFields(fields)
}
