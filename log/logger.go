package log

import (
	"fmt"
	"io"
	"log"
	"os"
)

// LogLevel orders severities; messages below the configured level are
// dropped.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	// LogLevelNone disables all output.
	LogLevelNone
)

var levelNames = map[LogLevel]string{
	LogLevelDebug: "DEBUG",
	LogLevelInfo:  "INFO",
	LogLevelWarn:  "WARN",
	LogLevelError: "ERROR",
	LogLevelNone:  "NONE",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", l)
}

// Logger is the leveled printf-style logging contract used across ragserve.
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
}

// leveler is implemented by loggers whose level can be changed after
// construction.
type leveler interface {
	SetLevel(level LogLevel)
}

// DefaultLogger writes through Go's standard log package.
type DefaultLogger struct {
	logger *log.Logger
	level  LogLevel
}

var _ Logger = (*DefaultLogger)(nil)

// NewDefaultLogger creates a logger writing to stderr.
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	return NewCustomLogger(os.Stderr, level)
}

// NewCustomLogger creates a logger writing to out. Used by tests to capture
// output.
func NewCustomLogger(out io.Writer, level LogLevel) *DefaultLogger {
	return &DefaultLogger{
		logger: log.New(out, "[ragserve] ", log.LstdFlags),
		level:  level,
	}
}

func (l *DefaultLogger) logf(level LogLevel, format string, v ...any) {
	if level >= l.level {
		l.logger.Printf("["+level.String()+"] "+format, v...)
	}
}

func (l *DefaultLogger) Debug(format string, v ...any) { l.logf(LogLevelDebug, format, v...) }
func (l *DefaultLogger) Info(format string, v ...any)  { l.logf(LogLevelInfo, format, v...) }
func (l *DefaultLogger) Warn(format string, v ...any)  { l.logf(LogLevelWarn, format, v...) }
func (l *DefaultLogger) Error(format string, v ...any) { l.logf(LogLevelError, format, v...) }

// SetLevel changes the minimum severity that gets written.
func (l *DefaultLogger) SetLevel(level LogLevel) { l.level = level }

// NoOpLogger drops everything. Useful in tests that assert on stdout.
type NoOpLogger struct{}

func (NoOpLogger) Debug(format string, v ...any) {}
func (NoOpLogger) Info(format string, v ...any)  {}
func (NoOpLogger) Warn(format string, v ...any)  {}
func (NoOpLogger) Error(format string, v ...any) {}

// The package-level logger keeps call sites short; swap it at startup.
var defaultLogger Logger = NewDefaultLogger(LogLevelInfo)

// SetDefaultLogger replaces the package-level logger.
func SetDefaultLogger(logger Logger) {
	defaultLogger = logger
}

// GetDefaultLogger returns the current package-level logger.
func GetDefaultLogger() Logger {
	return defaultLogger
}

// SetLogLevel adjusts the package-level logger's level in place when it
// supports that, and falls back to installing a fresh DefaultLogger.
func SetLogLevel(level LogLevel) {
	if l, ok := defaultLogger.(leveler); ok {
		l.SetLevel(level)
		return
	}
	defaultLogger = NewDefaultLogger(level)
}

// Debug logs through the package-level logger.
func Debug(format string, v ...any) { defaultLogger.Debug(format, v...) }

// Info logs through the package-level logger.
func Info(format string, v ...any) { defaultLogger.Info(format, v...) }

// Warn logs through the package-level logger.
func Warn(format string, v ...any) { defaultLogger.Warn(format, v...) }

// Error logs through the package-level logger.
func Error(format string, v ...any) { defaultLogger.Error(format, v...) }
