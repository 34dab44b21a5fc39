// Package log provides a simple wrapper around the standard log package
// with support for different log levels (ERROR, WARN, INFO, DEBUG)
package log

import (
	"fmt"
	"io"
	"log"
	"os"
)

type Level uint8

const (
	Silent Level = iota
	Error
	Warn
	Info
	Debug
)

// ParseLevel converts a level name as accepted on the command line into a Level
func ParseLevel(s string) (Level, error) {
	switch s {
	case "silent":
		return Silent, nil
	case "error":
		return Error, nil
	case "warn":
		return Warn, nil
	case "info":
		return Info, nil
	case "debug":
		return Debug, nil
	}

	return Info, fmt.Errorf("invalid log level: %s", s)
}

// NewLogger creates a new logger instance writing to stderr.
// stdout is reserved for the protocol stream and must never receive log output.
func NewLogger(level Level) *Logger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter creates a new logger instance writing to w
func NewLoggerWithWriter(level Level, w io.Writer) *Logger {
	return &Logger{
		level:  level,
		logger: log.New(w, "SplunkMCP: ", log.LstdFlags),
	}
}

// Logger wraps the standard logger with additional log level functionality
type Logger struct {
	level Level
	// logger is the underlying standard logger instance
	logger *log.Logger
}

// Errorf logs a message at ERROR level using printf style formatting
func (l *Logger) Errorf(format string, args ...any) {
	if l.level < Error {
		return
	}
	l.logger.Printf("[ERROR] "+format, args...)
}

// Warnf logs a message at WARN level using printf style formatting
func (l *Logger) Warnf(format string, args ...any) {
	if l.level < Warn {
		return
	}
	l.logger.Printf("[WARN] "+format, args...)
}

// Infof logs a message at INFO level using printf style formatting
func (l *Logger) Infof(format string, args ...any) {
	if l.level < Info {
		return
	}
	l.logger.Printf("[INFO] "+format, args...)
}

// Debugf logs a message at DEBUG level using printf style formatting
func (l *Logger) Debugf(format string, args ...any) {
	if l.level < Debug {
		return
	}
	l.logger.Printf("[DEBUG] "+format, args...)
}
