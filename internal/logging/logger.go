// Package logging provides structured logging for the rewards pipeline.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

// LogFormat represents the output format for logs
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

var levelRank = map[LogLevel]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
	LevelFatal: 4,
}

// Logger provides leveled, structured logging with attached fields.
type Logger struct {
	level  LogLevel
	format LogFormat
	output io.Writer
	fields map[string]interface{}
}

type logEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
}

// NewLogger creates a new logger instance
func NewLogger(level LogLevel, format LogFormat) *Logger {
	return &Logger{
		level:  level,
		format: format,
		output: os.Stdout,
		fields: make(map[string]interface{}),
	}
}

func (l *Logger) clone() *Logger {
	next := &Logger{
		level:  l.level,
		format: l.format,
		output: l.output,
		fields: make(map[string]interface{}, len(l.fields)+1),
	}
	for k, v := range l.fields {
		next.fields[k] = v
	}
	return next
}

// WithField returns a logger with one additional field attached.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	next := l.clone()
	next.fields[key] = value
	return next
}

// WithFields returns a logger with additional fields attached.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	next := l.clone()
	for k, v := range fields {
		next.fields[k] = v
	}
	return next
}

// WithError attaches an error to the logger context.
func (l *Logger) WithError(err error) *Logger {
	return l.WithField("error", err.Error())
}

func (l *Logger) Debug(message string) { l.log(LevelDebug, message) }
func (l *Logger) Info(message string)  { l.log(LevelInfo, message) }
func (l *Logger) Warn(message string)  { l.log(LevelWarn, message) }
func (l *Logger) Error(message string) { l.log(LevelError, message) }

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(LevelDebug, fmt.Sprintf(format, args...))
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(LevelError, fmt.Sprintf(format, args...))
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string) {
	l.log(LevelFatal, message)
	os.Exit(1)
}

// Fatalf logs a formatted fatal message and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(LevelFatal, fmt.Sprintf(format, args...))
	os.Exit(1)
}

func (l *Logger) log(level LogLevel, message string) {
	if levelRank[level] < levelRank[l.level] {
		return
	}

	entry := logEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     string(level),
		Message:   message,
		Fields:    l.fields,
	}

	// Caller location for errors and above
	if levelRank[level] >= levelRank[LevelError] {
		if _, file, line, ok := runtime.Caller(2); ok {
			entry.Caller = fmt.Sprintf("%s:%d", file, line)
		}
	}

	var out string
	if l.format == FormatJSON {
		b, _ := json.Marshal(entry)
		out = string(b)
	} else {
		out = fmt.Sprintf("[%s] %s: %s", entry.Timestamp, entry.Level, entry.Message)
		if len(entry.Fields) > 0 {
			fb, _ := json.Marshal(entry.Fields)
			out += fmt.Sprintf(" fields=%s", string(fb))
		}
		if entry.Caller != "" {
			out += fmt.Sprintf(" caller=%s", entry.Caller)
		}
	}

	fmt.Fprintln(l.output, out)
}

// SetOutput sets the output writer for the logger
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Global logger instance
var globalLogger *Logger

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(level LogLevel, format LogFormat) {
	globalLogger = NewLogger(level, format)
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		globalLogger = NewLogger(LevelInfo, FormatJSON)
	}
	return globalLogger
}

// Package-level helpers delegating to the global logger

// WithField returns the global logger with one field attached.
func WithField(key string, value interface{}) *Logger {
	return GetGlobalLogger().WithField(key, value)
}

// WithFields returns the global logger with fields attached.
func WithFields(fields map[string]interface{}) *Logger {
	return GetGlobalLogger().WithFields(fields)
}

// WithError returns the global logger with an error attached.
func WithError(err error) *Logger {
	return GetGlobalLogger().WithError(err)
}

// Debug logs a debug message on the global logger.
func Debug(message string) { GetGlobalLogger().Debug(message) }

// Info logs an info message on the global logger.
func Info(message string) { GetGlobalLogger().Info(message) }

// Warn logs a warning message on the global logger.
func Warn(message string) { GetGlobalLogger().Warn(message) }

// Error logs an error message on the global logger.
func Error(message string) { GetGlobalLogger().Error(message) }

type loggerKey struct{}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext retrieves a logger from the context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return logger
	}
	return GetGlobalLogger()
}

// ParseLogLevel parses a string into a LogLevel
func ParseLogLevel(level string) LogLevel {
	switch level {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// ParseLogFormat parses a string into a LogFormat
func ParseLogFormat(format string) LogFormat {
	switch format {
	case "text":
		return FormatText
	default:
		return FormatJSON
	}
}
