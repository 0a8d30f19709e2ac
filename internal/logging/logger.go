// Package logging provides structured logging functionality for zoom-sync
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/curtbushko/zoom-sync/internal/config"
)

// LogLevel represents the severity level of a log entry
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

// Logger defines the interface for logging operations
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})

	// WithFields logs a message with structured key/value fields
	WithFields(level LogLevel, message string, fields map[string]interface{})

	// LogTransfer logs the outcome of a single file transfer
	LogTransfer(event TransferEvent)

	GetLevel() LogLevel
	SetLevel(level LogLevel)
	SetOutput(w io.Writer)
	Close() error
}

// TransferEvent represents the outcome of one file transfer for logging
type TransferEvent struct {
	RecordingUUID string        `json:"recording_uuid"`
	FileID        string        `json:"file_id"`
	Filename      string        `json:"filename"`
	Backend       string        `json:"backend"`
	Bytes         int64         `json:"bytes"`
	Duration      time.Duration `json:"-"`
	Success       bool          `json:"success"`
	Error         string        `json:"error,omitempty"`
}

// loggerImpl implements the Logger interface
type loggerImpl struct {
	mu         sync.Mutex
	level      LogLevel
	jsonFormat bool
	writers    []io.Writer
	fileHandle *os.File
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// NewLogger creates a new Logger instance with the given configuration
func NewLogger(cfg config.LoggingConfig) (Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	logger := &loggerImpl{
		level:      level,
		jsonFormat: cfg.JSONFormat,
		writers:    []io.Writer{},
	}

	if cfg.Console {
		logger.writers = append(logger.writers, os.Stdout)
	}

	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		logger.fileHandle = file
		logger.writers = append(logger.writers, file)
	}

	return logger, nil
}

// parseLogLevel converts a string to LogLevel
func parseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

func (l *loggerImpl) log(level LogLevel, format string, args ...interface{}) {
	if level < l.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     strings.ToUpper(level.String()),
		Message:   fmt.Sprintf(format, args...),
	}

	var output string
	if l.jsonFormat {
		data, _ := json.Marshal(entry)
		output = string(data) + "\n"
	} else {
		timestamp := entry.Timestamp.Format("2006-01-02T15:04:05Z")
		output = fmt.Sprintf("%s [%s] %s\n", timestamp, entry.Level, entry.Message)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, writer := range l.writers {
		writer.Write([]byte(output))
	}
}

// WithFields logs a message with structured key/value fields
func (l *loggerImpl) WithFields(level LogLevel, message string, fields map[string]interface{}) {
	if level < l.level {
		return
	}

	timestamp := time.Now().UTC()

	var output string
	if l.jsonFormat {
		entryMap := map[string]interface{}{
			"timestamp": timestamp,
			"level":     strings.ToUpper(level.String()),
			"message":   message,
		}
		for key, value := range fields {
			entryMap[key] = value
		}
		data, _ := json.Marshal(entryMap)
		output = string(data) + "\n"
	} else {
		fieldStr := ""
		if len(fields) > 0 {
			var pairs []string
			for key, value := range fields {
				pairs = append(pairs, fmt.Sprintf("%s=%v", key, value))
			}
			fieldStr = " " + strings.Join(pairs, " ")
		}
		output = fmt.Sprintf("%s [%s] %s%s\n", timestamp.Format("2006-01-02T15:04:05Z"),
			strings.ToUpper(level.String()), message, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, writer := range l.writers {
		writer.Write([]byte(output))
	}
}

// LogTransfer logs the outcome of one file transfer
func (l *loggerImpl) LogTransfer(event TransferEvent) {
	fields := map[string]interface{}{
		"recording_uuid": event.RecordingUUID,
		"file_id":        event.FileID,
		"filename":       event.Filename,
		"backend":        event.Backend,
		"bytes":          event.Bytes,
		"duration_ms":    event.Duration.Milliseconds(),
		"success":        event.Success,
	}
	if event.Error != "" {
		fields["error"] = event.Error
	}

	level := InfoLevel
	message := fmt.Sprintf("Transfer completed: %s", event.Filename)
	if !event.Success {
		level = WarnLevel
		message = fmt.Sprintf("Transfer failed: %s", event.Filename)
	}
	l.WithFields(level, message, fields)
}

// Debug logs a debug message
func (l *loggerImpl) Debug(format string, args ...interface{}) {
	l.log(DebugLevel, format, args...)
}

// Info logs an info message
func (l *loggerImpl) Info(format string, args ...interface{}) {
	l.log(InfoLevel, format, args...)
}

// Warn logs a warning message
func (l *loggerImpl) Warn(format string, args ...interface{}) {
	l.log(WarnLevel, format, args...)
}

// Error logs an error message
func (l *loggerImpl) Error(format string, args ...interface{}) {
	l.log(ErrorLevel, format, args...)
}

// GetLevel returns the current log level
func (l *loggerImpl) GetLevel() LogLevel {
	return l.level
}

// SetLevel sets the log level
func (l *loggerImpl) SetLevel(level LogLevel) {
	l.level = level
}

// SetOutput sets the output writer (mainly for testing)
func (l *loggerImpl) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writers = []io.Writer{w}
}

// Close closes the logger and any open file handles
func (l *loggerImpl) Close() error {
	if l.fileHandle != nil {
		return l.fileHandle.Close()
	}
	return nil
}

// Global logger instance for package-level convenience functions
var defaultLogger Logger

// SetDefaultLogger sets the global default logger
func SetDefaultLogger(logger Logger) {
	defaultLogger = logger
}

// GetDefaultLogger returns the global default logger
func GetDefaultLogger() Logger {
	return defaultLogger
}

// InitializeLogging initializes the global logger with the provided configuration
func InitializeLogging(cfg config.LoggingConfig) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return err
	}

	SetDefaultLogger(logger)
	return nil
}

// Debug logs a debug message using the default logger
func Debug(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Debug(format, args...)
	}
}

// Info logs an info message using the default logger
func Info(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Info(format, args...)
	}
}

// Warn logs a warning message using the default logger
func Warn(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Warn(format, args...)
	}
}

// Error logs an error message using the default logger
func Error(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Error(format, args...)
	}
}

// LogTransfer logs a transfer event using the default logger
func LogTransfer(event TransferEvent) {
	if defaultLogger != nil {
		defaultLogger.LogTransfer(event)
	}
}
