// Package logger is the process-wide structured logger of the app store
// client. It wraps log/slog and keeps a small field-map API so call sites
// stay short.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// OutputFormat selects the slog handler.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// Fields carries structured attributes for a single log line.
type Fields map[string]interface{}

var (
	mu           sync.Mutex
	logger       *slog.Logger
	currentLevel = new(slog.LevelVar)
	currentFmt   = FormatText

	testOutput   io.Writer
	testOutputMu sync.Mutex
)

// SetTestOutput redirects all log output to w.
func SetTestOutput(w io.Writer) {
	testOutputMu.Lock()
	defer testOutputMu.Unlock()
	testOutput = w
}

// UnsetTestOutput restores the default output.
func UnsetTestOutput() {
	testOutputMu.Lock()
	defer testOutputMu.Unlock()
	testOutput = nil
}

func getOutput() io.Writer {
	testOutputMu.Lock()
	defer testOutputMu.Unlock()
	if testOutput != nil {
		return testOutput
	}
	return os.Stderr
}

// ParseLevel maps a config level name to a slog level. Unknown names map to info.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseFormat maps a config format name to an OutputFormat.
func ParseFormat(name string) OutputFormat {
	if strings.EqualFold(name, string(FormatJSON)) {
		return FormatJSON
	}
	return FormatText
}

// InitLogger (re)creates the global logger.
func InitLogger(logLevel string, format OutputFormat) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel.Set(ParseLevel(logLevel))
	currentFmt = format
	logger = slog.New(newHandler(format))
}

// SetOutputFormat switches the handler while keeping the level.
func SetOutputFormat(format OutputFormat) {
	mu.Lock()
	defer mu.Unlock()
	currentFmt = format
	logger = slog.New(newHandler(format))
}

// SetLevel changes the level of the running logger.
func SetLevel(logLevel string) {
	currentLevel.Set(ParseLevel(logLevel))
}

func newHandler(format OutputFormat) slog.Handler {
	opts := &slog.HandlerOptions{Level: currentLevel}
	if format == FormatJSON {
		return slog.NewJSONHandler(getOutput(), opts)
	}
	return slog.NewTextHandler(getOutput(), opts)
}

// GetLogger returns the configured logger instance.
func GetLogger() *slog.Logger {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l == nil {
		InitLogger("info", currentFmt)
		mu.Lock()
		l = logger
		mu.Unlock()
	}
	return l
}

// Info logs an info message.
func Info(msg string, fields ...Fields) {
	GetLogger().Info(msg, mergeFields(fields...)...)
}

// Infof logs a formatted info message.
func Infof(format string, args ...interface{}) {
	GetLogger().Info(fmt.Sprintf(format, args...))
}

// InfofWithFields logs a formatted info message with fields.
func InfofWithFields(fields Fields, format string, args ...interface{}) {
	GetLogger().Info(fmt.Sprintf(format, args...), mergeFields(fields)...)
}

// Debug logs a debug message.
func Debug(msg string, fields ...Fields) {
	GetLogger().Debug(msg, mergeFields(fields...)...)
}

// Debugf logs a formatted debug message.
func Debugf(format string, args ...interface{}) {
	GetLogger().Debug(fmt.Sprintf(format, args...))
}

// DebugfWithFields logs a formatted debug message with fields.
func DebugfWithFields(fields Fields, format string, args ...interface{}) {
	GetLogger().Debug(fmt.Sprintf(format, args...), mergeFields(fields)...)
}

// Warn logs a warning.
func Warn(msg string, fields ...Fields) {
	GetLogger().Warn(msg, mergeFields(fields...)...)
}

// Warnf logs a formatted warning.
func Warnf(format string, args ...interface{}) {
	GetLogger().Warn(fmt.Sprintf(format, args...))
}

// WarnfWithFields logs a formatted warning with fields.
func WarnfWithFields(fields Fields, format string, args ...interface{}) {
	GetLogger().Warn(fmt.Sprintf(format, args...), mergeFields(fields)...)
}

// Error logs an error message.
func Error(msg string, fields ...Fields) {
	GetLogger().Error(msg, mergeFields(fields...)...)
}

// Errorf logs a formatted error message.
func Errorf(format string, args ...interface{}) {
	GetLogger().Error(fmt.Sprintf(format, args...))
}

// ErrorfWithFields logs a formatted error message with fields.
func ErrorfWithFields(fields Fields, format string, args ...interface{}) {
	GetLogger().Error(fmt.Sprintf(format, args...), mergeFields(fields)...)
}

// Success logs an info line tagged status=success.
func Success(msg string, fields ...Fields) {
	attrs := append(mergeFields(fields...), "status", "success")
	GetLogger().Info(msg, attrs...)
}

// Successf logs a formatted success message.
func Successf(format string, args ...interface{}) {
	GetLogger().Info(fmt.Sprintf(format, args...), "status", "success")
}

// mergeFields flattens field maps into slog key/value pairs. Later maps win
// on duplicate keys.
func mergeFields(fields ...Fields) []interface{} {
	if len(fields) == 0 {
		return nil
	}
	merged := make(map[string]interface{})
	order := make([]string, 0)
	for _, f := range fields {
		for k, v := range f {
			if _, seen := merged[k]; !seen {
				order = append(order, k)
			}
			merged[k] = v
		}
	}
	result := make([]interface{}, 0, len(order)*2)
	for _, k := range order {
		result = append(result, k, merged[k])
	}
	return result
}
