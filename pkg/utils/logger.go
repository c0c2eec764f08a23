package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a level name case-insensitively. Unknown names
// yield LevelInfo.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is the interface for logging. Messages are printf formats.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

// sink is the destination shared by a logger and everything derived from
// it with WithField, so their lines never interleave.
type sink struct {
	mu     sync.Mutex
	out    io.Writer
	closer io.Closer
}

type field struct {
	key   string
	value interface{}
}

// DefaultLogger writes one line per message:
//
//	2026-03-01 12:00:00.000 INFO  message key=value ...
//
// Fields are printed sorted by key.
type DefaultLogger struct {
	sink   *sink
	level  LogLevel
	clock  Clock
	fields []field
}

// NewDefaultLogger creates a logger writing to output.
func NewDefaultLogger(level LogLevel, output io.Writer) *DefaultLogger {
	return &DefaultLogger{sink: &sink{out: output}, level: level, clock: NewRealClock()}
}

// NewFileLogger appends to the file at logPath, creating its directory.
// Close the logger when done.
func NewFileLogger(level LogLevel, logPath string) (*DefaultLogger, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	l := NewDefaultLogger(level, file)
	l.sink.closer = file
	return l, nil
}

// WithClock sets the clock used for timestamps.
func (l *DefaultLogger) WithClock(clock Clock) *DefaultLogger {
	l.clock = clock
	return l
}

// Level returns the minimum level written.
func (l *DefaultLogger) Level() LogLevel {
	return l.level
}

// Close closes the underlying file of a file logger.
func (l *DefaultLogger) Close() error {
	if l.sink.closer == nil {
		return nil
	}
	return l.sink.closer.Close()
}

func (l *DefaultLogger) Debug(msg string, args ...interface{}) { l.log(LevelDebug, msg, args) }
func (l *DefaultLogger) Info(msg string, args ...interface{})  { l.log(LevelInfo, msg, args) }
func (l *DefaultLogger) Warn(msg string, args ...interface{})  { l.log(LevelWarn, msg, args) }
func (l *DefaultLogger) Error(msg string, args ...interface{}) { l.log(LevelError, msg, args) }

// WithField returns a logger that adds key=value to every line. A later
// value for the same key replaces the earlier one.
func (l *DefaultLogger) WithField(key string, value interface{}) Logger {
	return l.with(field{key, value})
}

// WithFields is WithField for several fields.
func (l *DefaultLogger) WithFields(fields map[string]interface{}) Logger {
	add := make([]field, 0, len(fields))
	for k, v := range fields {
		add = append(add, field{k, v})
	}
	return l.with(add...)
}

func (l *DefaultLogger) with(add ...field) *DefaultLogger {
	merged := make([]field, 0, len(l.fields)+len(add))
	merged = append(merged, l.fields...)
	for _, f := range add {
		replaced := false
		for i := range merged {
			if merged[i].key == f.key {
				merged[i].value = f.value
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, f)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].key < merged[j].key })
	return &DefaultLogger{sink: l.sink, level: l.level, clock: l.clock, fields: merged}
}

func (l *DefaultLogger) log(level LogLevel, msg string, args []interface{}) {
	if level < l.level {
		return
	}
	var sb strings.Builder
	sb.WriteString(l.clock.Now().Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(&sb, " %-5s ", level)
	if len(args) > 0 {
		fmt.Fprintf(&sb, msg, args...)
	} else {
		sb.WriteString(msg)
	}
	for _, f := range l.fields {
		fmt.Fprintf(&sb, " %s=%v", f.key, f.value)
	}
	sb.WriteByte('\n')

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	_, _ = io.WriteString(l.sink.out, sb.String())
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger = NewDefaultLogger(LevelInfo, os.Stderr)
)

// SetGlobalLogger replaces the process-wide logger.
func SetGlobalLogger(logger Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetGlobalLogger returns the process-wide logger.
func GetGlobalLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// NullLogger discards everything.
type NullLogger struct{}

func (l *NullLogger) Debug(msg string, args ...interface{})           {}
func (l *NullLogger) Info(msg string, args ...interface{})            {}
func (l *NullLogger) Warn(msg string, args ...interface{})            {}
func (l *NullLogger) Error(msg string, args ...interface{})           {}
func (l *NullLogger) WithField(key string, value interface{}) Logger  { return l }
func (l *NullLogger) WithFields(fields map[string]interface{}) Logger { return l }
