package metrics

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
)

// Level represents a logging level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSilent // Disables all logging
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelSilent:
		return "SILENT"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level string.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "SILENT", "OFF", "NONE":
		return LevelSilent
	default:
		return LevelInfo
	}
}

// slogSilent sits above every level slog emits.
const slogSilent = slog.LevelError + 8

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelSilent:
		return slogSilent
	default:
		return slog.LevelInfo
	}
}

// Logger provides structured, leveled logging on top of log/slog.
// Child loggers created by With and Named share the parent's level.
type Logger struct {
	out     io.Writer
	level   *slog.LevelVar
	format  Format
	fields  Fields
	name    string
	handler slog.Handler
	inner   *slog.Logger
}

// Fields represents structured log fields.
type Fields map[string]interface{}

// Format specifies the log output format.
type Format int

const (
	FormatText Format = iota // key=value text
	FormatJSON               // JSON for log aggregation
)

// ParseFormat maps "json" to FormatJSON and anything else to FormatText.
func ParseFormat(s string) Format {
	if strings.EqualFold(s, "json") {
		return FormatJSON
	}
	return FormatText
}

// LoggerOption configures a logger.
type LoggerOption func(*Logger)

// WithOutput sets the output writer.
func WithOutput(w io.Writer) LoggerOption {
	return func(l *Logger) {
		l.out = w
	}
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) LoggerOption {
	return func(l *Logger) {
		l.level.Set(level.slog())
	}
}

// WithFormat sets the output format.
func WithFormat(format Format) LoggerOption {
	return func(l *Logger) {
		l.format = format
	}
}

// WithFields sets default fields for all log entries.
func WithFields(fields Fields) LoggerOption {
	return func(l *Logger) {
		l.fields = fields
	}
}

// WithName sets the logger name.
func WithName(name string) LoggerOption {
	return func(l *Logger) {
		l.name = name
	}
}

// NewLogger creates a new logger with the given options.
func NewLogger(opts ...LoggerOption) *Logger {
	l := &Logger{
		out:    os.Stdout,
		level:  new(slog.LevelVar),
		format: FormatText,
		fields: make(Fields),
	}
	l.level.Set(slog.LevelInfo)
	for _, opt := range opts {
		opt(l)
	}

	hopts := &slog.HandlerOptions{Level: l.level, ReplaceAttr: redact}
	if l.format == FormatJSON {
		l.handler = slog.NewJSONHandler(l.out, hopts)
	} else {
		l.handler = slog.NewTextHandler(l.out, hopts)
	}
	l.rebuild()
	return l
}

// rebuild binds name and default fields into the slog logger.
func (l *Logger) rebuild() {
	base := slog.New(l.handler)
	if l.name != "" {
		base = base.With(slog.String("logger", l.name))
	}
	if len(l.fields) > 0 {
		base = base.With(attrs(l.fields)...)
	}
	l.inner = base
}

func (l *Logger) clone() *Logger {
	return &Logger{
		out:     l.out,
		level:   l.level,
		format:  l.format,
		fields:  l.fields,
		name:    l.name,
		handler: l.handler,
		inner:   l.inner,
	}
}

// With returns a new logger with additional fields.
func (l *Logger) With(fields Fields) *Logger {
	c := l.clone()
	merged := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	c.fields = merged
	c.inner = l.inner.With(attrs(fields)...)
	return c
}

// Named returns a new logger with the given name, dot-joined to the parent's.
func (l *Logger) Named(name string) *Logger {
	c := l.clone()
	if l.name != "" {
		c.name = l.name + "." + name
	} else {
		c.name = name
	}
	c.rebuild()
	return c
}

// SetLevel changes the logging level.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level.slog())
}

// Slog exposes the underlying slog logger.
func (l *Logger) Slog() *slog.Logger {
	return l.inner
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, fields ...Fields) {
	l.log(slog.LevelDebug, msg, fields...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, fields ...Fields) {
	l.log(slog.LevelInfo, msg, fields...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, fields ...Fields) {
	l.log(slog.LevelWarn, msg, fields...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, fields ...Fields) {
	l.log(slog.LevelError, msg, fields...)
}

func (l *Logger) log(level slog.Level, msg string, extra ...Fields) {
	ctx := context.Background()
	if !l.inner.Enabled(ctx, level) {
		return
	}
	var args []any
	for _, f := range extra {
		args = append(args, attrs(f)...)
	}
	l.inner.Log(ctx, level, msg, args...)
}

// attrs converts fields to slog attributes in key order.
func attrs(fields Fields) []any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]any, 0, len(keys))
	for _, k := range keys {
		v := fields[k]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		out = append(out, slog.Any(k, v))
	}
	return out
}

// redactedKeys are field names whose values never reach the output.
var redactedKeys = map[string]bool{
	"password":    true,
	"master_key":  true,
	"secret":      true,
	"key":         true,
	"link_key":    true,
	"private_key": true,
}

// Redacted replaces the value of a secret-bearing field.
const Redacted = "[REDACTED]"

// redact hides secret fields and prints raw byte slices as their length.
func redact(_ []string, a slog.Attr) slog.Attr {
	if redactedKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, Redacted)
	}
	if b, ok := a.Value.Any().([]byte); ok {
		return slog.Int(a.Key+"_len", len(b))
	}
	return a
}

// --- Global Logger ---

var (
	globalLogger   *Logger
	globalLoggerMu sync.RWMutex
)

func init() {
	globalLogger = NewLogger()
}

// SetLogger sets the global logger.
func SetLogger(l *Logger) {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	globalLogger = l
}

// GetLogger returns the global logger.
func GetLogger() *Logger {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	return globalLogger
}

// Info logs at info level using the global logger.
func Info(msg string, fields ...Fields) {
	GetLogger().Info(msg, fields...)
}

// Warn logs at warn level using the global logger.
func Warn(msg string, fields ...Fields) {
	GetLogger().Warn(msg, fields...)
}

// --- Convenience Functions ---

// NullLogger returns a logger that discards all output.
func NullLogger() *Logger {
	return NewLogger(WithOutput(io.Discard), WithLevel(LevelSilent))
}

// TestLogger returns a logger suitable for testing (debug level, text format).
func TestLogger(w io.Writer) *Logger {
	return NewLogger(
		WithOutput(w),
		WithLevel(LevelDebug),
		WithFormat(FormatText),
	)
}

// ProductionLogger returns a logger suitable for production (info level, JSON format).
func ProductionLogger(w io.Writer) *Logger {
	return NewLogger(
		WithOutput(w),
		WithLevel(LevelInfo),
		WithFormat(FormatJSON),
	)
}
