// Package logging wraps log/slog with the component and audit conventions
// used across zonectl.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
)

// Level is a slog level.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// AuditMessage is the message of every audit record, so appliance writes
// can be grepped out of a run log.
const AuditMessage = "AUDIT"

// Logger is a slog.Logger whose level can change after creation.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// Config selects the handler and threshold.
type Config struct {
	Level     Level
	Output    io.Writer
	JSON      bool
	AddSource bool
}

// DefaultConfig logs info and above to stderr in console format.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr}
}

// New creates a Logger.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	lv := &slog.LevelVar{}
	lv.Set(cfg.Level)
	opts := &slog.HandlerOptions{Level: lv, AddSource: cfg.AddSource}

	var h slog.Handler = NewConsoleHandler(cfg.Output, opts)
	if cfg.JSON {
		h = slog.NewJSONHandler(cfg.Output, opts)
	}
	return &Logger{Logger: slog.New(h), level: lv}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(Config{Level: LevelError + 4, Output: io.Discard})
}

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// Default returns the logger installed by SetDefault, or a console logger.
func Default() *Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(DefaultConfig())
	}
	return defaultLogger
}

// SetDefault installs l as the process logger and as slog's default. A nil
// l resets to the console logger on next use.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
	if l != nil {
		slog.SetDefault(l.Logger)
	}
}

// SetLevel changes the threshold of l and every logger derived from it.
func (l *Logger) SetLevel(level Level) { l.level.Set(level) }

// GetLevel returns the current threshold.
func (l *Logger) GetLevel() Level { return l.level.Level() }

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

// WithComponent scopes l to a subsystem. The console handler prints the
// component ahead of the message.
func (l *Logger) WithComponent(name string) *Logger {
	return l.with("component", name)
}

// WithFields binds fields in key order.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return l.with(sortedArgs(fields)...)
}

// Audit records a change made, or in dry-run planned, on the appliance.
// Audit records are logged at info level.
func (l *Logger) Audit(action, resource string, details map[string]any) {
	args := append([]any{"audit", true, "action", action, "resource", resource}, sortedArgs(details)...)
	l.Info(AuditMessage, args...)
}

func sortedArgs(fields map[string]any) []any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return args
}
