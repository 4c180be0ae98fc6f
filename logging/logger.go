package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel decouples user facing level configuration from slog.
type LogLevel int

const (
	// LogLevelDebug enables per-chunk and per-source diagnostics.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the default operational level.
	LogLevelInfo
	// LogLevelWarn reports degraded sources and recoverable faults.
	LogLevelWarn
	// LogLevelError reports turn-fatal failures.
	LogLevelError
)

// String returns the level name.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	}
	return "INFO"
}

// ParseLevel maps a config string to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	}
	return LogLevelInfo
}

// Logger is the minimal printf-style interface the engine and its services
// log through. Callers may supply their own implementation.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

var (
	_ Logger = NoOpLogger{}
	_ Logger = (*EngineLogger)(nil)
)

// NoOpLogger discards everything. It is the default when no logger is
// configured.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...any) {}
func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Warn(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}

// EngineLogger is a slog-backed Logger carrying scope fields. Scoping
// methods return cheap copies, so a base logger can fan out per component
// and per conversation without locking.
type EngineLogger struct {
	logger         *slog.Logger
	level          LogLevel
	component      string
	conversationID string
	turnID         string
}

// NewSlogLogger builds an EngineLogger writing to stdout. format is "text"
// or "json" (the default); addSource includes caller positions.
func NewSlogLogger(level LogLevel, format string, addSource bool) *EngineLogger {
	return NewSlogLoggerTo(os.Stdout, level, format, addSource)
}

// NewSlogLoggerTo is NewSlogLogger with an explicit output writer.
func NewSlogLoggerTo(w io.Writer, level LogLevel, format string, addSource bool) *EngineLogger {
	opts := &slog.HandlerOptions{Level: slogLevel(level), AddSource: addSource}
	var h slog.Handler
	if format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return &EngineLogger{logger: slog.New(h), level: level}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// WithComponent scopes the logger to a logical component (engine, keylock,
// persist, artifact).
func (l *EngineLogger) WithComponent(component string) *EngineLogger {
	nl := *l
	nl.component = component
	return &nl
}

// WithConversation scopes the logger to one conversation and turn.
func (l *EngineLogger) WithConversation(conversationID, turnID string) *EngineLogger {
	nl := *l
	nl.conversationID = conversationID
	nl.turnID = turnID
	return &nl
}

func (l *EngineLogger) log(level slog.Level, min LogLevel, format string, args ...any) {
	if l.level > min {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	attrs := make([]slog.Attr, 0, 4)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.conversationID != "" {
		attrs = append(attrs, slog.String("conversation_id", l.conversationID))
	}
	if l.turnID != "" {
		attrs = append(attrs, slog.String("turn_id", l.turnID))
	}
	attrs = append(attrs, slog.Time("timestamp", time.Now()))
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Debug implements Logger.
func (l *EngineLogger) Debug(format string, args ...any) {
	l.log(slog.LevelDebug, LogLevelDebug, format, args...)
}

// Info implements Logger.
func (l *EngineLogger) Info(format string, args ...any) {
	l.log(slog.LevelInfo, LogLevelInfo, format, args...)
}

// Warn implements Logger.
func (l *EngineLogger) Warn(format string, args ...any) {
	l.log(slog.LevelWarn, LogLevelWarn, format, args...)
}

// Error implements Logger.
func (l *EngineLogger) Error(format string, args ...any) {
	l.log(slog.LevelError, LogLevelError, format, args...)
}
