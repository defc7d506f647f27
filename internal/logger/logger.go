// Package logger provides the structured logging used across the
// resilience components. It wraps zerolog behind a small interface so
// callers never import zerolog directly.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the structured logging surface used by every component.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	WithContext(ctx context.Context) Logger
	WithFields(fields ...Field) Logger
	WithError(err error) Logger
}

// Field is a single structured key/value pair.
type Field struct {
	Key   string
	Value interface{}
}

// zeroLogger implements Logger on top of zerolog.
type zeroLogger struct {
	logger  zerolog.Logger
	fields  []Field
	context context.Context
}

var (
	global *zeroLogger
	once   sync.Once
)

// Config configures the package-level logger.
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // "json" or "console"
	Output io.Writer
}

// Initialize sets up the global logger exactly once; subsequent calls are
// no-ops, matching the teacher's single-assignment global logger pattern.
func Initialize(cfg Config) {
	once.Do(func() {
		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}
		if cfg.Format == "console" {
			out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		}

		zerolog.SetGlobalLevel(parseLevel(cfg.Level))
		base := zerolog.New(out).With().Timestamp().Logger()

		global = &zeroLogger{logger: base}
		log.Logger = base
	})
}

// Get returns the global logger, initializing it with defaults on first use.
func Get() Logger {
	if global == nil {
		Initialize(Config{Level: "info", Format: "json"})
	}
	return global
}

// Named returns a logger tagged with a "component" field.
func Named(component string) Logger {
	return Get().WithFields(String("component", component))
}

func (l *zeroLogger) WithContext(ctx context.Context) Logger {
	return &zeroLogger{logger: l.logger, fields: append([]Field{}, l.fields...), context: ctx}
}

func (l *zeroLogger) WithFields(fields ...Field) Logger {
	return &zeroLogger{
		logger:  l.logger,
		fields:  append(append([]Field{}, l.fields...), fields...),
		context: l.context,
	}
}

func (l *zeroLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithFields(String("error", err.Error()), String("error_type", fmt.Sprintf("%T", err)))
}

func (l *zeroLogger) Debug(msg string, fields ...Field) { l.log(l.logger.Debug(), msg, fields...) }
func (l *zeroLogger) Info(msg string, fields ...Field)  { l.log(l.logger.Info(), msg, fields...) }
func (l *zeroLogger) Warn(msg string, fields ...Field)  { l.log(l.logger.Warn(), msg, fields...) }
func (l *zeroLogger) Error(msg string, fields ...Field) { l.log(l.logger.Error(), msg, fields...) }

func (l *zeroLogger) log(event *zerolog.Event, msg string, fields ...Field) {
	for _, f := range l.fields {
		event = addField(event, f)
	}
	for _, f := range fields {
		event = addField(event, f)
	}
	event.Msg(msg)
}

func addField(event *zerolog.Event, field Field) *zerolog.Event {
	switch v := field.Value.(type) {
	case string:
		return event.Str(field.Key, v)
	case int:
		return event.Int(field.Key, v)
	case int64:
		return event.Int64(field.Key, v)
	case float64:
		return event.Float64(field.Key, v)
	case bool:
		return event.Bool(field.Key, v)
	case time.Time:
		return event.Time(field.Key, v)
	case time.Duration:
		return event.Dur(field.Key, v)
	case error:
		return event.Err(v)
	default:
		return event.Interface(field.Key, v)
	}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Field constructors.

func String(key, value string) Field             { return Field{Key: key, Value: value} }
func Int(key string, value int) Field            { return Field{Key: key, Value: value} }
func Float64(key string, v float64) Field        { return Field{Key: key, Value: v} }
func Bool(key string, value bool) Field          { return Field{Key: key, Value: value} }
func Duration(key string, v time.Duration) Field { return Field{Key: key, Value: v} }
func ErrField(err error) Field                   { return Field{Key: "error", Value: err} }
func Any(key string, value interface{}) Field    { return Field{Key: key, Value: value} }
