// Package logging provides the leveled, structured logger shared by every
// orbitsafe component.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Level controls which entries are written.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Field is a set of key/value pairs attached to a single entry.
type Field map[string]interface{}

// WithField returns a single-key field.
func WithField(key string, value interface{}) Field {
	return Field{key: value}
}

// WithFields wraps an existing map as a field set.
func WithFields(fields map[string]interface{}) Field {
	return Field(fields)
}

// Logger writes JSON entries through logrus.
type Logger struct {
	base *logrus.Logger
}

// New creates a logger writing to stderr at the given level.
func New(level Level) *Logger {
	return NewWithOutput(level, os.Stderr)
}

// NewWithOutput creates a logger writing to w.
func NewWithOutput(level Level, w io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetFormatter(&logrus.JSONFormatter{})
	base.SetLevel(toLogrus(level))
	return &Logger{base: base}
}

// ParseLevel maps a config string onto a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func (l *Logger) Debug(msg string, fields ...Field) {
	l.entry(fields).Debug(msg)
}

func (l *Logger) Info(msg string, fields ...Field) {
	l.entry(fields).Info(msg)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	l.entry(fields).Warn(msg)
}

func (l *Logger) Error(msg string, fields ...Field) {
	l.entry(fields).Error(msg)
}

// With returns a child logger that always carries the given fields.
func (l *Logger) With(fields ...Field) *Entry {
	return &Entry{entry: l.entry(fields)}
}

func (l *Logger) entry(fields []Field) *logrus.Entry {
	merged := logrus.Fields{}
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	return l.base.WithFields(merged)
}

// Entry is a logger bound to a fixed set of fields.
type Entry struct {
	entry *logrus.Entry
}

func (e *Entry) Debug(msg string, fields ...Field) { e.with(fields).Debug(msg) }
func (e *Entry) Info(msg string, fields ...Field)  { e.with(fields).Info(msg) }
func (e *Entry) Warn(msg string, fields ...Field)  { e.with(fields).Warn(msg) }
func (e *Entry) Error(msg string, fields ...Field) { e.with(fields).Error(msg) }

func (e *Entry) with(fields []Field) *logrus.Entry {
	out := e.entry
	for _, f := range fields {
		out = out.WithFields(logrus.Fields(f))
	}
	return out
}

func toLogrus(level Level) logrus.Level {
	switch level {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
