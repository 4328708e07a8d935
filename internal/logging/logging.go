// Package logging provides the leveled logger shared by all engine
// components.
package logging

import (
	"fmt"
	"io"
	"log"
	"strings"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger wraps a stdlib log.Logger with a severity floor and a component
// name.
type Logger struct {
	name  string
	level Level
	out   *log.Logger
}

func New(w io.Writer, name string, level Level) *Logger {
	return &Logger{name: name, level: level, out: log.New(w, "", 0)}
}

// Named returns a logger sharing the same output and level under a
// different component name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{name: name, level: l.level, out: l.out}
}

func (l *Logger) log(level Level, format string, args ...any) {
	if level < l.level {
		return
	}
	levelStr := "INFO"
	switch level {
	case LevelDebug:
		levelStr = "DEBUG"
	case LevelWarn:
		levelStr = "WARN"
	case LevelError:
		levelStr = "ERROR"
	}
	msg := fmt.Sprintf(format, args...)
	l.out.Printf("%s %s %s: %s", time.Now().Format(time.RFC3339), levelStr, l.name, msg)
}

func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, format, args...) }
