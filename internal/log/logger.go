// SPDX-License-Identifier: MIT
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
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
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

// currentLevel holds the global log level. It is read on every call, so
// component loggers pick up level changes made after they were created.
var currentLevel atomic.Uint32

// output is swapped atomically so tests can capture log lines.
var output atomic.Pointer[stdlog.Logger]

func init() {
	SetLevel(LevelInfo)
	SetOutput(os.Stderr)
}

// SetLevel sets the global logging level.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// GetLevel gets the current global logging level.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects all loggers to w.
func SetOutput(w io.Writer) {
	output.Store(stdlog.New(w, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds))
}

func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

// Logger prefixes every message with the component it belongs to, e.g.
// "[INFO]  bridge: consumer bound". The zero value logs without a prefix.
type Logger struct {
	component string
}

// With returns a Logger for the named component.
func With(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) emit(level LogLevel, msg string) {
	if !shouldLog(level) && level != LevelFatal {
		return
	}
	pad := " "
	if len(level.String()) == 4 {
		pad = "  "
	}
	if l != nil && l.component != "" {
		msg = l.component + ": " + msg
	}
	line := fmt.Sprintf("[%s]%s%s", level, pad, msg)
	if level == LevelFatal {
		output.Load().Fatal(line)
		return
	}
	output.Load().Print(line)
}

func (l *Logger) Debugf(format string, v ...any) {
	if shouldLog(LevelDebug) {
		l.emit(LevelDebug, fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Infof(format string, v ...any) {
	if shouldLog(LevelInfo) {
		l.emit(LevelInfo, fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Warnf(format string, v ...any) {
	if shouldLog(LevelWarn) {
		l.emit(LevelWarn, fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Errorf(format string, v ...any) {
	if shouldLog(LevelError) {
		l.emit(LevelError, fmt.Sprintf(format, v...))
	}
}

// Fatalf always logs and then exits the process.
func (l *Logger) Fatalf(format string, v ...any) {
	l.emit(LevelFatal, fmt.Sprintf(format, v...))
}

// --- Package-level logging ---

var root = &Logger{}

func Debugf(format string, v ...any) { root.Debugf(format, v...) }
func Infof(format string, v ...any)  { root.Infof(format, v...) }
func Warnf(format string, v ...any)  { root.Warnf(format, v...) }
func Errorf(format string, v ...any) { root.Errorf(format, v...) }
func Fatalf(format string, v ...any) { root.Fatalf(format, v...) }

func Info(v ...any) {
	if shouldLog(LevelInfo) {
		root.emit(LevelInfo, fmt.Sprint(v...))
	}
}

func Error(v ...any) {
	if shouldLog(LevelError) {
		root.emit(LevelError, fmt.Sprint(v...))
	}
}

// Fatal logs a fatal message and exits the application.
func Fatal(v ...any) {
	root.emit(LevelFatal, fmt.Sprint(v...))
}
