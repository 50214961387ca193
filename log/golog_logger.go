package log

import (
	"github.com/kataras/golog"
)

// GologLogger adapts a kataras/golog logger to Logger. The wrapper and the
// golog logger always share the same level.
type GologLogger struct {
	logger *golog.Logger
	level  LogLevel
}

var _ Logger = (*GologLogger)(nil)

var gologLevels = map[LogLevel]string{
	LogLevelDebug: "debug",
	LogLevelInfo:  "info",
	LogLevelWarn:  "warn",
	LogLevelError: "error",
	LogLevelNone:  "disable",
}

// NewGologLogger wraps an existing golog logger at info level.
func NewGologLogger(logger *golog.Logger) *GologLogger {
	l := &GologLogger{logger: logger}
	l.SetLevel(LogLevelInfo)
	return l
}

// NewServiceLogger creates the logger used by the ragchat binary: a fresh
// golog logger with a "[ragchat]" prefix and second-resolution timestamps.
func NewServiceLogger(level LogLevel) *GologLogger {
	g := golog.New()
	g.SetPrefix("[ragchat] ")
	g.SetTimeFormat("2006-01-02 15:04:05")

	l := NewGologLogger(g)
	l.SetLevel(level)
	return l
}

func (l *GologLogger) Debug(format string, v ...any) {
	if l.level <= LogLevelDebug {
		l.logger.Debugf(format, v...)
	}
}

func (l *GologLogger) Info(format string, v ...any) {
	if l.level <= LogLevelInfo {
		l.logger.Infof(format, v...)
	}
}

func (l *GologLogger) Warn(format string, v ...any) {
	if l.level <= LogLevelWarn {
		l.logger.Warnf(format, v...)
	}
}

func (l *GologLogger) Error(format string, v ...any) {
	if l.level <= LogLevelError {
		l.logger.Errorf(format, v...)
	}
}

// SetLevel changes the level. Unknown levels map to info.
func (l *GologLogger) SetLevel(level LogLevel) {
	l.level = level

	name, ok := gologLevels[level]
	if !ok {
		name = "info"
	}
	l.logger.SetLevel(name)
}

// GetLevel returns the current level.
func (l *GologLogger) GetLevel() LogLevel {
	return l.level
}
