// Package ports defines the interfaces and value types shared between the
// seek engine, the controller and their adapters.
package ports

import (
	"fmt"
	"strings"
)

// LogLevel orders log messages by severity. A logger at a given level shows
// that level and everything above it.
type LogLevel int

const (
	// LevelDebug shows keyframe restarts, per-request timings and
	// remote queue drops.
	LevelDebug LogLevel = iota
	// LevelInfo shows loads, playback changes and the remote connection.
	LevelInfo
	// LevelWarn shows malformed remote messages and failed closes.
	LevelWarn
	// LevelError shows failed loads and seeks.
	LevelError
	// LevelQuiet shows nothing.
	LevelQuiet
)

var levelNames = [...]string{"debug", "info", "warn", "error", "quiet"}

func (l LogLevel) String() string {
	if l < LevelDebug || l > LevelQuiet {
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLogLevel reads a level name as written in config files, environment
// variables and --log-level. Case is ignored and "warning" is accepted. An
// empty name is LevelInfo.
func ParseLogLevel(s string) (LogLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "":
		return LevelInfo, nil
	case "warning":
		return LevelWarn, nil
	}
	for i, n := range levelNames {
		if n == name {
			return LogLevel(i), nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger is the logging port. msg is a format string that doubles as the
// translation key, so callers pass the format and its arguments separately
// and never pre-format.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})

	// WithComponent returns a logger that tags messages with component,
	// such as "controller", "remote" or "swsource".
	WithComponent(component string) Logger
}
