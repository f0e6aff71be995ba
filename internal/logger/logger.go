package logger

import (
	"fmt"
	"time"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
	ColorRed    = "\033[31m"
)

type LogLevel string

var (
	GlobalLogLevel LogLevel = "info"
)

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var levelOrder = map[LogLevel]int{
	LogLevelDebug: 0,
	LogLevelInfo:  1,
	LogLevelWarn:  2,
	LogLevelError: 3,
}

type Log struct {
	level  LogLevel
	err    error
	fields string
}

func New() *Log {
	return &Log{
		level: GlobalLogLevel,
	}
}

func (l *Log) SetLevel(level LogLevel) {
	l.level = level
}

func (l *Log) WithError(err error) *Log {
	return &Log{level: l.level, err: err, fields: l.fields}
}

// WithField tags subsequent lines with key=value context (ticket, user, etc.)
func (l *Log) WithField(key string, value interface{}) *Log {
	return &Log{level: l.level, err: l.err, fields: l.fields + fmt.Sprintf(" %s=%v", key, value)}
}

func (l *Log) timestamp() string {
	return time.Now().Format("15:04:05")
}

func (l *Log) enabled(level LogLevel) bool {
	return levelOrder[level] >= levelOrder[l.level]
}

func (l *Log) Debug(msg string) {
	if !l.enabled(LogLevelDebug) {
		return
	}
	if l.err != nil {
		fmt.Printf("%s[%s]%s %s%s: %v%s\n", ColorCyan, l.timestamp(), ColorReset, msg, l.fields, l.err, ColorReset)
		return
	}
	fmt.Printf("%s[%s]%s %s%s%s\n", ColorCyan, l.timestamp(), ColorReset, msg, l.fields, ColorReset)
}

func (l *Log) Info(msg string) {
	if !l.enabled(LogLevelInfo) {
		return
	}

	fmt.Printf("%s[%s]%s ℹ️  %s%s%s\n", ColorBlue, l.timestamp(), ColorReset, msg, l.fields, ColorReset)
}

func (l *Log) Warn(msg string) {
	if !l.enabled(LogLevelWarn) {
		return
	}

	if l.err != nil {
		fmt.Printf("%s[%s]%s ⚠️  %s%s: %v%s\n", ColorYellow, l.timestamp(), ColorReset, msg, l.fields, l.err, ColorReset)
		return
	}
	fmt.Printf("%s[%s]%s ⚠️  %s%s%s\n", ColorYellow, l.timestamp(), ColorReset, msg, l.fields, ColorReset)
}

func (l *Log) Error(msg string) {
	if l.err != nil {
		fmt.Printf("%s[%s]%s ❌ %s%s: %v%s\n", ColorRed, l.timestamp(), ColorReset, msg, l.fields, l.err, ColorReset)
		return
	}
	fmt.Printf("%s[%s]%s ❌ %s%s%s\n", ColorRed, l.timestamp(), ColorReset, msg, l.fields, ColorReset)
}
