// Package log provides the engine's namespaced debug logger. It mirrors the
// teacher library's "one Log per subsystem, gated by the DEBUG env var"
// convention instead of a generic leveled logger, since most of what it
// prints is either off (production) or fully on (DEBUG=socketio:*).
package log

import (
	"io"
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/gookit/color"
)

// DEBUG enables Debug() output across every Log instance whose
// prefix matches the DEBUG environment variable's glob pattern.
var (
	DEBUG  = os.Getenv("DEBUG") != ""
	Output io.Writer = os.Stderr
)

// Log is a namespaced logger, e.g. log.NewLog("socketio:manager").
type Log struct {
	*log.Logger

	prefix    string
	namespace *regexp.Regexp
}

// NewLog creates a Log for the given debug namespace.
func NewLog(prefix string) *Log {
	l := &Log{
		Logger: log.New(Output, prefix+" ", 0),
		prefix: prefix,
	}
	if pattern := os.Getenv("DEBUG"); pattern != "" {
		l.namespace = regexp.MustCompile("^" + strings.ReplaceAll(regexp.QuoteMeta(strings.TrimSpace(pattern)), `\*`, `.*`) + "$")
	}
	return l
}

func (l *Log) enabled() bool {
	if !DEBUG {
		return false
	}
	if l.namespace == nil {
		return true
	}
	return l.namespace.MatchString(l.prefix)
}

// Debug prints a namespace-gated debug message.
func (l *Log) Debug(format string, args ...any) {
	if l.enabled() {
		l.Logger.Println(color.Debug.Sprintf(format, args...))
	}
}

// Info prints an informational message unconditionally.
func (l *Log) Info(format string, args ...any) {
	l.Logger.Println(color.Info.Sprintf(format, args...))
}

// Warning prints a warning unconditionally.
func (l *Log) Warning(format string, args ...any) {
	l.Logger.Println(color.Warn.Sprintf(format, args...))
}

// Error prints an error unconditionally.
func (l *Log) Error(format string, args ...any) {
	l.Logger.Println(color.Danger.Sprintf(format, args...))
}
