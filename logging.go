package lgh

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

type Logger interface {
	DebugEnabled() bool
	SetDebug(enabled bool)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// DefaultLogger writes "LEVEL [name] message" lines, Debug and Info to stdout,
// Warn and Error to stderr. Loggers derived with Named share the debug switch.
type DefaultLogger struct {
	name  string
	debug *atomic.Bool
	out   *log.Logger
	err   *log.Logger
}

func NewDefaultLogger(name string, debug bool) *DefaultLogger {
	flags := log.LstdFlags | log.Lmicroseconds
	l := &DefaultLogger{
		name:  name,
		debug: new(atomic.Bool),
		out:   log.New(os.Stdout, "", flags),
		err:   log.New(os.Stderr, "", flags),
	}
	l.debug.Store(debug)
	return l
}

// Named returns a logger for a sub-component, e.g. "lgh/gpu".
func (l *DefaultLogger) Named(sub string) *DefaultLogger {
	child := *l
	if l.name == "" {
		child.name = sub
	} else {
		child.name = l.name + "/" + sub
	}
	return &child
}

func (l *DefaultLogger) DebugEnabled() bool    { return l.debug.Load() }
func (l *DefaultLogger) SetDebug(enabled bool) { l.debug.Store(enabled) }

func (l *DefaultLogger) format(level, format string, args []any) string {
	msg := fmt.Sprintf(format, args...)
	if l.name == "" {
		return level + " " + msg
	}
	return level + " [" + l.name + "] " + msg
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	if l.debug.Load() {
		l.out.Print(l.format("DEBUG", format, args))
	}
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	l.out.Print(l.format("INFO ", format, args))
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	l.err.Print(l.format("WARN ", format, args))
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.err.Print(l.format("ERROR", format, args))
}

type nopLogger struct{}

func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) DebugEnabled() bool    { return false }
func (nopLogger) SetDebug(bool)         {}
func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
