package bananabit

import (
	"fmt"
	"strings"
)

// Logger is the structured logger used across the runtime. Arguments are
// key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DefaultLogger returns the stdout logger used when none is configured.
func DefaultLogger(name string) Logger {
	return defLogger{name: strings.ToUpper(name)}
}

type defLogger struct {
	name string
}

func (d defLogger) Debug(msg string, args ...any) {
	d.print("DBG", msg, args...)
}

func (d defLogger) Info(msg string, args ...any) {
	d.print("INF", msg, args...)
}

func (d defLogger) Warn(msg string, args ...any) {
	d.print("WRN", msg, args...)
}

func (d defLogger) Error(msg string, args ...any) {
	d.print("ERR", msg, args...)
}

func (d defLogger) print(level, msg string, args ...any) {
	fmt.Printf("[%s] %s %s%s\n", level, d.name, msg, formatArgs(args))
}

func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	return b.String()
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger discards everything.
func NopLogger() Logger {
	return nopLogger{}
}
