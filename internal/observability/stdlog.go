package observability

import (
	"fmt"
	"io"
	"log"
	"strings"
)

// StdLogger adapts the standard library's *log.Logger to the Logger
// interface, matching the log.New(os.Stdout, prefix, flags) convention used
// at every process entrypoint.
type StdLogger struct {
	base *log.Logger
}

// NewStdLogger builds a Logger that writes prefixed, leveled lines to w.
func NewStdLogger(w io.Writer, prefix string) *StdLogger {
	return &StdLogger{base: log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)}
}

func (l *StdLogger) Debug(msg string, fields ...Field) { l.emit("DEBUG", msg, fields) }
func (l *StdLogger) Info(msg string, fields ...Field)  { l.emit("INFO", msg, fields) }
func (l *StdLogger) Error(msg string, fields ...Field) { l.emit("ERROR", msg, fields) }

func (l *StdLogger) emit(level, msg string, fields []Field) {
	if len(fields) == 0 {
		l.base.Printf("%s %s", level, msg)
		return
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%s=%v", f.Key, f.Value)
	}
	l.base.Printf("%s %s %s", level, msg, strings.Join(parts, " "))
}
