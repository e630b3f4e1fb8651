package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Logger keeps the printf-style call surface used across handlers and
// services while emitting structured slog records underneath.
type Logger struct {
	l *slog.Logger
}

func NewLogger() *Logger {
	return NewLoggerTo(os.Stderr, slog.LevelInfo)
}

func NewLoggerTo(w io.Writer, level slog.Level) *Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{l: slog.New(h)}
}

// NewDiscardLogger is handy in tests.
func NewDiscardLogger() *Logger {
	return NewLoggerTo(io.Discard, slog.LevelError)
}

func (lg *Logger) Printf(format string, args ...any) {
	if lg == nil {
		return
	}
	lg.l.Info(fmt.Sprintf(format, args...))
}

func (lg *Logger) Errorf(format string, args ...any) {
	if lg == nil {
		return
	}
	lg.l.Error(fmt.Sprintf(format, args...))
}

func (lg *Logger) Warnf(format string, args ...any) {
	if lg == nil {
		return
	}
	lg.l.Warn(fmt.Sprintf(format, args...))
}

// With returns a child logger that always carries the given key/value pairs.
func (lg *Logger) With(args ...any) *Logger {
	if lg == nil {
		return nil
	}
	return &Logger{l: lg.l.With(args...)}
}

func (lg *Logger) Slog() *slog.Logger {
	if lg == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return lg.l
}
