// Package logging builds the structured logger shared by the binaries and
// bridges asynq's internal logger onto it.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a JSON logger writing to stdout at the given level.
func New(level string) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

// Discard returns a logger dropping every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Err returns the attributes used whenever an error is logged: the message
// and the chain of wrapped causes.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("error")
	}
	return slog.Group("error",
		slog.String("message", err.Error()),
		slog.Any("trace", Trace(err)),
	)
}

// Trace unwraps err into its chain of causes, outermost first.
func Trace(err error) []string {
	var out []string
	for err != nil {
		out = append(out, fmt.Sprintf("%T: %s", err, err.Error()))
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				out = append(out, Trace(e)...)
			}
			return out
		}
		err = errors.Unwrap(err)
	}
	return out
}

// AsynqLogger satisfies asynq.Logger on top of slog.
type AsynqLogger struct {
	Logger *slog.Logger
}

func (l AsynqLogger) Debug(args ...interface{}) { l.Logger.Debug(fmt.Sprint(args...)) }
func (l AsynqLogger) Info(args ...interface{})  { l.Logger.Info(fmt.Sprint(args...)) }
func (l AsynqLogger) Warn(args ...interface{})  { l.Logger.Warn(fmt.Sprint(args...)) }
func (l AsynqLogger) Error(args ...interface{}) { l.Logger.Error(fmt.Sprint(args...)) }

// Fatal logs and exits, as asynq expects.
func (l AsynqLogger) Fatal(args ...interface{}) {
	l.Logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
