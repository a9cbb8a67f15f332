package logger

import (
	"context"
	"fmt"

	"golang.org/x/exp/slog"
)

type ctxKey int

const requestIDKey ctxKey = iota

// WithRequestID returns a copy of ctx carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id of ctx or "" if none is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Logger is a printf style logger bound to a request context.
type Logger struct {
	sl *slog.Logger
}

// New returns a logger which tags every line
// with the request id of ctx, if any.
func New(ctx context.Context, sl *slog.Logger) *Logger {
	if sl == nil {
		sl = slog.Default()
	}
	if id := RequestID(ctx); id != "" {
		sl = sl.With(slog.String("request_id", id))
	}
	return &Logger{sl: sl}
}

func (l Logger) Errorf(format string, args ...any) {
	l.sl.Error(fmt.Sprintf(format, args...))
}

func (l Logger) Warningf(format string, args ...any) {
	l.sl.Warn(fmt.Sprintf(format, args...))
}

func (l Logger) Infof(format string, args ...any) {
	l.sl.Info(fmt.Sprintf(format, args...))
}

func (l Logger) Debugf(format string, args ...any) {
	l.sl.Debug(fmt.Sprintf(format, args...))
}
