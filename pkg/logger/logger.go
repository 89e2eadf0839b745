package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zaavg/storefront/pkg/env"
)

// Options configures the structured logger. LOG_FORMAT=console switches the
// output to zerolog's human-readable writer.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	WarnStack   bool
	Output      io.Writer
}

// Logger writes JSON lines enriched with the fields carried on the context.
type Logger struct {
	zl        zerolog.Logger
	warnStack bool
}

// fieldsKey holds a flat key/value list. Every With* call copies it so
// contexts handed to goroutines never share a backing array.
type fieldsKey struct{}

func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(env.Get("LOG_FORMAT", "json"), "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	return &Logger{
		zl:        zerolog.New(out).Level(level).With().Timestamp().Str("service", opts.ServiceName).Logger(),
		warnStack: opts.WarnStack,
	}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// ParseLevel maps a textual level to zerolog; blanks and typos become info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func contextFields(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).([]any)
	return fields
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	prev := contextFields(ctx)
	next := make([]any, 0, len(prev)+2*len(fields))
	next = append(next, prev...)
	for k, v := range fields {
		next = append(next, k, v)
	}
	return context.WithValue(ctx, fieldsKey{}, next)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.WithFields(ctx, map[string]any{key: value})
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

func (l *Logger) WithCartID(ctx context.Context, cartID string) context.Context {
	return l.WithField(ctx, "cart_id", cartID)
}

func (l *Logger) emit(ctx context.Context, event *zerolog.Event, msg string) {
	if fields := contextFields(ctx); len(fields) > 0 {
		event = event.Fields(fields)
	}
	event.Msg(msg)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.emit(ctx, l.zl.Debug(), msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.emit(ctx, l.zl.Info(), msg)
}

// Warn attaches a stack trace only when WarnStack was set.
func (l *Logger) Warn(ctx context.Context, msg string) {
	event := l.zl.Warn()
	if l.warnStack {
		event = event.Str("stack", stack())
	}
	l.emit(ctx, event, msg)
}

func (l *Logger) Error(ctx context.Context, msg string, err error) {
	l.emit(ctx, l.zl.Error().Err(err).Str("stack", stack()), msg)
}

func stack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
