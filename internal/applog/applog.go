// Package applog provides the structured, context-aware logging calls used
// throughout dlnaproxy. The call shape (log.Info(ctx, msg, "k", v, ...))
// mirrors navidrome's own log package; the backend is logrus.
package applog

import (
	"context"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

// Level mirrors the CLI's -v/-vv/-vvv/-vvvv verbosity flag.
type Level int

const (
	LevelWarn Level = iota
	LevelInfo
	LevelDebug
	LevelTrace
)

// SetLevel maps a verbosity count (0-4) to a logrus level.
func SetLevel(verbosity int) {
	switch {
	case verbosity <= 0:
		std.SetLevel(logrus.ErrorLevel)
	case verbosity == 1:
		std.SetLevel(logrus.WarnLevel)
	case verbosity == 2:
		std.SetLevel(logrus.InfoLevel)
	case verbosity == 3:
		std.SetLevel(logrus.DebugLevel)
	default:
		std.SetLevel(logrus.TraceLevel)
	}
}

type ctxKey struct{}

// WithFields attaches key/value pairs to ctx so later calls on the same ctx
// inherit them (e.g. a per-connection correlation id).
func WithFields(ctx context.Context, kv ...interface{}) context.Context {
	fields := fieldsFromContext(ctx)
	merged := fields.WithFields(kvToFields(kv))
	return context.WithValue(ctx, ctxKey{}, merged)
}

func fieldsFromContext(ctx context.Context) logrus.Fields {
	if ctx == nil {
		return logrus.Fields{}
	}
	if f, ok := ctx.Value(ctxKey{}).(logrus.Fields); ok {
		return f
	}
	return logrus.Fields{}
}

func kvToFields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}

func entry(ctx context.Context, kv []interface{}) *logrus.Entry {
	fields := fieldsFromContext(ctx)
	if len(kv) > 0 {
		for k, v := range kvToFields(kv) {
			fields[k] = v
		}
	}
	return std.WithFields(fields)
}

func Info(ctx context.Context, msg string, kv ...interface{}) {
	entry(ctx, kv).Info(msg)
}

func Debug(ctx context.Context, msg string, kv ...interface{}) {
	entry(ctx, kv).Debug(msg)
}

func Trace(ctx context.Context, msg string, kv ...interface{}) {
	entry(ctx, kv).Trace(msg)
}

// Warn logs a warning. An error, if present as the third positional
// argument, is attached under the "error" field, so callers can write
// either Warn(ctx, msg, err) or Warn(ctx, msg, "k", v, ...).
func Warn(ctx context.Context, msg string, rest ...interface{}) {
	kv, err := splitErr(rest)
	e := entry(ctx, kv)
	if err != nil {
		e = e.WithError(err)
	}
	e.Warn(msg)
}

func Error(ctx context.Context, msg string, rest ...interface{}) {
	kv, err := splitErr(rest)
	e := entry(ctx, kv)
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(msg)
}

// splitErr pulls a leading error out of a mixed kv/error argument list,
// since callers write log.Error(ctx, "...", err, "k", v) as often as
// log.Error(ctx, "...", "k", v).
func splitErr(rest []interface{}) ([]interface{}, error) {
	if len(rest) == 0 {
		return rest, nil
	}
	if err, ok := rest[0].(error); ok {
		return rest[1:], err
	}
	return rest, nil
}
