package logger

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

var base = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Init configures the shared logger. Production gets JSON output.
func Init(level string, production bool) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	base.SetLevel(lvl)
	if production {
		base.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

// L returns the shared logger.
func L() *logrus.Logger {
	return base
}

// WithRequestID stores a request scoped entry in ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, base.WithField("request_id", requestID))
}

// FromContext returns the request scoped entry, or a bare one.
func FromContext(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if e, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok {
			return e
		}
	}
	return logrus.NewEntry(base)
}

// WithFields adds fields to the entry stored in ctx.
func WithFields(ctx context.Context, fields logrus.Fields) context.Context {
	return context.WithValue(ctx, ctxKey{}, FromContext(ctx).WithFields(fields))
}
