// Package logger defines the small logging seam every OSI-layer package
// depends on, so none of them need to know whether the concrete sink is
// logrus, a test recorder, or /dev/null.
package logger

import (
	"github.com/sirupsen/logrus"
)

// Logger is satisfied by every concrete logging backend used in this
// module. Debug is kept for call-site compatibility with the
// byte-level trace logging used throughout the stack packages; Info/Warn/
// Error cover the orchestrator's lifecycle and negotiation-failure
// reporting.
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
	WithField(key string, value any) Logger
}

// logrusLogger adapts a *logrus.Entry to Logger, carrying a "layer"
// field (set from NewLogger's category) that replaces the stdlib prefix the teacher's stdLogger used.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogger creates a logrus-backed Logger tagged with category (e.g.
// "cotp", "session", "mms").
func NewLogger(category string) Logger {
	base := logrus.New()
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	entry := base.WithField("layer", category)
	return &logrusLogger{entry: entry}
}

func (l *logrusLogger) Debug(format string, v ...any) { l.entry.Debugf(format, v...) }
func (l *logrusLogger) Info(format string, v ...any)  { l.entry.Infof(format, v...) }
func (l *logrusLogger) Warn(format string, v ...any)  { l.entry.Warnf(format, v...) }
func (l *logrusLogger) Error(format string, v ...any) { l.entry.Errorf(format, v...) }

func (l *logrusLogger) WithField(key string, value any) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

// Nop is a Logger that discards everything; useful as the zero-value
// default so every layer can log unconditionally without nil checks.
var Nop Logger = &nopLogger{}

type nopLogger struct{}

func (*nopLogger) Debug(string, ...any)      {}
func (*nopLogger) Info(string, ...any)       {}
func (*nopLogger) Warn(string, ...any)       {}
func (*nopLogger) Error(string, ...any)      {}
func (*nopLogger) WithField(string, any) Logger { return Nop }
