// Package log abstracts the structured logger used across the server so call
// sites never depend on the concrete logging library directly.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger abstracts the logging behavior the server needs.
//
// This project uses two severities on the hot path: Info for
// connection/session lifecycle events (accept, handshake, close) and
// per-request verification outcomes, Debug for per-I/O events (poll
// wakeups, bytes read/written). Warn and Error cover setup and fatal
// per-connection conditions.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(fields Fields) Logger
}

// Fields attaches structured context to a log line (conn_id, remote_addr,
// protocol, key, stream_id, ...).
type Fields map[string]any

// Verbosity mirrors the original server's --verbose levels.
type Verbosity string

const (
	VerbosityError Verbosity = "error"
	VerbosityWarn  Verbosity = "warn"
	VerbosityInfo  Verbosity = "info"
	VerbosityDiag  Verbosity = "diag"
)

// ParseVerbosity maps the CLI verbosity name onto a logrus level, defaulting
// to info on an unrecognized value.
func ParseVerbosity(v string) (logrus.Level, bool) {
	switch Verbosity(v) {
	case VerbosityError:
		return logrus.ErrorLevel, true
	case VerbosityWarn:
		return logrus.WarnLevel, true
	case VerbosityInfo:
		return logrus.InfoLevel, true
	case VerbosityDiag:
		return logrus.DebugLevel, true
	default:
		return logrus.InfoLevel, false
	}
}

// New builds a Logger writing to w at the given level.
func New(w io.Writer, level logrus.Level) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// Discard returns a Logger that writes nowhere, for tests and library use
// that doesn't want console output by default.
func Discard() Logger {
	return New(io.Discard, logrus.ErrorLevel)
}

// Default returns the package-level logger writing to stderr at info level.
func Default() Logger {
	return New(os.Stderr, logrus.InfoLevel)
}

type logrusLogger struct {
	entry *logrus.Entry
}

var _ Logger = (*logrusLogger)(nil)

func (l *logrusLogger) Debug(msg string, args ...any) { l.entry.Debugf(msg, args...) }
func (l *logrusLogger) Info(msg string, args ...any)  { l.entry.Infof(msg, args...) }
func (l *logrusLogger) Warn(msg string, args ...any)  { l.entry.Warnf(msg, args...) }
func (l *logrusLogger) Error(msg string, args ...any) { l.entry.Errorf(msg, args...) }

func (l *logrusLogger) With(fields Fields) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}
