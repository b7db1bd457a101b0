// Package swarmlog provides the structured logging interface shared by every
// component of the engine.
package swarmlog

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is a bridging interface between logrus and whatever logging sink a
// host application wants to supply. Every component takes a Logger rather
// than reaching for a package-level logger, so a single process can run
// multiple engines with independently configured logging.
type Logger interface {
	logrus.FieldLogger
	// Writer returns a writer that emits one log entry per line written to
	// it, useful for piping a child worker's stderr into the parent's log.
	Writer() *io.PipeWriter
}

// New returns a Logger backed by a fresh logrus.Logger writing to the given
// writer at the given level. Passing a nil writer leaves the default
// (stderr) output in place.
func New(out io.Writer, level logrus.Level) Logger {
	l := logrus.New()
	if out != nil {
		l.SetOutput(out)
	}
	l.SetLevel(level)
	return l
}

// Discard returns a Logger that drops everything it is given, for use in
// tests that don't care about log output.
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
