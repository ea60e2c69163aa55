// Package logging builds the process-wide structured logger shared by the
// buffer, disk, and heap packages.
package logging

import "github.com/sirupsen/logrus"

// New builds a logrus.Logger at the given level ("debug", "info", "warn",
// "error"). An unrecognized level falls back to info.
func New(level string) *logrus.Logger {
	l := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Discard returns a logger that drops everything, for callers (such as
// tests) that want no log output at all.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
