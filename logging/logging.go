// Package logging provides the logger interface used across playerid.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is an interface for leveled logging.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Config configures the root logrus logger.
type Config struct {
	// Level is one of logrus' level names ("debug", "info", "warn", ...).
	Level string `json:"level,omitempty" env:"LEVEL"`
	// Format is "text" or "json". Default: "text".
	Format string `json:"format,omitempty" env:"FORMAT"`
}

// NewRoot builds a logrus logger writing to out.
func NewRoot(cfg Config, out io.Writer) (*logrus.Logger, error) {
	l := logrus.New()
	if out == nil {
		out = os.Stderr
	}
	l.SetOutput(out)

	level := logrus.InfoLevel
	if cfg.Level != "" {
		var err error
		level, err = logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
	return l, nil
}

// logrusLogger adapts a logrus entry to Logger.
type logrusLogger struct {
	entry *logrus.Entry
}

// New returns a Logger writing through l, tagged with the component name.
func New(l *logrus.Logger, component string) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &logrusLogger{entry: l.WithField("component", component)}
}

// Default returns a Logger on logrus' standard logger.
func Default(component string) Logger {
	return New(nil, component)
}

func (l *logrusLogger) Info(msg string, args ...any) {
	l.entry.Infof(msg, args...)
}

func (l *logrusLogger) Warn(msg string, args ...any) {
	l.entry.Warnf(msg, args...)
}

func (l *logrusLogger) Debug(msg string, args ...any) {
	l.entry.Debugf(msg, args...)
}

type nopLogger struct{}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
