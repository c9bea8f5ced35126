package logger

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus with the formatting used across the migration engine.
type Logger struct {
	*logrus.Logger
}

// New creates a logger writing RFC3339-stamped text lines to stdout.
func New() *Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	log.SetLevel(logrus.InfoLevel)

	return &Logger{Logger: log}
}

// SetLevel sets the logging level from its string name.
func (l *Logger) SetLevel(level string) {
	switch level {
	case "debug":
		l.Logger.SetLevel(logrus.DebugLevel)
	case "info":
		l.Logger.SetLevel(logrus.InfoLevel)
	case "warn":
		l.Logger.SetLevel(logrus.WarnLevel)
	case "error":
		l.Logger.SetLevel(logrus.ErrorLevel)
	default:
		l.Logger.SetLevel(logrus.InfoLevel)
	}
}

// WithField returns an entry carrying one structured field.
func (l *Logger) WithField(key string, value any) *logrus.Entry {
	return l.Logger.WithField(key, value)
}
