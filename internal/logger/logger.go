// Package logger is the service-wide structured logging facade, backed
// by logrus. Call sites pass a message and a flat field map.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// Init configures the process logger. Level comes from LOG_LEVEL
// (debug|info|warn|error), defaulting to info.
func Init() {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
}

func entry(fields map[string]any) *logrus.Entry {
	if len(fields) == 0 {
		return logrus.NewEntry(log)
	}
	return log.WithFields(logrus.Fields(fields))
}

func Debug(msg string, fields map[string]any) {
	entry(fields).Debug(msg)
}

func Info(msg string, fields map[string]any) {
	entry(fields).Info(msg)
}

func Warn(msg string, fields map[string]any) {
	entry(fields).Warn(msg)
}

func Error(msg string, fields map[string]any) {
	entry(fields).Error(msg)
}

// Fatal logs and exits the process.
func Fatal(msg string, fields map[string]any) {
	entry(fields).Fatal(msg)
}
