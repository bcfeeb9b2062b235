package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stdout, logrus.InfoLevel)
)

func newLogger(out io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(level)
	l.SetOutput(out)
	return l
}

// Setup replaces the process logger. Unknown levels fall back to info.
func Setup(level string, out io.Writer) *logrus.Logger {
	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	if out == nil {
		out = os.Stdout
	}

	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(out, parsed)
	return logger
}

func Logger() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func LogError(moduleName string, funcName string, context string, data any, err error) {
	if err == nil {
		return
	}
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	Logger().WithFields(fields).Error(err.Error())
}

func Warn(moduleName string, funcName string, message string, fields logrus.Fields) {
	entry := Logger().WithFields(logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
	})
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Warn(message)
}
