// Package logger provides the process-wide leveled logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/op/go-logging"
)

const (
	module     = "sigrafilm"
	timeFormat = "2006/01/02 15:04:05"
)

var logger *logging.Logger

func init() {
	InitLogger(logging.INFO, os.Stderr)
}

// InitLogger replaces the backend with one writing to w at the given level.
func InitLogger(level logging.Level, w io.Writer) {
	newLogger := logging.MustGetLogger(module)
	backend := logging.NewLogBackend(w, "", 0)
	formatted := logging.NewBackendFormatter(backend, logging.MustStringFormatter(
		`%{time:`+timeFormat+`} %{level} - %{message}`,
	))
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(level, module)
	newLogger.SetBackend(leveled)
	logger = newLogger
}

// ParseLevel maps a config string to a level, defaulting to INFO.
func ParseLevel(s string) logging.Level {
	level, err := logging.LogLevel(strings.ToUpper(strings.TrimSpace(s)))
	if err != nil {
		return logging.INFO
	}
	return level
}

func Debug(args ...interface{}) {
	logger.Debug(args...)
}

func Debugf(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

func Info(args ...interface{}) {
	logger.Info(args...)
}

func Infof(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

func Warning(args ...interface{}) {
	logger.Warning(args...)
}

func Warningf(format string, args ...interface{}) {
	logger.Warningf(format, args...)
}

func Error(args ...interface{}) {
	logger.Error(args...)
}

func Errorf(format string, args ...interface{}) {
	logger.Errorf(format, args...)
}

// Printer adapts the logger to interfaces expecting Print, such as chi's
// request logger.
type Printer struct{}

func (Printer) Print(v ...interface{}) {
	logger.Info(strings.TrimRight(fmt.Sprint(v...), "\n"))
}
