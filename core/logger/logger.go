package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	instance *log.Logger
	once     sync.Once
)

// get returns the process-wide logger, creating it on first use.
func get() *log.Logger {
	once.Do(func() {
		instance = log.NewWithOptions(os.Stderr, log.Options{
			Level:           log.InfoLevel,
			ReportTimestamp: true,
			TimeFormat:      "2006-01-02 15:04:05",
		})
	})
	return instance
}

// SetLevel sets the log level from a string such as "debug" or "warn".
// Unknown values fall back to info.
func SetLevel(level string) {
	var lvl log.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = log.DebugLevel
	case "warn", "warning":
		lvl = log.WarnLevel
	case "error":
		lvl = log.ErrorLevel
	default:
		lvl = log.InfoLevel
	}
	get().SetLevel(lvl)
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	get().SetOutput(w)
}

// SetJSON switches to JSON formatted output.
func SetJSON(enabled bool) {
	if enabled {
		get().SetFormatter(log.JSONFormatter)
		return
	}
	get().SetFormatter(log.TextFormatter)
}

func Debug(msg string, keyvals ...interface{}) {
	get().Debug(msg, keyvals...)
}

func Info(msg string, keyvals ...interface{}) {
	get().Info(msg, keyvals...)
}

func Warn(msg string, keyvals ...interface{}) {
	get().Warn(msg, keyvals...)
}

func Error(msg string, keyvals ...interface{}) {
	get().Error(msg, keyvals...)
}
