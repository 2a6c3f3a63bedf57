package tools

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var logLevel = new(slog.LevelVar)

// Logger is the global structured logger instance.
var Logger = newLogger(os.Stdout)

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// SetLogOutput redirects Logger to w. The level is kept.
func SetLogOutput(w io.Writer) {
	Logger = newLogger(w)
}

// SetLogLevel changes the level of Logger. Unknown names fall back to info.
func SetLogLevel(name string) {
	switch strings.ToLower(name) {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "warn", "warning":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(slog.LevelInfo)
	}
}
