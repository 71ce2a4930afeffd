// Package logger configures JSON structured logging.
package logger

import (
	"io"
	"log/slog"
	"os"
)

func Setup(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// SetupDefault installs the JSON logger as the slog default. nil means stdout.
func SetupDefault(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	l := Setup(w)
	slog.SetDefault(l)
	return l
}
