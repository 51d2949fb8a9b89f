package main

import (
	"io"
	"log"
	"log/slog"

	"github.com/lmittmann/tint"
)

func newSlogger(output io.Writer, noColor bool) *slog.Logger {
	handler := tint.NewHandler(output, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindAny {
				if _, ok := a.Value.Any().(error); ok {
					return tint.Attr(9, a)
				}
			}
			return a
		},
	})
	return slog.New(handler)
}

// component adapts the structured logger to the *log.Logger the engine and
// transports take.
func component(sl *slog.Logger, name string) *log.Logger {
	return slog.NewLogLogger(sl.With("component", name).Handler(), slog.LevelInfo)
}
