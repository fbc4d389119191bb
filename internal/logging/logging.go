// Package logging wires up the process-wide zerolog logger: console output
// for interactive terminals, JSON for everything else, with a configurable
// level.
package logging

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger. format is "console", "json", or "" to
// auto-detect based on whether stderr is a terminal. levelName is parsed
// with zerolog.ParseLevel; an invalid name falls back to info and is
// reported via the returned ok value.
func New(levelName, format string) (zerolog.Logger, bool) {
	level, err := zerolog.ParseLevel(levelName)
	ok := err == nil
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writer interface{ Write([]byte) (int, error) }
	if format == "json" || (format == "" && !isatty.IsTerminal(os.Stderr.Fd())) {
		writer = os.Stderr
	} else {
		writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	return logger, ok
}
