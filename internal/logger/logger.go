// Package logger configures zerolog for the command line tools.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New returns a logger writing to w at the given level. format is either
// "console" for human readable output or "json".
func New(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parsing log level: %w", err)
	}

	switch format {
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", format)
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// Setup builds a stderr logger and installs it as the global logger.
func Setup(level, format string) (zerolog.Logger, error) {
	l, err := New(os.Stderr, level, format)
	if err != nil {
		return l, err
	}
	zerolog.SetGlobalLevel(l.GetLevel())
	log.Logger = l
	return l, nil
}
