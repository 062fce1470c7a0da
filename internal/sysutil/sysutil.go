// Package sysutil holds process-level helpers shared by the CLI
// subcommands: global log level and log output setup.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLogLevel maps a configuration value to a zerolog level.
// Supported values (case-insensitive): debug, info, warn, error, fatal, panic.
// Anything else yields info.
func ParseLogLevel(lvl string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetLogLevel configures the global zerolog level based on a string value.
func SetLogLevel(lvl string) {
	zerolog.SetGlobalLevel(ParseLogLevel(lvl))
}

// SetupLogger installs the global logger. With pretty set, output goes
// through a zerolog.ConsoleWriter; otherwise JSON lines are written. A nil
// w means stderr. The process role is attached to every entry.
func SetupLogger(level string, pretty bool, role string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	SetLogLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	l := zerolog.New(w).With().Timestamp().Str("role", role).Logger()
	log.Logger = l
	return l
}
