package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewRootLogger creates a structured JSON logger on stdout with no component.
// Workers derive their own component loggers from it. The level comes from
// COVERPOOL_LOG_LEVEL and defaults to info.
func NewRootLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).
		Level(ParseLogLevel(os.Getenv("COVERPOOL_LOG_LEVEL"))).
		With().
		Timestamp().
		Logger()
}

// NewLogger creates a root logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return NewRootLogger().With().Str("component", component).Logger()
}

// ParseLogLevel maps a level name to a zerolog level, defaulting to info.
func ParseLogLevel(s string) zerolog.Level {
	switch s {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
