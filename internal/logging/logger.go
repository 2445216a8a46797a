package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment variables read by Init.
const (
	LevelEnv  = "DATALAKE_LOG_LEVEL"
	FormatEnv = "DATALAKE_LOG_FORMAT"
)

// Init initializes the global logger from DATALAKE_LOG_LEVEL (debug, info,
// warn, error; default info) and DATALAKE_LOG_FORMAT (json or console;
// default json, which is what CloudWatch indexes).
func Init() {
	InitWith(os.Getenv(LevelEnv), os.Getenv(FormatEnv), os.Stderr)
}

// InitConsole initializes the global logger for interactive use.
func InitConsole() {
	InitWith(os.Getenv(LevelEnv), "console", os.Stderr)
}

// InitWith sets the global level and points the global logger at w.
func InitWith(level, format string, w io.Writer) {
	zerolog.SetGlobalLevel(ParseLevel(level))
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
