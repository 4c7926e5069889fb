// Package log configures the process-wide zerolog logger, matching the
// console/JSON switch used by the teacher's cmd/cryptorun/main.go.
package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger. When pretty is true (an
// interactive TTY) it uses a human console writer; otherwise it emits
// structured JSON suitable for log aggregation.
func Init(pretty bool, level zerolog.Level) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(level)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Logger returns the global logger, re-exported so callers don't need a
// second zerolog import.
func Logger() *zerolog.Logger {
	return &log.Logger
}
