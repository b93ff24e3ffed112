package platform

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the daemon's base zerolog logger: human-readable
// console output, matching the teacher's terse, factual log-line wording
// but via zerolog's structured API instead of log.Printf (SPEC_FULL.md's
// Ambient Stack: logging).
func NewLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(console).With().Timestamp().Logger()
}
