package logging

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// NewZerolog builds the zerolog logger used by the InfluxDB manager.
// It shares the session log file with slog; a nil writer means stdout.
func NewZerolog(w io.Writer, level string) zerolog.Logger {
	if w == nil {
		w = osStdout
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("component", "influx").Logger()
}
