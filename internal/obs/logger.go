package obs

import (
	"io"

	"github.com/rs/zerolog"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name such as "debug" or "WARN" to a Level.
// Unknown names map to Info.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return Debug
	case "warn", "WARN", "warning":
		return Warn
	case "error", "ERROR":
		return Error
	default:
		return Info
	}
}

// Logger is a minimal logging interface for observability.
type Logger interface {
	Logf(level Level, format string, args ...interface{})
}

// NopLogger discards all logs.
type NopLogger struct{}

func (NopLogger) Logf(level Level, format string, args ...interface{}) {}

// Zerolog adapts a zerolog.Logger. Level filtering is left to the
// zerolog logger itself.
type Zerolog struct {
	L zerolog.Logger
}

// NewZerolog returns a JSON logger writing timestamped events to w at or
// above min.
func NewZerolog(w io.Writer, min Level) Zerolog {
	return Zerolog{L: zerolog.New(w).Level(zerologLevel(min)).With().Timestamp().Logger()}
}

func (z Zerolog) Logf(level Level, format string, args ...interface{}) {
	z.L.WithLevel(zerologLevel(level)).Msgf(format, args...)
}

func zerologLevel(l Level) zerolog.Level {
	switch l {
	case Debug:
		return zerolog.DebugLevel
	case Warn:
		return zerolog.WarnLevel
	case Error:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
