package cliconfig

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// LevelFromNumeric maps the numeric log levels used on the command line to
// zerolog levels: 10 debug, 20 info, 30 warning, 40 error, 50 critical and
// -1 silences the console.
func LevelFromNumeric(n int) zerolog.Level {
	switch {
	case n < 0:
		return zerolog.Disabled
	case n <= 10:
		return zerolog.DebugLevel
	case n <= 20:
		return zerolog.InfoLevel
	case n <= 30:
		return zerolog.WarnLevel
	case n <= 40:
		return zerolog.ErrorLevel
	default:
		return zerolog.FatalLevel
	}
}

// NewLogger returns a logger writing human-readable output to console at
// level and, when file is non-nil, every event as JSON to file.
func NewLogger(level zerolog.Level, console io.Writer, file io.Writer) zerolog.Logger {
	cw := levelFilter{
		w:   zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339},
		min: level,
	}
	var w io.Writer = cw
	if file != nil {
		w = zerolog.MultiLevelWriter(cw, file)
	}
	return zerolog.New(w).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}

// levelFilter drops events below min.
type levelFilter struct {
	w   io.Writer
	min zerolog.Level
}

func (f levelFilter) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

func (f levelFilter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if f.min == zerolog.Disabled || l < f.min {
		return len(p), nil
	}
	return f.w.Write(p)
}
