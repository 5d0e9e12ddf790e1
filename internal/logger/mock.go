package logger

import (
	"io"

	"github.com/rs/zerolog"
)

// Mock returns a disabled logger for tests.
func Mock() Logger {
	l := &DefaultLogger{
		writers: make([]io.Writer, 0),
		level:   zerolog.Disabled,
	}

	l.log = zerolog.New(io.MultiWriter(l.writers...)).With().Stack().Logger()

	return l
}
