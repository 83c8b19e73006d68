// Package obslog provides the shared, silent-by-default zerolog logger used
// by the Dump operations in lpm, heap and ring. Callers opt in with a
// functional option; nothing is written unless they do.
package obslog

import (
	"io"

	"github.com/rs/zerolog"
)

// New returns a no-op logger. WithWriter returns one that writes.
func New() zerolog.Logger {
	return zerolog.Nop()
}

// WithWriter returns a logger that writes timestamped JSON events to w. It
// sets no level of its own, so debug events are written too.
func WithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
