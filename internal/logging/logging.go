// Package logging builds the CLI's diagnostic logger. Logs always go to
// stderr so that command output on stdout stays machine-readable.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Level derives the log level from the --debug and --trace flags. Without
// either, only warnings and errors are logged.
func Level(debug, trace bool) zerolog.Level {
	switch {
	case trace:
		return zerolog.TraceLevel
	case debug:
		return zerolog.DebugLevel
	default:
		return zerolog.WarnLevel
	}
}

// New returns a logger writing to w. Terminals get human-readable console
// output; anything else gets one JSON object per line.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	// The global level filters before a logger's own level does.
	if level < zerolog.GlobalLevel() {
		zerolog.SetGlobalLevel(level)
	}

	out := w
	if isTerminal(w) {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
