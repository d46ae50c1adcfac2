// Package logging builds the process logger from resolved configuration, and
// provides an in-memory handler used to capture the logs of a single test.
package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/joeycumines/go-fest/internal/config"
	"golang.org/x/term"
)

// Log formats accepted by [New].
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// New returns a logger configured by s. Output goes to s.LogFile, rotated by
// size, or to stderr when no file is set. The "auto" format is text on a
// terminal and JSON otherwise. The returned closer releases the log file, if
// any, and must be called once the logger is no longer used.
func New(s config.Settings, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	var (
		w                = stderr
		closer io.Closer = nopCloser{}
	)
	if s.LogFile != "" {
		rw, err := NewRotatingWriter(s.LogFile, int64(s.LogMaxSize)<<20, s.LogMaxFiles)
		if err != nil {
			return nil, nil, err
		}
		w, closer = rw, rw
	}

	opts := &slog.HandlerOptions{Level: s.LogLevel}
	var handler slog.Handler
	switch format := resolveFormat(s.LogFormat, w); format {
	case FormatText:
		handler = slog.NewTextHandler(w, opts)
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("logging: unknown format %q", format)
	}
	return slog.New(handler), closer, nil
}

func resolveFormat(format string, w io.Writer) string {
	switch format {
	case "", FormatAuto:
		if IsTerminal(w) {
			return FormatText
		}
		return FormatJSON
	}
	return format
}

// IsTerminal reports whether w is backed by a terminal file descriptor.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	fd := f.Fd()
	if fd == ^uintptr(0) {
		return false
	}
	return term.IsTerminal(int(fd))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
