// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Options configures New.
type Options struct {
	// Level is one of trace, debug, info, warn, error. Empty means info.
	Level string
	// Format is "json", "console" or "auto" (console when Out is a terminal).
	Format string
	// Out defaults to os.Stderr.
	Out io.Writer
}

// isVerbose checks if verbose mode is enabled dynamically
func isVerbose() bool {
	return os.Getenv("IDKEEPER_VERBOSE") == "1"
}

// New builds the process logger. IDKEEPER_VERBOSE=1 forces debug level.
func New(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if isVerbose() && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}

	w := out
	if useConsole(opts.Format, out) {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func useConsole(format string, out io.Writer) bool {
	switch strings.ToLower(format) {
	case "json":
		return false
	case "console", "text":
		return true
	}
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
