// Package logging builds the zerolog logger used by the nanotdf command.
// Library packages take a zerolog.Logger through their options and default
// to a no-op logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Option configures New.
type Option func(*options)

type options struct {
	out    io.Writer
	caller bool
}

// WithOutput sets the destination; the default is os.Stderr.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithCaller adds the caller file and line to each event.
func WithCaller() Option {
	return func(o *options) { o.caller = true }
}

// New returns a logger at level in the given format. Text renders through
// zerolog.ConsoleWriter, json writes one object per line.
func New(level, format string, opts ...Option) (zerolog.Logger, error) {
	o := options{out: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer
	switch strings.ToLower(format) {
	case "", FormatText:
		w = zerolog.ConsoleWriter{Out: o.out, TimeFormat: time.RFC3339}
	case FormatJSON:
		w = o.out
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", format)
	}

	ctx := zerolog.New(w).Level(lvl).With().Timestamp()
	if o.caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), nil
}
