// Package logging builds the structured zerolog loggers used throughout
// the broker and the MCP adapter, following ws/internal/shared/monitoring.NewLogger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options configures a logger's level, format, and output stream.
type Options struct {
	Level   zerolog.Level
	Pretty  bool
	Service string
	Output  io.Writer // defaults to os.Stdout when nil
}

// New builds a zerolog.Logger with a timestamp, the service name, and
// (in pretty mode) a console writer suitable for local development.
func New(opts Options) zerolog.Logger {
	var output io.Writer = opts.Output
	if output == nil {
		output = os.Stdout
	}

	if opts.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zerolog.SetGlobalLevel(opts.Level)

	logger := zerolog.New(output).With().Timestamp().Str("service", opts.Service).Logger()
	return logger
}

// NewStderr builds a logger that writes exclusively to stderr, which is
// mandatory for the MCP stdio adapter (spec §4.7): stdout is reserved for
// MCP JSON-RPC framing and must never carry a stray log line.
func NewStderr(level zerolog.Level, pretty bool, service string) zerolog.Logger {
	return New(Options{Level: level, Pretty: pretty, Service: service, Output: os.Stderr})
}
