package logging

import (
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Options controls how New builds a logger.
type Options struct {
	Level  string // panic, fatal, error, warn, info, debug, trace
	Format string // text or json
	Output io.Writer
}

// New builds a logrus logger from opts. An empty level defaults to info, or to
// debug when TASKS_DEBUG is set.
func New(opts Options) (*log.Logger, error) {
	logger := log.New()

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	logger.SetOutput(out)

	switch strings.ToLower(opts.Format) {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{DisableColors: true, FullTimestamp: true})
	default:
		return nil, &FormatError{Format: opts.Format}
	}

	level := log.InfoLevel
	if opts.Level != "" {
		parsed, err := log.ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		level = parsed
	} else if DebugEnabled() {
		level = log.DebugLevel
	}
	logger.SetLevel(level)

	return logger, nil
}

// Component returns an entry tagged with the component name. A nil logger
// yields an entry that discards everything.
func Component(logger log.FieldLogger, name string) *log.Entry {
	if logger == nil {
		logger = Discard()
	}
	return logger.WithField("component", name)
}

// Discard returns a logger that writes nowhere.
func Discard() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

// FormatError reports an unknown log format.
type FormatError struct {
	Format string
}

func (e *FormatError) Error() string {
	return "unknown log format: " + e.Format
}
