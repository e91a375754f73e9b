package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// ConfigureLogger sets the global zerolog logger and level.
// Output goes to stdout and, when logPath is set, is appended to that file.
// The returned closer releases the file; it is a no-op without one.
func ConfigureLogger(logPath, logLevel string, pretty bool) (zerolog.Logger, io.Closer, error) {
	var (
		writers io.Writer = os.Stdout
		closer  io.Closer = nopCloser{}
	)
	if logPath != "" {
		file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file %s: %w", logPath, err)
		}
		writers = io.MultiWriter(os.Stdout, file)
		closer = file
	}

	if pretty {
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: writers})
	} else {
		zlog.Logger = zerolog.New(writers).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(ParseLevel(logLevel))
	return zlog.Logger, closer, nil
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
