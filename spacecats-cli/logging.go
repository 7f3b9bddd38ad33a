package spacecatscli

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func Logger(service Service) zerolog.Logger {
	var w io.Writer = os.Stdout
	if CommonOpts.Console {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().
		Timestamp().
		Str("service", service.Name).
		Str("version", service.Version).
		Logger()
}
