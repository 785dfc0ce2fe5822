package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"dealwatch/internal/config"
)

var writer io.Writer = os.Stdout

// Init configures the global zerolog logger. Call once at startup,
// before anything logs.
func Init(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	writer = os.Stdout
	if cfg.File != "" {
		if fw, ferr := newCappedFileWriter(cfg.File, cfg.MaxMB); ferr == nil {
			writer = fw
		}
	}
	output := writer
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: writer}
	}

	zerolog.SetGlobalLevel(level)
	builder := zerolog.New(output).With().Timestamp()
	if cfg.Caller {
		builder = builder.Caller()
	}
	logger := builder.Logger()
	if cfg.SampleEvery > 1 {
		logger = logger.Sample(&zerolog.BasicSampler{N: uint32(cfg.SampleEvery)})
	}
	log.Logger = logger
}

// Writer returns the destination Init selected, for wiring the HTTP
// request logger to the same sink.
func Writer() io.Writer {
	return writer
}
