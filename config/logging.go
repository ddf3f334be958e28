package config

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Logging configures the root logger.
type Logging struct {
	Level  string
	Format string

	// Output is stderr, stdout or the path of a file that mirrors stderr.
	Output string
}

// ConfigureLogging applies the settings to the logrus standard logger.
func ConfigureLogging(cfg *Logging) error {
	return configureLogger(log.StandardLogger(), cfg)
}

func configureLogger(logger *log.Logger, cfg *Logging) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	switch cfg.Format {
	case LogFormatText, "":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case LogFormatJSON:
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		return invalidLogFormatError{cfg.Format}
	}

	switch cfg.Output {
	case "":
		return ErrLogOutputRequired
	case "stderr":
		logger.SetOutput(os.Stderr)
	case "stdout":
		logger.SetOutput(os.Stdout)
	default:
		f, err := os.OpenFile(cfg.Output,
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, DataFilePerm)
		if err != nil {
			return err
		}

		atexit.Register(func() { f.Close() })
		logger.SetOutput(io.MultiWriter(os.Stderr, f))
	}

	logger.SetLevel(level)

	return nil
}
