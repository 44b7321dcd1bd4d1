package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const serviceName = "souqly-backend"

type Config struct {
	Level      string
	TimeFormat string
	Pretty     bool
}

// ConfigFromViper reads log.level and log.pretty.
func ConfigFromViper() Config {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.pretty", false)

	return Config{
		Level:      viper.GetString("log.level"),
		TimeFormat: time.RFC3339,
		Pretty:     viper.GetBool("log.pretty"),
	}
}

// New builds the process logger and installs it as the zerolog global.
func New(config Config) zerolog.Logger {
	return newWithWriter(config, os.Stdout)
}

func newWithWriter(config Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	var logger zerolog.Logger
	if config.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(out)
	}

	logger = logger.With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	log.Logger = logger
	return logger
}
