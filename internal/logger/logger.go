package logger

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	defaultLogger zerolog.Logger
	once          sync.Once
)

// Init initializes the default logger with a JSON writer on stderr.
// It ensures that the logger is initialized only once.
func Init() {
	once.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339
		defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		if lvl, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("NEWSLOOM_LOG_LEVEL"))); err == nil && lvl != zerolog.NoLevel {
			defaultLogger = defaultLogger.Level(lvl)
		} else {
			defaultLogger = defaultLogger.Level(zerolog.InfoLevel)
		}
	})
}

// Get returns the initialized default logger.
// It calls Init() to ensure the logger is ready before returning it.
func Get() zerolog.Logger {
	Init()
	return defaultLogger
}

// Info logs an informational message using the default logger.
func Info(msg string) {
	l := Get()
	l.Info().Msg(msg)
}

// Warn logs a warning message using the default logger.
func Warn(msg string) {
	l := Get()
	l.Warn().Msg(msg)
}

// Error logs an error message with an attached error using the default logger.
func Error(msg string, err error) {
	l := Get()
	l.Error().Err(err).Msg(msg)
}

// Debug logs a debug message using the default logger.
func Debug(msg string) {
	l := Get()
	l.Debug().Msg(msg)
}
