package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var base zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	SetLevel(os.Getenv("LOG_LEVEL"))
}

// SetLevel maps a LOG_LEVEL value onto zerolog's global level. Unknown values mean info.
func SetLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "disabled":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// SetOutput redirects all log output, mainly so tests and the CLI can keep stdout clean.
func SetOutput(w io.Writer) {
	base = base.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true})
}

func Info(format string, v ...interface{}) {
	base.Info().Msgf(format, v...)
}

func Error(format string, v ...interface{}) {
	base.Error().Msgf(format, v...)
}

func Debug(format string, v ...interface{}) {
	base.Debug().Msgf(format, v...)
}

func Warn(format string, v ...interface{}) {
	base.Warn().Msgf(format, v...)
}

// Room returns a logger tagged with the chat room it is working for.
func Room(roomID string) zerolog.Logger {
	return base.With().Str("room", roomID).Logger()
}

// LogTransitionError records a product status transition that could not be stored.
func LogTransitionError(productID, action string, err error) {
	base.Warn().
		Str("product", productID).
		Str("action", action).
		Err(err).
		Msg("product transition failed")
}
