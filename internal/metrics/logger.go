// Package metrics provides the broker's structured logging setup and its
// Prometheus instrumentation.
package metrics

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// LoggerConfig configures NewLogger.
type LoggerConfig struct {
	Level  string // debug, info, warn, error, fatal
	Format string // json, pretty
}

// NewLogger builds a structured logger: JSON by default, a colorized
// console writer for "pretty", timestamp + caller fields always present.
func NewLogger(cfg LoggerConfig) zerolog.Logger {
	var output io.Writer = os.Stdout

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "pretty" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Str("service", "courier").
		Logger()
}

// RecoverPanic is installed as the first deferred call in every
// connection-handling goroutine. It logs a recovered panic with its stack
// trace and lets the goroutine return normally, so one session's bug
// cannot bring down the broker.
func RecoverPanic(logger zerolog.Logger, goroutine string, fields map[string]any) {
	if r := recover(); r != nil {
		event := logger.Error().
			Str("goroutine", goroutine).
			Interface("panic_value", r).
			Str("stack_trace", string(debug.Stack()))
		for k, v := range fields {
			event = event.Interface(k, v)
		}
		event.Msg("goroutine panic recovered")
	}
}
