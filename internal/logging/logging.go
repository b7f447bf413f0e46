// Package logging provides structured logging functionality.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "fx-trader", "logs", "agent.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i interface{}) string {
				if ll, ok := i.(string); ok {
					switch ll {
					case "debug":
						return "\033[36mDBG\033[0m"
					case "info":
						return "\033[32mINF\033[0m"
					case "warn":
						return "\033[33mWRN\033[0m"
					case "error":
						return "\033[31mERR\033[0m"
					default:
						return ll
					}
				}
				return "???"
			},
		}
		writers = append(writers, consoleWriter)
	}

	// File writer with rotation
	if cfg.File && cfg.FilePath != "" {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).
		With().
		Timestamp().
		Caller().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// WithComponent adds a component name to the logger context.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// WithSymbol adds a symbol to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// WithTicket adds a position ticket to the logger context.
func WithTicket(logger zerolog.Logger, ticket string) zerolog.Logger {
	return logger.With().Str("ticket", ticket).Logger()
}

// LogOrder logs an order placement.
func LogOrder(logger zerolog.Logger, ticket, symbol, side string, volume, price float64) {
	logger.Info().
		Str("event", "order").
		Str("ticket", ticket).
		Str("symbol", symbol).
		Str("side", side).
		Float64("volume", volume).
		Float64("price", price).
		Msg("Order placed")
}

// LogRejection logs a gate veto or risk rejection with its reason.
func LogRejection(logger zerolog.Logger, symbol, stage, rule, reason string) {
	logger.Info().
		Str("event", "rejection").
		Str("symbol", symbol).
		Str("stage", stage).
		Str("rule", rule).
		Str("reason", reason).
		Msg("Trade rejected")
}

// LogBreaker logs a circuit breaker trip.
func LogBreaker(logger zerolog.Logger, breaker string, current, limit float64) {
	logger.Warn().
		Str("event", "breaker").
		Str("breaker", breaker).
		Float64("current", current).
		Float64("limit", limit).
		Msg("Breaker tripped")
}

// LogTransition logs a position lifecycle transition.
func LogTransition(logger zerolog.Logger, ticket, from, to string, stopLoss float64) {
	logger.Info().
		Str("event", "transition").
		Str("ticket", ticket).
		Str("from", from).
		Str("to", to).
		Float64("stop_loss", stopLoss).
		Msg("Position transition")
}

// LogHedge logs a hedge action.
func LogHedge(logger zerolog.Logger, action, origin, ticket string, volume float64) {
	logger.Info().
		Str("event", "hedge").
		Str("action", action).
		Str("origin", origin).
		Str("ticket", ticket).
		Float64("volume", volume).
		Msg("Hedge update")
}

// LogAPICall logs a gateway call.
func LogAPICall(logger zerolog.Logger, method, endpoint string, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "api_call").
		Str("method", method).
		Str("endpoint", endpoint).
		Dur("duration", duration)

	if err != nil {
		event.Err(err).Msg("API call failed")
	} else {
		event.Msg("API call completed")
	}
}
