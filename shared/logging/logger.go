package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents logging level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Logger wraps zerolog with additional functionality
type Logger struct {
	logger  zerolog.Logger
	service string
}

// Config holds logger configuration
type Config struct {
	Level       LogLevel
	Service     string
	Environment string
	Version     string
	Output      io.Writer
	PrettyLog   bool
	AddCaller   bool
}

// DefaultConfig returns default logger configuration
func DefaultConfig(service string) *Config {
	env := getEnv("ENVIRONMENT", "development")
	return &Config{
		Level:       LogLevel(strings.ToLower(getEnv("LOG_LEVEL", string(LevelInfo)))),
		Service:     service,
		Environment: env,
		Version:     getEnv("SERVICE_VERSION", "unknown"),
		Output:      os.Stdout,
		PrettyLog:   env == "development",
		AddCaller:   true,
	}
}

// NewLogger creates a new structured logger
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig("unknown")
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output io.Writer = config.Output
	if output == nil {
		output = os.Stdout
	}

	if config.PrettyLog {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: "15:04:05.000",
		}
	}

	logger := zerolog.New(output).
		Level(parseLevel(config.Level)).
		With().
		Timestamp().
		Str("service", config.Service).
		Str("environment", config.Environment).
		Str("version", config.Version).
		Logger()

	if config.AddCaller {
		logger = logger.With().Caller().Logger()
	}

	return &Logger{
		logger:  logger,
		service: config.Service,
	}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop(), service: "nop"}
}

// WithContext creates a logger carrying the request id found in ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		return l.WithField("request_id", requestID)
	}
	return l
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		logger:  l.logger.With().Interface(key, value).Logger(),
		service: l.service,
	}
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{
		logger:  l.logger.With().Fields(fields).Logger(),
		service: l.service,
	}
}

// WithError adds an error to the logger
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}

	return &Logger{
		logger: l.logger.With().
			Err(err).
			Str("error_type", fmt.Sprintf("%T", err)).
			Logger(),
		service: l.service,
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.logger.Error().Msg(msg)
}

// Audit logs an audit event
func (l *Logger) Audit(event string, fields map[string]interface{}) {
	auditLogger := l.logger.With().
		Str("audit_event", event).
		Time("audit_timestamp", time.Now()).
		Fields(fields).
		Logger()

	auditLogger.Info().Msg("AUDIT")
}

// Performance logs how long an operation took
func (l *Logger) Performance(operation string, duration time.Duration, fields map[string]interface{}) {
	perfLogger := l.logger.With().
		Str("operation", operation).
		Dur("duration_ms", duration).
		Fields(fields).
		Logger()

	if duration > 1*time.Second {
		perfLogger.Warn().Msg("SLOW_OPERATION")
	} else {
		perfLogger.Debug().Msg("PERFORMANCE")
	}
}

func parseLevel(level LogLevel) zerolog.Level {
	switch level {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
