// Package logger provides structured logging for chunkstore.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with chunkstore-specific functionality.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger.
func NewLogger(cfg Config) *Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "chunkstore").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// GetZerolog returns the underlying zerolog logger.
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

// Info logs an info message.
func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) *zerolog.Event {
	return l.zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

// Error logs an error message.
func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(msg string) *zerolog.Event {
	return l.zlog.Fatal().Str("msg", msg)
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// StoreLogger returns a logger scoped to one open store file.
func (l *Logger) StoreLogger(fileName string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "store").
			Str("file", fileName).
			Logger(),
	}
}

// CompactionLogger returns a logger scoped to compaction runs.
func (l *Logger) CompactionLogger() *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "compaction").
			Logger(),
	}
}

// LogCommit logs one store() call's outcome with structured fields.
func (l *Logger) LogCommit(version int64, chunkID uint64, bytesWritten int, duration time.Duration, err error) {
	event := l.zlog.Info().
		Str("component", "store").
		Int64("version", version).
		Uint64("chunk_id", chunkID).
		Int("bytes_written", bytesWritten).
		Dur("duration_ms", duration)

	if err != nil {
		event = l.zlog.Error().
			Str("component", "store").
			Int64("version", version).
			Dur("duration_ms", duration).
			Err(err)
	}

	event.Msg("commit completed")
}

// LogCompaction logs one compact() call's outcome: how many chunks were
// selected and how many keys were rewritten.
func (l *Logger) LogCompaction(selectedChunks int, rewrittenKeys int, duration time.Duration, err error) {
	event := l.zlog.Info().
		Str("component", "compaction").
		Int("selected_chunks", selectedChunks).
		Int("rewritten_keys", rewrittenKeys).
		Dur("duration_ms", duration)

	if err != nil {
		event = l.zlog.Error().
			Str("component", "compaction").
			Dur("duration_ms", duration).
			Err(err)
	}

	event.Msg("compaction completed")
}

// LogRollback logs a rollbackTo(v) call.
func (l *Logger) LogRollback(toVersion int64, err error) {
	event := l.zlog.Info().
		Str("component", "store").
		Int64("to_version", toVersion)

	if err != nil {
		event = l.zlog.Error().
			Str("component", "store").
			Int64("to_version", toVersion).
			Err(err)
	}

	event.Msg("rollback completed")
}

// LogStoreOpen logs store startup.
func (l *Logger) LogStoreOpen(fileName string, version int64, readOnly bool) {
	l.zlog.Info().
		Str("event", "store_open").
		Str("file", fileName).
		Int64("version", version).
		Bool("read_only", readOnly).
		Msg("store opened")
}

// LogStoreClose logs store shutdown.
func (l *Logger) LogStoreClose(fileName string) {
	l.zlog.Info().
		Str("event", "store_close").
		Str("file", fileName).
		Msg("store closing")
}

// Global logger instance.
var globalLogger *Logger

// InitGlobalLogger initializes the global logger.
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.GetZerolog()
}

// GetGlobalLogger returns the global logger instance.
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		InitGlobalLogger(Config{
			Level:  "info",
			Pretty: true,
		})
	}
	return globalLogger
}
