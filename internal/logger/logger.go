// Package logger provides structured logging for the engine and CLI.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// Config controls level and output format.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // "json" or "text"
}

// Logger wraps zerolog.Logger with the small method set the rest of the
// module depends on.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger from cfg. Unknown levels fall back to info;
// format "text" uses zerolog's console writer, anything else emits JSON.
func New(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writer = os.Stderr
	var zl zerolog.Logger
	if cfg.Format == "text" {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05"}).Level(level).With().Timestamp().Logger()
	} else {
		zl = zerolog.New(writer).Level(level).With().Timestamp().Logger()
	}
	return &Logger{zl: zl}
}

// Discard returns a logger that drops everything; used as the nil-safe
// default when no Logger is configured.
func Discard() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child logger carrying additional fields.
func (l *Logger) With(fields map[string]any) *Logger {
	if l == nil {
		return Discard()
	}
	ctx := l.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zl: ctx.Logger()}
}

func (l *Logger) event(level zerolog.Level, msg string, fields map[string]any) {
	if l == nil {
		return
	}
	ev := l.zl.WithLevel(level)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *Logger) Debug(msg string, fields map[string]any) { l.event(zerolog.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields map[string]any)  { l.event(zerolog.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields map[string]any)  { l.event(zerolog.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields map[string]any) { l.event(zerolog.ErrorLevel, msg, fields) }
