package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin structured logger over zerolog. The zero value is not
// usable; build one with New or Nop.
type Logger struct {
	zl zerolog.Logger
}

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr or a file path
	TimeFormat string
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}

	out, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = timeFormat

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: timeFormat}
	}
	return newLogger(out, level), nil
}

func newLogger(w io.Writer, level zerolog.Level) *Logger {
	zl := zerolog.New(w).Level(level).With().Timestamp().CallerWithSkipFrameCount(4).Logger()
	return &Logger{zl: zl}
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) Debug(msg string, fields ...Field) { emit(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { emit(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { emit(l.zl.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { emit(l.zl.Error(), msg, fields) }

func emit(e *zerolog.Event, msg string, fields []Field) {
	if e == nil {
		return
	}
	for _, f := range fields {
		f.event(e)
	}
	e.Msg(msg)
}

// With returns a child logger that stamps fields on every entry.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = f.context(ctx)
	}
	return &Logger{zl: ctx.Logger()}
}

// Field is one key/value pair. It knows how to write itself both to a
// single event and to a child logger context.
type Field interface {
	event(e *zerolog.Event)
	context(c zerolog.Context) zerolog.Context
}

type field struct {
	onEvent   func(*zerolog.Event)
	onContext func(zerolog.Context) zerolog.Context
}

func (f field) event(e *zerolog.Event)                    { f.onEvent(e) }
func (f field) context(c zerolog.Context) zerolog.Context { return f.onContext(c) }

func String(key, value string) Field {
	return field{
		onEvent:   func(e *zerolog.Event) { e.Str(key, value) },
		onContext: func(c zerolog.Context) zerolog.Context { return c.Str(key, value) },
	}
}

func Strings(key string, value []string) Field {
	return field{
		onEvent:   func(e *zerolog.Event) { e.Strs(key, value) },
		onContext: func(c zerolog.Context) zerolog.Context { return c.Strs(key, value) },
	}
}

func Int(key string, value int) Field { return Int64(key, int64(value)) }

func Int32(key string, value int32) Field { return Int64(key, int64(value)) }

func Uint(key string, value uint) Field { return Uint64(key, uint64(value)) }

func Int64(key string, value int64) Field {
	return field{
		onEvent:   func(e *zerolog.Event) { e.Int64(key, value) },
		onContext: func(c zerolog.Context) zerolog.Context { return c.Int64(key, value) },
	}
}

func Uint64(key string, value uint64) Field {
	return field{
		onEvent:   func(e *zerolog.Event) { e.Uint64(key, value) },
		onContext: func(c zerolog.Context) zerolog.Context { return c.Uint64(key, value) },
	}
}

func Float64(key string, value float64) Field {
	return field{
		onEvent:   func(e *zerolog.Event) { e.Float64(key, value) },
		onContext: func(c zerolog.Context) zerolog.Context { return c.Float64(key, value) },
	}
}

func Bool(key string, value bool) Field {
	return field{
		onEvent:   func(e *zerolog.Event) { e.Bool(key, value) },
		onContext: func(c zerolog.Context) zerolog.Context { return c.Bool(key, value) },
	}
}

// Duration is logged in milliseconds under key.
func Duration(key string, value time.Duration) Field {
	return Int64(key, value.Milliseconds())
}

func Time(key string, value time.Time) Field {
	return String(key, value.UTC().Format(time.RFC3339))
}

// Error logs err under "error"; a nil err logs nothing.
func Error(err error) Field {
	return field{
		onEvent: func(e *zerolog.Event) {
			if err != nil {
				e.Err(err)
			}
		},
		onContext: func(c zerolog.Context) zerolog.Context {
			if err != nil {
				return c.Err(err)
			}
			return c
		},
	}
}

func Any(key string, value interface{}) Field {
	return field{
		onEvent:   func(e *zerolog.Event) { e.Interface(key, value) },
		onContext: func(c zerolog.Context) zerolog.Context { return c.Interface(key, value) },
	}
}
