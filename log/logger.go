/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package log provides structured logging on top of github.com/ssgreg/logf.
// Loggers are passed explicitly; request-scoped loggers travel in the request context.
package log

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ssgreg/logf"
	"github.com/ssgreg/logftext"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field is a single structured value attached to a log entry.
type Field = logf.Field

// CloseFunc flushes buffered entries and stops the asynchronous writer.
type CloseFunc logf.ChannelWriterCloseFunc

// Field constructors.
var (
	Error    = logf.Error
	String   = logf.String
	Strings  = logf.Strings
	Int      = logf.Int
	Int64    = logf.Int64
	Uint64   = logf.Uint64
	Float64  = logf.Float64
	Bool     = logf.Bool
	Duration = logf.Duration
)

// FieldLogger writes entries in structured format.
type FieldLogger interface {
	With(...Field) FieldLogger
	// WithLevel returns a logger that additionally drops entries below level.
	WithLevel(level Level) FieldLogger

	Debug(string, ...Field)
	Info(string, ...Field)
	Warn(string, ...Field)
	Error(string, ...Field)
}

// LogfAdapter implements FieldLogger with logf.Logger.
type LogfAdapter struct {
	Logger *logf.Logger
}

var _ FieldLogger = (*LogfAdapter)(nil)

// NewDisabledLogger returns a logger that drops everything.
func NewDisabledLogger() FieldLogger {
	return &LogfAdapter{logf.NewDisabledLogger()}
}

// NewLogger creates an asynchronous logger from the configuration.
// The returned CloseFunc must be called before the process exits, otherwise the last entries may be lost.
func NewLogger(cfg *Config) (FieldLogger, CloseFunc) {
	w, closeWriter := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          newAppender(cfg),
		EnableSyncOnError: true,
	})
	l := logf.NewLogger(cfg.Level.logfLevel(), w).With(logf.Int("pid", os.Getpid()))
	if cfg.AddCaller {
		l = l.WithCaller().WithCallerSkip(1) // skip the adapter frame
	}
	return &LogfAdapter{l}, CloseFunc(closeWriter)
}

// With returns a logger with the fields attached to every entry.
func (l *LogfAdapter) With(fs ...Field) FieldLogger {
	return &LogfAdapter{l.Logger.With(fs...)}
}

// WithLevel returns a logger that additionally drops entries below level.
func (l *LogfAdapter) WithLevel(level Level) FieldLogger {
	return &LogfAdapter{l.Logger.WithLevel(level.logfLevel())}
}

// Debug logs at debug level.
func (l *LogfAdapter) Debug(msg string, fs ...Field) { l.Logger.Debug(msg, fs...) }

// Info logs at info level.
func (l *LogfAdapter) Info(msg string, fs ...Field) { l.Logger.Info(msg, fs...) }

// Warn logs at warn level.
func (l *LogfAdapter) Warn(msg string, fs ...Field) { l.Logger.Warn(msg, fs...) }

// Error logs at error level.
func (l *LogfAdapter) Error(msg string, fs ...Field) { l.Logger.Error(msg, fs...) }

func (lvl Level) logfLevel() logf.Level {
	switch lvl {
	case LevelDebug:
		return logf.LevelDebug
	case LevelWarn:
		return logf.LevelWarn
	case LevelError:
		return logf.LevelError
	default:
		return logf.LevelInfo
	}
}

func newAppender(cfg *Config) logf.Appender {
	var w io.Writer
	switch cfg.Output {
	case OutputStderr:
		w = os.Stderr
	case OutputFile:
		w = &lumberjack.Logger{
			Filename:   expandFilePath(cfg.File.Path, time.Now()),
			MaxSize:    int(cfg.File.Rotation.MaxSize / (1 << 20)), // megabytes
			MaxBackups: cfg.File.Rotation.MaxBackups,
			MaxAge:     cfg.File.Rotation.MaxAgeDays,
			Compress:   cfg.File.Rotation.Compress,
		}
	default:
		w = os.Stdout
	}

	if cfg.Format == FormatText {
		noColor := cfg.NoColor
		return logftext.NewAppender(w, logftext.EncoderConfig{NoColor: &noColor, EncodeTime: logf.RFC3339NanoTimeEncoder})
	}
	return logf.NewWriteAppender(w, logf.NewJSONEncoder(logf.JSONEncoderConfig{
		FieldKeyTime: "time",
		EncodeTime:   logf.RFC3339NanoTimeEncoder,
	}))
}

// expandFilePath replaces {{pid}} and {{starttime}} placeholders in the log file path.
func expandFilePath(path string, start time.Time) string {
	return strings.NewReplacer(
		"{{pid}}", strconv.Itoa(os.Getpid()),
		"{{starttime}}", start.Format("200601021504"),
	).Replace(path)
}
