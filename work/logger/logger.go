package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var defaultLogger atomic.Pointer[Logger]

// Logger is a leveled printf-style logger backed by zerolog.
type Logger struct {
	mu sync.RWMutex
	zl zerolog.Logger
}

// Options configures a Logger.
type Options struct {
	Level   string
	Output  io.Writer
	Console bool
}

// New creates a Logger writing to opts.Output (stdout when nil). Console switches
// from JSON lines to zerolog's human readable writer.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(out).With().Timestamp().Logger().Level(ParseLogLevel(opts.Level))
	return &Logger{zl: zl}
}

func getDefaultLogger() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	defaultLogger.CompareAndSwap(nil, New(Options{Level: "info"}))
	return defaultLogger.Load()
}

// Configure replaces the package-level logger. Safe to call while other
// goroutines are logging.
func Configure(opts Options) {
	defaultLogger.Store(New(opts))
}

// ParseLogLevel converts a level name to a zerolog level, defaulting to info.
func ParseLogLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetLogLevel sets the level of the package-level logger.
func SetLogLevel(level string) {
	getDefaultLogger().SetLevel(level)
}

// GetLogLevel returns the package-level logger's level.
func GetLogLevel() string {
	return getDefaultLogger().GetLevel()
}

// Zerolog exposes the package-level zerolog logger for structured fields.
func Zerolog() zerolog.Logger {
	return getDefaultLogger().Zerolog()
}

// SetLevel sets this logger instance's level
func (l *Logger) SetLevel(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.zl = l.zl.Level(ParseLogLevel(level))
}

// GetLevel returns this logger instance's level as string
func (l *Logger) GetLevel() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return strings.ToUpper(l.zl.GetLevel().String())
}

// Zerolog returns a copy of the underlying zerolog logger.
func (l *Logger) Zerolog() zerolog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.zl
}

func (l *Logger) emit(level zerolog.Level, format string, v ...interface{}) {
	l.mu.RLock()
	zl := l.zl
	l.mu.RUnlock()
	zl.WithLevel(level).Msgf(format, v...)
}

// Debug logs debug level messages
func (l *Logger) Debug(format string, v ...interface{}) {
	l.emit(zerolog.DebugLevel, format, v...)
}

// Info logs info level messages
func (l *Logger) Info(format string, v ...interface{}) {
	l.emit(zerolog.InfoLevel, format, v...)
}

// Warn logs warning level messages
func (l *Logger) Warn(format string, v ...interface{}) {
	l.emit(zerolog.WarnLevel, format, v...)
}

// Error logs error level messages
func (l *Logger) Error(format string, v ...interface{}) {
	l.emit(zerolog.ErrorLevel, format, v...)
}

// Debug logs debug level messages (package-level)
func Debug(format string, v ...interface{}) {
	getDefaultLogger().Debug(format, v...)
}

// Info logs info level messages (package-level)
func Info(format string, v ...interface{}) {
	getDefaultLogger().Info(format, v...)
}

// Warn logs warning level messages (package-level)
func Warn(format string, v ...interface{}) {
	getDefaultLogger().Warn(format, v...)
}

// Error logs error level messages (package-level)
func Error(format string, v ...interface{}) {
	getDefaultLogger().Error(format, v...)
}

// Fatal logs at error level and exits the process.
func Fatal(format string, v ...interface{}) {
	getDefaultLogger().Error(format, v...)
	os.Exit(1)
}
