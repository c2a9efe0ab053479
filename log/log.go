// Package log provides the leveled logger used across zkcred, backed by
// zerolog. It exposes printf-style helpers as well as structured "w" variants
// taking alternating key/value pairs.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

var (
	logger zerolog.Logger
	level  = LogLevelInfo

	// panicOnInvalidChars makes the formatting helpers panic when a log line
	// contains bytes that are not printable UTF-8. Only enabled in tests and
	// via the LOG_PANIC_ON_INVALIDCHARS env var, since the check is costly.
	panicOnInvalidChars = os.Getenv("LOG_PANIC_ON_INVALIDCHARS") == "true"

	// logTestWriter is the sink used when Init is given logTestWriterName as
	// output. Tests and benchmarks replace it.
	logTestWriter io.Writer = io.Discard
)

const logTestWriterName = "_testwriter"

func init() {
	// a usable default so packages can log before Init is called
	Init(LogLevelInfo, "stderr", nil)
}

// Init initializes the global logger with the given level and output. Valid
// outputs are "stdout", "stderr" or a file path. If errorOutput is not nil,
// messages of level error or higher are duplicated to it.
func Init(logLevel, output string, errorOutput io.Writer) {
	var out io.Writer
	switch output {
	case "stdout":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339Nano}
	case "stderr":
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339Nano}
	case logTestWriterName:
		out = logTestWriter
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			panic(fmt.Sprintf("cannot open log output %q: %v", output, err))
		}
		out = f
	}
	if errorOutput != nil {
		out = zerolog.MultiLevelWriter(out, errLevelWriter{errorOutput})
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	logger = zerolog.New(out).With().Timestamp().Logger()
	level = logLevel
	switch logLevel {
	case LogLevelDebug:
		logger = logger.Level(zerolog.DebugLevel)
	case LogLevelInfo:
		logger = logger.Level(zerolog.InfoLevel)
	case LogLevelWarn:
		logger = logger.Level(zerolog.WarnLevel)
	case LogLevelError:
		logger = logger.Level(zerolog.ErrorLevel)
	default:
		panic(fmt.Sprintf("invalid log level %q", logLevel))
	}
}

// errLevelWriter duplicates error-or-higher events to a secondary writer.
type errLevelWriter struct {
	w io.Writer
}

func (w errLevelWriter) Write(p []byte) (int, error) { return len(p), nil }

func (w errLevelWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l >= zerolog.ErrorLevel {
		return w.w.Write(p)
	}
	return len(p), nil
}

// Level returns the level the logger was initialized with.
func Level() string { return level }

// Logger returns the underlying zerolog logger.
func Logger() *zerolog.Logger { return &logger }

func checkInvalidChars(s string) {
	if !panicOnInvalidChars {
		return
	}
	for _, r := range s {
		if r == 0xFFFD || (r < 0x20 && r != '\n' && r != '\t') {
			panic(fmt.Sprintf("log line with invalid char: %q", s))
		}
	}
}

func send(ev *zerolog.Event, args ...any) {
	msg := fmt.Sprint(args...)
	checkInvalidChars(msg)
	ev.Msg(msg)
}

func sendf(ev *zerolog.Event, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	checkInvalidChars(msg)
	ev.Msg(msg)
}

func sendw(ev *zerolog.Event, msg string, keyvalues ...any) {
	for i := 0; i+1 < len(keyvalues); i += 2 {
		key := fmt.Sprint(keyvalues[i])
		ev = ev.Interface(key, keyvalues[i+1])
	}
	checkInvalidChars(msg)
	ev.Msg(msg)
}

func Debug(args ...any) { send(logger.Debug(), args...) }
func Info(args ...any)  { send(logger.Info(), args...) }
func Warn(args ...any)  { send(logger.Warn(), args...) }
func Error(args ...any) { send(logger.Error(), args...) }

func Debugf(format string, args ...any) { sendf(logger.Debug(), format, args...) }
func Infof(format string, args ...any)  { sendf(logger.Info(), format, args...) }
func Warnf(format string, args ...any)  { sendf(logger.Warn(), format, args...) }
func Errorf(format string, args ...any) { sendf(logger.Error(), format, args...) }

func Debugw(msg string, keyvalues ...any) { sendw(logger.Debug(), msg, keyvalues...) }
func Infow(msg string, keyvalues ...any)  { sendw(logger.Info(), msg, keyvalues...) }
func Warnw(msg string, keyvalues ...any)  { sendw(logger.Warn(), msg, keyvalues...) }
func Errorw(msg string, keyvalues ...any) { sendw(logger.Error(), msg, keyvalues...) }

// Fatal logs the message and exits with status 1.
func Fatal(args ...any) {
	send(logger.Fatal(), args...)
}

// Fatalf logs the message and exits with status 1.
func Fatalf(format string, args ...any) {
	sendf(logger.Fatal(), format, args...)
}

// LevelFromString normalizes a user-provided level string, defaulting to info.
func LevelFromString(s string) string {
	switch strings.ToLower(s) {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return strings.ToLower(s)
	}
	return LogLevelInfo
}
