// Package log provides structured, colored logging for the bag tools and
// the ledger node.
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Component loggers, rebuilt whenever Logger changes.
var (
	Tree   zerolog.Logger
	Unwind zerolog.Logger
	Ledger zerolog.Logger
	Wallet zerolog.Logger
)

const consoleTimeFormat = "15:04:05"

func init() {
	setLogger(newLogger(console(os.Stdout), "info"))
}

// Init configures the global logger. Console output is colored unless
// jsonOutput is set. A non-empty file additionally receives every entry as
// JSON.
func Init(level string, jsonOutput bool, file string) error {
	var out io.Writer = os.Stdout
	if !jsonOutput {
		out = console(os.Stdout)
	}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		out = zerolog.MultiLevelWriter(out, f)
	}
	setLogger(newLogger(out, level))
	return nil
}

// SetOutput redirects all loggers to w as JSON. Tests use it to capture or
// silence output.
func SetOutput(w io.Writer, level string) {
	setLogger(newLogger(w, level))
}

func console(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
}

func setLogger(l zerolog.Logger) {
	Logger = l
	Tree = WithComponent("tree")
	Unwind = WithComponent("unwind")
	Ledger = WithComponent("ledger")
	Wallet = WithComponent("wallet")
}

// parseLevel maps a config level name to a zerolog level. Unknown names
// fall back to info.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent returns a logger with a component field.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithRoot returns an unwind logger tagged with a tree root puzzle hash.
func WithRoot(root string) zerolog.Logger {
	return Unwind.With().Str("root", root).Logger()
}

func Debug() *zerolog.Event { return Logger.Debug() }
func Info() *zerolog.Event  { return Logger.Info() }
func Warn() *zerolog.Event  { return Logger.Warn() }
func Error() *zerolog.Event { return Logger.Error() }

// Benchmark logs the duration of an operation at debug level when the
// returned func is called.
func Benchmark(name string) func() {
	start := time.Now()
	return func() {
		Logger.Debug().Str("operation", name).Dur("duration", time.Since(start)).Msg("benchmark")
	}
}
