package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/oneloop/pkg/errkind"
)

// Logger is the process-wide logger, configured once by Init at
// startup and never reassigned afterward except to attach the run-ID
// field (cmd/oneloopd).
var Logger zerolog.Logger

// Level is one of the four zerolog severities this repository exposes
// through configuration; anything else falls back to InfoLevel.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Config selects the global log level and output encoding.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init installs the global logger: JSON lines for machine consumption,
// or a console writer with RFC3339 timestamps for a terminal.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(cfg.Level.zerolog())

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// componentLogger returns a child logger scoped by a single keyed
// field, the pattern every subsystem in this repository uses to tag
// its log lines.
func componentLogger(key, value string) zerolog.Logger {
	return Logger.With().Str(key, value).Logger()
}

// WithComponent tags a child logger with the owning subsystem
// (storage, scheduler, worker, cubature, growth).
func WithComponent(component string) zerolog.Logger {
	return componentLogger("component", component)
}

// WithPhase tags a child logger with the pipeline phase currently
// executing (filter, growth, matsubara, loop-kernel, assemble,
// multipole, counterterm).
func WithPhase(phase string) zerolog.Logger {
	return componentLogger("phase", phase)
}

// WithWorker tags a child logger with a worker's 1-based rank.
func WithWorker(workerNumber int) zerolog.Logger {
	return Logger.With().Int("worker", workerNumber).Logger()
}

// RouteErr is the central error-handler sink: it
// classifies err via errkind.Classify and emits exactly one log line
// at the severity the classification implies, then returns err
// unchanged so callers can propagate it as-is. NonConvergence is the
// only kind that does not abort the run (errkind.Kind.Fatal), so it
// alone logs at warn; every other kind is fatal and logs at error,
// since process exit (not this sink) is what ends the run.
func RouteErr(logger zerolog.Logger, err error, msg string) error {
	if err == nil {
		return nil
	}
	kind := errkind.Classify(err)
	event := logger.Error()
	if !kind.Fatal() {
		event = logger.Warn()
	}
	event.Err(err).Str("error_kind", kind.String()).Msg(msg)
	return err
}
