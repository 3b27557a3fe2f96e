// Package logging provides zap loggers with a shared configuration and one
// child logger per daemon component.
package logging

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Output kinds for NewLogging.
const (
	CONSOLE = "console"
	JSON    = "json"
)

// Options maps component names to a log level overriding the default one.
type Options map[string]zapcore.Level

// Logger wraps zap.SugaredLogger for one named component.
type Logger struct {
	*zap.SugaredLogger
}

// NewLogger wraps an existing sugared logger.
func NewLogger(base *zap.SugaredLogger) *Logger {
	return &Logger{base}
}

// Logging fans out per-component child loggers sharing output and encoding.
type Logging struct {
	name    string
	level   zapcore.Level
	options Options

	makeCore func(zapcore.Level) zapcore.Core

	mu      sync.Mutex
	loggers map[string]*Logger
	logger  *Logger
}

// NewLogging creates a Logging writing to stderr, either human-readable
// (CONSOLE, the default) or as JSON lines.
func NewLogging(name string, level zapcore.Level, output string, options Options) (*Logging, error) {
	var encoder zapcore.Encoder
	switch output {
	case "", CONSOLE:
		encoder = zapcore.NewConsoleEncoder(encoderConfig())
	case JSON:
		encoder = zapcore.NewJSONEncoder(encoderConfig())
	default:
		return nil, fmt.Errorf("invalid logging output %q", output)
	}

	sink := zapcore.Lock(os.Stderr)

	return newLogging(name, level, options, func(lvl zapcore.Level) zapcore.Core {
		return zapcore.NewCore(encoder, sink, lvl)
	}), nil
}

// NewLoggingWithFactory creates a Logging building its cores via the given
// factory, e.g. for capturing log output in tests.
func NewLoggingWithFactory(name string, level zapcore.Level, options Options, makeCore func(zapcore.Level) zapcore.Core) *Logging {
	return newLogging(name, level, options, makeCore)
}

// NewLoggingWithFile creates a console Logging that duplicates all output
// into the given log file. An empty path behaves like NewLogging with
// console output. Used by the one-shot CLI for its --log-file flag.
func NewLoggingWithFile(name string, level zapcore.Level, logFile string) (*Logging, error) {
	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("cannot open log file: %w", err)
		}

		sinks = append(sinks, zapcore.Lock(f))
	}

	encoder := zapcore.NewConsoleEncoder(encoderConfig())

	return newLogging(name, level, nil, func(lvl zapcore.Level) zapcore.Core {
		cores := make([]zapcore.Core, 0, len(sinks))
		for _, sink := range sinks {
			cores = append(cores, zapcore.NewCore(encoder, sink, lvl))
		}

		return zapcore.NewTee(cores...)
	}), nil
}

func newLogging(name string, level zapcore.Level, options Options, makeCore func(zapcore.Level) zapcore.Core) *Logging {
	logging := &Logging{
		name:     name,
		level:    level,
		options:  options,
		makeCore: makeCore,
		loggers:  make(map[string]*Logger),
	}
	logging.logger = logging.newLogger(name, level)

	return logging
}

// GetLogger returns the root logger.
func (l *Logging) GetLogger() *Logger {
	return l.logger
}

// GetChildLogger returns a logger for the given component, reusing an
// already created one. Component levels from Options override the default.
func (l *Logging) GetChildLogger(name string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	if logger, ok := l.loggers[name]; ok {
		return logger
	}

	level := l.level
	if override, ok := l.options[name]; ok {
		level = override
	}

	logger := l.newLogger(name, level)
	l.loggers[name] = logger

	return logger
}

func (l *Logging) newLogger(name string, level zapcore.Level) *Logger {
	return &Logger{zap.New(l.makeCore(level)).Named(name).Sugar()}
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	return cfg
}
