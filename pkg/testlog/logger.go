// Package testlog defines the logging interface the engine depends on.
//
// testkit never initializes a logger itself — that is the host
// application's job (CLI, GUI, FFI binding). Every engine entry point
// accepts a Logger and falls back to NopLogger when none is given.
package testlog

import "log/slog"

// Logger is the interface the engine uses for structured logging.
//
// It is designed to be minimal yet compatible with popular logging
// libraries including log/slog, zap, and zerolog, using variadic
// key-value pairs for structured attributes — the same convention as
// log/slog.
//
//	logger.Warn("missing variable", "name", "todoId", "step", 2)
type Logger interface {
	Debug(msg string, attrs ...any)
	Info(msg string, attrs ...any)
	Warn(msg string, attrs ...any)
	Error(msg string, attrs ...any)

	// With returns a Logger with attrs prepended to every subsequent call.
	With(attrs ...any) Logger
}

// NopLogger discards everything. It is the default when RunContext
// carries no Logger.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (n NopLogger) With(...any) Logger { return n }

var _ Logger = NopLogger{}

// SlogAdapter wraps a *slog.Logger to implement Logger.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps logger, defaulting to slog.Default() when nil.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger}
}

func (s *SlogAdapter) Debug(msg string, attrs ...any) { s.logger.Debug(msg, attrs...) }
func (s *SlogAdapter) Info(msg string, attrs ...any)  { s.logger.Info(msg, attrs...) }
func (s *SlogAdapter) Warn(msg string, attrs ...any)  { s.logger.Warn(msg, attrs...) }
func (s *SlogAdapter) Error(msg string, attrs ...any) { s.logger.Error(msg, attrs...) }

func (s *SlogAdapter) With(attrs ...any) Logger {
	return &SlogAdapter{logger: s.logger.With(attrs...)}
}

var _ Logger = (*SlogAdapter)(nil)
