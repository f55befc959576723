package logging

import (
	"fmt"
	"log/slog"
)

// SinkAdapter exposes a *slog.Logger through the small Log/Warn/Error surface
// accepted by the readiness wait.
type SinkAdapter struct {
	logger *slog.Logger
}

// NewSink wraps the logger. A nil logger falls back to slog.Default().
func NewSink(logger *slog.Logger) *SinkAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SinkAdapter{logger: logger}
}

// Logger returns the underlying logger.
func (s *SinkAdapter) Logger() *slog.Logger {
	return s.logger
}

// Log writes an info level message.
func (s *SinkAdapter) Log(msg string, args ...any) {
	s.logger.Info(msg, args...)
}

// Warn writes a warning.
func (s *SinkAdapter) Warn(msg string, args ...any) {
	s.logger.Warn(msg, args...)
}

// Error writes an error.
func (s *SinkAdapter) Error(msg string, args ...any) {
	s.logger.Error(msg, args...)
}

// Printf satisfies printf-style callers such as the self-update library.
func (s *SinkAdapter) Printf(format string, v ...any) {
	s.logger.Debug(fmt.Sprintf(format, v...))
}
