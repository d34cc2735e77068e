// Package diag is the uniform error/diagnostic surface shared by every
// acquisition path: sentinel error kinds that callers can classify with
// errors.Is, plus a process-wide structured logger in the style of
// gviegas-neo3/driver/driver.go's package-level Err* variables.
package diag

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// Error kinds from spec.md section 7. Every acquisition step wraps one
// of these with fmt.Errorf("...: %w", base) so the orchestrator (and
// tests) can classify a failure without string matching.
var (
	// ErrEnvironment covers not-root, device-open failure, and missing
	// capabilities.
	ErrEnvironment = errors.New("diag: environment error")

	// ErrDiscovery covers absence of an active framebuffer and
	// legacy-only FB metadata.
	ErrDiscovery = errors.New("diag: discovery error")

	// ErrImport covers BO allocation, VA allocation, dmabuf export, and
	// external-memory import failures. The orchestrator treats this as
	// a signal to try the next strategy in the fallback ladder.
	ErrImport = errors.New("diag: import/allocation error")

	// ErrGPUExecution covers command submission and fence/wait-idle
	// failures. Treated the same as ErrImport by the orchestrator.
	ErrGPUExecution = errors.New("diag: GPU execution error")

	// ErrHostIO covers output file open/write failures. Never retried.
	ErrHostIO = errors.New("diag: host I/O error")
)

var loggerPtr atomic.Pointer[slog.Logger]

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the logger used by every internal package. By
// default kms-screenshot produces no log output; the CLI shell calls
// SetLogger once at startup. Safe for concurrent use.
//
// Levels:
//   - Debug: BO/VA/image lifecycle, strategy-selection reasoning.
//   - Info: capture lifecycle ("capturing via compute path", ...).
//   - Warn: non-fatal fallbacks (dumb-buffer test pattern, universal planes unavailable).
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger { return loggerPtr.Load() }

// Debugf logs a sub-path diagnostic at Debug level. path identifies the
// detailed sub-path (e.g. "flink-import", "dmabuf-import") that the C
// original would have prefixed with a literal tab.
func Debugf(path, msg string, args ...any) {
	Logger().Debug(msg, append([]any{slog.String("path", path)}, args...)...)
}

// Warnf logs a non-fatal diagnostic, e.g. a fallback rung being taken.
func Warnf(path, msg string, args ...any) {
	Logger().Warn(msg, append([]any{slog.String("path", path)}, args...)...)
}
