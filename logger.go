package compositor

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// levelGate filters records below a dynamic level before delegating to
// the wrapped handler, so the configuration's log level can change at
// runtime without rebuilding the logger.
type levelGate struct {
	h     slog.Handler
	level *slog.LevelVar
}

func (g levelGate) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= g.level.Level() && g.h.Enabled(ctx, l)
}
func (g levelGate) Handle(ctx context.Context, r slog.Record) error { return g.h.Handle(ctx, r) }
func (g levelGate) WithAttrs(attrs []slog.Attr) slog.Handler {
	return levelGate{h: g.h.WithAttrs(attrs), level: g.level}
}
func (g levelGate) WithGroup(name string) slog.Handler {
	return levelGate{h: g.h.WithGroup(name), level: g.level}
}

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger new Compositor instances inherit when
// no WithLogger option is given. By default the package produces no log
// output.
//
// SetLogger is safe for concurrent use: it stores the new logger
// atomically. Pass nil to disable logging (restore default silent
// behavior).
//
// Log levels used by the compositor:
//   - [slog.LevelDebug]: per-frame diagnostics (dispatch deadlines, fence
//     resolution, update aggregation)
//   - [slog.LevelInfo]: lifecycle events (outputs added, config reloaded)
//   - [slog.LevelWarn]: recoverable issues (presentation retry, rejected
//     config reload)
//   - [slog.LevelError]: degraded outputs
//
// Example:
//
//	// Enable info-level logging to stderr:
//	compositor.SetLogger(slog.Default())
//
//	// Enable debug-level logging for full diagnostics:
//	compositor.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the logger configured with SetLogger.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
