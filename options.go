package compositor

import (
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/gogpu/compositor/backend"
	"github.com/gogpu/compositor/compose"
	"github.com/gogpu/compositor/config"
)

// Option configures a Compositor during creation.
//
// Example:
//
//	// Defaults: best available backend, silent logging.
//	c, err := compositor.New()
//
//	// Explicit backend and configuration:
//	c, err := compositor.New(
//	    compositor.WithBackendName(backend.BackendNested),
//	    compositor.WithConfig(cfg),
//	)
type Option func(*options)

// options holds optional configuration for Compositor creation.
type options struct {
	cfg         *config.Config
	backend     backend.Backend
	backendName string
	logger      *slog.Logger
	clk         clock.Clock
	renderer    compose.Renderer
}

// defaultOptions returns the default creation options.
func defaultOptions() options {
	return options{}
}

// WithConfig supplies the configuration. Without it the compositor runs
// on config.Default(). The configuration is validated in New.
func WithConfig(cfg config.Config) Option {
	return func(o *options) {
		o.cfg = &cfg
	}
}

// WithBackend injects an already constructed presentation backend. The
// caller keeps ownership: Shutdown will not close an injected backend.
// Without this option (or WithBackendName) the registry picks the best
// available backend.
func WithBackend(b backend.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithBackendName selects a registered backend by name, bypassing the
// availability-ordered choice. The compositor constructs and owns it.
//
// Example:
//
//	c, err := compositor.New(compositor.WithBackendName(backend.BackendNested))
func WithBackendName(name string) Option {
	return func(o *options) {
		o.backendName = name
	}
}

// WithLogger sets the base logger. Without it the compositor inherits
// the package logger configured with SetLogger. The configuration's log
// level gates records in either case.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock injects the time source driving the event loop, frame
// clocks and fallback timers. Tests pass clock.NewMock(); without this
// option the wall clock is used.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clk = c
	}
}

// WithRenderer sets the renderer that paints composited frames. Without
// it frames are submitted unpainted, which keeps headless and test
// setups running.
func WithRenderer(r compose.Renderer) Option {
	return func(o *options) {
		o.renderer = r
	}
}
