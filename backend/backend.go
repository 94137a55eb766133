package backend

import (
	"errors"
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/gogpu/compositor/frame"
	"github.com/gogpu/compositor/kms"
	"github.com/gogpu/compositor/output"
)

// Submission errors shared by all backends.
var (
	// ErrNilUpdate is returned when submitting a nil update.
	ErrNilUpdate = errors.New("backend: update is nil")

	// ErrNilListener is returned when submitting without a feedback
	// listener.
	ErrNilListener = errors.New("backend: feedback listener is nil")

	// ErrFlipPending is returned when submitting while a previous
	// submission has not completed yet.
	ErrFlipPending = errors.New("backend: presentation already pending")
)

// Backend name constants.
const (
	// BackendNative is the name of the direct display hardware backend.
	BackendNative = "native"
	// BackendNested is the name of the backend presenting into a host
	// compositor window.
	BackendNested = "nested"
)

// Options configures backend construction.
type Options struct {
	// Clock supplies timers for completion callbacks. Nil means the
	// wall clock.
	Clock clock.Clock

	// Logger receives backend events. Nil silences them.
	Logger *slog.Logger

	// DevicePath is the display device node for direct backends,
	// e.g. "/dev/dri/card0".
	DevicePath string

	// AsyncFlip treats the device as capable of flips outside the
	// vertical sync boundary.
	AsyncFlip bool
}

// Presenter drives presentation for one output. It hooks the output's
// frame clock dispatch cycle and submits the frame's atomic update.
type Presenter interface {
	frame.Driver

	// Submit hands a stolen update to the display. The listener is
	// called back exactly once with the outcome: presented with a
	// timestamp, or failed.
	Submit(u *kms.Update, listener kms.FeedbackListener) error

	// Stop cancels pending completion callbacks, for an output going
	// away.
	Stop()
}

// Backend is a connection to a display system.
// It abstracts how frames reach the screen, allowing the compositor to
// run directly on display hardware or nested inside a host compositor.
//
// Backends must be registered via Register() and are selected via
// New() or NewByName().
type Backend interface {
	// Name returns the backend identifier (e.g., "native", "nested").
	Name() string

	// Device returns the display device atomic updates must be
	// created for.
	Device() *kms.Device

	// Presenter creates the presentation driver for an output.
	Presenter(o *output.Output) (Presenter, error)

	// Close releases the display connection.
	// The backend should not be used after Close is called.
	Close() error
}
