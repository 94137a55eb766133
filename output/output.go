// Package output models display outputs and their hot-pluggable
// topology.
package output

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/compositor/kms"
)

// Mode is a display mode.
type Mode struct {
	// Width and Height are the visible area in pixels.
	Width  int
	Height int

	// RefreshRate is the vertical refresh rate in Hz.
	RefreshRate float64
}

// RefreshInterval returns the time between vertical refreshes.
func (m Mode) RefreshInterval() time.Duration {
	return time.Duration(float64(time.Second) / m.RefreshRate)
}

// String formats the mode as "1920x1080@60.00".
func (m Mode) String() string {
	return fmt.Sprintf("%dx%d@%.2f", m.Width, m.Height, m.RefreshRate)
}

func (m Mode) valid() bool {
	return m.Width > 0 && m.Height > 0 && m.RefreshRate > 0
}

// Config describes an output to attach.
type Config struct {
	// Connector names the physical connector, e.g. "DP-1".
	Connector string

	// Mode is the active display mode.
	Mode Mode

	// Device is the display device driving the connector.
	Device *kms.Device

	// DirectScanout reports whether the output's framebuffer
	// configuration supports presenting client buffers directly.
	DirectScanout bool

	// Logger receives output events. Nil silences them.
	Logger *slog.Logger
}

// Output is one connected display.
type Output struct {
	connector     string
	mode          Mode
	device        *kms.Device
	directScanout bool
	log           *slog.Logger

	degraded bool
}

// New creates an output from its configuration.
func New(cfg *Config) (*Output, error) {
	if cfg == nil {
		return nil, errors.New("output: config is nil")
	}
	if cfg.Connector == "" {
		return nil, errors.New("output: connector name is empty")
	}
	if !cfg.Mode.valid() {
		return nil, fmt.Errorf("output: invalid mode %s", cfg.Mode)
	}
	if cfg.Device == nil {
		return nil, errors.New("output: device is nil")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Output{
		connector:     cfg.Connector,
		mode:          cfg.Mode,
		device:        cfg.Device,
		directScanout: cfg.DirectScanout,
		log:           log,
	}, nil
}

// Name returns the connector name. It also serves as the output's
// identity for surface pacing.
func (o *Output) Name() string { return o.connector }

// Mode returns the active display mode.
func (o *Output) Mode() Mode { return o.mode }

// Device returns the display device driving this output.
func (o *Output) Device() *kms.Device { return o.device }

// DirectScanoutCapable reports whether client buffers can be presented
// directly on this output.
func (o *Output) DirectScanoutCapable() bool { return o.directScanout }

// Degraded reports whether presentation on this output has been marked
// unreliable.
func (o *Output) Degraded() bool { return o.degraded }

// ScanoutTarget returns the output's side of a direct scanout
// decision. shadowActive reports whether composition currently renders
// through a shadow buffer.
func (o *Output) ScanoutTarget(shadowActive bool) kms.ScanoutTarget {
	return kms.ScanoutTarget{
		Width:         o.mode.Width,
		Height:        o.mode.Height,
		DirectCapable: o.directScanout,
		ShadowActive:  shadowActive,
	}
}
