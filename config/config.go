// Package config loads the compositor's TOML configuration: defaults,
// bounds validation, and an fsnotify watcher that re-parses the file on
// change and delivers the result onto the event loop.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/compositor/commit"
)

// Config is the compositor configuration. Zero values are not usable;
// start from Default and overlay a file with Load.
type Config struct {
	// LogLevel is the slog level name: "debug", "info", "warn" or
	// "error".
	LogLevel string `toml:"log_level"`

	// HeadlessRefreshRate paces outputs that have no display to report
	// a rate, in Hz.
	HeadlessRefreshRate float64 `toml:"headless_refresh_rate"`

	// FIFOFallbackMillis is the stall bound for FIFO barriers on
	// surfaces without an output. The period is a protocol constant;
	// the field exists so a file stating it is checked against the
	// compiled value rather than silently ignored.
	FIFOFallbackMillis int `toml:"fifo_fallback_ms"`

	// PresentationFailureThreshold is how many consecutive failed
	// flips a frame clock retries before signaling degraded mode.
	PresentationFailureThreshold int `toml:"presentation_failure_threshold"`

	// DirectScanout allows qualifying client buffers for direct
	// scanout, bypassing composition.
	DirectScanout bool `toml:"direct_scanout"`

	// MaxPendingFrames bounds dispatched frames awaiting presentation
	// feedback per output.
	MaxPendingFrames int `toml:"max_pending_frames"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel:                     "info",
		HeadlessRefreshRate:          60,
		FIFOFallbackMillis:           int(commit.FallbackPeriod / time.Millisecond),
		PresentationFailureThreshold: 5,
		DirectScanout:                true,
		MaxPendingFrames:             2,
	}
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// HeadlessRefreshInterval returns the headless rate as a frame
// interval.
func (c Config) HeadlessRefreshInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.HeadlessRefreshRate)
}

// Validate rejects out-of-range values.
func (c Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.HeadlessRefreshRate < 1 || c.HeadlessRefreshRate > 1000 {
		return fmt.Errorf("config: headless_refresh_rate %g outside [1, 1000]",
			c.HeadlessRefreshRate)
	}
	if fixed := int(commit.FallbackPeriod / time.Millisecond); c.FIFOFallbackMillis != fixed {
		return fmt.Errorf("config: fifo_fallback_ms is fixed at %d", fixed)
	}
	if c.PresentationFailureThreshold < 1 {
		return fmt.Errorf("config: presentation_failure_threshold %d must be at least 1",
			c.PresentationFailureThreshold)
	}
	if c.MaxPendingFrames < 1 || c.MaxPendingFrames > 8 {
		return fmt.Errorf("config: max_pending_frames %d outside [1, 8]",
			c.MaxPendingFrames)
	}
	return nil
}

// Load reads a TOML file over the defaults and validates the result.
// Keys absent from the file keep their default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
