// Package kms aggregates per-frame display changes into atomic
// updates.
//
// For each output and frame, an Aggregator lazily creates one Update,
// collects buffer assignments, damage and property changes on it, and
// transfers it to the presentation backend at submission. Ownership is
// strict: exactly one side may hold an update at a time, and the
// compositor side must have handed it off (or never created one)
// before the frame is released. Violations panic because they are
// use-after-transfer bugs, not runtime conditions.
package kms

import (
	"fmt"
	"log/slog"
	"time"
)

// FeedbackListener receives the fate of a submitted update from the
// presentation backend.
type FeedbackListener interface {
	// OnPresented reports the frame reached the display. refresh is
	// the output's measured refresh interval, or zero when unknown.
	OnPresented(t time.Time, refresh time.Duration)

	// OnFailed reports the atomic commit was rejected.
	OnFailed(err error)
}

// Aggregator owns the in-flight update of one output.
type Aggregator struct {
	log       *slog.Logger
	connector string

	update *Update
	stolen bool
}

// NewAggregator creates the update aggregator for an output connector.
func NewAggregator(connector string, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Aggregator{log: log, connector: connector}
}

// Connector returns the output connector the aggregator serves.
func (a *Aggregator) Connector() string { return a.connector }

// EnsureUpdate returns the frame's update object, creating it on first
// call. Repeated calls return the same object. Calling with a nil
// device, or with a different device than the update was created for,
// is a core bug and panics.
func (a *Aggregator) EnsureUpdate(dev *Device) *Update {
	if dev == nil {
		panic("kms: EnsureUpdate with nil device")
	}
	if a.update == nil {
		a.update = newUpdate(dev, a.connector)
		a.log.Debug("update created",
			"connector", a.connector, "device", dev.Name())
		return a.update
	}
	if a.update.device != dev {
		panic(fmt.Sprintf("kms: update for %s already bound to device %s, got %s",
			a.connector, a.update.device.Name(), dev.Name()))
	}
	return a.update
}

// Update returns the in-flight update without creating one, or nil.
func (a *Aggregator) Update() *Update { return a.update }

// StealUpdate transfers the in-flight update out for submission and
// seals it against further compositor-side mutation. It returns nil
// when the frame never created an update. Stealing twice in one frame
// panics.
func (a *Aggregator) StealUpdate() *Update {
	if a.stolen {
		panic("kms: update for " + a.connector + " already stolen")
	}
	u := a.update
	if u == nil {
		return nil
	}
	a.update = nil
	a.stolen = true
	u.sealed = true
	a.log.Debug("update stolen for submission",
		"connector", a.connector, "damage", len(u.damage), "mode", u.mode.String())
	return u
}

// Release ends the frame. An update that was created but never stolen
// means the frame leaked its display changes, which is a core bug and
// panics. After Release the aggregator is ready for the next frame.
func (a *Aggregator) Release() {
	if a.update != nil {
		panic("kms: update for " + a.connector + " released without being stolen")
	}
	a.stolen = false
}
