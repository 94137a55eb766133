package output

import (
	"fmt"
	"log/slog"
	"sort"
)

// Event classifies a topology change.
type Event int

const (
	// Added means a new output was connected.
	Added Event = iota

	// Removed means an output was disconnected.
	Removed

	// ModeChanged means an output switched display modes.
	ModeChanged

	// Degraded means presentation on an output became unreliable.
	Degraded
)

// String returns the event name for logs.
func (e Event) String() string {
	switch e {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case ModeChanged:
		return "mode-changed"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Change describes one topology event. Err is set for Degraded events.
type Change struct {
	Event  Event
	Output *Output
	Err    error
}

// Observer receives topology changes synchronously, in the same event
// loop turn that caused them.
type Observer func(Change)

// Topology is the set of connected outputs. It is confined to the
// compositor's event loop goroutine.
type Topology struct {
	log       *slog.Logger
	outputs   map[string]*Output
	observers []Observer
}

// NewTopology creates an empty topology.
func NewTopology(log *slog.Logger) *Topology {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Topology{
		log:     log,
		outputs: make(map[string]*Output),
	}
}

// Observe registers an observer for subsequent changes.
func (t *Topology) Observe(fn Observer) {
	t.observers = append(t.observers, fn)
}

// Add connects an output. The connector name must be unique.
func (t *Topology) Add(o *Output) error {
	if _, ok := t.outputs[o.connector]; ok {
		return fmt.Errorf("output: connector %q already present", o.connector)
	}
	t.outputs[o.connector] = o
	t.log.Info("output added", "connector", o.connector, "mode", o.mode.String())
	t.notify(Change{Event: Added, Output: o})
	return nil
}

// Remove disconnects an output by connector name and returns it, or
// nil if the connector is unknown.
func (t *Topology) Remove(connector string) *Output {
	o, ok := t.outputs[connector]
	if !ok {
		return nil
	}
	delete(t.outputs, connector)
	t.log.Info("output removed", "connector", connector)
	t.notify(Change{Event: Removed, Output: o})
	return o
}

// Get returns the output on the given connector.
func (t *Topology) Get(connector string) (*Output, bool) {
	o, ok := t.outputs[connector]
	return o, ok
}

// Names returns the connected connector names, sorted.
func (t *Topology) Names() []string {
	names := make([]string, 0, len(t.outputs))
	for name := range t.outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of connected outputs.
func (t *Topology) Len() int { return len(t.outputs) }

// SetMode switches an output's display mode and notifies observers.
func (t *Topology) SetMode(connector string, mode Mode) error {
	o, ok := t.outputs[connector]
	if !ok {
		return fmt.Errorf("output: connector %q not present", connector)
	}
	if !mode.valid() {
		return fmt.Errorf("output: invalid mode %s", mode)
	}
	if o.mode == mode {
		return nil
	}
	o.mode = mode
	t.log.Info("output mode changed", "connector", connector, "mode", mode.String())
	t.notify(Change{Event: ModeChanged, Output: o})
	return nil
}

// NotifyDegraded marks an output's presentation as unreliable and
// notifies observers. Frame clocks report here after exhausting their
// retry budget.
func (t *Topology) NotifyDegraded(connector string, err error) {
	o, ok := t.outputs[connector]
	if !ok {
		t.log.Warn("degraded signal for unknown connector", "connector", connector)
		return
	}
	o.degraded = true
	t.log.Error("output degraded", "connector", connector, "error", err)
	t.notify(Change{Event: Degraded, Output: o, Err: err})
}

func (t *Topology) notify(c Change) {
	for _, fn := range t.observers {
		fn(c)
	}
}
