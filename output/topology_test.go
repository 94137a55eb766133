package output

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/compositor/kms"
)

func testOutput(t *testing.T, connector string) *Output {
	t.Helper()
	o, err := New(&Config{
		Connector: connector,
		Mode:      Mode{Width: 1920, Height: 1080, RefreshRate: 60},
		Device:    kms.NewDevice("/dev/dri/card0", "card0", false),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestNewValidation(t *testing.T) {
	dev := kms.NewDevice("/dev/dri/card0", "card0", false)
	mode := Mode{Width: 1920, Height: 1080, RefreshRate: 60}

	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"empty connector", &Config{Mode: mode, Device: dev}},
		{"zero mode", &Config{Connector: "DP-1", Device: dev}},
		{"nil device", &Config{Connector: "DP-1", Mode: mode}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Fatal("New succeeded, want error")
			}
		})
	}
}

func TestModeRefreshInterval(t *testing.T) {
	m := Mode{Width: 1920, Height: 1080, RefreshRate: 60}
	want := time.Second / 60
	if got := m.RefreshInterval(); got != want {
		t.Fatalf("RefreshInterval = %v, want %v", got, want)
	}
	if got := m.String(); got != "1920x1080@60.00" {
		t.Fatalf("String = %q", got)
	}
}

func TestTopologyAddRemove(t *testing.T) {
	topo := NewTopology(nil)

	var events []Change
	topo.Observe(func(c Change) { events = append(events, c) })

	dp1 := testOutput(t, "DP-1")
	if err := topo.Add(dp1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := topo.Add(testOutput(t, "HDMI-1")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := topo.Add(testOutput(t, "DP-1")); err == nil {
		t.Fatal("duplicate connector accepted")
	}

	if got, want := topo.Names(), []string{"DP-1", "HDMI-1"}; len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Names = %v, want %v", got, want)
	}

	if got := topo.Remove("DP-1"); got != dp1 {
		t.Fatalf("Remove = %v, want the added output", got)
	}
	if got := topo.Remove("DP-1"); got != nil {
		t.Fatalf("second Remove = %v, want nil", got)
	}
	if topo.Len() != 1 {
		t.Fatalf("Len = %d, want 1", topo.Len())
	}

	if len(events) != 3 {
		t.Fatalf("observed %d events, want 3", len(events))
	}
	if events[0].Event != Added || events[2].Event != Removed {
		t.Fatalf("events = %v,%v,%v", events[0].Event, events[1].Event, events[2].Event)
	}
	if events[2].Output != dp1 {
		t.Fatal("Removed event does not carry the output")
	}
}

func TestObserversRunSynchronously(t *testing.T) {
	topo := NewTopology(nil)

	// The observer must see the topology already mutated when it runs,
	// within the same call.
	sawDuringAdd := -1
	topo.Observe(func(c Change) {
		if c.Event == Added {
			sawDuringAdd = topo.Len()
		}
	})
	topo.Add(testOutput(t, "DP-1"))
	if sawDuringAdd != 1 {
		t.Fatalf("observer saw Len = %d during Add, want 1", sawDuringAdd)
	}
}

func TestSetMode(t *testing.T) {
	topo := NewTopology(nil)
	o := testOutput(t, "DP-1")
	topo.Add(o)

	var events []Change
	topo.Observe(func(c Change) { events = append(events, c) })

	next := Mode{Width: 2560, Height: 1440, RefreshRate: 144}
	if err := topo.SetMode("DP-1", next); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if got := o.Mode(); got != next {
		t.Fatalf("Mode = %v, want %v", got, next)
	}
	if len(events) != 1 || events[0].Event != ModeChanged {
		t.Fatalf("events = %v, want one mode-changed", events)
	}

	// Setting the same mode again is not a change.
	if err := topo.SetMode("DP-1", next); err != nil {
		t.Fatalf("SetMode repeat: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("no-op mode set produced an event")
	}

	if err := topo.SetMode("DP-9", next); err == nil {
		t.Fatal("SetMode on unknown connector succeeded")
	}
}

func TestNotifyDegraded(t *testing.T) {
	topo := NewTopology(nil)
	o := testOutput(t, "DP-1")
	topo.Add(o)

	var got Change
	topo.Observe(func(c Change) { got = c })

	cause := errors.New("atomic commit rejected")
	topo.NotifyDegraded("DP-1", cause)

	if !o.Degraded() {
		t.Fatal("output not marked degraded")
	}
	if got.Event != Degraded || !errors.Is(got.Err, cause) {
		t.Fatalf("change = %+v, want degraded with cause", got)
	}

	// Unknown connectors are logged, not fatal.
	topo.NotifyDegraded("DP-9", cause)
}

func TestScanoutTarget(t *testing.T) {
	o, err := New(&Config{
		Connector:     "DP-1",
		Mode:          Mode{Width: 1920, Height: 1080, RefreshRate: 60},
		Device:        kms.NewDevice("/dev/dri/card0", "card0", false),
		DirectScanout: true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	target := o.ScanoutTarget(false)
	if !target.DirectCapable || target.Width != 1920 || target.Height != 1080 {
		t.Fatalf("ScanoutTarget = %+v", target)
	}
	if got := o.ScanoutTarget(true); !got.ShadowActive {
		t.Fatal("ShadowActive not propagated")
	}
}
