// Package compositor provides the presentation core of a display
// server.
//
// # Overview
//
// compositor paces rendering against display refresh and keeps client
// content consistent on its way to the screen. It is the timing and
// commit machinery of a compositor, not a window manager: scene policy,
// input and the wire protocol live in the embedder.
//
// # Quick Start
//
//	import "github.com/gogpu/compositor"
//
//	c, err := compositor.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go c.Run(context.Background())
//
//	c.Post(func() {
//	    c.AddOutput("DP-1", output.Mode{Width: 2560, Height: 1440, RefreshRate: 144}, true)
//	})
//
// # Architecture
//
// The core runs on a single event loop goroutine; backend completions
// and protocol requests enter as posted callbacks. The packages:
//   - frame: per-output frame clocks with adaptive dispatch timing
//   - commit: surface state, fences, transactions, FIFO barriers,
//     tearing hints
//   - damage: buffer-age damage history
//   - kms: atomic display updates and direct scanout qualification
//   - pipeline, compose: cached GPU compute pipelines for composition
//   - backend, backend/native: presentation backends behind a priority
//     registry
//   - output, protocol, config: topology, per-client protocol entry
//     points, TOML configuration with live reload
//
// # Frame Lifecycle
//
// A commit that applies schedules a repaint; the output's frame clock
// dispatches at a deadline chosen to reach the next refresh; dispatch
// paints through the damage history, aggregates one atomic update and
// submits it; presentation feedback closes the cycle, resolves FIFO
// barriers and fires frame callbacks.
package compositor

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
