// Package backend provides a pluggable display backend abstraction.
//
// The backend package lets the compositor present frames through
// different display systems: directly on display hardware, or nested
// inside a host compositor's window when developing or testing.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at
// runtime. The nested backend is automatically registered on import;
// the native backend registers on importing its package:
//
//	import _ "github.com/gogpu/compositor/backend/native"
//
// # Backend Selection
//
// Use New() to get the best available backend, or NewByName() to
// request a specific backend:
//
//	// Best available backend
//	b, err := backend.New(backend.Options{DevicePath: "/dev/dri/card0"})
//
//	// Or a specific one
//	b, err := backend.NewByName("nested", backend.Options{})
//
// # Usage
//
// A backend hands out one Presenter per output. The presenter drives
// the output's frame clock and receives the frame's atomic update at
// submission:
//
//	p, err := b.Presenter(out)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer p.Stop()
//
// # Available Backends
//
// - "native": direct display hardware, vsync-aligned flips
// - "nested": presents into a host compositor (always available)
package backend
