package kms

// Device identifies one display device. Updates are bound to the
// device they were created for; mixing devices within a frame is a
// core bug.
type Device struct {
	path      string
	name      string
	asyncFlip bool
}

// NewDevice describes a display device. path is the device node, name
// a short label for logs, asyncFlip whether the device can flip
// outside the vertical sync boundary.
func NewDevice(path, name string, asyncFlip bool) *Device {
	return &Device{path: path, name: name, asyncFlip: asyncFlip}
}

// Path returns the device node path.
func (d *Device) Path() string { return d.path }

// Name returns the device's log label.
func (d *Device) Name() string { return d.name }

// AsyncFlipSupported reports whether the device supports tearing
// flips.
func (d *Device) AsyncFlipSupported() bool { return d.asyncFlip }
