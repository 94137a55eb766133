package pipeline

import "fmt"

// Colorspace identifies the color primaries of surface content.
type Colorspace uint8

// Colorspaces understood by the composition pipelines.
const (
	ColorspaceDefault Colorspace = iota
	ColorspaceSRGB
	ColorspaceBT2020
)

// TransferFunction identifies the encoding curve of surface content.
type TransferFunction uint8

// Transfer functions understood by the composition pipelines.
const (
	TransferDefault TransferFunction = iota
	TransferSRGB
	TransferPQ
	TransferLinear
)

// ColorState is the quantized color description of a source or target:
// just enough to select a composition pipeline variant. Full color
// conversion policy (gamut matrices, calibration) belongs to the embedder.
type ColorState struct {
	Colorspace Colorspace
	Transfer   TransferFunction
}

// packed packs the state into 32 bits: colorspace in the low byte, transfer
// function in the next.
func (s ColorState) packed() uint32 {
	return uint32(s.Colorspace) | uint32(s.Transfer)<<8
}

// String returns a compact form for logs, e.g. "srgb/pq".
func (s ColorState) String() string {
	cs := "default"
	switch s.Colorspace {
	case ColorspaceSRGB:
		cs = "srgb"
	case ColorspaceBT2020:
		cs = "bt2020"
	}
	tf := "default"
	switch s.Transfer {
	case TransferSRGB:
		tf = "srgb"
	case TransferPQ:
		tf = "pq"
	case TransferLinear:
		tf = "linear"
	}
	return fmt.Sprintf("%s/%s", cs, tf)
}

// TransformKey packs a source/target color state pair into the 64-bit cache
// key: source in the low 32 bits, target in the high 32 bits.
func TransformKey(source, target ColorState) uint64 {
	return uint64(source.packed()) | uint64(target.packed())<<32
}
