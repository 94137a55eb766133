// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
	types "github.com/gogpu/gputypes"
)

// Builder errors.
var (
	// ErrNilDevice is returned when creating a builder without a device.
	ErrNilDevice = errors.New("pipeline: HAL device is nil")

	// ErrEmptyShader is returned when Build is given no shader source.
	ErrEmptyShader = errors.New("pipeline: empty shader source")
)

// Builder turns WGSL compute shaders into cacheable pipeline handles.
//
// The builder compiles WGSL to SPIR-V, creates the shader module, a
// pipeline layout matching the composition binding interface (a uniform
// parameter block and one read-write storage image), and the compute
// pipeline. The returned Handle destroys all three objects when its last
// reference drops.
type Builder struct {
	device hal.Device
	log    *slog.Logger
}

// NewBuilder creates a builder on the given device.
func NewBuilder(device hal.Device, log *slog.Logger) (*Builder, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Builder{device: device, log: log}, nil
}

// Build compiles wgslSource and creates a compute pipeline for it.
// An empty entryPoint defaults to "main".
func (b *Builder) Build(label, wgslSource, entryPoint string) (*Handle, error) {
	if wgslSource == "" {
		return nil, ErrEmptyShader
	}
	if entryPoint == "" {
		entryPoint = "main"
	}

	spirvBytes, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("pipeline: compile %s: %w", label, err)
	}
	spirv := spirvWords(spirvBytes)

	module, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: label,
		Source: hal.ShaderSource{
			SPIRV: spirv,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: create shader module %s: %w", label, err)
	}

	bindLayout, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label,
		Entries: compositionBindEntries(),
	})
	if err != nil {
		b.device.DestroyShaderModule(module)
		return nil, fmt.Errorf("pipeline: create bind group layout %s: %w", label, err)
	}

	layout, err := b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		b.device.DestroyBindGroupLayout(bindLayout)
		b.device.DestroyShaderModule(module)
		return nil, fmt.Errorf("pipeline: create pipeline layout %s: %w", label, err)
	}

	compute, err := b.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  label,
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: entryPoint,
		},
	})
	if err != nil {
		b.device.DestroyPipelineLayout(layout)
		b.device.DestroyBindGroupLayout(bindLayout)
		b.device.DestroyShaderModule(module)
		return nil, fmt.Errorf("pipeline: create compute pipeline %s: %w", label, err)
	}

	b.log.Debug("composition pipeline built", "label", label, "spirv_words", len(spirv))

	device := b.device
	return NewHandle(label, func() {
		device.DestroyComputePipeline(compute)
		device.DestroyPipelineLayout(layout)
		device.DestroyBindGroupLayout(bindLayout)
		device.DestroyShaderModule(module)
	}), nil
}

// compositionBindEntries describes the binding interface every composition
// shader variant shares: binding 0 is the transform parameter block,
// binding 1 the target image.
func compositionBindEntries() []types.BindGroupLayoutEntry {
	return []types.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: types.ShaderStageCompute,
			Buffer: &types.BufferBindingLayout{
				Type: types.BufferBindingTypeUniform,
			},
		},
		{
			Binding:    1,
			Visibility: types.ShaderStageCompute,
			StorageTexture: &types.StorageTextureBindingLayout{
				Access:        types.StorageTextureAccessReadWrite,
				Format:        types.TextureFormatRGBA8Unorm,
				ViewDimension: types.TextureViewDimension2D,
			},
		},
	}
}

// spirvWords converts SPIR-V bytes to the little-endian 32-bit words the
// HAL expects.
func spirvWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words
}
