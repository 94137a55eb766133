package compose

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compositor/pipeline"
)

// Device provider errors.
var (
	// ErrNilProvider is returned when constructing a source without a
	// device provider.
	ErrNilProvider = errors.New("compose: nil device provider")

	// ErrNoHALDevice is returned when the provider does not expose
	// usable HAL types.
	ErrNoHALDevice = errors.New("compose: provider does not expose HAL types")
)

// PipelineSource builds and memoizes composition pipelines. Device
// access is received from the host, never created here; the provider
// must expose HAL types the way gogpu device providers do, via
// HalDevice() any.
type PipelineSource struct {
	log     *slog.Logger
	cache   *pipeline.Cache
	builder *pipeline.Builder
}

// NewPipelineSource extracts the HAL device from the provider and
// prepares an empty pipeline cache.
func NewPipelineSource(provider gpucontext.DeviceProvider, log *slog.Logger) (*PipelineSource, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if provider == nil {
		return nil, ErrNilProvider
	}
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALDevice
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not a hal.Device", ErrNoHALDevice)
	}
	builder, err := pipeline.NewBuilder(device, log)
	if err != nil {
		return nil, err
	}
	return &PipelineSource{
		log:     log,
		cache:   pipeline.NewCache(log),
		builder: builder,
	}, nil
}

// Cache exposes the underlying pipeline cache to the render
// collaborator.
func (s *PipelineSource) Cache() *pipeline.Cache {
	return s.cache
}

// CompositionPipeline returns the pipeline converting source-encoded
// content to the target encoding, building and caching it on first
// use. The caller owns the returned reference and must Unref it.
func (s *PipelineSource) CompositionPipeline(group pipeline.Group, slot int, source, target pipeline.ColorState) (*pipeline.Handle, error) {
	if h := s.cache.Get(group, slot, source, target); h != nil {
		return h, nil
	}

	wgsl, err := compositionShader(source, target)
	if err != nil {
		return nil, err
	}
	label := fmt.Sprintf("composite/%s/%d/%s->%s", group, slot, source, target)
	h, err := s.builder.Build(label, wgsl, "main")
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(group, slot, source, target, h); err != nil {
		h.Unref()
		return nil, err
	}
	s.log.Debug("composition pipeline cached", "label", label)
	return h, nil
}

// Invalidate drops one cached pipeline, for a color-management change
// affecting a single conversion.
func (s *PipelineSource) Invalidate(group pipeline.Group, slot int, source, target pipeline.ColorState) {
	s.cache.Unset(group, slot, source, target)
}

// InvalidateGroup drops every pipeline cached under group.
func (s *PipelineSource) InvalidateGroup(group pipeline.Group) {
	s.cache.UnsetAll(group)
}

// Destroy releases every cached pipeline. The source must not be used
// afterward.
func (s *PipelineSource) Destroy() {
	s.cache.Destroy()
}
