// Package simulation advances the grid one generation at a time with a compute pipeline.
package simulation

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-life/common"
	"github.com/Carmen-Shannon/oxy-life/engine/grid"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/shader"
)

// Source is the WGSL of the life compute pipeline.
//
//go:embed life.wgsl
var Source string

const (
	// PipelineKey is the key the life compute pipeline is registered under.
	PipelineKey = "life"

	// TileSize is the workgroup edge length in cells; life.wgsl declares @workgroup_size(16, 16).
	TileSize = 16

	// Bindings of group 0.
	BindingSource      = 0
	BindingDestination = 1
	BindingDims        = 2
)

type computeStep struct {
	r renderer.Renderer

	width, height int
	layout        *resource.BindGroupLayout
	uniforms      bind_group_provider.BindGroupProvider

	lastSrc, lastDst *resource.Texture
}

// ComputeStep owns the life compute pipeline and the dimension uniform, and advances a GridBuffers
// by one generation per Step.
type ComputeStep interface {
	// Step reads the generation Current(p) holds, writes the next one into Next(p) and returns the
	// flipped parity. The bind group is built for this call only and released afterwards.
	//
	// Parameters:
	//   - buffers: the grid buffers, sized like the step
	//   - p: the parity before the step
	//
	// Returns:
	//   - grid.Parity: !p on success, p unchanged on failure
	//   - error: an error wrapping renderer.ErrDispatchFailed or renderer.ErrDeviceLost if the
	//     dispatch or submission failed
	Step(buffers grid.GridBuffers, p grid.Parity) (grid.Parity, error)

	// WorkgroupCount returns the dispatch size, ceil(w/16) x ceil(h/16) x 1.
	//
	// Returns:
	//   - [3]uint32: the workgroup counts
	WorkgroupCount() [3]uint32

	// LastBinding returns the source and destination buffers of the last successful Step.
	//
	// Returns:
	//   - src: the buffer read, nil before the first step
	//   - dst: the buffer written, nil before the first step
	LastBinding() (src, dst *resource.Texture)

	// Layout returns the group 0 layout of the life pipeline.
	//
	// Returns:
	//   - *resource.BindGroupLayout: the layout
	Layout() *resource.BindGroupLayout

	// DimsBuffer returns the dimension uniform, f32 [width, height, 0, 0].
	//
	// Returns:
	//   - *resource.Buffer: the uniform buffer
	DimsBuffer() *resource.Buffer

	// Release frees the dimension uniform.
	Release()
}

var _ ComputeStep = &computeStep{}

// New registers the life compute pipeline, resolves its group 0 layout and writes the dimension
// uniform once.
//
// Parameters:
//   - r: the renderer
//   - width: the grid width in cells
//   - height: the grid height in cells
//
// Returns:
//   - ComputeStep: the compute step
//   - error: an error if the shader, pipeline or uniform could not be created
func New(r renderer.Renderer, width, height int) (ComputeStep, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("compute step: invalid grid size %dx%d", width, height)
	}

	cs, err := shader.NewShaderFromSource(PipelineKey, shader.ShaderTypeCompute, Source)
	if err != nil {
		return nil, err
	}
	p := pipeline.NewPipeline(PipelineKey, pipeline.PipelineTypeCompute,
		pipeline.WithComputeShader(cs),
		pipeline.WithComputeKernel(LifeKernel),
	)
	if err := r.RegisterPipelines(p); err != nil {
		return nil, err
	}
	layout, err := r.BindGroupLayout(PipelineKey, 0)
	if err != nil {
		return nil, err
	}

	uniforms := bind_group_provider.NewBindGroupProvider("Life")
	if err := r.InitBuffers(uniforms, layout.Descriptor(), nil, nil); err != nil {
		return nil, fmt.Errorf("create dimension uniform: %w", err)
	}
	if err := r.WriteBuffers([]bind_group_provider.BufferWrite{{
		Provider: uniforms,
		Binding:  BindingDims,
		Data:     common.Float32sToBytes(float32(width), float32(height), 0, 0),
	}}); err != nil {
		uniforms.Release()
		return nil, fmt.Errorf("write dimension uniform: %w", err)
	}

	return &computeStep{
		r:        r,
		width:    width,
		height:   height,
		layout:   layout,
		uniforms: uniforms,
	}, nil
}

// NewBindGroup builds the group 0 bind group of the life pipeline. It is a plain function of its
// arguments: the caller passes every resource, including the renderer that creates the group.
//
// Parameters:
//   - r: the renderer that creates the bind group
//   - layout: the life group 0 layout
//   - src: the buffer holding the current generation
//   - dst: the buffer receiving the next generation
//   - dims: the dimension uniform
//
// Returns:
//   - *resource.BindGroup: the bind group
//   - error: an error wrapping renderer.ErrInvalidBindGroup if src and dst are the same buffer or
//     a resource does not fit its slot
func NewBindGroup(r renderer.Renderer, layout *resource.BindGroupLayout, src, dst *resource.Texture, dims *resource.Buffer) (*resource.BindGroup, error) {
	if src == dst {
		return nil, fmt.Errorf("%w: life source and destination are the same buffer", renderer.ErrInvalidBindGroup)
	}
	return r.CreateBindGroup("Life Step", layout, []resource.BindGroupEntry{
		{Binding: BindingSource, Texture: src},
		{Binding: BindingDestination, Texture: dst},
		{Binding: BindingDims, Buffer: dims},
	})
}

func (s *computeStep) Step(buffers grid.GridBuffers, p grid.Parity) (grid.Parity, error) {
	if buffers.Width() != s.width || buffers.Height() != s.height {
		return p, fmt.Errorf("grid is %dx%d, compute step is %dx%d", buffers.Width(), buffers.Height(), s.width, s.height)
	}

	src, dst := buffers.Current(p), buffers.Next(p)
	bg, err := NewBindGroup(s.r, s.layout, src, dst, s.DimsBuffer())
	if err != nil {
		return p, err
	}
	defer bg.Release()

	if err := s.r.BeginComputeFrame(); err != nil {
		return p, fmt.Errorf("%w: %w", renderer.ErrDispatchFailed, err)
	}
	if err := s.r.DispatchCompute(PipelineKey, bg, s.WorkgroupCount()); err != nil {
		// close the frame so the next step starts clean
		endErr := s.r.EndComputeFrame()
		return p, errors.Join(err, endErr)
	}
	if err := s.r.EndComputeFrame(); err != nil {
		return p, err
	}

	s.lastSrc, s.lastDst = src, dst
	return p.Flip(), nil
}

func (s *computeStep) WorkgroupCount() [3]uint32 {
	return [3]uint32{
		common.CeilDiv(uint32(s.width), TileSize),
		common.CeilDiv(uint32(s.height), TileSize),
		1,
	}
}

func (s *computeStep) LastBinding() (src, dst *resource.Texture) {
	return s.lastSrc, s.lastDst
}

func (s *computeStep) Layout() *resource.BindGroupLayout {
	return s.layout
}

func (s *computeStep) DimsBuffer() *resource.Buffer {
	return s.uniforms.Buffer(BindingDims)
}

func (s *computeStep) Release() {
	s.uniforms.Release()
}
