package renderer

import (
	"fmt"
	"sort"

	"github.com/Carmen-Shannon/oxy-life/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// validateBindGroup checks that the entries fill every slot of the layout with a live resource of the kind
// the slot declares, and that no texture is bound for sampling and for storage writes in the same group.
//
// Parameters:
//   - layout: the layout the group is built against
//   - entries: the resources per slot
//
// Returns:
//   - error: an error wrapping ErrInvalidBindGroup describing the first violation, nil if valid
func validateBindGroup(layout *resource.BindGroupLayout, entries []resource.BindGroupEntry) error {
	if layout == nil {
		return fmt.Errorf("%w: nil layout", ErrInvalidBindGroup)
	}

	byBinding := make(map[uint32]resource.BindGroupEntry, len(entries))
	for _, e := range entries {
		if _, dup := byBinding[e.Binding]; dup {
			return fmt.Errorf("%w: binding %d set twice", ErrInvalidBindGroup, e.Binding)
		}
		if _, ok := layout.Entry(e.Binding); !ok {
			return fmt.Errorf("%w: binding %d is not in layout %q", ErrInvalidBindGroup, e.Binding, layout.Label())
		}
		byBinding[e.Binding] = e
	}

	sampled := make(map[*resource.Texture]uint32)
	stored := make(map[*resource.Texture]uint32)

	for _, le := range layout.Descriptor().Entries {
		e, ok := byBinding[le.Binding]
		if !ok {
			return fmt.Errorf("%w: binding %d has no resource", ErrInvalidBindGroup, le.Binding)
		}

		switch {
		case le.Texture.SampleType != wgpu.TextureSampleTypeUndefined:
			if e.Texture == nil || e.Texture.Released() {
				return fmt.Errorf("%w: binding %d needs a texture", ErrInvalidBindGroup, le.Binding)
			}
			if !e.Texture.Supports(wgpu.TextureUsageTextureBinding) {
				return fmt.Errorf("%w: texture %q at binding %d lacks TextureBinding usage", ErrInvalidBindGroup, e.Texture.Label(), le.Binding)
			}
			sampled[e.Texture] = le.Binding

		case le.StorageTexture.Access != wgpu.StorageTextureAccessUndefined:
			if e.Texture == nil || e.Texture.Released() {
				return fmt.Errorf("%w: binding %d needs a storage texture", ErrInvalidBindGroup, le.Binding)
			}
			if !e.Texture.Supports(wgpu.TextureUsageStorageBinding) {
				return fmt.Errorf("%w: texture %q at binding %d lacks StorageBinding usage", ErrInvalidBindGroup, e.Texture.Label(), le.Binding)
			}
			if le.StorageTexture.Format != e.Texture.Format() {
				return fmt.Errorf("%w: texture %q at binding %d has format %v, layout wants %v", ErrInvalidBindGroup, e.Texture.Label(), le.Binding, e.Texture.Format(), le.StorageTexture.Format)
			}
			stored[e.Texture] = le.Binding

		case le.Sampler.Type != wgpu.SamplerBindingTypeUndefined:
			if e.Sampler == nil || e.Sampler.Released() {
				return fmt.Errorf("%w: binding %d needs a sampler", ErrInvalidBindGroup, le.Binding)
			}

		case le.Buffer.Type != wgpu.BufferBindingTypeUndefined:
			if e.Buffer == nil || e.Buffer.Released() {
				return fmt.Errorf("%w: binding %d needs a buffer", ErrInvalidBindGroup, le.Binding)
			}
			want := wgpu.BufferUsageStorage
			if le.Buffer.Type == wgpu.BufferBindingTypeUniform {
				want = wgpu.BufferUsageUniform
			}
			if e.Buffer.Usage()&want == 0 {
				return fmt.Errorf("%w: buffer %q at binding %d lacks usage %v", ErrInvalidBindGroup, e.Buffer.Label(), le.Binding, want)
			}
			if e.Buffer.Size() < le.Buffer.MinBindingSize {
				return fmt.Errorf("%w: buffer %q at binding %d is %d bytes, layout needs %d", ErrInvalidBindGroup, e.Buffer.Label(), le.Binding, e.Buffer.Size(), le.Buffer.MinBindingSize)
			}
		}
	}

	for tex, sb := range sampled {
		if wb, ok := stored[tex]; ok {
			return fmt.Errorf("%w: texture %q is bound for reading at %d and writing at %d", ErrInvalidBindGroup, tex.Label(), sb, wb)
		}
	}
	return nil
}

// pipelineLayoutDescriptors returns the bind group layout descriptors a pipeline needs, keyed by group index.
// Render pipelines merge the vertex and fragment stages; compute pipelines use the compute stage alone.
// Every descriptor label is prefixed with the pipeline key.
//
// Parameters:
//   - p: the pipeline
//
// Returns:
//   - map[int]wgpu.BindGroupLayoutDescriptor: the descriptors by group
//   - error: an error if a shader the pipeline type requires is missing
func pipelineLayoutDescriptors(p pipeline.Pipeline) (map[int]wgpu.BindGroupLayoutDescriptor, error) {
	var descriptors map[int]wgpu.BindGroupLayoutDescriptor
	switch p.Type() {
	case pipeline.PipelineTypeCompute:
		cs := p.Shader(shader.ShaderTypeCompute)
		if cs == nil {
			return nil, fmt.Errorf("pipeline %q: compute shader must be set to create a compute pipeline", p.PipelineKey())
		}
		descriptors = cs.BindGroupLayoutDescriptors()
	case pipeline.PipelineTypeRender:
		vs, fs := p.Shader(shader.ShaderTypeVertex), p.Shader(shader.ShaderTypeFragment)
		if vs == nil || fs == nil {
			return nil, fmt.Errorf("pipeline %q: both vertex and fragment shaders must be set to create a render pipeline", p.PipelineKey())
		}
		descriptors = mergeBindGroupLayouts(vs.BindGroupLayoutDescriptors(), fs.BindGroupLayoutDescriptors())
	default:
		return nil, fmt.Errorf("pipeline %q: unknown pipeline type %d", p.PipelineKey(), p.Type())
	}

	out := make(map[int]wgpu.BindGroupLayoutDescriptor, len(descriptors))
	for g, desc := range descriptors {
		desc.Label = p.PipelineKey() + " " + desc.Label
		out[g] = desc
	}
	return out, nil
}

// mergeBindGroupLayouts merges the bind group layout descriptors from a vertex and fragment shader
// into a unified set of descriptors suitable for a render pipeline layout.
//
// For each group index present in either shader:
//   - Entries with the same binding number have their Visibility flags ORed together
//   - Entries unique to one shader are included with their original visibility
//
// Parameters:
//   - vertexLayouts: bind group layout descriptors from the vertex shader
//   - fragmentLayouts: bind group layout descriptors from the fragment shader
//
// Returns:
//   - map[int]wgpu.BindGroupLayoutDescriptor: the merged descriptors keyed by group index
func mergeBindGroupLayouts(vertexLayouts, fragmentLayouts map[int]wgpu.BindGroupLayoutDescriptor) map[int]wgpu.BindGroupLayoutDescriptor {
	merged := make(map[int]wgpu.BindGroupLayoutDescriptor)

	groups := make(map[int]bool)
	for g := range vertexLayouts {
		groups[g] = true
	}
	for g := range fragmentLayouts {
		groups[g] = true
	}

	for g := range groups {
		vDesc, hasV := vertexLayouts[g]
		fDesc, hasF := fragmentLayouts[g]

		switch {
		case hasV && !hasF:
			merged[g] = vDesc
		case hasF && !hasV:
			merged[g] = fDesc
		default:
			byBinding := make(map[uint32]wgpu.BindGroupLayoutEntry)
			for _, e := range vDesc.Entries {
				byBinding[e.Binding] = e
			}
			for _, e := range fDesc.Entries {
				if existing, ok := byBinding[e.Binding]; ok {
					existing.Visibility |= e.Visibility
					byBinding[e.Binding] = existing
				} else {
					byBinding[e.Binding] = e
				}
			}

			entries := make([]wgpu.BindGroupLayoutEntry, 0, len(byBinding))
			for _, e := range byBinding {
				entries = append(entries, e)
			}
			sort.Slice(entries, func(i, j int) bool {
				return entries[i].Binding < entries[j].Binding
			})

			merged[g] = wgpu.BindGroupLayoutDescriptor{
				Label:   vDesc.Label,
				Entries: entries,
			}
		}
	}

	return merged
}
