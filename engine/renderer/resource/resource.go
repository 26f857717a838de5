// Package resource holds backend-agnostic handles for GPU objects.
//
// Each handle records the descriptor it was created from plus the backend object behind it,
// stored as any in the same way the window layer keeps its platform window. Backends type-assert
// the handle back to their own type (*wgpu.Texture, *image.RGBA, ...).
package resource

import (
	"github.com/Carmen-Shannon/oxy-life/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// releaser is the shared release bookkeeping embedded by every handle.
type releaser struct {
	release  func()
	released bool
}

// Release frees the backend object. Calling it more than once is a no-op.
func (r *releaser) Release() {
	if r.released {
		return
	}
	r.released = true
	if r.release != nil {
		r.release()
		r.release = nil
	}
}

// Released reports whether Release has been called.
func (r *releaser) Released() bool {
	return r.released
}

// Texture is a 2D texture handle.
type Texture struct {
	releaser
	label  string
	width  uint32
	height uint32
	format wgpu.TextureFormat
	usage  wgpu.TextureUsage
	handle any
	view   any
}

// NewTexture wraps a backend texture.
//
// Parameters:
//   - desc: the staging data the texture was created from (pixels are not retained)
//   - handle: the backend texture object
//   - view: the backend view object, or nil when the backend has no separate views
//   - release: the function that frees the backend objects, may be nil
//
// Returns:
//   - *Texture: the new handle
func NewTexture(desc common.TextureStagingData, handle, view any, release func()) *Texture {
	return &Texture{
		releaser: releaser{release: release},
		label:    desc.Label,
		width:    desc.Width,
		height:   desc.Height,
		format:   desc.Format,
		usage:    desc.Usage,
		handle:   handle,
		view:     view,
	}
}

func (t *Texture) Label() string {
	return t.label
}

func (t *Texture) Width() uint32 {
	return t.width
}

func (t *Texture) Height() uint32 {
	return t.height
}

func (t *Texture) Format() wgpu.TextureFormat {
	return t.format
}

func (t *Texture) Usage() wgpu.TextureUsage {
	return t.usage
}

func (t *Texture) Handle() any {
	return t.handle
}

func (t *Texture) View() any {
	return t.view
}

func (t *Texture) Supports(u wgpu.TextureUsage) bool {
	return t.usage&u == u
}

// Buffer is a linear buffer handle.
type Buffer struct {
	releaser
	label  string
	size   uint64
	usage  wgpu.BufferUsage
	handle any
}

// NewBuffer wraps a backend buffer.
//
// Parameters:
//   - label: the buffer label
//   - size: the buffer size in bytes
//   - usage: the usages the buffer was created with
//   - handle: the backend buffer object
//   - release: the function that frees the backend object, may be nil
//
// Returns:
//   - *Buffer: the new handle
func NewBuffer(label string, size uint64, usage wgpu.BufferUsage, handle any, release func()) *Buffer {
	return &Buffer{
		releaser: releaser{release: release},
		label:    label,
		size:     size,
		usage:    usage,
		handle:   handle,
	}
}

func (b *Buffer) Label() string {
	return b.label
}

func (b *Buffer) Size() uint64 {
	return b.size
}

func (b *Buffer) Usage() wgpu.BufferUsage {
	return b.usage
}

func (b *Buffer) Handle() any {
	return b.handle
}

// Sampler is a sampler handle.
type Sampler struct {
	releaser
	config common.SamplerStagingData
	handle any
}

// NewSampler wraps a backend sampler.
//
// Parameters:
//   - config: the sampler configuration
//   - handle: the backend sampler object
//   - release: the function that frees the backend object, may be nil
//
// Returns:
//   - *Sampler: the new handle
func NewSampler(config common.SamplerStagingData, handle any, release func()) *Sampler {
	return &Sampler{
		releaser: releaser{release: release},
		config:   config,
		handle:   handle,
	}
}

func (s *Sampler) Label() string {
	return s.config.Label
}

func (s *Sampler) Config() common.SamplerStagingData {
	return s.config
}

func (s *Sampler) Handle() any {
	return s.handle
}

// BindGroupLayout is a bind group layout handle together with the reflected descriptor it came from.
type BindGroupLayout struct {
	releaser
	descriptor wgpu.BindGroupLayoutDescriptor
	handle     any
}

// NewBindGroupLayout wraps a backend bind group layout.
//
// Parameters:
//   - descriptor: the layout descriptor
//   - handle: the backend layout object
//   - release: the function that frees the backend object, may be nil
//
// Returns:
//   - *BindGroupLayout: the new handle
func NewBindGroupLayout(descriptor wgpu.BindGroupLayoutDescriptor, handle any, release func()) *BindGroupLayout {
	return &BindGroupLayout{
		releaser:   releaser{release: release},
		descriptor: descriptor,
		handle:     handle,
	}
}

func (l *BindGroupLayout) Label() string {
	return l.descriptor.Label
}

func (l *BindGroupLayout) Descriptor() wgpu.BindGroupLayoutDescriptor {
	return l.descriptor
}

func (l *BindGroupLayout) Handle() any {
	return l.handle
}

// Entry looks up the layout entry for a binding slot.
//
// Parameters:
//   - binding: the binding slot
//
// Returns:
//   - wgpu.BindGroupLayoutEntry: the entry
//   - bool: false if the layout has no such slot
func (l *BindGroupLayout) Entry(binding uint32) (wgpu.BindGroupLayoutEntry, bool) {
	for _, e := range l.descriptor.Entries {
		if e.Binding == binding {
			return e, true
		}
	}
	return wgpu.BindGroupLayoutEntry{}, false
}

// BindGroupEntry connects one resource to one binding slot. Exactly one of the resource fields is set.
type BindGroupEntry struct {
	Binding uint32
	Texture *Texture
	Sampler *Sampler
	Buffer  *Buffer
}

// BindGroup is a bind group handle. It keeps its entries so that callers and the software backend
// can see exactly which resource sits in which slot.
type BindGroup struct {
	releaser
	label   string
	layout  *BindGroupLayout
	entries []BindGroupEntry
	handle  any
}

// NewBindGroup wraps a backend bind group.
//
// Parameters:
//   - label: the bind group label
//   - layout: the layout the group was created against
//   - entries: the resources bound per slot
//   - handle: the backend bind group object, nil for backends that bind directly from entries
//   - release: the function that frees the backend object, may be nil
//
// Returns:
//   - *BindGroup: the new handle
func NewBindGroup(label string, layout *BindGroupLayout, entries []BindGroupEntry, handle any, release func()) *BindGroup {
	cp := make([]BindGroupEntry, len(entries))
	copy(cp, entries)
	return &BindGroup{
		releaser: releaser{release: release},
		label:    label,
		layout:   layout,
		entries:  cp,
		handle:   handle,
	}
}

func (g *BindGroup) Label() string {
	return g.label
}

func (g *BindGroup) Layout() *BindGroupLayout {
	return g.layout
}

func (g *BindGroup) Entries() []BindGroupEntry {
	return g.entries
}

func (g *BindGroup) Handle() any {
	return g.handle
}

// Entry looks up the entry bound at a slot.
//
// Parameters:
//   - binding: the binding slot
//
// Returns:
//   - BindGroupEntry: the entry
//   - bool: false if nothing is bound at that slot
func (g *BindGroup) Entry(binding uint32) (BindGroupEntry, bool) {
	for _, e := range g.entries {
		if e.Binding == binding {
			return e, true
		}
	}
	return BindGroupEntry{}, false
}

// Texture returns the texture bound at a slot, or nil.
func (g *BindGroup) Texture(binding uint32) *Texture {
	e, _ := g.Entry(binding)
	return e.Texture
}

// Buffer returns the buffer bound at a slot, or nil.
func (g *BindGroup) Buffer(binding uint32) *Buffer {
	e, _ := g.Entry(binding)
	return e.Buffer
}

// Sampler returns the sampler bound at a slot, or nil.
func (g *BindGroup) Sampler(binding uint32) *Sampler {
	e, _ := g.Entry(binding)
	return e.Sampler
}
