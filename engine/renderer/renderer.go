package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-life/common"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-life/engine/window"
	"github.com/cogentcore/webgpu/wgpu"
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	pipelineCache map[string]pipeline.Pipeline

	backendType RendererBackendType
	backend     RendererBackend

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	pendingPresentMode   *PresentMode
	clearColor           wgpu.Color
	surfaceWidth         int
	surfaceHeight        int
	computeWorkers       int
}

// Renderer defines the interface for the rendering system.
//
// This is a high-level API designed to simplify rendering tasks into a streamlined and idiomatic flow.
// The Renderer manages a cache of pipelines, creates resources through its backend and checks bind
// groups against their layouts before any backend sees them. Two backends exist: the WebGPU backend
// and a CPU backend used for headless runs and tests.
type Renderer interface {
	// Pipeline retrieves the cached Pipeline associated with the given key.
	// If the Pipeline does not exist, this will return nil.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline to retrieve
	//
	// Returns:
	//   - pipeline.Pipeline: the Pipeline associated with the key, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// Pipelines retrieves a copy of the pipeline cache.
	//
	// Returns:
	//   - map[string]pipeline.Pipeline: a map of pipeline keys to their corresponding Pipeline objects
	Pipelines() map[string]pipeline.Pipeline

	// RegisterPipelines registers one or more pipelines by creating the corresponding backend
	// pipeline objects (render or compute) and their bind group layouts, then caching them by PipelineKey.
	// Pipelines whose keys are already registered are skipped to avoid duplicate resource creation.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	//
	// Returns:
	//   - error: an error if pipeline creation fails
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// BindGroupLayout returns the layout a registered pipeline uses for a bind group index.
	//
	// Parameters:
	//   - pipelineKey: the key of a registered pipeline
	//   - group: the @group index
	//
	// Returns:
	//   - *resource.BindGroupLayout: the layout
	//   - error: an error if the pipeline is unknown or has no such group
	BindGroupLayout(pipelineKey string, group int) (*resource.BindGroupLayout, error)

	// Resize configures the underlying backend to handle a new surface size.
	// This should be called when re-sizing the window or when the surface was lost.
	// A zero size suspends frame acquisition.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	//
	// Returns:
	//   - error: an error if the surface could not be configured
	Resize(width, height int) error

	// SurfaceSize returns the size the surface was last configured with.
	//
	// Returns:
	//   - int: the width in pixels
	//   - int: the height in pixels
	SurfaceSize() (int, int)

	// SetPresentMode sets the surface present mode which controls how frames are delivered to the display.
	// A call to Resize is required after changing this for the new mode to take effect.
	//
	// Parameters:
	//   - mode: the PresentMode to use (VSync or Uncapped)
	SetPresentMode(mode PresentMode)

	// BackendType returns the type of backend this renderer was created with.
	//
	// Returns:
	//   - RendererBackendType: the backend type
	BackendType() RendererBackendType

	// Backend returns the backend itself. Callers type-assert it to reach backend specific features
	// such as FaultInjector.
	//
	// Returns:
	//   - RendererBackend: the backend
	Backend() RendererBackend

	// CreateTexture creates a 2D texture from staging data, uploading its pixels if any are given.
	//
	// Parameters:
	//   - desc: the texture staging data
	//
	// Returns:
	//   - *resource.Texture: the texture handle
	//   - error: an error if the description is invalid or creation fails
	CreateTexture(desc common.TextureStagingData) (*resource.Texture, error)

	// CreateBuffer creates a buffer, uploading data to its start if given.
	//
	// Parameters:
	//   - label: the buffer label
	//   - size: the buffer size in bytes
	//   - usage: the buffer usages
	//   - data: initial contents, may be nil
	//
	// Returns:
	//   - *resource.Buffer: the buffer handle
	//   - error: an error if creation fails
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage, data []byte) (*resource.Buffer, error)

	// CreateSampler creates a sampler.
	//
	// Parameters:
	//   - config: the sampler configuration
	//
	// Returns:
	//   - *resource.Sampler: the sampler handle
	//   - error: an error if creation fails
	CreateSampler(config common.SamplerStagingData) (*resource.Sampler, error)

	// CreateBindGroup validates entries against a layout and creates a bind group from them.
	// Every layout slot must be filled with a live resource of the declared kind, and a texture
	// may not be bound for sampling and for storage writes in the same group.
	//
	// Parameters:
	//   - label: the bind group label
	//   - layout: the layout, usually from BindGroupLayout
	//   - entries: the resources per slot
	//
	// Returns:
	//   - *resource.BindGroup: the bind group handle
	//   - error: an error wrapping ErrInvalidBindGroup if validation fails, or a creation error
	CreateBindGroup(label string, layout *resource.BindGroupLayout, entries []resource.BindGroupEntry) (*resource.BindGroup, error)

	// InitMeshBuffers creates vertex and index buffers from raw byte data and stores them
	// on the given BindGroupProvider for later use in draw calls.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created buffers on
	//   - vertexData: the raw vertex data bytes
	//   - indexData: the raw uint16 index data bytes
	//   - indexCount: the number of indices, used for draw calls
	//
	// Returns:
	//   - error: an error if buffer creation fails
	InitMeshBuffers(provider bind_group_provider.BindGroupProvider, vertexData, indexData []byte, indexCount int) error

	// InitBuffers creates the buffers a layout descriptor declares and stores them on the given
	// BindGroupProvider at their binding index. Buffers are sized by MinBindingSize unless overridden.
	// Texture and sampler slots are skipped; they are created with CreateTexture and CreateSampler.
	// Bindings that already hold a buffer are left alone.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created buffers on
	//   - descriptor: the layout descriptor defining the bind group entries
	//   - bufferUsageOverrides: additional buffer usage flags to OR into the derived usage, keyed by binding index (nil safe)
	//   - bufferSizeOverrides: custom buffer sizes to use instead of MinBindingSize, keyed by binding index (nil safe)
	//
	// Returns:
	//   - error: an error if a buffer has no size or creation fails
	InitBuffers(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error

	// WriteBuffers writes all staged buffer writes to the queue.
	// Each BufferWrite targets a specific buffer on a BindGroupProvider at a given binding and offset.
	//
	// Parameters:
	//   - writes: a slice of BufferWrite structs describing the data to write
	//
	// Returns:
	//   - error: an error if a targeted buffer does not exist or a write fails
	WriteBuffers(writes []bind_group_provider.BufferWrite) error

	// WriteTexture replaces the contents of a texture with tightly packed RGBA8 pixels.
	//
	// Parameters:
	//   - tex: the destination texture
	//   - pixels: width*height*4 bytes
	//
	// Returns:
	//   - error: an error if the payload does not match the texture
	WriteTexture(tex *resource.Texture, pixels []byte) error

	// ReadTexture reads the contents of a texture back as tightly packed RGBA8 pixels, after every
	// submission made before the call has completed.
	//
	// Parameters:
	//   - tex: the texture to read
	//
	// Returns:
	//   - []byte: width*height*4 bytes
	//   - error: an error if the readback fails
	ReadTexture(tex *resource.Texture) ([]byte, error)

	// BeginComputeFrame starts batching compute dispatches into a single submission.
	// Must be paired with EndComputeFrame after all DispatchCompute calls for the frame.
	//
	// Returns:
	//   - error: an error if the command encoder could not be created
	BeginComputeFrame() error

	// DispatchCompute looks up the cached compute Pipeline by key, then encodes a compute pass
	// within the current compute frame started by BeginComputeFrame.
	//
	// Parameters:
	//   - pipelineKey: the unique identifier for the cached compute Pipeline to use
	//   - bindGroup: the bind group set at group 0
	//   - workGroupCount: the number of workgroups to dispatch in the x, y, and z dimensions
	//
	// Returns:
	//   - error: an error if the pipeline is unknown or the dispatch could not be encoded
	DispatchCompute(pipelineKey string, bindGroup *resource.BindGroup, workGroupCount [3]uint32) error

	// EndComputeFrame finishes the compute frame and submits it.
	//
	// Returns:
	//   - error: an error wrapping ErrDeviceLost or ErrDispatchFailed if the submission failed
	EndComputeFrame() error

	// BeginFrame acquires the surface texture and begins the main render pass.
	// Must be paired with EndFrame after all DrawCall invocations within a single frame.
	//
	// Returns:
	//   - error: an error wrapping ErrSurfaceLost or ErrNoFrame if no surface texture is available
	BeginFrame() error

	// DrawCall encodes a single instanced draw command within the current render pass.
	// Multiple DrawCall invocations can be made between BeginFrame and EndFrame.
	//
	// Parameters:
	//   - pipelineKey: the unique identifier for the cached render Pipeline to use
	//   - meshProvider: the BindGroupProvider holding vertex and index buffers
	//   - instanceCount: the number of instances to draw
	//   - bindGroups: bind groups set at groups 0..n-1
	//
	// Returns:
	//   - error: an error if the pipeline is not found or no frame is in flight
	DrawCall(pipelineKey string, meshProvider bind_group_provider.BindGroupProvider, instanceCount uint32, bindGroups []*resource.BindGroup) error

	// EndFrame ends the current render pass and submits the command buffer.
	// Does not present the surface; call Present after EndFrame to display the frame.
	//
	// Returns:
	//   - error: an error if the submission failed
	EndFrame() error

	// Present presents the surface to the display and releases the surface texture.
	// Must be called once per frame after EndFrame.
	//
	// Returns:
	//   - error: an error if no frame is in flight
	Present() error

	// Release frees the pipelines' layouts and the backend.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer with the specified backend.
// The WebGPU backend takes its surface from the window; the software backend ignores the window,
// which may be nil, and uses the size given by WithSurfaceSize.
//
// Parameters:
//   - backendType: the type of backend to use
//   - win: the window providing the surface, may be nil for BackendTypeSoftware
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: a new instance of Renderer configured with the specified backend and options
//   - error: an error if the adapter, device or surface could not be acquired
func NewRenderer(backendType RendererBackendType, win window.Window, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:            &sync.Mutex{},
		pipelineCache: make(map[string]pipeline.Pipeline),
		backendType:   backendType,
		clearColor:    wgpu.Color{R: 0.4, G: 0.4, B: 0.4, A: 1.0},
	}

	// Apply options first so config flags (e.g. forceFallbackAdapter) are
	// available before the backend requests a GPU adapter.
	for _, opt := range options {
		opt(r)
	}

	switch backendType {
	case BackendTypeSoftware:
		r.backend = newSoftwareRendererBackend(r.clearColor, r.computeWorkers)
	case BackendTypeWGPU:
		if win == nil {
			return nil, errors.New("wgpu backend needs a window")
		}
		b, err := newWGPURendererBackend(win.SurfaceDescriptor(), r.forceFallbackAdapter, r.clearColor)
		if err != nil {
			return nil, err
		}
		r.backend = b
		r.surfaceWidth, r.surfaceHeight = win.Width(), win.Height()
	default:
		return nil, fmt.Errorf("unknown backend type %d", backendType)
	}

	if r.pendingPresentMode != nil {
		r.backend.SetPresentMode(*r.pendingPresentMode)
	}

	if err := r.backend.ConfigureSurface(r.surfaceWidth, r.surfaceHeight); err != nil {
		r.backend.Release()
		return nil, fmt.Errorf("configure surface: %w", err)
	}
	common.Logger().Info("renderer ready", "backend", backendType.String(), "width", r.surfaceWidth, "height", r.surfaceHeight)
	return r, nil
}

func (r *renderer) Resize(width, height int) error {
	return r.backend.ConfigureSurface(width, height)
}

func (r *renderer) SurfaceSize() (int, int) {
	return r.backend.SurfaceSize()
}

func (r *renderer) SetPresentMode(mode PresentMode) {
	r.backend.SetPresentMode(mode)
}

func (r *renderer) BackendType() RendererBackendType {
	return r.backendType
}

func (r *renderer) Backend() RendererBackend {
	return r.backend
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) Pipelines() map[string]pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]pipeline.Pipeline, len(r.pipelineCache))
	for k, p := range r.pipelineCache {
		out[k] = p
	}
	return out
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pipelines {
		key := p.PipelineKey()
		if _, exists := r.pipelineCache[key]; exists {
			continue
		}
		switch p.Type() {
		case pipeline.PipelineTypeCompute:
			if err := r.backend.RegisterComputePipeline(p); err != nil {
				return fmt.Errorf("register compute pipeline %q: %w", key, err)
			}
		case pipeline.PipelineTypeRender:
			if err := r.backend.RegisterRenderPipeline(p); err != nil {
				return fmt.Errorf("register render pipeline %q: %w", key, err)
			}
		default:
			return fmt.Errorf("register pipeline %q: unknown pipeline type %d", key, p.Type())
		}
		r.pipelineCache[key] = p
		common.Logger().Debug("pipeline registered", "key", key)
	}
	return nil
}

func (r *renderer) BindGroupLayout(pipelineKey string, group int) (*resource.BindGroupLayout, error) {
	r.mu.Lock()
	p, exists := r.pipelineCache[pipelineKey]
	r.mu.Unlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrPipelineNotFound, pipelineKey)
	}
	layout := p.BindGroupLayout(group)
	if layout == nil {
		return nil, fmt.Errorf("pipeline %q has no bind group %d", pipelineKey, group)
	}
	return layout, nil
}

func (r *renderer) CreateTexture(desc common.TextureStagingData) (*resource.Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("texture %q: size %dx%d must be non-zero", desc.Label, desc.Width, desc.Height)
	}
	desc.Format = common.Coalesce(desc.Format, wgpu.TextureFormatRGBA8Unorm)
	desc.Usage = common.Coalesce(desc.Usage, wgpu.TextureUsageTextureBinding|wgpu.TextureUsageCopyDst)
	if desc.Format != wgpu.TextureFormatRGBA8Unorm {
		return nil, fmt.Errorf("texture %q: only RGBA8Unorm textures are supported, got %v", desc.Label, desc.Format)
	}
	if desc.Pixels != nil && len(desc.Pixels) != int(desc.Width*desc.Height*4) {
		return nil, fmt.Errorf("texture %q: %d bytes of pixels for %dx%d", desc.Label, len(desc.Pixels), desc.Width, desc.Height)
	}
	return r.backend.CreateTexture(desc)
}

func (r *renderer) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage, data []byte) (*resource.Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("buffer %q: size must be non-zero", label)
	}
	if uint64(len(data)) > size {
		return nil, fmt.Errorf("buffer %q: %d bytes of data for %d byte buffer", label, len(data), size)
	}
	return r.backend.CreateBuffer(label, size, usage|wgpu.BufferUsageCopyDst, data)
}

func (r *renderer) CreateSampler(config common.SamplerStagingData) (*resource.Sampler, error) {
	return r.backend.CreateSampler(config)
}

func (r *renderer) CreateBindGroup(label string, layout *resource.BindGroupLayout, entries []resource.BindGroupEntry) (*resource.BindGroup, error) {
	if err := validateBindGroup(layout, entries); err != nil {
		return nil, fmt.Errorf("bind group %q: %w", label, err)
	}
	bg, err := r.backend.CreateBindGroup(label, layout, entries)
	if err != nil {
		return nil, fmt.Errorf("bind group %q: %w", label, err)
	}
	return bg, nil
}

func (r *renderer) InitMeshBuffers(provider bind_group_provider.BindGroupProvider, vertexData, indexData []byte, indexCount int) error {
	if len(vertexData) > 0 {
		buf, err := r.backend.CreateBuffer(provider.Label()+" Vertex Buffer", uint64(len(vertexData)), wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst, vertexData)
		if err != nil {
			return err
		}
		provider.SetVertexBuffer(buf)
	}

	if len(indexData) > 0 {
		// Buffer sizes must be a multiple of 4 for queue writes; an odd uint16 count leaves a 2 byte tail.
		size := (uint64(len(indexData)) + 3) &^ 3
		padded := make([]byte, size)
		copy(padded, indexData)
		buf, err := r.backend.CreateBuffer(provider.Label()+" Index Buffer", size, wgpu.BufferUsageIndex|wgpu.BufferUsageCopyDst, padded)
		if err != nil {
			return err
		}
		provider.SetIndexBuffer(buf)
	}

	provider.SetIndexCount(indexCount)
	return nil
}

func (r *renderer) InitBuffers(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error {
	for _, entry := range descriptor.Entries {
		binding := int(entry.Binding)

		var usage wgpu.BufferUsage
		switch entry.Buffer.Type {
		case wgpu.BufferBindingTypeUniform:
			usage = wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
		case wgpu.BufferBindingTypeStorage, wgpu.BufferBindingTypeReadOnlyStorage:
			usage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
		default:
			continue
		}
		if provider.Buffer(binding) != nil {
			continue
		}
		if overrideUsage, ok := bufferUsageOverrides[binding]; ok {
			usage |= overrideUsage
		}

		size := entry.Buffer.MinBindingSize
		if overrideSize, ok := bufferSizeOverrides[binding]; ok {
			size = overrideSize
		}
		if size == 0 {
			return fmt.Errorf("%s: binding %d has no size, pass a size override", provider.Label(), binding)
		}

		buf, err := r.backend.CreateBuffer(fmt.Sprintf("%s Buffer %d", provider.Label(), binding), size, usage, nil)
		if err != nil {
			return err
		}
		provider.SetBuffer(binding, buf)
	}
	return nil
}

func (r *renderer) WriteBuffers(writes []bind_group_provider.BufferWrite) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range writes {
		buf := w.Provider.Buffer(w.Binding)
		if buf == nil {
			return fmt.Errorf("%s: no buffer at binding %d", w.Provider.Label(), w.Binding)
		}
		if err := r.backend.WriteBuffer(buf, w.Offset, w.Data); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) WriteTexture(tex *resource.Texture, pixels []byte) error {
	if tex == nil || tex.Released() {
		return errors.New("write to a nil or released texture")
	}
	if len(pixels) != int(tex.Width()*tex.Height()*4) {
		return fmt.Errorf("texture %q: %d bytes of pixels for %dx%d", tex.Label(), len(pixels), tex.Width(), tex.Height())
	}
	return r.backend.WriteTexture(tex, pixels)
}

func (r *renderer) ReadTexture(tex *resource.Texture) ([]byte, error) {
	if tex == nil || tex.Released() {
		return nil, errors.New("read from a nil or released texture")
	}
	if !tex.Supports(wgpu.TextureUsageCopySrc) {
		return nil, fmt.Errorf("texture %q lacks CopySrc usage", tex.Label())
	}
	return r.backend.ReadTexture(tex)
}

func (r *renderer) BeginComputeFrame() error {
	return r.backend.BeginComputeFrame()
}

func (r *renderer) EndComputeFrame() error {
	return r.backend.EndComputeFrame()
}

func (r *renderer) DispatchCompute(pipelineKey string, bindGroup *resource.BindGroup, workGroupCount [3]uint32) error {
	r.mu.Lock()
	p, exists := r.pipelineCache[pipelineKey]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: compute pipeline %q", ErrPipelineNotFound, pipelineKey)
	}
	if bindGroup == nil || bindGroup.Released() {
		return fmt.Errorf("%w: nil or released bind group for %q", ErrDispatchFailed, pipelineKey)
	}
	return r.backend.DispatchCompute(p, bindGroup, workGroupCount)
}

func (r *renderer) BeginFrame() error {
	return r.backend.BeginFrame()
}

func (r *renderer) DrawCall(pipelineKey string, meshProvider bind_group_provider.BindGroupProvider, instanceCount uint32, bindGroups []*resource.BindGroup) error {
	r.mu.Lock()
	p, exists := r.pipelineCache[pipelineKey]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: render pipeline %q", ErrPipelineNotFound, pipelineKey)
	}
	if meshProvider.VertexBuffer() == nil || meshProvider.IndexBuffer() == nil {
		return fmt.Errorf("%s: mesh buffers not initialized", meshProvider.Label())
	}
	return r.backend.DrawCall(p, meshProvider, instanceCount, bindGroups)
}

func (r *renderer) EndFrame() error {
	return r.backend.EndFrame()
}

func (r *renderer) Present() error {
	return r.backend.Present()
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pipelineCache {
		for _, layout := range p.BindGroupLayouts() {
			layout.Release()
		}
	}
	r.pipelineCache = make(map[string]pipeline.Pipeline)
	r.backend.Release()
}
