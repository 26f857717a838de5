package renderer

import (
	"github.com/Carmen-Shannon/oxy-life/common"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/resource"
	"github.com/cogentcore/webgpu/wgpu"
)

// RendererBackendType identifies the backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based backend.
	BackendTypeWGPU RendererBackendType = iota

	// BackendTypeSoftware selects the CPU backend. It has no window surface; frames are rasterized
	// into an in-memory framebuffer and compute entry points run as host kernels.
	BackendTypeSoftware
)

// String returns the flag spelling of the backend type.
func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeSoftware:
		return "software"
	default:
		return "wgpu"
	}
}

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// String returns the flag spelling of the present mode.
func (m PresentMode) String() string {
	switch m {
	case PresentModeUncapped:
		return "uncapped"
	default:
		return "vsync"
	}
}

// RendererBackend is the set of operations every backend implements. The Renderer resolves
// pipeline keys and validates bind groups before calling into it.
type RendererBackend interface {
	// ConfigureSurface (re)configures the swap surface for a new size. A zero size is accepted and
	// suspends frame acquisition until a non-zero size is configured.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	//
	// Returns:
	//   - error: an error if the surface could not be configured
	ConfigureSurface(width, height int) error

	// SurfaceSize returns the size the surface was last configured with.
	//
	// Returns:
	//   - int: the width in pixels
	//   - int: the height in pixels
	SurfaceSize() (int, int)

	// SetPresentMode sets the present mode used by the next ConfigureSurface.
	//
	// Parameters:
	//   - mode: the PresentMode to use
	SetPresentMode(mode PresentMode)

	// RegisterRenderPipeline creates the backend objects for a render pipeline and stores the
	// pipeline handle and its bind group layouts on it.
	//
	// Parameters:
	//   - p: the pipeline with vertex and fragment shaders set
	//
	// Returns:
	//   - error: an error if the pipeline could not be created
	RegisterRenderPipeline(p pipeline.Pipeline) error

	// RegisterComputePipeline creates the backend objects for a compute pipeline and stores the
	// pipeline handle and its bind group layouts on it.
	//
	// Parameters:
	//   - p: the pipeline with a compute shader set
	//
	// Returns:
	//   - error: an error if the pipeline could not be created
	RegisterComputePipeline(p pipeline.Pipeline) error

	// CreateTexture creates a 2D texture and uploads its initial pixels, if any.
	//
	// Parameters:
	//   - desc: the texture staging data
	//
	// Returns:
	//   - *resource.Texture: the texture handle
	//   - error: an error if creation fails
	CreateTexture(desc common.TextureStagingData) (*resource.Texture, error)

	// CreateBuffer creates a buffer of the given size and uploads data to its start, if any.
	//
	// Parameters:
	//   - label: the buffer label
	//   - size: the buffer size in bytes
	//   - usage: the buffer usages; CopyDst is always added
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

	// CreateBindGroup creates a bind group against a layout. Entries are already validated.
	//
	// Parameters:
	//   - label: the bind group label
	//   - layout: the layout to create the group against
	//   - entries: the resources per slot
	//
	// Returns:
	//   - *resource.BindGroup: the bind group handle
	//   - error: an error if creation fails
	CreateBindGroup(label string, layout *resource.BindGroupLayout, entries []resource.BindGroupEntry) (*resource.BindGroup, error)

	// WriteBuffer writes data into a buffer at a byte offset.
	//
	// Parameters:
	//   - buf: the destination buffer
	//   - offset: the byte offset
	//   - data: the bytes to write
	//
	// Returns:
	//   - error: an error if the write is out of range or the buffer was released
	WriteBuffer(buf *resource.Buffer, offset uint64, data []byte) error

	// WriteTexture replaces the whole contents of a texture with tightly packed RGBA8 pixels.
	//
	// Parameters:
	//   - tex: the destination texture
	//   - pixels: width*height*4 bytes
	//
	// Returns:
	//   - error: an error if the payload size does not match the texture
	WriteTexture(tex *resource.Texture, pixels []byte) error

	// ReadTexture copies the contents of a texture back to the host as tightly packed RGBA8 pixels.
	// It waits for every submission that precedes it.
	//
	// Parameters:
	//   - tex: the texture to read; it must support CopySrc
	//
	// Returns:
	//   - []byte: width*height*4 bytes
	//   - error: an error if the copy or the mapping fails
	ReadTexture(tex *resource.Texture) ([]byte, error)

	// BeginComputeFrame starts batching compute dispatches into one submission.
	//
	// Returns:
	//   - error: an error if the command encoder could not be created
	BeginComputeFrame() error

	// DispatchCompute encodes one dispatch within the current compute frame.
	//
	// Parameters:
	//   - p: the registered compute pipeline
	//   - bindGroup: the bind group set at group 0
	//   - workGroupCount: the number of workgroups in x, y and z
	//
	// Returns:
	//   - error: an error wrapping ErrDispatchFailed if the dispatch could not be encoded
	DispatchCompute(p pipeline.Pipeline, bindGroup *resource.BindGroup, workGroupCount [3]uint32) error

	// EndComputeFrame submits the batched dispatches.
	//
	// Returns:
	//   - error: an error wrapping ErrDeviceLost or ErrDispatchFailed if the submission failed
	EndComputeFrame() error

	// BeginFrame acquires the next surface texture and begins the main render pass, clearing it.
	//
	// Returns:
	//   - error: an error wrapping ErrSurfaceLost or ErrNoFrame if no surface texture is available
	BeginFrame() error

	// DrawCall encodes one indexed draw within the current render pass.
	//
	// Parameters:
	//   - p: the registered render pipeline
	//   - meshProvider: the provider holding vertex and index buffers
	//   - instanceCount: the number of instances to draw
	//   - bindGroups: bind groups set at groups 0..n-1
	//
	// Returns:
	//   - error: an error wrapping ErrNoFrame if no frame is in flight
	DrawCall(p pipeline.Pipeline, meshProvider bind_group_provider.BindGroupProvider, instanceCount uint32, bindGroups []*resource.BindGroup) error

	// EndFrame ends the render pass and submits it.
	//
	// Returns:
	//   - error: an error wrapping ErrDeviceLost if the submission failed
	EndFrame() error

	// Present presents the acquired surface texture and releases it.
	//
	// Returns:
	//   - error: an error wrapping ErrNoFrame if no frame is in flight
	Present() error

	// Release frees the device and everything the backend created for itself.
	Release()
}

// Fault identifies a failure a FaultInjector can make a backend report.
type Fault int

const (
	// FaultSurfaceLost makes BeginFrame report ErrSurfaceLost until the next successful ConfigureSurface.
	FaultSurfaceLost Fault = iota + 1

	// FaultReconfigure makes ConfigureSurface fail while set.
	FaultReconfigure

	// FaultDeviceLost makes EndComputeFrame report ErrDeviceLost while set.
	FaultDeviceLost

	// FaultDispatch makes DispatchCompute report ErrDispatchFailed while set.
	FaultDispatch

	// FaultDraw makes DrawCall report ErrDrawFailed while set.
	FaultDraw
)

// FaultInjector is implemented by backends that can simulate device and surface failures.
type FaultInjector interface {
	// InjectFault arms a fault.
	InjectFault(f Fault)

	// ClearFault disarms a fault.
	ClearFault(f Fault)
}
