package pipeline

import (
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// PipelineType identifies whether a pipeline is a compute pipeline or a render pipeline.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline with a single compute shader entry point.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeRender indicates a render pipeline with vertex and fragment shader entry points.
	PipelineTypeRender
)

// KernelBindings gives a host kernel access to the resources of the bind group it was dispatched with.
// Texel coordinates outside a texture load zero and stores outside it are dropped.
type KernelBindings interface {
	// TextureSize returns the size of the texture bound at a slot, or zero if none is bound.
	TextureSize(binding uint32) (width, height int)

	// Load reads one RGBA8 texel of the texture bound at a slot.
	Load(binding uint32, x, y int) [4]uint8

	// Store writes one RGBA8 texel of the storage texture bound at a slot.
	Store(binding uint32, x, y int, texel [4]uint8)

	// Uniform returns the contents of the buffer bound at a slot.
	Uniform(binding uint32) []byte
}

// ComputeKernel executes one invocation of a compute entry point on the host. Backends without a
// shader compiler call it once per global invocation id, workgroups possibly in parallel, so a kernel
// must only write the texels its own invocation owns.
type ComputeKernel func(b KernelBindings, globalID [3]uint32)

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	pipelineType PipelineType
	pipelineKey  string

	vertexShader, fragmentShader, computeShader shader.Shader

	// handle is the backend pipeline object, set during registration.
	handle any
	// bindGroupLayouts holds the layouts created for the pipeline layout, keyed by group index.
	bindGroupLayouts map[int]*resource.BindGroupLayout
	// kernel is the host implementation of the compute entry point.
	kernel ComputeKernel

	// Render state; compute pipelines ignore these.

	blendEnabled bool
	cullMode     wgpu.CullMode
	topology     wgpu.PrimitiveTopology
	frontFace    wgpu.FrontFace
	writeMask    wgpu.ColorWriteMask
	blendState   *wgpu.BlendState
}

// Pipeline defines the interface for a GPU pipeline, encapsulating either a render pipeline
// (vertex + fragment shaders) or a compute pipeline (compute shader) together with the
// configuration used to create it and the bind group layouts created for it.
type Pipeline interface {
	// Type returns the type of the pipeline
	//
	// Returns:
	//   - PipelineType: the type of the pipeline (render or compute)
	Type() PipelineType

	// PipelineKey returns the unique key associated with this pipeline, used for caching and lookups.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// Shader retrieves the shader associated with the specified type if it exists, nil otherwise.
	//
	// Parameters:
	//   - shaderType: the type of shader to retrieve (vertex, fragment, or compute)
	//
	// Returns:
	//   - shader.Shader: the shader associated with the specified type, or nil if not set
	Shader(shaderType shader.ShaderType) shader.Shader

	// Pipeline returns the backend pipeline object, e.g. *wgpu.RenderPipeline or *wgpu.ComputePipeline.
	// The caller is responsible for type asserting it to the type its backend created.
	//
	// Returns:
	//   - any: the backend pipeline object, or nil before registration
	Pipeline() any

	// SetPipeline stores the backend pipeline object. Called by the backend during registration.
	//
	// Parameters:
	//   - handle: the backend pipeline object
	SetPipeline(handle any)

	// BindGroupLayout returns the layout created for a bind group index during registration.
	//
	// Parameters:
	//   - group: the @group index
	//
	// Returns:
	//   - *resource.BindGroupLayout: the layout, or nil if the pipeline has no such group or is not registered
	BindGroupLayout(group int) *resource.BindGroupLayout

	// BindGroupLayouts returns every layout created for this pipeline, keyed by group index.
	//
	// Returns:
	//   - map[int]*resource.BindGroupLayout: the layouts, nil before registration
	BindGroupLayouts() map[int]*resource.BindGroupLayout

	// SetBindGroupLayouts stores the layouts created for this pipeline. Called by the backend during registration.
	//
	// Parameters:
	//   - layouts: the layouts keyed by group index
	SetBindGroupLayouts(layouts map[int]*resource.BindGroupLayout)

	// Kernel returns the host implementation of the compute entry point, or nil if none was provided.
	//
	// Returns:
	//   - ComputeKernel: the host kernel
	Kernel() ComputeKernel

	// BlendEnabled returns whether blending is enabled for this pipeline.
	//
	// Returns:
	//   - bool: true if blending is enabled, false otherwise
	BlendEnabled() bool

	// BlendState returns the blend state configured for this pipeline.
	//
	// Returns:
	//   - *wgpu.BlendState: the blend state used when blending is enabled
	BlendState() *wgpu.BlendState

	// CullMode returns the cull mode configured for this pipeline.
	//
	// Returns:
	//   - wgpu.CullMode: the cull mode for this pipeline
	CullMode() wgpu.CullMode

	// Topology returns the primitive topology configured for this pipeline.
	//
	// Returns:
	//   - wgpu.PrimitiveTopology: the primitive topology for this pipeline
	Topology() wgpu.PrimitiveTopology

	// FrontFace returns the front face winding order configured for this pipeline.
	//
	// Returns:
	//   - wgpu.FrontFace: the front face winding order for this pipeline
	FrontFace() wgpu.FrontFace

	// WriteMask returns the color write mask configured for this pipeline.
	//
	// Returns:
	//   - wgpu.ColorWriteMask: the color write mask for this pipeline
	WriteMask() wgpu.ColorWriteMask
}

var _ Pipeline = &pipeline{}

// NewPipeline is the entry point to create a new Pipeline interface. A PipelineType must be specified and provided upon creation.
//
// Parameters:
//   - pipelineKey: the unique key for this pipeline
//   - pipelineType: the type of pipeline to create (render or compute)
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance with the specified type and configuration
func NewPipeline(pipelineKey string, pipelineType PipelineType, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey:  pipelineKey,
		pipelineType: pipelineType,
		blendEnabled: false,
		cullMode:     wgpu.CullModeNone,
		topology:     wgpu.PrimitiveTopologyTriangleList,
		frontFace:    wgpu.FrontFaceCCW,
		writeMask:    wgpu.ColorWriteMaskAll,
		blendState: &wgpu.BlendState{
			Color: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorOne,
				DstFactor: wgpu.BlendFactorZero,
				Operation: wgpu.BlendOperationAdd,
			},
			Alpha: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorOne,
				DstFactor: wgpu.BlendFactorZero,
				Operation: wgpu.BlendOperationAdd,
			},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Shader(shaderType shader.ShaderType) shader.Shader {
	switch shaderType {
	case shader.ShaderTypeVertex:
		return p.vertexShader
	case shader.ShaderTypeFragment:
		return p.fragmentShader
	case shader.ShaderTypeCompute:
		return p.computeShader
	default:
		return nil
	}
}

func (p *pipeline) Pipeline() any {
	return p.handle
}

func (p *pipeline) SetPipeline(handle any) {
	p.handle = handle
}

func (p *pipeline) BindGroupLayout(group int) *resource.BindGroupLayout {
	return p.bindGroupLayouts[group]
}

func (p *pipeline) BindGroupLayouts() map[int]*resource.BindGroupLayout {
	return p.bindGroupLayouts
}

func (p *pipeline) SetBindGroupLayouts(layouts map[int]*resource.BindGroupLayout) {
	p.bindGroupLayouts = layouts
}

func (p *pipeline) Kernel() ComputeKernel {
	return p.kernel
}

func (p *pipeline) BlendEnabled() bool {
	return p.blendEnabled
}

func (p *pipeline) BlendState() *wgpu.BlendState {
	return p.blendState
}

func (p *pipeline) CullMode() wgpu.CullMode {
	return p.cullMode
}

func (p *pipeline) Topology() wgpu.PrimitiveTopology {
	return p.topology
}

func (p *pipeline) FrontFace() wgpu.FrontFace {
	return p.frontFace
}

func (p *pipeline) WriteMask() wgpu.ColorWriteMask {
	return p.writeMask
}
