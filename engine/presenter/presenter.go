// Package presenter draws the current generation to the swap surface as a textured quad.
package presenter

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
	"github.com/cogentcore/webgpu/wgpu"
)

// Source is the WGSL of the quad render pipeline.
//
//go:embed quad.wgsl
var Source string

const (
	// PipelineKey is the key the quad render pipeline is registered under.
	PipelineKey = "quad"

	// Bindings of group 0.
	BindingGrid    = 0
	BindingSampler = 1
	BindingCamera  = 2
)

var identity = [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// Vertex is one quad corner: clip-plane position and texture coordinate.
type Vertex struct {
	Position [2]float32
	UV       [2]float32
}

// Geometry is an indexed triangle list.
type Geometry struct {
	Vertices []Vertex
	Indices  []uint16
}

// QuadGeometry returns the grid quad: corners at +-1 with uv (0, 0) top-left, drawn as two triangles.
//
// Returns:
//   - Geometry: 4 vertices and 6 indices
func QuadGeometry() Geometry {
	return Geometry{
		Vertices: []Vertex{
			{Position: [2]float32{-1, 1}, UV: [2]float32{0, 0}},
			{Position: [2]float32{1, 1}, UV: [2]float32{1, 0}},
			{Position: [2]float32{1, -1}, UV: [2]float32{1, 1}},
			{Position: [2]float32{-1, -1}, UV: [2]float32{0, 1}},
		},
		Indices: []uint16{0, 1, 2, 0, 2, 3},
	}
}

// vertexBytes views the vertices as the float32x2 position, float32x2 uv layout of quad.wgsl.
func (g Geometry) vertexBytes() []byte {
	return common.SliceToBytes(g.Vertices)
}

type presenter struct {
	r renderer.Renderer

	geometry Geometry
	layout   *resource.BindGroupLayout
	mesh     bind_group_provider.BindGroupProvider
	uniforms bind_group_provider.BindGroupProvider
}

// Presenter owns the quad render pipeline, the quad geometry and the view-projection uniform.
type Presenter interface {
	// UpdateCamera writes the view-projection matrix used by the next Render. No validation is done.
	//
	// Parameters:
	//   - viewProjection: the column-major matrix
	//
	// Returns:
	//   - error: an error if the uniform write fails
	UpdateCamera(viewProjection [16]float32) error

	// Render draws the generation Current(p) holds and presents the frame. Next(p) is never bound.
	//
	// Parameters:
	//   - buffers: the grid buffers
	//   - p: the parity marking the current buffer
	//
	// Returns:
	//   - error: an error wrapping renderer.ErrSurfaceLost if the surface must be reconfigured,
	//     renderer.ErrNoFrame if the surface has zero size, or any draw error
	Render(buffers grid.GridBuffers, p grid.Parity) error

	// Geometry returns the geometry uploaded at construction.
	//
	// Returns:
	//   - Geometry: the quad geometry
	Geometry() Geometry

	// Layout returns the group 0 layout of the quad pipeline.
	//
	// Returns:
	//   - *resource.BindGroupLayout: the layout
	Layout() *resource.BindGroupLayout

	// CameraBuffer returns the 64 byte view-projection uniform.
	//
	// Returns:
	//   - *resource.Buffer: the uniform buffer
	CameraBuffer() *resource.Buffer

	// Release frees the mesh buffers and the uniform.
	Release()
}

var _ Presenter = &presenter{}

// New registers the quad pipeline with replace blending, no culling and no depth test, uploads the
// geometry and creates the view-projection uniform, initialised to identity.
//
// Parameters:
//   - r: the renderer
//   - geometry: the quad to draw, usually QuadGeometry()
//
// Returns:
//   - Presenter: the presenter
//   - error: an error if the shaders, pipeline or buffers could not be created
func New(r renderer.Renderer, geometry Geometry) (Presenter, error) {
	if len(geometry.Vertices) == 0 || len(geometry.Indices) < 3 {
		return nil, errors.New("presenter: geometry needs vertices and at least one triangle")
	}

	vs, err := shader.NewShaderFromSource(PipelineKey+".vs", shader.ShaderTypeVertex, Source)
	if err != nil {
		return nil, err
	}
	fs, err := shader.NewShaderFromSource(PipelineKey+".fs", shader.ShaderTypeFragment, Source)
	if err != nil {
		return nil, err
	}
	p := pipeline.NewPipeline(PipelineKey, pipeline.PipelineTypeRender,
		pipeline.WithVertexShader(vs),
		pipeline.WithFragmentShader(fs),
		pipeline.WithBlendEnabled(false),
		// Both windings are drawn so a flipped camera still shows the grid.
		pipeline.WithCullMode(wgpu.CullModeNone),
		pipeline.WithFrontFace(wgpu.FrontFaceCCW),
		pipeline.WithTopology(wgpu.PrimitiveTopologyTriangleList),
		pipeline.WithWriteMask(wgpu.ColorWriteMaskAll),
	)
	if err := r.RegisterPipelines(p); err != nil {
		return nil, err
	}
	layout, err := r.BindGroupLayout(PipelineKey, 0)
	if err != nil {
		return nil, err
	}

	pr := &presenter{
		r:        r,
		geometry: geometry,
		layout:   layout,
		mesh:     bind_group_provider.NewBindGroupProvider("Quad"),
		uniforms: bind_group_provider.NewBindGroupProvider("Camera"),
	}
	if err := r.InitMeshBuffers(pr.mesh, geometry.vertexBytes(), common.Uint16sToBytes(geometry.Indices...), len(geometry.Indices)); err != nil {
		pr.Release()
		return nil, fmt.Errorf("upload quad: %w", err)
	}
	if err := r.InitBuffers(pr.uniforms, layout.Descriptor(), nil, nil); err != nil {
		pr.Release()
		return nil, fmt.Errorf("create camera uniform: %w", err)
	}
	if err := pr.UpdateCamera(identity); err != nil {
		pr.Release()
		return nil, err
	}
	return pr, nil
}

// NewBindGroup builds the group 0 bind group of the quad pipeline from the buffer to display, the
// grid sampler and the camera uniform.
//
// Parameters:
//   - r: the renderer that creates the bind group
//   - layout: the quad group 0 layout
//   - current: the buffer holding the generation to display
//   - sampler: the grid sampler
//   - camera: the view-projection uniform
//
// Returns:
//   - *resource.BindGroup: the bind group
//   - error: an error wrapping renderer.ErrInvalidBindGroup if a resource does not fit its slot
func NewBindGroup(r renderer.Renderer, layout *resource.BindGroupLayout, current *resource.Texture, sampler *resource.Sampler, camera *resource.Buffer) (*resource.BindGroup, error) {
	return r.CreateBindGroup("Quad", layout, []resource.BindGroupEntry{
		{Binding: BindingGrid, Texture: current},
		{Binding: BindingSampler, Sampler: sampler},
		{Binding: BindingCamera, Buffer: camera},
	})
}

func (pr *presenter) UpdateCamera(viewProjection [16]float32) error {
	return pr.r.WriteBuffers([]bind_group_provider.BufferWrite{{
		Provider: pr.uniforms,
		Binding:  BindingCamera,
		Data:     common.Float32sToBytes(viewProjection[:]...),
	}})
}

func (pr *presenter) Render(buffers grid.GridBuffers, p grid.Parity) error {
	bg, err := NewBindGroup(pr.r, pr.layout, buffers.Current(p), buffers.Sampler(), pr.CameraBuffer())
	if err != nil {
		return err
	}
	defer bg.Release()

	if err := pr.r.BeginFrame(); err != nil {
		return err
	}
	drawErr := pr.r.DrawCall(PipelineKey, pr.mesh, 1, []*resource.BindGroup{bg})
	// The frame is ended and presented even after a failed draw so the surface texture is given back.
	if err := pr.r.EndFrame(); err != nil {
		return errors.Join(drawErr, err)
	}
	if err := pr.r.Present(); err != nil {
		return errors.Join(drawErr, err)
	}
	return drawErr
}

func (pr *presenter) Geometry() Geometry {
	return pr.geometry
}

func (pr *presenter) Layout() *resource.BindGroupLayout {
	return pr.layout
}

func (pr *presenter) CameraBuffer() *resource.Buffer {
	return pr.uniforms.Buffer(BindingCamera)
}

func (pr *presenter) Release() {
	pr.mesh.Release()
	pr.uniforms.Release()
}
