package renderer

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"github.com/Carmen-Shannon/oxy-life/common"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// softwareRenderPipeline is what the software backend stores as the pipeline handle of a render
// pipeline: where to find the sampled texture and the view-projection matrix, and where the vertex
// attributes sit.
type softwareRenderPipeline struct {
	textureGroup   int
	textureBinding uint32

	hasMatrix     bool
	matrixGroup   int
	matrixBinding uint32

	stride         uint64
	positionOffset uint64
	uvOffset       uint64
}

// newSoftwareRenderPipeline picks the resources a textured quad draw needs out of the merged layouts:
// the first sampled texture visible to the fragment stage and the first 64 byte uniform visible to
// the vertex stage. Vertex location 0 is the position and location 1 the uv, both float32x2.
func newSoftwareRenderPipeline(key string, vs shader.Shader, descriptors map[int]wgpu.BindGroupLayoutDescriptor) (*softwareRenderPipeline, error) {
	state := &softwareRenderPipeline{textureGroup: -1}
	for g := 0; g < len(descriptors); g++ {
		for _, e := range descriptors[g].Entries {
			if state.textureGroup < 0 && e.Texture.SampleType != wgpu.TextureSampleTypeUndefined && e.Visibility&wgpu.ShaderStageFragment != 0 {
				state.textureGroup, state.textureBinding = g, e.Binding
			}
			if !state.hasMatrix && e.Buffer.Type == wgpu.BufferBindingTypeUniform && e.Buffer.MinBindingSize == 64 && e.Visibility&wgpu.ShaderStageVertex != 0 {
				state.hasMatrix, state.matrixGroup, state.matrixBinding = true, g, e.Binding
			}
		}
	}
	if state.textureGroup < 0 {
		return nil, fmt.Errorf("pipeline %q: the software backend draws textured quads and found no sampled texture", key)
	}

	layouts := vs.VertexLayouts()
	if len(layouts) == 0 {
		return nil, fmt.Errorf("pipeline %q: vertex shader has no vertex input", key)
	}
	state.stride = layouts[0].ArrayStride
	var havePos, haveUV bool
	for _, a := range layouts[0].Attributes {
		if a.Format != wgpu.VertexFormatFloat32x2 {
			continue
		}
		switch a.ShaderLocation {
		case 0:
			state.positionOffset, havePos = a.Offset, true
		case 1:
			state.uvOffset, haveUV = a.Offset, true
		}
	}
	if !havePos || !haveUV {
		return nil, fmt.Errorf("pipeline %q: the software backend needs float32x2 position at location 0 and uv at location 1", key)
	}
	return state, nil
}

// drawTexturedQuad rasterizes the mesh's textured quad onto dst. The first indexed triangle fixes the
// affine map from texel space to framebuffer space; the whole texture is then resampled through it
// with nearest-neighbour filtering, which is exact for a quad under an affine or z-constant
// perspective transform.
func (s *softwareRenderPipeline) drawTexturedQuad(dst *image.RGBA, mesh bind_group_provider.BindGroupProvider, bindGroups []*resource.BindGroup) error {
	if s.textureGroup >= len(bindGroups) {
		return fmt.Errorf("draw needs bind group %d, got %d groups", s.textureGroup, len(bindGroups))
	}
	tex := bindGroups[s.textureGroup].Texture(s.textureBinding)
	if tex == nil {
		return fmt.Errorf("no texture at group %d binding %d", s.textureGroup, s.textureBinding)
	}
	src, ok := tex.Handle().(*image.RGBA)
	if !ok {
		return fmt.Errorf("texture %q is not a software texture", tex.Label())
	}

	matrix := identityMatrix()
	if s.hasMatrix && s.matrixGroup < len(bindGroups) {
		if buf := bindGroups[s.matrixGroup].Buffer(s.matrixBinding); buf != nil {
			if data, ok := buf.Handle().([]byte); ok && len(data) >= 64 {
				copy(matrix[:], common.BytesToFloat32s(data[:64]))
			}
		}
	}

	vertices, vok := mesh.VertexBuffer().Handle().([]byte)
	indices, iok := mesh.IndexBuffer().Handle().([]byte)
	if !vok || !iok {
		return fmt.Errorf("%s: mesh buffers are not software buffers", mesh.Label())
	}
	if mesh.IndexCount() < 3 || len(indices) < 6 {
		return nil
	}

	var srcPts, dstPts [3][2]float64
	w, h := float64(dst.Rect.Dx()), float64(dst.Rect.Dy())
	tw, th := float64(src.Rect.Dx()), float64(src.Rect.Dy())
	for k := 0; k < 3; k++ {
		idx := uint64(binary.LittleEndian.Uint16(indices[k*2:]))
		base := idx * s.stride
		if base+s.stride > uint64(len(vertices)) {
			return fmt.Errorf("%s: index %d is past the vertex buffer", mesh.Label(), idx)
		}
		pos := common.BytesToFloat32s(vertices[base+s.positionOffset : base+s.positionOffset+8])
		uv := common.BytesToFloat32s(vertices[base+s.uvOffset : base+s.uvOffset+8])

		cx, cy, cw := matrix.transform(pos[0], pos[1])
		if cw == 0 {
			return nil
		}
		dstPts[k] = [2]float64{(float64(cx/cw) + 1) / 2 * w, (1 - float64(cy/cw)) / 2 * h}
		srcPts[k] = [2]float64{float64(uv[0]) * tw, float64(uv[1]) * th}
	}

	aff, ok := affineFromTriangles(srcPts, dstPts)
	if !ok {
		return nil
	}
	draw.NearestNeighbor.Transform(dst, aff, src, src.Rect, draw.Src, nil)
	return nil
}

// columnMatrix is a column-major 4x4 matrix as laid out in a WGSL mat4x4<f32> uniform.
type columnMatrix [16]float32

func identityMatrix() columnMatrix {
	return columnMatrix{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
}

// transform multiplies (x, y, 0, 1) by the matrix and returns clip x, y and w.
func (m columnMatrix) transform(x, y float32) (float32, float32, float32) {
	cx := m[0]*x + m[4]*y + m[12]
	cy := m[1]*x + m[5]*y + m[13]
	cw := m[3]*x + m[7]*y + m[15]
	return cx, cy, cw
}

// affineFromTriangles solves for the affine map that takes the three src points onto the three dst
// points. It reports false for a degenerate triangle.
func affineFromTriangles(src, dst [3][2]float64) (f64.Aff3, bool) {
	s1x, s1y := src[1][0]-src[0][0], src[1][1]-src[0][1]
	s2x, s2y := src[2][0]-src[0][0], src[2][1]-src[0][1]
	d1x, d1y := dst[1][0]-dst[0][0], dst[1][1]-dst[0][1]
	d2x, d2y := dst[2][0]-dst[0][0], dst[2][1]-dst[0][1]

	det := s1x*s2y - s2x*s1y
	if math.Abs(det) < 1e-12 {
		return f64.Aff3{}, false
	}

	a := (d1x*s2y - d2x*s1y) / det
	b := (d2x*s1x - d1x*s2x) / det
	d := (d1y*s2y - d2y*s1y) / det
	e := (d2y*s1x - d1y*s2x) / det
	c := dst[0][0] - a*src[0][0] - b*src[0][1]
	f := dst[0][1] - d*src[0][0] - e*src[0][1]
	return f64.Aff3{a, b, c, d, e, f}, true
}
