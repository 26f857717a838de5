package renderer

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/Carmen-Shannon/oxy-life/common"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

const copySrc = `
@group(0) @binding(0) var src: texture_2d<f32>;
@group(0) @binding(1) var dst: texture_storage_2d<rgba8unorm, write>;
@group(0) @binding(2) var<uniform> dims: vec4<f32>;

@compute @workgroup_size(16, 16)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
	if (f32(id.x) >= dims.x || f32(id.y) >= dims.y) {
		return;
	}
	textureStore(dst, vec2<i32>(id.xy), textureLoad(src, vec2<i32>(id.xy), 0));
}
`

const quadSrc = `
struct VertexInput {
	@location(0) position: vec2<f32>,
	@location(1) uv: vec2<f32>,
};

struct VertexOutput {
	@builtin(position) clip: vec4<f32>,
	@location(0) uv: vec2<f32>,
};

@group(0) @binding(0) var grid: texture_2d<f32>;
@group(0) @binding(1) var grid_sampler: sampler;
@group(0) @binding(2) var<uniform> view_proj: mat4x4<f32>;

@vertex
fn vs_main(in: VertexInput) -> VertexOutput {
	var out: VertexOutput;
	out.clip = view_proj * vec4<f32>(in.position, 0.0, 1.0);
	out.uv = in.uv;
	return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
	return textureSample(grid, grid_sampler, in.uv);
}
`

const gridUsage = wgpu.TextureUsageTextureBinding | wgpu.TextureUsageStorageBinding | wgpu.TextureUsageCopyDst | wgpu.TextureUsageCopySrc

// copyKernel mirrors copySrc on the host.
func copyKernel(b pipeline.KernelBindings, id [3]uint32) {
	dims := common.BytesToFloat32s(b.Uniform(2))
	x, y := int(id[0]), int(id[1])
	if float32(x) >= dims[0] || float32(y) >= dims[1] {
		return
	}
	b.Store(1, x, y, b.Load(0, x, y))
}

func newTestRenderer(t *testing.T, width, height int) Renderer {
	t.Helper()
	r, err := NewRenderer(BackendTypeSoftware, nil, WithSurfaceSize(width, height), WithComputeWorkers(2))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Release)
	return r
}

func registerCopy(t *testing.T, r Renderer) *resource.BindGroupLayout {
	t.Helper()
	cs, err := shader.NewShaderFromSource("copy", shader.ShaderTypeCompute, copySrc)
	if err != nil {
		t.Fatal(err)
	}
	p := pipeline.NewPipeline("copy", pipeline.PipelineTypeCompute, pipeline.WithComputeShader(cs), pipeline.WithComputeKernel(copyKernel))
	if err := r.RegisterPipelines(p); err != nil {
		t.Fatalf("RegisterPipelines: %v", err)
	}
	layout, err := r.BindGroupLayout("copy", 0)
	if err != nil {
		t.Fatal(err)
	}
	return layout
}

func registerQuad(t *testing.T, r Renderer) *resource.BindGroupLayout {
	t.Helper()
	vs, err := shader.NewShaderFromSource("quad.vs", shader.ShaderTypeVertex, quadSrc)
	if err != nil {
		t.Fatal(err)
	}
	fs, err := shader.NewShaderFromSource("quad.fs", shader.ShaderTypeFragment, quadSrc)
	if err != nil {
		t.Fatal(err)
	}
	p := pipeline.NewPipeline("quad", pipeline.PipelineTypeRender, pipeline.WithVertexShader(vs), pipeline.WithFragmentShader(fs))
	if err := r.RegisterPipelines(p); err != nil {
		t.Fatalf("RegisterPipelines: %v", err)
	}
	layout, err := r.BindGroupLayout("quad", 0)
	if err != nil {
		t.Fatal(err)
	}
	return layout
}

func mustTexture(t *testing.T, r Renderer, label string, w, h uint32, pixels []byte) *resource.Texture {
	t.Helper()
	tex, err := r.CreateTexture(common.TextureStagingData{Label: label, Width: w, Height: h, Pixels: pixels, Usage: gridUsage})
	if err != nil {
		t.Fatalf("CreateTexture(%s): %v", label, err)
	}
	return tex
}

func mustUniform(t *testing.T, r Renderer, label string, data []byte) *resource.Buffer {
	t.Helper()
	buf, err := r.CreateBuffer(label, uint64(len(data)), wgpu.BufferUsageUniform, data)
	if err != nil {
		t.Fatalf("CreateBuffer(%s): %v", label, err)
	}
	return buf
}

// patternPixels returns w*h RGBA texels where each texel encodes its own coordinates.
func patternPixels(w, h int) []byte {
	pix := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			pix[i], pix[i+1], pix[i+2], pix[i+3] = byte(x), byte(y), byte(x^y), 255
		}
	}
	return pix
}

func TestValidateBindGroup(t *testing.T) {
	r := newTestRenderer(t, 8, 8)
	layout := registerCopy(t, r)

	a := mustTexture(t, r, "a", 4, 4, nil)
	b := mustTexture(t, r, "b", 4, 4, nil)
	dims := mustUniform(t, r, "dims", common.Float32sToBytes(4, 4, 0, 0))
	sampledOnly, err := r.CreateTexture(common.TextureStagingData{Label: "sampled", Width: 4, Height: 4})
	if err != nil {
		t.Fatal(err)
	}
	released := mustTexture(t, r, "released", 4, 4, nil)
	released.Release()
	small, err := r.CreateBuffer("small", 8, wgpu.BufferUsageUniform, nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		entries []resource.BindGroupEntry
		ok      bool
	}{
		{
			name:    "valid",
			entries: []resource.BindGroupEntry{{Binding: 0, Texture: a}, {Binding: 1, Texture: b}, {Binding: 2, Buffer: dims}},
			ok:      true,
		},
		{
			name:    "aliased source and destination",
			entries: []resource.BindGroupEntry{{Binding: 0, Texture: a}, {Binding: 1, Texture: a}, {Binding: 2, Buffer: dims}},
		},
		{
			name:    "missing uniform",
			entries: []resource.BindGroupEntry{{Binding: 0, Texture: a}, {Binding: 1, Texture: b}},
		},
		{
			name:    "unknown binding",
			entries: []resource.BindGroupEntry{{Binding: 0, Texture: a}, {Binding: 1, Texture: b}, {Binding: 2, Buffer: dims}, {Binding: 3, Buffer: dims}},
		},
		{
			name:    "duplicate binding",
			entries: []resource.BindGroupEntry{{Binding: 0, Texture: a}, {Binding: 0, Texture: b}, {Binding: 1, Texture: b}, {Binding: 2, Buffer: dims}},
		},
		{
			name:    "destination without storage usage",
			entries: []resource.BindGroupEntry{{Binding: 0, Texture: a}, {Binding: 1, Texture: sampledOnly}, {Binding: 2, Buffer: dims}},
		},
		{
			name:    "released texture",
			entries: []resource.BindGroupEntry{{Binding: 0, Texture: released}, {Binding: 1, Texture: b}, {Binding: 2, Buffer: dims}},
		},
		{
			name:    "uniform too small",
			entries: []resource.BindGroupEntry{{Binding: 0, Texture: a}, {Binding: 1, Texture: b}, {Binding: 2, Buffer: small}},
		},
		{
			name:    "buffer where a texture belongs",
			entries: []resource.BindGroupEntry{{Binding: 0, Buffer: dims}, {Binding: 1, Texture: b}, {Binding: 2, Buffer: dims}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bg, err := r.CreateBindGroup(tt.name, layout, tt.entries)
			if tt.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				bg.Release()
				return
			}
			if !errors.Is(err, ErrInvalidBindGroup) {
				t.Fatalf("err = %v, want ErrInvalidBindGroup", err)
			}
		})
	}
}

func TestSoftwareComputeCopy(t *testing.T) {
	const w, h = 20, 37
	r := newTestRenderer(t, 8, 8)
	layout := registerCopy(t, r)

	src := patternPixels(w, h)
	a := mustTexture(t, r, "a", w, h, src)
	b := mustTexture(t, r, "b", w, h, nil)
	dims := mustUniform(t, r, "dims", common.Float32sToBytes(w, h, 0, 0))

	bg, err := r.CreateBindGroup("copy", layout, []resource.BindGroupEntry{{Binding: 0, Texture: a}, {Binding: 1, Texture: b}, {Binding: 2, Buffer: dims}})
	if err != nil {
		t.Fatal(err)
	}
	defer bg.Release()

	if err := r.BeginComputeFrame(); err != nil {
		t.Fatal(err)
	}
	wg := [3]uint32{common.CeilDiv(w, 16), common.CeilDiv(h, 16), 1}
	if err := r.DispatchCompute("copy", bg, wg); err != nil {
		t.Fatalf("DispatchCompute: %v", err)
	}
	if err := r.EndComputeFrame(); err != nil {
		t.Fatalf("EndComputeFrame: %v", err)
	}

	got, err := r.ReadTexture(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, src) {
		t.Fatal("destination does not match source after copy dispatch")
	}
}

func TestDispatchUnknownPipeline(t *testing.T) {
	r := newTestRenderer(t, 8, 8)
	if err := r.DispatchCompute("nope", nil, [3]uint32{1, 1, 1}); !errors.Is(err, ErrPipelineNotFound) {
		t.Fatalf("err = %v, want ErrPipelineNotFound", err)
	}
}

func TestRegisterComputeWithoutKernel(t *testing.T) {
	r := newTestRenderer(t, 8, 8)
	cs, err := shader.NewShaderFromSource("copy", shader.ShaderTypeCompute, copySrc)
	if err != nil {
		t.Fatal(err)
	}
	p := pipeline.NewPipeline("copy", pipeline.PipelineTypeCompute, pipeline.WithComputeShader(cs))
	if err := r.RegisterPipelines(p); err == nil {
		t.Fatal("expected the software backend to refuse a compute pipeline without a host kernel")
	}
	if r.Pipeline("copy") != nil {
		t.Fatal("failed pipeline was cached")
	}
}

func drawQuad(t *testing.T, r Renderer, tex *resource.Texture, matrix []float32) *image.RGBA {
	t.Helper()
	layout := registerQuad(t, r)

	mesh := bind_group_provider.NewBindGroupProvider("quad")
	vertices := common.Float32sToBytes(
		-1, 1, 0, 0,
		1, 1, 1, 0,
		1, -1, 1, 1,
		-1, -1, 0, 1,
	)
	if err := r.InitMeshBuffers(mesh, vertices, common.Uint16sToBytes(0, 1, 2, 0, 2, 3), 6); err != nil {
		t.Fatal(err)
	}
	sampler, err := r.CreateSampler(common.NearestClampSampler("grid"))
	if err != nil {
		t.Fatal(err)
	}
	camera := mustUniform(t, r, "camera", common.Float32sToBytes(matrix...))

	bg, err := r.CreateBindGroup("quad", layout, []resource.BindGroupEntry{{Binding: 0, Texture: tex}, {Binding: 1, Sampler: sampler}, {Binding: 2, Buffer: camera}})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.DrawCall("quad", mesh, 1, []*resource.BindGroup{bg}); err != nil {
		t.Fatalf("DrawCall: %v", err)
	}
	if err := r.EndFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.Present(); err != nil {
		t.Fatal(err)
	}
	return r.Backend().(SoftwareBackend).Framebuffer()
}

func TestSoftwareDrawFullScreenQuad(t *testing.T) {
	r := newTestRenderer(t, 4, 4)
	// 2x2 texture: white, black / black, white
	pix := []byte{
		255, 255, 255, 255, 0, 0, 0, 255,
		0, 0, 0, 255, 255, 255, 255, 255,
	}
	tex := mustTexture(t, r, "grid", 2, 2, pix)
	fb := drawQuad(t, r, tex, []float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1})
	if fb == nil {
		t.Fatal("no frame presented")
	}

	white := color.RGBA{255, 255, 255, 255}
	black := color.RGBA{0, 0, 0, 255}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			want := black
			if (x < 2) == (y < 2) {
				want = white
			}
			if got := fb.RGBAAt(x, y); got != want {
				t.Errorf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestSoftwareDrawScaledQuadKeepsClearColor(t *testing.T) {
	r := newTestRenderer(t, 8, 8)
	tex := mustTexture(t, r, "grid", 1, 1, []byte{255, 0, 0, 255})
	// scale by one half: the quad covers the centre 4x4 pixels
	fb := drawQuad(t, r, tex, []float32{0.5, 0, 0, 0, 0, 0.5, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1})

	clear := color.RGBA{102, 102, 102, 255}
	if got := fb.RGBAAt(0, 0); got != clear {
		t.Errorf("corner = %v, want clear color %v", got, clear)
	}
	if got := fb.RGBAAt(4, 4); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("centre = %v, want red", got)
	}
}

func TestClearColorOption(t *testing.T) {
	r, err := NewRenderer(BackendTypeSoftware, nil, WithSurfaceSize(2, 2), WithClearColor(wgpu.Color{R: 1, G: 0, B: 0, A: 1}))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Release()
	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.EndFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.Present(); err != nil {
		t.Fatal(err)
	}
	if got := r.Backend().(SoftwareBackend).Framebuffer().RGBAAt(1, 1); got != (color.RGBA{255, 0, 0, 255}) {
		t.Fatalf("pixel = %v, want the clear color", got)
	}
}

func TestFrameProtocol(t *testing.T) {
	r := newTestRenderer(t, 4, 4)
	if err := r.Present(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("Present without frame: err = %v, want ErrNoFrame", err)
	}
	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.BeginFrame(); err == nil {
		t.Fatal("second BeginFrame without Present should fail")
	}
	if err := r.EndFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.Present(); err != nil {
		t.Fatal(err)
	}
	if n := r.Backend().(SoftwareBackend).PresentCount(); n != 1 {
		t.Fatalf("PresentCount = %d, want 1", n)
	}

	if err := r.Resize(0, 0); err != nil {
		t.Fatal(err)
	}
	if err := r.BeginFrame(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("BeginFrame on zero surface: err = %v, want ErrNoFrame", err)
	}
}

func TestFaultInjection(t *testing.T) {
	r := newTestRenderer(t, 4, 4)
	faults := r.Backend().(FaultInjector)

	faults.InjectFault(FaultSurfaceLost)
	if err := r.BeginFrame(); !errors.Is(err, ErrSurfaceLost) {
		t.Fatalf("BeginFrame: err = %v, want ErrSurfaceLost", err)
	}
	if err := r.Resize(4, 4); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if err := r.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame after reconfigure: %v", err)
	}
	if err := r.EndFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.Present(); err != nil {
		t.Fatal(err)
	}

	faults.InjectFault(FaultReconfigure)
	if err := r.Resize(4, 4); err == nil {
		t.Fatal("Resize should fail while FaultReconfigure is set")
	}
	faults.ClearFault(FaultReconfigure)

	layout := registerCopy(t, r)
	a := mustTexture(t, r, "a", 4, 4, nil)
	b := mustTexture(t, r, "b", 4, 4, nil)
	dims := mustUniform(t, r, "dims", common.Float32sToBytes(4, 4, 0, 0))
	bg, err := r.CreateBindGroup("copy", layout, []resource.BindGroupEntry{{Binding: 0, Texture: a}, {Binding: 1, Texture: b}, {Binding: 2, Buffer: dims}})
	if err != nil {
		t.Fatal(err)
	}

	faults.InjectFault(FaultDispatch)
	if err := r.BeginComputeFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.DispatchCompute("copy", bg, [3]uint32{1, 1, 1}); !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("DispatchCompute: err = %v, want ErrDispatchFailed", err)
	}
	if err := r.EndComputeFrame(); err != nil {
		t.Fatal(err)
	}
	faults.ClearFault(FaultDispatch)

	faults.InjectFault(FaultDeviceLost)
	if err := r.BeginComputeFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.DispatchCompute("copy", bg, [3]uint32{1, 1, 1}); err != nil {
		t.Fatal(err)
	}
	if err := r.EndComputeFrame(); !errors.Is(err, ErrDeviceLost) {
		t.Fatalf("EndComputeFrame: err = %v, want ErrDeviceLost", err)
	}
}

func TestDrawFaultKeepsFrameProtocol(t *testing.T) {
	r := newTestRenderer(t, 4, 4)
	registerQuad(t, r)
	mesh := bind_group_provider.NewBindGroupProvider("quad")
	vertices := common.Float32sToBytes(-1, 1, 0, 0, 1, 1, 1, 0, 1, -1, 1, 1, -1, -1, 0, 1)
	if err := r.InitMeshBuffers(mesh, vertices, common.Uint16sToBytes(0, 1, 2, 0, 2, 3), 6); err != nil {
		t.Fatal(err)
	}

	r.Backend().(FaultInjector).InjectFault(FaultDraw)
	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.DrawCall("quad", mesh, 1, nil); !errors.Is(err, ErrDrawFailed) {
		t.Fatalf("DrawCall: err = %v, want ErrDrawFailed", err)
	}
	if err := r.EndFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.Present(); err != nil {
		t.Fatalf("Present after failed draw: %v", err)
	}
}

func TestReadTextureNeedsCopySrc(t *testing.T) {
	r := newTestRenderer(t, 4, 4)
	tex, err := r.CreateTexture(common.TextureStagingData{Label: "plain", Width: 2, Height: 2})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.ReadTexture(tex); err == nil {
		t.Fatal("expected an error reading a texture without CopySrc usage")
	}
}

func TestCreateTextureRejectsBadPayload(t *testing.T) {
	r := newTestRenderer(t, 4, 4)
	if _, err := r.CreateTexture(common.TextureStagingData{Label: "short", Width: 2, Height: 2, Pixels: make([]byte, 15)}); err == nil {
		t.Error("expected an error for a short pixel payload")
	}
	if _, err := r.CreateTexture(common.TextureStagingData{Label: "empty", Width: 0, Height: 2}); err == nil {
		t.Error("expected an error for a zero-sized texture")
	}
	if _, err := r.CreateTexture(common.TextureStagingData{Label: "bgra", Width: 1, Height: 1, Format: wgpu.TextureFormatBGRA8Unorm}); err == nil {
		t.Error("expected an error for a non RGBA8 format")
	}
}

func TestAffineFromTriangles(t *testing.T) {
	src := [3][2]float64{{0, 0}, {2, 0}, {2, 2}}
	dst := [3][2]float64{{10, 20}, {14, 20}, {14, 24}}
	aff, ok := affineFromTriangles(src, dst)
	if !ok {
		t.Fatal("triangle reported degenerate")
	}
	for i := range src {
		x := aff[0]*src[i][0] + aff[1]*src[i][1] + aff[2]
		y := aff[3]*src[i][0] + aff[4]*src[i][1] + aff[5]
		if x != dst[i][0] || y != dst[i][1] {
			t.Errorf("point %d maps to (%v,%v), want %v", i, x, y, dst[i])
		}
	}
	if _, ok := affineFromTriangles([3][2]float64{{0, 0}, {1, 1}, {2, 2}}, dst); ok {
		t.Error("collinear triangle should be degenerate")
	}
}
