package presenter

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-life/engine/grid"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer"
	"github.com/cogentcore/webgpu/wgpu"
)

type fixture struct {
	r       renderer.Renderer
	sw      renderer.SoftwareBackend
	buffers grid.GridBuffers
	pr      Presenter
}

func newFixture(t *testing.T, size int, cells []grid.Cell) *fixture {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware, nil, renderer.WithSurfaceSize(size, size))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Release)

	buffers, err := grid.New(r, size, size)
	if err != nil {
		t.Fatalf("grid.New: %v", err)
	}
	t.Cleanup(buffers.Release)
	if err := buffers.Seed(grid.NewSeed(size, size, cells)); err != nil {
		t.Fatal(err)
	}

	pr, err := New(r, QuadGeometry())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(pr.Release)
	return &fixture{r: r, sw: r.Backend().(renderer.SoftwareBackend), buffers: buffers, pr: pr}
}

func TestQuadGeometry(t *testing.T) {
	g := QuadGeometry()
	if len(g.Vertices) != 4 || len(g.Indices) != 6 {
		t.Fatalf("got %d vertices and %d indices", len(g.Vertices), len(g.Indices))
	}
	if len(g.vertexBytes()) != 4*4*4 {
		t.Fatalf("vertex payload is %d bytes, want 64", len(g.vertexBytes()))
	}
	if g.Vertices[0].UV != [2]float32{0, 0} || g.Vertices[2].UV != [2]float32{1, 1} {
		t.Fatal("uv corners are not top-left (0,0) to bottom-right (1,1)")
	}
}

func TestNewRejectsEmptyGeometry(t *testing.T) {
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware, nil, renderer.WithSurfaceSize(4, 4))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Release()
	if _, err := New(r, Geometry{}); err == nil {
		t.Fatal("expected an error for empty geometry")
	}
}

func TestQuadPipelineState(t *testing.T) {
	f := newFixture(t, 4, nil)
	p := f.r.Pipeline(PipelineKey)
	if p == nil {
		t.Fatal("quad pipeline not registered")
	}
	if p.CullMode() != wgpu.CullModeNone || p.FrontFace() != wgpu.FrontFaceCCW {
		t.Fatalf("cull %v front %v, want no culling", p.CullMode(), p.FrontFace())
	}
	if p.Topology() != wgpu.PrimitiveTopologyTriangleList || p.WriteMask() != wgpu.ColorWriteMaskAll {
		t.Fatalf("topology %v write mask %v", p.Topology(), p.WriteMask())
	}
	if p.BlendEnabled() {
		t.Fatal("quad pipeline blends")
	}
}

func TestRenderShowsCurrentGeneration(t *testing.T) {
	cells := []grid.Cell{{1, 1}, {2, 1}, {3, 3}}
	f := newFixture(t, 4, cells)

	if err := f.pr.Render(f.buffers, false); err != nil {
		t.Fatalf("Render: %v", err)
	}
	fb := f.sw.Framebuffer()
	seed := grid.NewSeed(4, 4, cells)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			lit := fb.RGBAAt(x, y).R > 127
			if lit != seed.Alive(x, y) {
				t.Errorf("pixel (%d,%d) lit %v, cell alive %v", x, y, lit, seed.Alive(x, y))
			}
		}
	}
	if f.sw.PresentCount() != 1 {
		t.Fatalf("present count = %d, want 1", f.sw.PresentCount())
	}
}

func TestRenderBindsOnlyTheCurrentBuffer(t *testing.T) {
	f := newFixture(t, 4, nil)
	// make B differ from A, then render with parity A
	if err := f.r.WriteTexture(f.buffers.Current(true), grid.NewSeed(4, 4, []grid.Cell{{0, 0}}).Pixels()); err != nil {
		t.Fatal(err)
	}
	if err := f.pr.Render(f.buffers, false); err != nil {
		t.Fatal(err)
	}
	if f.sw.Framebuffer().RGBAAt(0, 0).R != 0 {
		t.Fatal("rendered the next buffer instead of the current one")
	}
	if err := f.pr.Render(f.buffers, true); err != nil {
		t.Fatal(err)
	}
	if f.sw.Framebuffer().RGBAAt(0, 0).R != 255 {
		t.Fatal("parity B did not display buffer B")
	}
}

func TestRenderingWithoutStepsIsStable(t *testing.T) {
	glider, _ := grid.MotifByName("glider")
	f := newFixture(t, 8, grid.SeedPattern(8, 8, glider, grid.Single))

	before, err := f.buffers.Read(false)
	if err != nil {
		t.Fatal(err)
	}
	var first []byte
	for i := 0; i < 5; i++ {
		if err := f.pr.Render(f.buffers, false); err != nil {
			t.Fatalf("render %d: %v", i, err)
		}
		pix := f.sw.Framebuffer().Pix
		if first == nil {
			first = pix
		} else if !bytes.Equal(first, pix) {
			t.Fatalf("render %d produced a different image", i)
		}
	}
	after, err := f.buffers.Read(false)
	if err != nil {
		t.Fatal(err)
	}
	if !after.Equal(before) {
		t.Fatal("rendering changed the grid")
	}
}

func TestSurfaceLostIsReported(t *testing.T) {
	f := newFixture(t, 4, nil)
	f.sw.InjectFault(renderer.FaultSurfaceLost)
	if err := f.pr.Render(f.buffers, false); !errors.Is(err, renderer.ErrSurfaceLost) {
		t.Fatalf("err = %v, want ErrSurfaceLost", err)
	}
	if f.sw.PresentCount() != 0 {
		t.Fatal("a frame was presented on a lost surface")
	}

	if err := f.r.Resize(4, 4); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if err := f.pr.Render(f.buffers, false); err != nil {
		t.Fatalf("render after reconfigure: %v", err)
	}
}

func TestResizeLeavesGridUntouched(t *testing.T) {
	cells := []grid.Cell{{0, 0}, {3, 2}}
	f := newFixture(t, 4, cells)

	if err := f.r.Resize(9, 5); err != nil {
		t.Fatal(err)
	}
	if err := f.pr.Render(f.buffers, false); err != nil {
		t.Fatal(err)
	}
	if b := f.sw.Framebuffer().Bounds(); b.Dx() != 9 || b.Dy() != 5 {
		t.Fatalf("framebuffer is %v after resize", b)
	}
	for _, p := range []grid.Parity{false, true} {
		s, err := f.buffers.Read(p)
		if err != nil {
			t.Fatal(err)
		}
		if s.Width() != 4 || s.Height() != 4 || !s.Equal(grid.NewSeed(4, 4, cells)) {
			t.Fatalf("buffer %s changed on resize", p)
		}
	}
}

func TestZeroSizeSurfaceHasNoFrame(t *testing.T) {
	f := newFixture(t, 4, nil)
	if err := f.r.Resize(0, 0); err != nil {
		t.Fatal(err)
	}
	if err := f.pr.Render(f.buffers, false); !errors.Is(err, renderer.ErrNoFrame) {
		t.Fatalf("err = %v, want ErrNoFrame", err)
	}
}

func TestUpdateCameraWritesUniform(t *testing.T) {
	f := newFixture(t, 4, nil)
	m := [16]float32{2, 0, 0, 0, 0, 2, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
	if err := f.pr.UpdateCamera(m); err != nil {
		t.Fatal(err)
	}
	data, ok := f.pr.CameraBuffer().Handle().([]byte)
	if !ok || len(data) != 64 {
		t.Fatalf("camera uniform handle %T of %d bytes", f.pr.CameraBuffer().Handle(), len(data))
	}
	// 2.0 little endian
	if !bytes.Equal(data[0:4], []byte{0, 0, 0, 0x40}) {
		t.Fatalf("m[0] bytes = %v", data[0:4])
	}
}
