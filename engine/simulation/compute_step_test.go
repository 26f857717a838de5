package simulation

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/Carmen-Shannon/oxy-life/engine/grid"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/shader"
)

type fixture struct {
	r       renderer.Renderer
	buffers grid.GridBuffers
	step    ComputeStep
}

func newFixture(t *testing.T, width, height int, cells []grid.Cell) *fixture {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware, nil, renderer.WithSurfaceSize(16, 16), renderer.WithComputeWorkers(4))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Release)

	buffers, err := grid.New(r, width, height)
	if err != nil {
		t.Fatalf("grid.New: %v", err)
	}
	t.Cleanup(buffers.Release)
	if err := buffers.Seed(grid.NewSeed(width, height, cells)); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	step, err := New(r, width, height)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(step.Release)
	return &fixture{r: r, buffers: buffers, step: step}
}

// run steps n times from parity p and returns the final parity.
func (f *fixture) run(t *testing.T, p grid.Parity, n int) grid.Parity {
	t.Helper()
	for i := 0; i < n; i++ {
		var err error
		if p, err = f.step.Step(f.buffers, p); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	return p
}

func (f *fixture) read(t *testing.T, p grid.Parity) grid.Seed {
	t.Helper()
	s, err := f.buffers.Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return s
}

// referenceStep is a direct B3/S23 step with dead borders.
func referenceStep(s grid.Seed) grid.Seed {
	var cells []grid.Cell
	for y := 0; y < s.Height(); y++ {
		for x := 0; x < s.Width(); x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if (dx != 0 || dy != 0) && s.Alive(x+dx, y+dy) {
						n++
					}
				}
			}
			if n == 3 || (n == 2 && s.Alive(x, y)) {
				cells = append(cells, grid.Cell{X: x, Y: y})
			}
		}
	}
	return grid.NewSeed(s.Width(), s.Height(), cells)
}

func shifted(cells []grid.Cell, dx, dy int) []grid.Cell {
	out := make([]grid.Cell, len(cells))
	for i, c := range cells {
		out[i] = grid.Cell{X: c.X + dx, Y: c.Y + dy}
	}
	return out
}

func TestBlinkerOscillates(t *testing.T) {
	blinker, _ := grid.MotifByName("blinker")
	cells := grid.SeedPattern(5, 5, blinker, grid.Tiling{CountX: 1, CountY: 1, OffsetX: 1, OffsetY: 1})
	f := newFixture(t, 5, 5, cells)

	p := f.run(t, false, 1)
	want := grid.NewSeed(5, 5, []grid.Cell{{1, 2}, {2, 2}, {3, 2}})
	if got := f.read(t, p); !got.Equal(want) {
		t.Fatalf("after one step got %v, want %v", got.Cells(), want.Cells())
	}

	p = f.run(t, p, 1)
	if got := f.read(t, p); !got.Equal(grid.NewSeed(5, 5, cells)) {
		t.Fatalf("after two steps got %v, want the starting blinker", got.Cells())
	}
}

func TestGliderTranslatesAfterFourSteps(t *testing.T) {
	glider, _ := grid.MotifByName("glider")
	cells := grid.SeedPattern(20, 20, glider, grid.Single)
	f := newFixture(t, 20, 20, cells)

	p := f.run(t, false, 4)
	want := grid.NewSeed(20, 20, shifted(cells, 1, 1))
	if got := f.read(t, p); !got.Equal(want) {
		t.Fatalf("after four steps got %v, want %v", got.Cells(), want.Cells())
	}
}

func TestMatchesReferenceOnRandomSoup(t *testing.T) {
	const w, h = 41, 37
	rng := rand.New(rand.NewSource(7))
	var cells []grid.Cell
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if rng.Intn(3) == 0 {
				cells = append(cells, grid.Cell{X: x, Y: y})
			}
		}
	}
	f := newFixture(t, w, h, cells)
	want := grid.NewSeed(w, h, cells)

	var p grid.Parity
	for i := 0; i < 6; i++ {
		p = f.run(t, p, 1)
		want = referenceStep(want)
		if got := f.read(t, p); !got.Equal(want) {
			t.Fatalf("generation %d differs from the reference", i+1)
		}
	}
}

func TestParityFlipsOncePerStep(t *testing.T) {
	f := newFixture(t, 8, 8, nil)
	for _, start := range []grid.Parity{false, true} {
		p := start
		for n := 1; n <= 5; n++ {
			p = f.run(t, p, 1)
			want := grid.Parity(bool(start) != (n%2 == 1))
			if p != want {
				t.Fatalf("start %s after %d steps: parity %s, want %s", start, n, p, want)
			}
		}
	}
}

func TestStepNeverWritesItsSource(t *testing.T) {
	f := newFixture(t, 8, 8, nil)
	if src, dst := f.step.LastBinding(); src != nil || dst != nil {
		t.Fatal("LastBinding set before any step")
	}

	var p grid.Parity
	for i := 0; i < 4; i++ {
		next := f.run(t, p, 1)
		src, dst := f.step.LastBinding()
		if src == dst {
			t.Fatalf("step %d read and wrote the same buffer", i)
		}
		if src != f.buffers.Current(p) || dst != f.buffers.Next(p) {
			t.Fatalf("step %d bound the wrong buffers for parity %s", i, p)
		}
		if f.buffers.Current(next) != dst {
			t.Fatalf("step %d: the written buffer is not current afterwards", i)
		}
		p = next
	}
}

func TestBindGroupFactoryRejectsAliasing(t *testing.T) {
	f := newFixture(t, 8, 8, nil)
	a := f.buffers.Current(false)
	if _, err := NewBindGroup(f.r, f.step.Layout(), a, a, f.step.DimsBuffer()); !errors.Is(err, renderer.ErrInvalidBindGroup) {
		t.Fatalf("err = %v, want ErrInvalidBindGroup", err)
	}
	bg, err := NewBindGroup(f.r, f.step.Layout(), a, f.buffers.Next(false), f.step.DimsBuffer())
	if err != nil {
		t.Fatalf("valid bind group: %v", err)
	}
	bg.Release()
}

func TestAllDeadStaysDeadAcrossPartialTiles(t *testing.T) {
	// 130 is not a multiple of 16, so the last tile row and column are partial
	f := newFixture(t, 130, 130, nil)
	if got := f.step.WorkgroupCount(); got != [3]uint32{9, 9, 1} {
		t.Fatalf("workgroup count = %v, want [9 9 1]", got)
	}
	p := f.run(t, false, 3)
	if n := f.read(t, p).Population(); n != 0 {
		t.Fatalf("population = %d, want 0", n)
	}
}

func TestGliderDoesNotWrap(t *testing.T) {
	const size = 12
	glider, _ := grid.MotifByName("glider")
	cells := grid.SeedPattern(size, size, glider, grid.Tiling{CountX: 1, CountY: 1, OffsetX: 5, OffsetY: 5})
	f := newFixture(t, size, size, cells)

	p := f.run(t, false, 40)
	for _, c := range f.read(t, p).Cells() {
		if c.X < 5 || c.Y < 5 {
			t.Fatalf("cell %v appeared near the far edge, the grid wrapped", c)
		}
	}
}

func TestDispatchFailureKeepsParity(t *testing.T) {
	glider, _ := grid.MotifByName("glider")
	cells := grid.SeedPattern(16, 16, glider, grid.Single)
	f := newFixture(t, 16, 16, cells)
	faults := f.r.Backend().(renderer.FaultInjector)

	faults.InjectFault(renderer.FaultDispatch)
	p, err := f.step.Step(f.buffers, false)
	if !errors.Is(err, renderer.ErrDispatchFailed) {
		t.Fatalf("err = %v, want ErrDispatchFailed", err)
	}
	if p != false {
		t.Fatal("parity flipped on a failed dispatch")
	}
	faults.ClearFault(renderer.FaultDispatch)

	faults.InjectFault(renderer.FaultDeviceLost)
	if p, err = f.step.Step(f.buffers, false); !errors.Is(err, renderer.ErrDeviceLost) || p != false {
		t.Fatalf("device lost: parity %s, err %v", p, err)
	}
	faults.ClearFault(renderer.FaultDeviceLost)

	if got := f.read(t, false); !got.Equal(grid.NewSeed(16, 16, cells)) {
		t.Fatal("current generation changed by failed steps")
	}
	if p = f.run(t, false, 1); p != true {
		t.Fatal("step did not recover after the fault cleared")
	}
}

func TestStepRejectsMismatchedGrid(t *testing.T) {
	f := newFixture(t, 8, 8, nil)
	other, err := grid.New(f.r, 9, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer other.Release()
	if _, err := f.step.Step(other, false); err == nil {
		t.Fatal("expected an error for a grid of another size")
	}
}

func TestDimensionUniform(t *testing.T) {
	f := newFixture(t, 20, 10, nil)
	if f.step.DimsBuffer().Size() != 16 {
		t.Fatalf("uniform size = %d, want 16", f.step.DimsBuffer().Size())
	}
	data, ok := f.step.DimsBuffer().Handle().([]byte)
	if !ok {
		t.Fatal("software uniform is not a byte slice")
	}
	var rec recorder
	rec.uniform = data
	LifeKernel(&rec, [3]uint32{25, 0, 0})
	if rec.loads != 0 || rec.stores != 0 {
		t.Fatal("invocation outside the grid touched a texture")
	}
	LifeKernel(&rec, [3]uint32{19, 9, 0})
	if rec.stores != 1 {
		t.Fatalf("invocation inside the grid stored %d texels, want 1", rec.stores)
	}
}

func TestShaderValidates(t *testing.T) {
	cs, err := shader.NewShaderFromSource(PipelineKey, shader.ShaderTypeCompute, Source)
	if err != nil {
		t.Fatal(err)
	}
	if cs.EntryPoint() != "cs_main" || cs.WorkgroupSize() != [3]uint32{TileSize, TileSize, 1} {
		t.Fatalf("entry %q, workgroup %v", cs.EntryPoint(), cs.WorkgroupSize())
	}
	if err := shader.Validate(cs); err != nil {
		if errors.Is(err, shader.ErrUnsupported) {
			t.Skipf("naga: %v", err)
		}
		t.Fatalf("Validate: %v", err)
	}
}

// recorder is a KernelBindings that counts texture accesses.
type recorder struct {
	uniform       []byte
	loads, stores int
}

func (r *recorder) TextureSize(uint32) (int, int) {
	return 0, 0
}

func (r *recorder) Load(uint32, int, int) [4]uint8 {
	r.loads++
	return [4]uint8{}
}

func (r *recorder) Store(uint32, int, int, [4]uint8) {
	r.stores++
}

func (r *recorder) Uniform(uint32) []byte {
	return r.uniform
}
