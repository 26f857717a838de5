package grid

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/Carmen-Shannon/oxy-life/engine/renderer"
)

func newTestRenderer(t *testing.T) renderer.Renderer {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware, nil, renderer.WithSurfaceSize(16, 16))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Release)
	return r
}

func TestSeedPatternGliderTiling(t *testing.T) {
	glider, err := MotifByName("glider")
	if err != nil {
		t.Fatal(err)
	}
	cells := SeedPattern(30, 30, glider, Tiling{CountX: 2, CountY: 2, StrideX: 10, StrideY: 10})

	want := []Cell{
		{3, 2}, {4, 3}, {2, 4}, {3, 4}, {4, 4},
		{3, 12}, {4, 13}, {2, 14}, {3, 14}, {4, 14},
		{13, 2}, {14, 3}, {12, 4}, {13, 4}, {14, 4},
		{13, 12}, {14, 13}, {12, 14}, {13, 14}, {14, 14},
	}
	if !reflect.DeepEqual(cells, want) {
		t.Fatalf("cells = %v\nwant    %v", cells, want)
	}
}

func TestSeedPatternDropsOutOfGridAndDuplicates(t *testing.T) {
	block, _ := MotifByName("block")
	// overlapping tiles one cell apart, the last column hanging off a 3 wide grid
	cells := SeedPattern(3, 2, block, Tiling{CountX: 3, CountY: 1, StrideX: 1})
	want := []Cell{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {2, 0}, {2, 1}}
	if !reflect.DeepEqual(cells, want) {
		t.Fatalf("cells = %v, want %v", cells, want)
	}

	neg := SeedPattern(5, 5, block, Tiling{CountX: 1, CountY: 1, OffsetX: -1, OffsetY: -1})
	if !reflect.DeepEqual(neg, []Cell{{0, 0}}) {
		t.Fatalf("negative offset cells = %v, want [{0 0}]", neg)
	}
}

func TestDefaultTilingMatchesOriginalLayout(t *testing.T) {
	glider, _ := MotifByName("glider")
	cells := SeedPattern(2048, 2048, glider, DefaultTiling)
	if len(cells) != 100*100*5 {
		t.Fatalf("got %d cells, want %d", len(cells), 100*100*5)
	}
	s := NewSeed(2048, 2048, cells)
	if !s.Alive(993, 992) || !s.Alive(994, 994) || s.Alive(1003, 1002) {
		t.Error("last tile is not at origin (990, 990)")
	}
}

func TestMotifByName(t *testing.T) {
	for _, name := range MotifNames() {
		m, err := MotifByName(name)
		if err != nil || len(m) == 0 {
			t.Errorf("%s: motif %v, err %v", name, m, err)
		}
	}
	if _, err := MotifByName("spaceship"); err == nil {
		t.Error("expected an error for an unknown motif")
	}

	m, _ := MotifByName("block")
	m[0] = Cell{9, 9}
	if again, _ := MotifByName("block"); again[0] != (Cell{0, 0}) {
		t.Error("MotifByName returned a shared slice")
	}
}

func TestSeedPixels(t *testing.T) {
	s := NewSeed(3, 2, []Cell{{0, 0}, {2, 1}, {5, 5}})
	if s.Population() != 2 {
		t.Fatalf("population = %d, want 2", s.Population())
	}
	want := []byte{
		255, 255, 255, 255, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 255, 255, 255, 255,
	}
	if !bytes.Equal(s.Pixels(), want) {
		t.Fatalf("pixels = %v", s.Pixels())
	}
	back, err := SeedFromPixels(3, 2, s.Pixels())
	if err != nil {
		t.Fatal(err)
	}
	if !back.Equal(s) {
		t.Fatal("decoded seed differs")
	}
	if _, err := SeedFromPixels(3, 2, want[:8]); err == nil {
		t.Fatal("expected an error for a short payload")
	}
}

func TestParity(t *testing.T) {
	var p Parity
	if p.Flip() != true || p.Flip().Flip() != false {
		t.Fatal("Flip is not an involution")
	}
	if p.String() != "A" || p.Flip().String() != "B" {
		t.Fatalf("String = %s/%s", p, p.Flip())
	}
}

func TestNewRejectsBadSizes(t *testing.T) {
	r := newTestRenderer(t)
	for _, size := range [][2]int{{0, 4}, {4, 0}, {-1, 4}, {MaxDimension + 1, 4}} {
		if _, err := New(r, size[0], size[1]); err == nil {
			t.Errorf("New(%d, %d) should fail", size[0], size[1])
		}
	}
}

func TestCurrentAndNextNeverAlias(t *testing.T) {
	r := newTestRenderer(t)
	g, err := New(r, 8, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Release()

	for _, p := range []Parity{false, true} {
		if g.Current(p) == g.Next(p) {
			t.Errorf("parity %s: current and next are the same buffer", p)
		}
		if g.Current(p) != g.Next(p.Flip()) {
			t.Errorf("parity %s: current is not the next of the flipped parity", p)
		}
	}
	if g.Current(false).Width() != g.Current(true).Width() || g.Current(false).Format() != g.Current(true).Format() {
		t.Error("buffers differ in size or format")
	}
}

func TestSeedWritesBothBuffers(t *testing.T) {
	r := newTestRenderer(t)
	g, err := New(r, 20, 12)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Release()

	glider, _ := MotifByName("glider")
	seed := NewSeed(20, 12, SeedPattern(20, 12, glider, Tiling{CountX: 2, CountY: 1, StrideX: 8}))
	if err := g.Seed(seed); err != nil {
		t.Fatal(err)
	}

	a, err := g.Read(false)
	if err != nil {
		t.Fatal(err)
	}
	b, err := g.Read(true)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(seed) || !b.Equal(seed) {
		t.Fatal("buffers do not both hold the seed")
	}

	pa, _ := r.ReadTexture(g.Current(false))
	pb, _ := r.ReadTexture(g.Current(true))
	if !bytes.Equal(pa, pb) {
		t.Fatal("buffers are not bit-identical")
	}
}

func TestSeedRejectsWrongSize(t *testing.T) {
	r := newTestRenderer(t)
	g, err := New(r, 8, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Release()
	if err := g.Seed(NewSeed(8, 9, nil)); err == nil {
		t.Fatal("expected an error for a mismatched seed")
	}
}
