package grid

import (
	"fmt"
	"sort"
)

// Cell is a grid coordinate; (0, 0) is the top-left texel.
type Cell struct {
	X, Y int
}

// Motif is a small pattern of live cells relative to a tile origin.
type Motif []Cell

// Tiling places copies of a motif on a regular lattice. Tile (i, j) has its origin at
// (OffsetX + i*StrideX, OffsetY + j*StrideY) for i < CountX and j < CountY.
type Tiling struct {
	CountX, CountY   int
	StrideX, StrideY int
	OffsetX, OffsetY int
}

// Single is the tiling that places one motif at the origin.
var Single = Tiling{CountX: 1, CountY: 1}

// DefaultTiling places 100x100 motifs ten cells apart.
var DefaultTiling = Tiling{CountX: 100, CountY: 100, StrideX: 10, StrideY: 10}

var motifs = map[string]Motif{
	// glider heading +X +Y
	"glider":      {{3, 2}, {4, 3}, {2, 4}, {3, 4}, {4, 4}},
	"blinker":     {{1, 0}, {1, 1}, {1, 2}},
	"block":       {{0, 0}, {1, 0}, {0, 1}, {1, 1}},
	"r-pentomino": {{1, 0}, {2, 0}, {0, 1}, {1, 1}, {1, 2}},
	"lwss":        {{1, 0}, {4, 0}, {0, 1}, {0, 2}, {4, 2}, {0, 3}, {1, 3}, {2, 3}, {3, 3}},
}

// MotifByName returns a named motif: glider, blinker, block, r-pentomino or lwss.
//
// Parameters:
//   - name: the motif name
//
// Returns:
//   - Motif: a copy of the motif
//   - error: an error if the name is unknown
func MotifByName(name string) (Motif, error) {
	m, ok := motifs[name]
	if !ok {
		return nil, fmt.Errorf("unknown motif %q (known: %v)", name, MotifNames())
	}
	return append(Motif(nil), m...), nil
}

// MotifNames returns the names MotifByName accepts, sorted.
//
// Returns:
//   - []string: the motif names
func MotifNames() []string {
	names := make([]string, 0, len(motifs))
	for name := range motifs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SeedPattern lays the motif out over the tiling and returns the live cells inside a width x height
// grid, in order of first occurrence. Tiles run column by column: every j for i = 0, then i = 1, and
// so on. Cells outside the grid are dropped and duplicates are kept only once.
//
// Parameters:
//   - width: the grid width in cells
//   - height: the grid height in cells
//   - motif: the pattern placed at each tile origin
//   - tiling: where the tiles go
//
// Returns:
//   - []Cell: the live cells
func SeedPattern(width, height int, motif Motif, tiling Tiling) []Cell {
	seen := make(map[Cell]struct{})
	var cells []Cell
	for i := 0; i < tiling.CountX; i++ {
		for j := 0; j < tiling.CountY; j++ {
			ox := tiling.OffsetX + i*tiling.StrideX
			oy := tiling.OffsetY + j*tiling.StrideY
			for _, m := range motif {
				c := Cell{X: ox + m.X, Y: oy + m.Y}
				if c.X < 0 || c.Y < 0 || c.X >= width || c.Y >= height {
					continue
				}
				if _, dup := seen[c]; dup {
					continue
				}
				seen[c] = struct{}{}
				cells = append(cells, c)
			}
		}
	}
	return cells
}

// Seed is an immutable boolean grid. The zero value is an empty 0x0 grid.
type Seed struct {
	width, height int
	alive         []bool
}

// NewSeed builds a width x height grid with the given cells alive. Cells outside the grid are ignored.
//
// Parameters:
//   - width: the grid width in cells
//   - height: the grid height in cells
//   - cells: the live cells
//
// Returns:
//   - Seed: the grid
func NewSeed(width, height int, cells []Cell) Seed {
	s := Seed{width: width, height: height, alive: make([]bool, width*height)}
	for _, c := range cells {
		if c.X < 0 || c.Y < 0 || c.X >= width || c.Y >= height {
			continue
		}
		s.alive[c.Y*width+c.X] = true
	}
	return s
}

// SeedFromPixels decodes RGBA8 texels into a grid. A texel is alive when its red channel is above half.
//
// Parameters:
//   - width: the grid width in cells
//   - height: the grid height in cells
//   - pixels: width*height*4 bytes
//
// Returns:
//   - Seed: the grid
//   - error: an error if the payload size does not match
func SeedFromPixels(width, height int, pixels []byte) (Seed, error) {
	if len(pixels) != width*height*4 {
		return Seed{}, fmt.Errorf("%d bytes of pixels for a %dx%d grid", len(pixels), width, height)
	}
	s := Seed{width: width, height: height, alive: make([]bool, width*height)}
	for i := range s.alive {
		s.alive[i] = pixels[i*4] > 127
	}
	return s, nil
}

func (s Seed) Width() int {
	return s.width
}

func (s Seed) Height() int {
	return s.height
}

// Alive reports whether a cell is alive. Cells outside the grid are dead.
func (s Seed) Alive(x, y int) bool {
	if x < 0 || y < 0 || x >= s.width || y >= s.height {
		return false
	}
	return s.alive[y*s.width+x]
}

// Population returns the number of live cells.
func (s Seed) Population() int {
	n := 0
	for _, a := range s.alive {
		if a {
			n++
		}
	}
	return n
}

// Cells returns the live cells in row-major order.
func (s Seed) Cells() []Cell {
	var cells []Cell
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			if s.alive[y*s.width+x] {
				cells = append(cells, Cell{X: x, Y: y})
			}
		}
	}
	return cells
}

// Pixels encodes the grid as RGBA8 texels: alive is (255, 255, 255, 255) and dead is (0, 0, 0, 0).
func (s Seed) Pixels() []byte {
	pix := make([]byte, len(s.alive)*4)
	for i, a := range s.alive {
		if a {
			pix[i*4], pix[i*4+1], pix[i*4+2], pix[i*4+3] = 255, 255, 255, 255
		}
	}
	return pix
}

// Equal reports whether two grids have the same size and the same live cells.
func (s Seed) Equal(o Seed) bool {
	if s.width != o.width || s.height != o.height {
		return false
	}
	for i := range s.alive {
		if s.alive[i] != o.alive[i] {
			return false
		}
	}
	return true
}
