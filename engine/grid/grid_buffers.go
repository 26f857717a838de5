package grid

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-life/common"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/resource"
	"github.com/cogentcore/webgpu/wgpu"
)

// MaxDimension is the largest grid side the default device limits allow for a 2D texture.
const MaxDimension = 8192

// BufferUsage is the usage every generation buffer is created with: sampled by the presenter and
// the compute source binding, written as a storage texture, seeded by copy and read back by copy.
const BufferUsage = wgpu.TextureUsageTextureBinding | wgpu.TextureUsageStorageBinding | wgpu.TextureUsageCopyDst | wgpu.TextureUsageCopySrc

// Slots of the two buffers and the sampler in the grid's provider.
const (
	slotA       = 0
	slotB       = 1
	slotSampler = 0
)

type gridBuffers struct {
	r renderer.Renderer

	width, height int

	// provider owns buffer A, buffer B and the sampler.
	provider bind_group_provider.BindGroupProvider
}

// GridBuffers holds the two generation buffers and the sampler the presenter reads them with.
// A Parity picks which buffer is current; the other is the target of the next compute step.
// Seed is the only write path besides the compute step itself.
type GridBuffers interface {
	// Width returns the grid width in cells.
	//
	// Returns:
	//   - int: the width
	Width() int

	// Height returns the grid height in cells.
	//
	// Returns:
	//   - int: the height
	Height() int

	// Current returns the buffer holding the generation a parity marks as current.
	//
	// Parameters:
	//   - p: the parity
	//
	// Returns:
	//   - *resource.Texture: buffer A for false, buffer B for true
	Current(p Parity) *resource.Texture

	// Next returns the buffer the next step writes for a parity. It is never the same as Current(p).
	//
	// Parameters:
	//   - p: the parity
	//
	// Returns:
	//   - *resource.Texture: buffer B for false, buffer A for true
	Next(p Parity) *resource.Texture

	// Sampler returns the nearest, clamp-to-edge sampler for displaying the grid.
	//
	// Returns:
	//   - *resource.Sampler: the sampler
	Sampler() *resource.Sampler

	// Seed writes the same generation into both buffers. Calling it after steps have run is a hard reset;
	// the caller resets its parity as well.
	//
	// Parameters:
	//   - seed: the generation to write, sized like the grid
	//
	// Returns:
	//   - error: an error if the seed size differs from the grid or the upload fails
	Seed(seed Seed) error

	// Read reads the generation a parity marks as current back from its buffer.
	//
	// Parameters:
	//   - p: the parity
	//
	// Returns:
	//   - Seed: the current generation
	//   - error: an error if the readback fails
	Read(p Parity) (Seed, error)

	// Release frees both buffers and the sampler.
	Release()
}

var _ GridBuffers = &gridBuffers{}

// New allocates the two generation buffers, identical in size and format, and the sampler.
// Both buffers start all dead; Seed must be called before the first step or render.
//
// Parameters:
//   - r: the renderer to allocate on
//   - width: the grid width in cells, 1 to MaxDimension
//   - height: the grid height in cells, 1 to MaxDimension
//
// Returns:
//   - GridBuffers: the buffers
//   - error: an error if the size is out of range or an allocation fails
func New(r renderer.Renderer, width, height int) (GridBuffers, error) {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return nil, fmt.Errorf("grid size %dx%d out of range 1..%d", width, height, MaxDimension)
	}

	sampler, err := r.CreateSampler(common.NearestClampSampler("Grid Sampler"))
	if err != nil {
		return nil, fmt.Errorf("create grid sampler: %w", err)
	}
	g := &gridBuffers{
		r:        r,
		width:    width,
		height:   height,
		provider: bind_group_provider.NewBindGroupProvider("Grid", bind_group_provider.WithSampler(slotSampler, sampler)),
	}
	for slot, label := range map[int]string{slotA: "Grid A", slotB: "Grid B"} {
		tex, err := g.newBuffer(label)
		if err != nil {
			g.provider.Release()
			return nil, err
		}
		g.provider.SetTexture(slot, tex)
	}
	common.Logger().Debug("grid buffers allocated", "width", width, "height", height)
	return g, nil
}

func (g *gridBuffers) newBuffer(label string) (*resource.Texture, error) {
	tex, err := g.r.CreateTexture(common.TextureStagingData{
		Label:  label,
		Width:  uint32(g.width),
		Height: uint32(g.height),
		Format: wgpu.TextureFormatRGBA8Unorm,
		Usage:  BufferUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	return tex, nil
}

func (g *gridBuffers) Width() int {
	return g.width
}

func (g *gridBuffers) Height() int {
	return g.height
}

func (g *gridBuffers) Current(p Parity) *resource.Texture {
	if p {
		return g.provider.Texture(slotB)
	}
	return g.provider.Texture(slotA)
}

func (g *gridBuffers) Next(p Parity) *resource.Texture {
	return g.Current(p.Flip())
}

func (g *gridBuffers) Sampler() *resource.Sampler {
	return g.provider.Sampler(slotSampler)
}

func (g *gridBuffers) Seed(seed Seed) error {
	if seed.Width() != g.width || seed.Height() != g.height {
		return fmt.Errorf("seed is %dx%d, grid is %dx%d", seed.Width(), seed.Height(), g.width, g.height)
	}
	pixels := seed.Pixels()
	for _, tex := range []*resource.Texture{g.Current(false), g.Current(true)} {
		if err := g.r.WriteTexture(tex, pixels); err != nil {
			return fmt.Errorf("seed %s: %w", tex.Label(), err)
		}
	}
	common.Logger().Info("grid seeded", "width", g.width, "height", g.height, "population", seed.Population())
	return nil
}

func (g *gridBuffers) Read(p Parity) (Seed, error) {
	pixels, err := g.r.ReadTexture(g.Current(p))
	if err != nil {
		return Seed{}, fmt.Errorf("read %s: %w", g.Current(p).Label(), err)
	}
	return SeedFromPixels(g.width, g.height, pixels)
}

func (g *gridBuffers) Release() {
	g.provider.Release()
}
