// package common contains plain types and helpers shared by the engine packages. They are not interface-wrapped
// structs, just data that several layers need to agree on.
package common

import "github.com/cogentcore/webgpu/wgpu"

// TextureStagingData describes a 2D texture pending creation on a backend, optionally with initial RGBA pixels.
type TextureStagingData struct {
	// Label identifies the texture in backend diagnostics.
	Label string
	// Pixels is the initial RGBA payload, 4 bytes per texel in row-major order. Nil leaves the texture zeroed.
	Pixels []byte
	// Width is the width of the texture in texels.
	Width uint32
	// Height is the height of the texture in texels.
	Height uint32
	// Format is the texel format. Zero selects wgpu.TextureFormatRGBA8Unorm.
	Format wgpu.TextureFormat
	// Usage is the set of usages the texture must support. Zero selects TextureBinding | CopyDst.
	Usage wgpu.TextureUsage
}

// SamplerStagingData holds the configuration for a sampler binding pending creation.
// Zero values fall back to the backend defaults via Coalesce.
type SamplerStagingData struct {
	// Label identifies the sampler in backend diagnostics.
	Label string
	// AddressModeU, AddressModeV, AddressModeW specify the addressing mode for coordinates outside [0, 1].
	AddressModeU, AddressModeV, AddressModeW wgpu.AddressMode
	// MagFilter and MinFilter specify the filtering mode for magnification and minification.
	MagFilter, MinFilter wgpu.FilterMode
	// MipmapFilter specifies the filtering mode for mipmap level selection.
	MipmapFilter wgpu.MipmapFilterMode
	// LodMinClamp and LodMaxClamp specify the minimum and maximum level of detail.
	LodMinClamp, LodMaxClamp float32
	// MaxAnisotropy specifies the maximum anisotropy level for anisotropic filtering.
	MaxAnisotropy uint16
}

// NearestClampSampler returns sampler staging data that reads exactly one texel per cell
// and never wraps around the grid edge.
//
// Parameters:
//   - label: the sampler label
//
// Returns:
//   - SamplerStagingData: a clamp-to-edge, nearest-filtering sampler configuration
func NearestClampSampler(label string) SamplerStagingData {
	return SamplerStagingData{
		Label:        label,
		AddressModeU: wgpu.AddressModeClampToEdge,
		AddressModeV: wgpu.AddressModeClampToEdge,
		AddressModeW: wgpu.AddressModeClampToEdge,
		MagFilter:    wgpu.FilterModeNearest,
		MinFilter:    wgpu.FilterModeNearest,
		MipmapFilter: wgpu.MipmapFilterModeNearest,
	}
}
