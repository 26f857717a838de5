package camera

import (
	"unsafe"

	"github.com/Carmen-Shannon/oxy-life/common"
)

// GPUCameraUniform is the GPU representation of the camera uniform: a single mat4x4<f32>.
// Size: 64 bytes.
type GPUCameraUniform struct {
	ViewProj [16]float32 // offset 0: combined view-projection matrix (mat4x4<f32>)
}

// NewGPUCameraUniform captures the camera's current view-projection matrix.
//
// Parameters:
//   - c: the camera
//
// Returns:
//   - GPUCameraUniform: the uniform contents
func NewGPUCameraUniform(c Camera) GPUCameraUniform {
	return GPUCameraUniform{ViewProj: c.ViewProjectionMatrix()}
}

// Size returns the size of the GPUCameraUniform struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (64)
func (g *GPUCameraUniform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the uniform into a little-endian byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUCameraUniform) Marshal() []byte {
	return common.Float32sToBytes(g.ViewProj[:]...)
}
