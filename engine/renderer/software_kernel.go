package renderer

import (
	"image"

	"github.com/Carmen-Shannon/oxy-life/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/resource"
)

// kernelBindings resolves the resources of one bind group for host kernels. It is built once per
// dispatch and only read afterwards, so every workgroup task can share it.
type kernelBindings struct {
	images  map[uint32]*image.RGBA
	buffers map[uint32][]byte
}

var _ pipeline.KernelBindings = &kernelBindings{}

func newKernelBindings(group *resource.BindGroup) *kernelBindings {
	k := &kernelBindings{
		images:  make(map[uint32]*image.RGBA),
		buffers: make(map[uint32][]byte),
	}
	for _, e := range group.Entries() {
		switch {
		case e.Texture != nil:
			if img, ok := e.Texture.Handle().(*image.RGBA); ok {
				k.images[e.Binding] = img
			}
		case e.Buffer != nil:
			if data, ok := e.Buffer.Handle().([]byte); ok {
				k.buffers[e.Binding] = data
			}
		}
	}
	return k
}

func (k *kernelBindings) TextureSize(binding uint32) (int, int) {
	img := k.images[binding]
	if img == nil {
		return 0, 0
	}
	return img.Rect.Dx(), img.Rect.Dy()
}

func (k *kernelBindings) Load(binding uint32, x, y int) [4]uint8 {
	img := k.images[binding]
	if img == nil || !(image.Point{X: x, Y: y}).In(img.Rect) {
		return [4]uint8{}
	}
	i := img.PixOffset(x, y)
	return [4]uint8{img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]}
}

func (k *kernelBindings) Store(binding uint32, x, y int, texel [4]uint8) {
	img := k.images[binding]
	if img == nil || !(image.Point{X: x, Y: y}).In(img.Rect) {
		return
	}
	i := img.PixOffset(x, y)
	copy(img.Pix[i:i+4], texel[:])
}

func (k *kernelBindings) Uniform(binding uint32) []byte {
	return k.buffers[binding]
}
