package simulation

import (
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/oxy-life/engine/renderer/pipeline"
)

// LifeKernel is the host implementation of cs_main in life.wgsl, used by the software backend.
// It reads the source generation, counts the eight neighbours with out-of-grid cells dead,
// applies B3/S23 and writes only its own texel of the destination.
func LifeKernel(b pipeline.KernelBindings, globalID [3]uint32) {
	dims := b.Uniform(BindingDims)
	if len(dims) < 8 {
		return
	}
	w := int(math.Float32frombits(binary.LittleEndian.Uint32(dims[0:])))
	h := int(math.Float32frombits(binary.LittleEndian.Uint32(dims[4:])))

	x, y := int(globalID[0]), int(globalID[1])
	if x >= w || y >= h {
		return
	}

	alive := func(cx, cy int) bool {
		if cx < 0 || cy < 0 || cx >= w || cy >= h {
			return false
		}
		// r > 0.5 in unorm
		return b.Load(BindingSource, cx, cy)[0] > 127
	}

	neighbours := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if (dx != 0 || dy != 0) && alive(x+dx, y+dy) {
				neighbours++
			}
		}
	}

	var next [4]uint8
	if neighbours == 3 || (neighbours == 2 && alive(x, y)) {
		next = [4]uint8{255, 255, 255, 255}
	}
	b.Store(BindingDestination, x, y, next)
}
