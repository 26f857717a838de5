package camera

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-life/common"
	"github.com/go-gl/mathgl/mgl32"
)

// cameraControllerImpl is the single implementation of CameraController.
type cameraControllerImpl struct {
	mu *sync.Mutex

	position mgl32.Vec3

	speed       float32
	sensitivity float32
	minZ, maxZ  float32

	// Held movement keys.
	forward, backward, left, right bool
	// scroll accumulates wheel deltas between updates.
	scroll float32
}

// Compile-time interface compliance check
var _ CameraController = &cameraControllerImpl{}

// NewCameraController creates a controller at (0, 0, 1) with speed 1, sensitivity 8 and Z
// clamped to [0.1, 10].
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the newly created controller
func NewCameraController(options ...CameraControllerOption) CameraController {
	cc := &cameraControllerImpl{
		mu:          &sync.Mutex{},
		position:    mgl32.Vec3{0, 0, 1},
		speed:       1.0,
		sensitivity: 8.0,
		minZ:        0.1,
		maxZ:        10.0,
	}

	for _, option := range options {
		option(cc)
	}

	cc.position[2] = mgl32.Clamp(cc.position[2], cc.minZ, cc.maxZ)
	return cc
}

func (cc *cameraControllerImpl) Position() (x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.position[0], cc.position[1], cc.position[2]
}

func (cc *cameraControllerImpl) SetPosition(x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.position = mgl32.Vec3{x, y, mgl32.Clamp(z, cc.minZ, cc.maxZ)}
}

func (cc *cameraControllerImpl) Speed() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.speed
}

func (cc *cameraControllerImpl) Sensitivity() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.sensitivity
}

func (cc *cameraControllerImpl) ZBounds() (min, max float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.minZ, cc.maxZ
}

func (cc *cameraControllerImpl) ProcessKey(keyCode uint32, pressed bool) bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	switch keyCode {
	case common.KeyW, common.KeyUp:
		cc.forward = pressed
	case common.KeyS, common.KeyDown:
		cc.backward = pressed
	case common.KeyA, common.KeyLeft:
		cc.left = pressed
	case common.KeyD, common.KeyRight:
		cc.right = pressed
	default:
		return false
	}
	return true
}

func (cc *cameraControllerImpl) ProcessScroll(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.scroll -= delta
}

func (cc *cameraControllerImpl) Update(dt float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	step := cc.speed * dt
	var move mgl32.Vec3
	if cc.forward {
		move[1] += step
	}
	if cc.backward {
		move[1] -= step
	}
	if cc.left {
		move[0] -= step
	}
	if cc.right {
		move[0] += step
	}
	move[2] = cc.scroll * cc.sensitivity * dt

	cc.position = cc.position.Add(move)
	cc.position[2] = mgl32.Clamp(cc.position[2], cc.minZ, cc.maxZ)
	cc.scroll = 0
}
