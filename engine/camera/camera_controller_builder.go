package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraControllerOption is a functional option for configuring a CameraController.
type CameraControllerOption func(*cameraControllerImpl)

// WithPosition sets the initial camera position.
//
// Parameters:
//   - x, y, z: world-space coordinates
//
// Returns:
//   - CameraControllerOption: a function that sets the initial position
func WithPosition(x, y, z float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.position = mgl32.Vec3{x, y, z}
	}
}

// WithSpeed sets the planar movement speed in units per second.
//
// Parameters:
//   - speed: the movement speed
//
// Returns:
//   - CameraControllerOption: a function that sets the speed
func WithSpeed(speed float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.speed = speed
	}
}

// WithSensitivity sets the wheel zoom multiplier.
//
// Parameters:
//   - sensitivity: the zoom multiplier
//
// Returns:
//   - CameraControllerOption: a function that sets the sensitivity
func WithSensitivity(sensitivity float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.sensitivity = sensitivity
	}
}

// WithZBounds sets the allowed camera height range.
//
// Parameters:
//   - min: the closest allowed distance to the grid
//   - max: the farthest allowed distance to the grid
//
// Returns:
//   - CameraControllerOption: a function that sets the bounds
func WithZBounds(min, max float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.minZ = min
		cc.maxZ = max
	}
}
