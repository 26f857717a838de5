package camera

// CameraController owns the camera position and turns held keys and wheel input into movement.
// Key and scroll input arrive from the window goroutine; Update runs on the render goroutine
// once per frame, so every method is safe for concurrent use.
//
// Movement is planar: W/Up moves +Y, S/Down moves -Y, A/Left moves -X and D/Right moves +X,
// each at Speed units per second. The wheel moves the camera along Z by the accumulated
// scroll times Sensitivity per second, clamped to the Z bounds.
type CameraController interface {
	// Position returns the camera's world-space position.
	//
	// Returns:
	//   - x, y, z: world-space camera position
	Position() (x, y, z float32)

	// SetPosition sets the camera's world-space position directly. Z is clamped to the bounds.
	//
	// Parameters:
	//   - x, y, z: world-space coordinates
	SetPosition(x, y, z float32)

	// Speed returns the planar movement speed in units per second.
	//
	// Returns:
	//   - float32: the speed
	Speed() float32

	// Sensitivity returns the wheel zoom multiplier.
	//
	// Returns:
	//   - float32: the sensitivity
	Sensitivity() float32

	// ZBounds returns the allowed camera height range.
	//
	// Returns:
	//   - min: the closest allowed distance to the grid
	//   - max: the farthest allowed distance to the grid
	ZBounds() (min, max float32)

	// ProcessKey records a movement key press or release.
	//
	// Parameters:
	//   - keyCode: the virtual key code (see common.Key*)
	//   - pressed: true on press, false on release
	//
	// Returns:
	//   - bool: true if the key is a movement key and was consumed
	ProcessKey(keyCode uint32, pressed bool) bool

	// ProcessScroll accumulates wheel input until the next Update. Scrolling up moves closer.
	//
	// Parameters:
	//   - delta: the vertical scroll amount
	ProcessScroll(delta float32)

	// Update moves the camera by the held keys and the accumulated scroll, then clears the scroll.
	//
	// Parameters:
	//   - dt: the elapsed frame time in seconds
	Update(dt float32)
}
