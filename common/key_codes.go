package common

// Virtual key codes delivered by the window layer.
// Printable keys use their ASCII value, the rest follow GLFW.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyW     = 87 // W key (ASCII)
	KeyA     = 65 // A key (ASCII)
	KeyS     = 83 // S key (ASCII)
	KeyD     = 68 // D key (ASCII)
	KeyN     = 78 // N key (ASCII), single step
	KeyQ     = 81 // Q key (ASCII), quit
	KeyR     = 82 // R key (ASCII), reseed
	KeySpace = 32 // Spacebar (ASCII), run

	KeyEsc   = 256 // Escape key (GLFW)
	KeyEnter = 257 // Enter key (GLFW)
	KeyRight = 262 // Right arrow (GLFW)
	KeyLeft  = 263 // Left arrow (GLFW)
	KeyDown  = 264 // Down arrow (GLFW)
	KeyUp    = 265 // Up arrow (GLFW)
)
