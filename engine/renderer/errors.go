package renderer

import "errors"

var (
	// ErrSurfaceLost is returned when the swap surface is lost or outdated and must be reconfigured
	// before another frame can be acquired.
	ErrSurfaceLost = errors.New("renderer: surface lost or outdated")

	// ErrDeviceLost is returned when the device stops accepting submissions.
	ErrDeviceLost = errors.New("renderer: device lost")

	// ErrDispatchFailed is returned when a compute dispatch could not be encoded or submitted.
	ErrDispatchFailed = errors.New("renderer: compute dispatch failed")

	// ErrDrawFailed is returned when a draw call could not be encoded into the frame.
	ErrDrawFailed = errors.New("renderer: draw failed")

	// ErrNoFrame is returned by calls that need an acquired frame when none is held, and by
	// BeginFrame while the surface has a zero size.
	ErrNoFrame = errors.New("renderer: no frame in flight")

	// ErrInvalidBindGroup is returned when bind group entries do not satisfy the layout they are built against.
	ErrInvalidBindGroup = errors.New("renderer: invalid bind group")

	// ErrPipelineNotFound is returned when a pipeline key is not in the cache.
	ErrPipelineNotFound = errors.New("renderer: pipeline not found")
)
