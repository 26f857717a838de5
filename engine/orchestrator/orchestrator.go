// Package orchestrator drives one simulation frame at a time: input, step, render.
package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-life/common"
	"github.com/Carmen-Shannon/oxy-life/engine/camera"
	"github.com/Carmen-Shannon/oxy-life/engine/grid"
	"github.com/Carmen-Shannon/oxy-life/engine/presenter"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer"
	"github.com/Carmen-Shannon/oxy-life/engine/simulation"
)

// ErrFatal marks an error the frame loop cannot recover from.
var ErrFatal = errors.New("orchestrator: fatal")

// DefaultMaxConsecutiveFailures is the number of failed steps, or failed renders, in a row
// tolerated before Frame returns ErrFatal.
const DefaultMaxConsecutiveFailures = 60

// Mode is the run mode.
type Mode int

const (
	ModePaused Mode = iota
	ModeRunning
)

func (m Mode) String() string {
	if m == ModeRunning {
		return "running"
	}
	return "paused"
}

// FrameResult reports what one Frame did.
type FrameResult struct {
	// Stepped is true if a generation was computed.
	Stepped bool
	// Rendered is true if a frame was presented.
	Rendered bool
	// Skipped is true if rendering was skipped: the surface was lost or has zero size.
	Skipped bool
	// StepErr is the recoverable step error of this frame, if any.
	StepErr error
	// RenderErr is the recoverable render error of this frame, if any.
	RenderErr error
	// Parity and Generation after the frame.
	Parity     grid.Parity
	Generation uint64
}

type orchestrator struct {
	mu *sync.Mutex

	r         renderer.Renderer
	buffers   grid.GridBuffers
	step      simulation.ComputeStep
	presenter presenter.Presenter
	camera    camera.Camera
	seed      grid.Seed
	events    *EventQueue

	mode           Mode
	parity         grid.Parity
	armed          bool
	done           bool
	generation     uint64
	failures       int
	renderFailures int

	// pending holds events left over from a batch that stopped on an error.
	pending []Event

	// Published copies of generation and mode, readable while a frame holds mu.
	publishedGeneration atomic.Uint64
	publishedMode       atomic.Int32

	surfaceWidth, surfaceHeight int
	suspended                   bool

	initialMode     Mode
	maxFailures     int
	generationLimit uint64
	exitOnLimit     bool
}

// Orchestrator owns the parity and the run mode, and runs frames on the render goroutine.
type Orchestrator interface {
	// Frame drains queued events, updates the camera, steps once if running or a single step is
	// armed, then pushes the camera matrix and renders the current generation.
	//
	// Parameters:
	//   - dt: seconds since the previous frame
	//
	// Returns:
	//   - FrameResult: what the frame did
	//   - error: an error wrapping ErrFatal if the loop must stop; other errors are reported and
	//     the next frame may be attempted
	Frame(dt float32) (FrameResult, error)

	// Reset reseeds both buffers, sets the parity to A and the generation to 0.
	//
	// Returns:
	//   - error: an error if the buffers could not be written
	Reset() error

	// Events returns the queue input is pushed into.
	//
	// Returns:
	//   - *EventQueue: the event queue
	Events() *EventQueue

	// Parity returns the parity marking the current buffer.
	//
	// Returns:
	//   - grid.Parity: the parity
	Parity() grid.Parity

	// Mode returns the run mode. It does not wait for a frame in progress.
	//
	// Returns:
	//   - Mode: paused or running
	Mode() Mode

	// Generation returns the number of steps since the last seed. It does not wait for a frame in
	// progress and may lag it by one frame.
	//
	// Returns:
	//   - uint64: the generation
	Generation() uint64

	// Failures returns the current count of consecutive failed steps.
	//
	// Returns:
	//   - int: the failure count
	Failures() int

	// Done reports whether an exit event was handled or the generation limit ended the run.
	//
	// Returns:
	//   - bool: true once the loop should stop
	Done() bool
}

var _ Orchestrator = &orchestrator{}

// New creates an orchestrator and seeds the buffers.
//
// Parameters:
//   - r: the renderer whose surface is reconfigured on resize and surface loss
//   - buffers: the grid buffers
//   - step: the compute step, sized like buffers
//   - pr: the presenter
//   - cam: the camera whose matrix is pushed every frame
//   - seed: the initial generation, reused by Reset
//   - options: functional options
//
// Returns:
//   - Orchestrator: the orchestrator
//   - error: an error if a dependency is missing or seeding failed
func New(r renderer.Renderer, buffers grid.GridBuffers, step simulation.ComputeStep, pr presenter.Presenter, cam camera.Camera, seed grid.Seed, options ...OrchestratorBuilderOption) (Orchestrator, error) {
	if r == nil || buffers == nil || step == nil || pr == nil || cam == nil {
		return nil, errors.New("orchestrator: renderer, buffers, step, presenter and camera are required")
	}

	w, h := r.SurfaceSize()
	o := &orchestrator{
		mu:            &sync.Mutex{},
		r:             r,
		buffers:       buffers,
		step:          step,
		presenter:     pr,
		camera:        cam,
		seed:          seed,
		events:        NewEventQueue(DefaultQueueCapacity),
		maxFailures:   DefaultMaxConsecutiveFailures,
		surfaceWidth:  w,
		surfaceHeight: h,
		suspended:     w <= 0 || h <= 0,
	}
	for _, opt := range options {
		opt(o)
	}
	if o.maxFailures <= 0 {
		o.maxFailures = DefaultMaxConsecutiveFailures
	}
	o.mode = o.initialMode
	cam.Resize(w, h)

	if err := o.reset(); err != nil {
		return nil, err
	}
	o.publish()
	return o, nil
}

func (o *orchestrator) Frame(dt float32) (res FrameResult, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	defer func() {
		res.Parity, res.Generation = o.parity, o.generation
		o.publish()
	}()
	if o.done {
		return res, nil
	}

	if err = o.applyEvents(); err != nil {
		return res, err
	}
	if o.done {
		return res, nil
	}
	if ctrl := o.camera.Controller(); ctrl != nil {
		ctrl.Update(dt)
	}
	o.camera.Update()

	if o.mode == ModeRunning || o.armed {
		o.armed = false
		if err = o.advance(&res); err != nil {
			return res, err
		}
	}

	if o.suspended {
		res.Skipped = true
		return res, nil
	}
	uniform := camera.NewGPUCameraUniform(o.camera)
	if err = o.presenter.UpdateCamera(uniform.ViewProj); err != nil {
		return res, fmt.Errorf("update camera uniform: %w", err)
	}

	err = o.presenter.Render(o.buffers, o.parity)
	switch {
	case err == nil:
		o.renderFailures = 0
		res.Rendered = true
	case errors.Is(err, renderer.ErrSurfaceLost):
		common.Logger().Warn("surface lost, reconfiguring", "width", o.surfaceWidth, "height", o.surfaceHeight, "error", err)
		if rerr := o.r.Resize(o.surfaceWidth, o.surfaceHeight); rerr != nil {
			return res, fmt.Errorf("%w: reconfigure surface: %w", ErrFatal, rerr)
		}
		res.Skipped = true
	case errors.Is(err, renderer.ErrNoFrame):
		res.Skipped = true
	default:
		o.renderFailures++
		res.RenderErr = err
		if o.renderFailures >= o.maxFailures {
			return res, fmt.Errorf("%w: %d consecutive render failures: %w", ErrFatal, o.renderFailures, err)
		}
		return res, fmt.Errorf("render: %w", err)
	}
	return res, nil
}

// applyEvents applies leftover events, then the queued ones, in order. It stops at an exit. On an
// error the events after the failing one are kept for the next frame.
func (o *orchestrator) applyEvents() error {
	batch := append(o.pending, o.events.drain()...)
	o.pending = nil
	for i, ev := range batch {
		if err := o.apply(ev); err != nil {
			o.pending = append([]Event(nil), batch[i+1:]...)
			return err
		}
		if o.done {
			return nil
		}
	}
	return nil
}

func (o *orchestrator) publish() {
	o.publishedGeneration.Store(o.generation)
	o.publishedMode.Store(int32(o.mode))
}

// advance runs one step. Failures keep the parity and only escalate past the budget.
func (o *orchestrator) advance(res *FrameResult) error {
	next, err := o.step.Step(o.buffers, o.parity)
	if err != nil {
		o.failures++
		res.StepErr = err
		common.Logger().Warn("step failed", "generation", o.generation, "consecutive", o.failures, "error", err)
		if o.failures >= o.maxFailures {
			return fmt.Errorf("%w: %d consecutive step failures: %w", ErrFatal, o.failures, err)
		}
		return nil
	}

	o.failures = 0
	o.parity = next
	o.generation++
	res.Stepped = true

	if o.generationLimit > 0 && o.generation >= o.generationLimit {
		if o.exitOnLimit {
			o.done = true
		} else if o.mode == ModeRunning {
			o.setMode(ModePaused)
		}
	}
	return nil
}

func (o *orchestrator) apply(ev Event) error {
	switch ev.Kind {
	case EventSingleStep:
		o.armed = true
	case EventToggleRun:
		if o.mode == ModeRunning {
			o.setMode(ModePaused)
		} else {
			o.setMode(ModeRunning)
		}
	case EventRunStart:
		o.setMode(ModeRunning)
	case EventRunStop:
		o.setMode(ModePaused)
	case EventExit:
		o.done = true
	case EventReset:
		return o.reset()
	case EventResize:
		return o.resize(ev.Width, ev.Height)
	}
	return nil
}

func (o *orchestrator) setMode(m Mode) {
	if o.mode == m {
		return
	}
	o.mode = m
	common.Logger().Info("run mode changed", "mode", m, "generation", o.generation)
}

func (o *orchestrator) resize(width, height int) error {
	if width < 0 || height < 0 {
		return nil
	}
	if err := o.r.Resize(width, height); err != nil {
		return fmt.Errorf("%w: configure surface %dx%d: %w", ErrFatal, width, height, err)
	}
	o.surfaceWidth, o.surfaceHeight = width, height
	o.suspended = width == 0 || height == 0
	o.camera.Resize(width, height)
	return nil
}

func (o *orchestrator) reset() error {
	if err := o.buffers.Seed(o.seed); err != nil {
		return fmt.Errorf("reseed: %w", err)
	}
	o.parity = false
	o.generation = 0
	o.failures = 0
	o.renderFailures = 0
	o.armed = false
	return nil
}

func (o *orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.publish()
	return o.reset()
}

func (o *orchestrator) Events() *EventQueue {
	return o.events
}

func (o *orchestrator) Parity() grid.Parity {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.parity
}

func (o *orchestrator) Mode() Mode {
	return Mode(o.publishedMode.Load())
}

func (o *orchestrator) Generation() uint64 {
	return o.publishedGeneration.Load()
}

func (o *orchestrator) Failures() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failures
}

func (o *orchestrator) Done() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}
