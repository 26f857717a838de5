package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-life/common"
	"github.com/Carmen-Shannon/oxy-life/engine/camera"
	"github.com/Carmen-Shannon/oxy-life/engine/orchestrator"
	"github.com/Carmen-Shannon/oxy-life/engine/profiler"
	"github.com/Carmen-Shannon/oxy-life/engine/window"
)

// titleInterval is the number of message loop iterations between window title refreshes.
const titleInterval = 30

// engine implements the Engine interface.
// The window message loop runs on the goroutine that calls Run; frames run on a render goroutine.
type engine struct {
	wg sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once

	errMu *sync.Mutex
	err   error

	window       window.Window
	orchestrator orchestrator.Orchestrator
	controller   camera.CameraController
	title        string

	profiler         *profiler.Profiler
	profilingEnabled bool

	holdToRun        bool
	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// Engine connects a window, its input and an orchestrator, and runs the frame loop.
type Engine interface {
	// Window returns the window, nil when headless.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Orchestrator returns the orchestrator the render loop drives.
	//
	// Returns:
	//   - orchestrator.Orchestrator: the orchestrator
	Orchestrator() orchestrator.Orchestrator

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// HandleKey routes a key press or release: camera keys go to the camera controller, the rest
	// become orchestrator events. Unknown keys are ignored.
	//
	// Parameters:
	//   - keyCode: the key code (see common key codes)
	//   - pressed: true on press, false on release
	HandleKey(keyCode uint32, pressed bool)

	// HandleScroll forwards a scroll wheel delta to the camera controller.
	//
	// Parameters:
	//   - delta: the vertical scroll delta
	HandleScroll(delta float32)

	// Run runs until the window closes, an exit event is handled or a fatal error occurs.
	// With a window it must be called from the goroutine that created the window. Without one the
	// frames run on the calling goroutine.
	//
	// Returns:
	//   - error: the fatal error that stopped the loop, if any
	Run() error

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

var _ Engine = &engine{}

// NewEngine creates a new Engine and wires the window callbacks to the orchestrator's event queue.
//
// Parameters:
//   - o: the orchestrator to drive
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(o orchestrator.Orchestrator, options ...EngineBuilderOption) Engine {
	e := &engine{
		quitChannel:  make(chan struct{}),
		errMu:        &sync.Mutex{},
		orchestrator: o,
		profiler:     profiler.NewProfiler(),
		title:        "oxy-life",
	}

	for _, opt := range options {
		opt(e)
	}

	if e.window != nil {
		e.window.SetResizeCallback(func(width, height int) {
			e.orchestrator.Events().Push(orchestrator.Resize(width, height))
		})
		e.window.SetKeyDownCallback(func(keyCode uint32) {
			e.HandleKey(keyCode, true)
		})
		e.window.SetKeyUpCallback(func(keyCode uint32) {
			e.HandleKey(keyCode, false)
		})
		e.window.SetScrollCallback(e.HandleScroll)
	}

	return e
}

// KeyEvent maps a key to an orchestrator event. In hold-to-run mode Space press and release start
// and stop the run; otherwise a Space press toggles it.
//
// Parameters:
//   - keyCode: the key code
//   - pressed: true on press, false on release
//   - holdToRun: the input mode
//
// Returns:
//   - orchestrator.Event: the event
//   - bool: false if the key maps to nothing
func KeyEvent(keyCode uint32, pressed, holdToRun bool) (orchestrator.Event, bool) {
	if !pressed {
		if keyCode == common.KeySpace && holdToRun {
			return orchestrator.Event{Kind: orchestrator.EventRunStop}, true
		}
		return orchestrator.Event{}, false
	}

	switch keyCode {
	case common.KeyN:
		return orchestrator.Event{Kind: orchestrator.EventSingleStep}, true
	case common.KeySpace:
		if holdToRun {
			return orchestrator.Event{Kind: orchestrator.EventRunStart}, true
		}
		return orchestrator.Event{Kind: orchestrator.EventToggleRun}, true
	case common.KeyEsc, common.KeyQ:
		return orchestrator.Event{Kind: orchestrator.EventExit}, true
	case common.KeyR:
		return orchestrator.Event{Kind: orchestrator.EventReset}, true
	}
	return orchestrator.Event{}, false
}

func (e *engine) HandleKey(keyCode uint32, pressed bool) {
	if e.controller != nil && e.controller.ProcessKey(keyCode, pressed) {
		return
	}
	if ev, ok := KeyEvent(keyCode, pressed, e.holdToRun); ok {
		e.orchestrator.Events().Push(ev)
	}
}

func (e *engine) HandleScroll(delta float32) {
	if e.controller != nil {
		e.controller.ProcessScroll(delta)
	}
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Orchestrator() orchestrator.Orchestrator {
	return e.orchestrator
}

func (e *engine) Run() error {
	if e.window == nil {
		e.wg.Add(1)
		e.handleRender()
		return e.fatal()
	}

	frames := 0
	e.window.SetUpdateCallback(func() {
		select {
		case <-e.quitChannel:
			e.window.RequestClose()
			return
		default:
		}
		if frames++; frames%titleInterval == 0 {
			e.window.SetTitle(fmt.Sprintf("%s | generation %d | %s", e.title, e.orchestrator.Generation(), e.orchestrator.Mode()))
		}
	})

	e.wg.Add(1)
	go e.handleRender()
	e.window.ProcessMessages()

	e.signalQuit()
	e.wg.Wait()
	if err := e.window.Close(); err != nil {
		common.Logger().Warn("close window", "error", err)
	}
	return e.fatal()
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) setFatal(err error) {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	if e.err == nil {
		e.err = err
	}
}

func (e *engine) fatal() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

// handleRender runs orchestrator frames until quit, an exit event or a fatal error.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			common.Logger().Error("render goroutine recovered from panic", "panic", r)
			e.setFatal(fmt.Errorf("%w: render goroutine panic: %v", orchestrator.ErrFatal, r))
			e.signalQuit()
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		res, err := e.orchestrator.Frame(dt)
		if err != nil {
			if errors.Is(err, orchestrator.ErrFatal) {
				common.Logger().Error("frame loop stopped", "generation", res.Generation, "error", err)
				e.setFatal(err)
				e.signalQuit()
				return
			}
			common.Logger().Warn("frame failed", "generation", res.Generation, "error", err)
		}

		if e.profilingEnabled && e.profiler != nil {
			stepped := 0
			if res.Stepped {
				stepped = 1
			}
			e.profiler.Tick(stepped)
		}

		if e.orchestrator.Done() {
			e.signalQuit()
			return
		}

		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - time.Since(now); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}
