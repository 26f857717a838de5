// Command life runs Conway's Game of Life on the GPU.
//
// Windowed (default):
//
//	life -width 2048 -height 2048
//
// Keys: Space run/pause (held with -hold-to-run), N single step, R reseed, Esc or Q quit,
// WASD or arrows pan, scroll zooms.
//
// Headless on the CPU backend, printing the final population:
//
//	life -backend software -generations 1000 -width 512 -height 512
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-life/common"
	"github.com/Carmen-Shannon/oxy-life/config"
	"github.com/Carmen-Shannon/oxy-life/engine"
	"github.com/Carmen-Shannon/oxy-life/engine/camera"
	"github.com/Carmen-Shannon/oxy-life/engine/grid"
	"github.com/Carmen-Shannon/oxy-life/engine/orchestrator"
	"github.com/Carmen-Shannon/oxy-life/engine/presenter"
	"github.com/Carmen-Shannon/oxy-life/engine/profiler"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-life/engine/simulation"
	"github.com/Carmen-Shannon/oxy-life/engine/window"
	"github.com/go-gl/mathgl/mgl32"
)

func init() {
	// GLFW must be driven from the main thread.
	runtime.LockOSThread()
}

func main() {
	cfg := config.NewConfig()
	cfg.Bind(flag.CommandLine)
	flag.Parse()

	// an unknown level falls back to info and is reported by Validate
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	common.SetLogger(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		logger.Error("life stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if cfg.ValidateShaders {
		if err := preflight(); err != nil {
			return err
		}
	}

	backend, _ := cfg.BackendType()
	present, _ := cfg.Present()
	background, _ := cfg.ClearColor()
	headless := backend == renderer.BackendTypeSoftware

	var win window.Window
	if !headless {
		w, err := window.NewWindow(
			window.WithTitle("oxy-life"),
			window.WithSize(cfg.WindowWidth, cfg.WindowHeight),
			window.WithMinSize(64, 64),
			window.WithResizable(cfg.Resizable),
		)
		if err != nil {
			return err
		}
		win = w
	}

	r, err := renderer.NewRenderer(backend, win,
		renderer.WithPresentMode(present),
		renderer.WithForceSoftwareRenderer(cfg.ForceFallbackAdapter),
		renderer.WithSurfaceSize(cfg.WindowWidth, cfg.WindowHeight),
		renderer.WithClearColor(background),
	)
	if err != nil {
		if win != nil {
			_ = win.Close()
		}
		return fmt.Errorf("create renderer: %w", err)
	}
	defer r.Release()

	seed, err := cfg.Seed()
	if err != nil {
		return err
	}
	buffers, err := grid.New(r, cfg.Width, cfg.Height)
	if err != nil {
		return err
	}
	defer buffers.Release()
	step, err := simulation.New(r, cfg.Width, cfg.Height)
	if err != nil {
		return err
	}
	defer step.Release()
	pr, err := presenter.New(r, presenter.QuadGeometry())
	if err != nil {
		return err
	}
	defer pr.Release()

	ctrl := camera.NewCameraController(
		camera.WithPosition(0, 0, float32(cfg.Zoom)),
		camera.WithZBounds(float32(cfg.MinZoom), float32(cfg.MaxZoom)),
		camera.WithSpeed(float32(cfg.PanSpeed)),
		camera.WithSensitivity(float32(cfg.ZoomSensitivity)),
	)
	cam := camera.NewCamera(
		camera.WithController(ctrl),
		camera.WithFovy(mgl32.DegToRad(float32(cfg.FOV))),
		camera.WithAspect(float32(cfg.WindowWidth)/float32(cfg.WindowHeight)),
		camera.WithNear(cameraNear),
		camera.WithFar(cameraFar),
	)

	opts := []orchestrator.OrchestratorBuilderOption{
		orchestrator.WithMaxConsecutiveFailures(cfg.MaxFailures),
		orchestrator.WithGenerationLimit(cfg.Generations),
		orchestrator.WithExitOnLimit(headless),
	}
	if cfg.Run || headless {
		opts = append(opts, orchestrator.WithInitialMode(orchestrator.ModeRunning))
	}
	o, err := orchestrator.New(r, buffers, step, pr, cam, seed, opts...)
	if err != nil {
		return err
	}

	engineOpts := []engine.EngineBuilderOption{
		engine.WithProfiling(cfg.Profile),
		engine.WithCameraController(ctrl),
		engine.WithHoldToRun(cfg.HoldToRun),
	}
	if win != nil {
		engineOpts = append(engineOpts, engine.WithWindow(win))
	}
	e := engine.NewEngine(o, engineOpts...)

	common.Logger().Info("starting",
		"backend", backend.String(),
		"grid", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"population", seed.Population(),
		"mode", o.Mode(),
	)

	start := time.Now()
	if err := e.Run(); err != nil {
		return err
	}
	if headless {
		return report(buffers, o, time.Since(start))
	}
	return nil
}

// Clip planes around the grid quad, which sits at z = 0 below a camera at most a few units up.
const (
	cameraNear = 0.1
	cameraFar  = 100
)

// preflight validates the embedded shaders with naga. Features naga does not implement only warn.
func preflight() error {
	life, err := shader.NewShaderFromSource(simulation.PipelineKey, shader.ShaderTypeCompute, simulation.Source)
	if err != nil {
		return err
	}
	quad, err := shader.NewShaderFromSource(presenter.PipelineKey, shader.ShaderTypeVertex, presenter.Source)
	if err != nil {
		return err
	}
	unsupported, err := shader.ValidateAll(life, quad)
	if err != nil {
		return fmt.Errorf("shader preflight: %w", err)
	}
	for _, u := range unsupported {
		common.Logger().Warn("shader preflight incomplete", "error", u)
	}
	return nil
}

func report(buffers grid.GridBuffers, o orchestrator.Orchestrator, elapsed time.Duration) error {
	final, err := buffers.Read(o.Parity())
	if err != nil {
		return fmt.Errorf("read final generation: %w", err)
	}
	gens := o.Generation()
	if gens == 0 {
		return errors.New("no generation was computed")
	}
	fmt.Printf("generations %s  population %s  elapsed %s  %.1f gens/s\n",
		profiler.FormatCount(gens),
		profiler.FormatCount(uint64(final.Population())),
		elapsed.Round(time.Millisecond),
		float64(gens)/elapsed.Seconds(),
	)
	return nil
}
