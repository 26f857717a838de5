// Package config holds the command-line configuration of the life executable.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Carmen-Shannon/oxy-life/engine/grid"
	"github.com/Carmen-Shannon/oxy-life/engine/orchestrator"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer"
	"github.com/cogentcore/webgpu/wgpu"
)

// Config represents the command-line parameters for the application.
type Config struct {
	Width  int
	Height int

	WindowWidth  int
	WindowHeight int
	Resizable    bool
	Background   string

	Motif   string
	TilesX  int
	TilesY  int
	StrideX int
	StrideY int
	OffsetX int
	OffsetY int

	Backend              string
	PresentMode          string
	ForceFallbackAdapter bool

	FOV             float64
	Zoom            float64
	MinZoom         float64
	MaxZoom         float64
	PanSpeed        float64
	ZoomSensitivity float64

	HoldToRun   bool
	Run         bool
	Generations uint64
	MaxFailures int

	Profile         bool
	ValidateShaders bool
	LogLevel        string
}

// NewConfig returns a Config populated with the defaults: a 2048 x 2048 grid of 100 x 100 gliders.
func NewConfig() *Config {
	return &Config{
		Width:           2048,
		Height:          2048,
		WindowWidth:     720,
		WindowHeight:    720,
		Resizable:       true,
		Background:      "#666666",
		FOV:             30,
		Zoom:            1,
		MinZoom:         0.1,
		MaxZoom:         10,
		PanSpeed:        1,
		ZoomSensitivity: 8,
		Motif:           "glider",
		TilesX:          grid.DefaultTiling.CountX,
		TilesY:          grid.DefaultTiling.CountY,
		StrideX:         grid.DefaultTiling.StrideX,
		StrideY:         grid.DefaultTiling.StrideY,
		Backend:         renderer.BackendTypeWGPU.String(),
		PresentMode:     renderer.PresentModeVSync.String(),
		MaxFailures:     orchestrator.DefaultMaxConsecutiveFailures,
		ValidateShaders: true,
		LogLevel:        "info",
	}
}

// Bind attaches the configuration to the provided FlagSet.
func (c *Config) Bind(fs *flag.FlagSet) {
	fs.IntVar(&c.Width, "width", c.Width, "grid width in cells")
	fs.IntVar(&c.Height, "height", c.Height, "grid height in cells")
	fs.IntVar(&c.WindowWidth, "window-width", c.WindowWidth, "initial window width")
	fs.IntVar(&c.WindowHeight, "window-height", c.WindowHeight, "initial window height")
	fs.BoolVar(&c.Resizable, "resizable", c.Resizable, "allow resizing the window")
	fs.StringVar(&c.Background, "background", c.Background, "color around the grid as #rrggbb")

	fs.Float64Var(&c.FOV, "fov", c.FOV, "vertical field of view in degrees")
	fs.Float64Var(&c.Zoom, "zoom", c.Zoom, "initial camera height above the grid")
	fs.Float64Var(&c.MinZoom, "min-zoom", c.MinZoom, "lowest camera height")
	fs.Float64Var(&c.MaxZoom, "max-zoom", c.MaxZoom, "highest camera height")
	fs.Float64Var(&c.PanSpeed, "pan-speed", c.PanSpeed, "camera movement in units per second")
	fs.Float64Var(&c.ZoomSensitivity, "zoom-sensitivity", c.ZoomSensitivity, "camera height change per scroll step")

	fs.StringVar(&c.Motif, "motif", c.Motif, "seed motif: "+strings.Join(grid.MotifNames(), ", "))
	fs.IntVar(&c.TilesX, "tiles-x", c.TilesX, "motif copies along x")
	fs.IntVar(&c.TilesY, "tiles-y", c.TilesY, "motif copies along y")
	fs.IntVar(&c.StrideX, "stride-x", c.StrideX, "cells between motif copies along x")
	fs.IntVar(&c.StrideY, "stride-y", c.StrideY, "cells between motif copies along y")
	fs.IntVar(&c.OffsetX, "offset-x", c.OffsetX, "x of the first motif copy")
	fs.IntVar(&c.OffsetY, "offset-y", c.OffsetY, "y of the first motif copy")

	fs.StringVar(&c.Backend, "backend", c.Backend, "wgpu or software (software runs headless)")
	fs.StringVar(&c.PresentMode, "present-mode", c.PresentMode, "vsync or uncapped")
	fs.BoolVar(&c.ForceFallbackAdapter, "force-fallback-adapter", c.ForceFallbackAdapter, "request a software wgpu adapter")

	fs.BoolVar(&c.HoldToRun, "hold-to-run", c.HoldToRun, "run only while Space is held")
	fs.BoolVar(&c.Run, "run", c.Run, "start running instead of paused")
	fs.Uint64Var(&c.Generations, "generations", c.Generations, "headless: generations before exiting; windowed: pause after this many (0 = unlimited)")
	fs.IntVar(&c.MaxFailures, "max-failures", c.MaxFailures, "consecutive failed steps or renders before giving up")

	fs.BoolVar(&c.Profile, "profile", c.Profile, "log frame and generation rates every second")
	fs.BoolVar(&c.ValidateShaders, "validate-shaders", c.ValidateShaders, "validate the embedded WGSL with naga at startup")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	if c.Width <= 0 || c.Height <= 0 || c.Width > grid.MaxDimension || c.Height > grid.MaxDimension {
		errs = append(errs, fmt.Errorf("grid size %dx%d must be within 1..%d", c.Width, c.Height, grid.MaxDimension))
	}
	if c.WindowWidth <= 0 || c.WindowHeight <= 0 {
		errs = append(errs, fmt.Errorf("window size %dx%d must be positive", c.WindowWidth, c.WindowHeight))
	}
	if _, err := c.ClearColor(); err != nil {
		errs = append(errs, err)
	}
	if c.FOV <= 0 || c.FOV >= 180 {
		errs = append(errs, fmt.Errorf("fov %v must be within (0, 180) degrees", c.FOV))
	}
	if c.MinZoom <= 0 || c.MaxZoom < c.MinZoom {
		errs = append(errs, fmt.Errorf("zoom bounds %v..%v must be positive and ordered", c.MinZoom, c.MaxZoom))
	}
	if c.PanSpeed < 0 || c.ZoomSensitivity < 0 {
		errs = append(errs, errors.New("pan speed and zoom sensitivity must not be negative"))
	}
	if _, err := grid.MotifByName(c.Motif); err != nil {
		errs = append(errs, err)
	}
	if c.TilesX < 0 || c.TilesY < 0 || c.StrideX < 0 || c.StrideY < 0 {
		errs = append(errs, errors.New("tile counts and strides must not be negative"))
	}
	if _, err := c.BackendType(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Present(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.MaxFailures <= 0 {
		errs = append(errs, fmt.Errorf("max-failures %d must be positive", c.MaxFailures))
	}
	if c.Backend == renderer.BackendTypeSoftware.String() && c.Generations == 0 {
		errs = append(errs, errors.New("the software backend runs headless and needs -generations"))
	}
	return errors.Join(errs...)
}

// Tiling returns the motif tiling.
func (c *Config) Tiling() grid.Tiling {
	return grid.Tiling{
		CountX:  c.TilesX,
		CountY:  c.TilesY,
		StrideX: c.StrideX,
		StrideY: c.StrideY,
		OffsetX: c.OffsetX,
		OffsetY: c.OffsetY,
	}
}

// Seed builds the initial generation from the motif and tiling.
func (c *Config) Seed() (grid.Seed, error) {
	motif, err := grid.MotifByName(c.Motif)
	if err != nil {
		return grid.Seed{}, err
	}
	return grid.NewSeed(c.Width, c.Height, grid.SeedPattern(c.Width, c.Height, motif, c.Tiling())), nil
}

// BackendType parses -backend.
func (c *Config) BackendType() (renderer.RendererBackendType, error) {
	switch c.Backend {
	case renderer.BackendTypeWGPU.String():
		return renderer.BackendTypeWGPU, nil
	case renderer.BackendTypeSoftware.String():
		return renderer.BackendTypeSoftware, nil
	}
	return 0, fmt.Errorf("unknown backend %q", c.Backend)
}

// Present parses -present-mode.
func (c *Config) Present() (renderer.PresentMode, error) {
	switch c.PresentMode {
	case renderer.PresentModeVSync.String():
		return renderer.PresentModeVSync, nil
	case renderer.PresentModeUncapped.String():
		return renderer.PresentModeUncapped, nil
	}
	return 0, fmt.Errorf("unknown present mode %q", c.PresentMode)
}

// ClearColor parses -background.
func (c *Config) ClearColor() (wgpu.Color, error) {
	var r, g, b uint8
	if len(c.Background) != 7 {
		return wgpu.Color{}, fmt.Errorf("background %q is not #rrggbb", c.Background)
	}
	if _, err := fmt.Sscanf(c.Background, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return wgpu.Color{}, fmt.Errorf("background %q is not #rrggbb", c.Background)
	}
	return wgpu.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255, A: 1}, nil
}

// Level parses -log-level.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return l, nil
}
