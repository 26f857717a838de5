package renderer

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-life/common"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"golang.org/x/image/draw"
)

// SoftwareBackend is the CPU backend. Textures are *image.RGBA, buffers are byte slices and the swap
// surface is an in-memory framebuffer. Compute dispatches run the pipeline's host kernel once per
// invocation, one worker task per workgroup row, and complete before EndComputeFrame returns.
type SoftwareBackend interface {
	RendererBackend
	FaultInjector

	// Framebuffer returns a copy of the last presented frame, or nil before the first Present.
	//
	// Returns:
	//   - *image.RGBA: the presented frame
	Framebuffer() *image.RGBA

	// PresentCount returns how many frames have been presented.
	//
	// Returns:
	//   - int: the number of presented frames
	PresentCount() int
}

type softwareDispatch struct {
	p      pipeline.Pipeline
	kernel pipeline.ComputeKernel
	group  *resource.BindGroup
	count  [3]uint32
}

type softwareRendererBackendImpl struct {
	mu *sync.Mutex

	surfaceWidth  int
	surfaceHeight int
	presentMode   PresentMode
	clearColor    color.RGBA

	// Frame state; frame is the framebuffer being drawn, presented the last one shown.
	frame        *image.RGBA
	frameEnded   bool
	presented    *image.RGBA
	presentCount int

	// Compute frame state. Dispatches are recorded and run when the frame ends.
	computeOpen  bool
	computeQueue []softwareDispatch

	// computePool runs workgroups. A WaitGroup per dispatch is the barrier, as pool workers
	// idle-exit rather than signal completion.
	computePool    worker.DynamicWorkerPool
	computeWorkers int
	taskID         int

	faults map[Fault]bool
}

var _ SoftwareBackend = &softwareRendererBackendImpl{}

func newSoftwareRendererBackend(clearColor wgpu.Color, workers int) SoftwareBackend {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &softwareRendererBackendImpl{
		mu:             &sync.Mutex{},
		clearColor:     toRGBA(clearColor),
		computeWorkers: workers,
		computePool:    worker.NewDynamicWorkerPool(workers, 256, 1*time.Second),
		faults:         make(map[Fault]bool),
	}
}

func toRGBA(c wgpu.Color) color.RGBA {
	channel := func(v float64) uint8 {
		if v <= 0 {
			return 0
		}
		if v >= 1 {
			return 255
		}
		return uint8(v*255 + 0.5)
	}
	return color.RGBA{R: channel(c.R), G: channel(c.G), B: channel(c.B), A: channel(c.A)}
}

func (b *softwareRendererBackendImpl) InjectFault(f Fault) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[f] = true
}

func (b *softwareRendererBackendImpl) ClearFault(f Fault) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.faults, f)
}

func (b *softwareRendererBackendImpl) ConfigureSurface(width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.faults[FaultReconfigure] {
		return errors.New("software surface: reconfiguration failed")
	}
	if width < 0 || height < 0 {
		return fmt.Errorf("software surface: invalid size %dx%d", width, height)
	}
	delete(b.faults, FaultSurfaceLost)
	b.surfaceWidth, b.surfaceHeight = width, height
	b.frame = nil
	b.frameEnded = false
	return nil
}

func (b *softwareRendererBackendImpl) SurfaceSize() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surfaceWidth, b.surfaceHeight
}

func (b *softwareRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presentMode = mode
}

// warnValidate runs naga over a shader. The software backend never executes WGSL, so a rejection
// is reported but does not stop registration.
func warnValidate(s shader.Shader) {
	if err := shader.Validate(s); err != nil {
		common.Logger().Warn("shader validation", "shader", s.Key(), "err", err)
	}
}

func softwareLayouts(descriptors map[int]wgpu.BindGroupLayoutDescriptor) map[int]*resource.BindGroupLayout {
	layouts := make(map[int]*resource.BindGroupLayout, len(descriptors))
	for g, desc := range descriptors {
		layouts[g] = resource.NewBindGroupLayout(desc, nil, nil)
	}
	return layouts
}

func (b *softwareRendererBackendImpl) RegisterRenderPipeline(p pipeline.Pipeline) error {
	descriptors, err := pipelineLayoutDescriptors(p)
	if err != nil {
		return err
	}
	vs := p.Shader(shader.ShaderTypeVertex)
	warnValidate(vs)
	warnValidate(p.Shader(shader.ShaderTypeFragment))

	state, err := newSoftwareRenderPipeline(p.PipelineKey(), vs, descriptors)
	if err != nil {
		return err
	}
	p.SetBindGroupLayouts(softwareLayouts(descriptors))
	p.SetPipeline(state)
	return nil
}

func (b *softwareRendererBackendImpl) RegisterComputePipeline(p pipeline.Pipeline) error {
	descriptors, err := pipelineLayoutDescriptors(p)
	if err != nil {
		return err
	}
	if p.Kernel() == nil {
		return fmt.Errorf("pipeline %q: the software backend needs a host kernel", p.PipelineKey())
	}
	warnValidate(p.Shader(shader.ShaderTypeCompute))

	p.SetBindGroupLayouts(softwareLayouts(descriptors))
	p.SetPipeline(p.Kernel())
	return nil
}

func (b *softwareRendererBackendImpl) CreateTexture(desc common.TextureStagingData) (*resource.Texture, error) {
	img := image.NewRGBA(image.Rect(0, 0, int(desc.Width), int(desc.Height)))
	if desc.Pixels != nil {
		copy(img.Pix, desc.Pixels)
	}
	desc.Pixels = nil
	return resource.NewTexture(desc, img, nil, nil), nil
}

func (b *softwareRendererBackendImpl) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage, data []byte) (*resource.Buffer, error) {
	buf := make([]byte, size)
	copy(buf, data)
	return resource.NewBuffer(label, size, usage, buf, nil), nil
}

func (b *softwareRendererBackendImpl) CreateSampler(config common.SamplerStagingData) (*resource.Sampler, error) {
	return resource.NewSampler(config, config, nil), nil
}

func (b *softwareRendererBackendImpl) CreateBindGroup(label string, layout *resource.BindGroupLayout, entries []resource.BindGroupEntry) (*resource.BindGroup, error) {
	return resource.NewBindGroup(label, layout, entries, nil, nil), nil
}

func (b *softwareRendererBackendImpl) WriteBuffer(buf *resource.Buffer, offset uint64, data []byte) error {
	dst, ok := buf.Handle().([]byte)
	if !ok || buf.Released() {
		return fmt.Errorf("buffer %q is not a live software buffer", buf.Label())
	}
	if offset+uint64(len(data)) > uint64(len(dst)) {
		return fmt.Errorf("buffer %q: write of %d bytes at %d overflows %d", buf.Label(), len(data), offset, len(dst))
	}
	copy(dst[offset:], data)
	return nil
}

func (b *softwareRendererBackendImpl) WriteTexture(tex *resource.Texture, pixels []byte) error {
	img, ok := tex.Handle().(*image.RGBA)
	if !ok {
		return fmt.Errorf("texture %q is not a software texture", tex.Label())
	}
	copy(img.Pix, pixels)
	return nil
}

func (b *softwareRendererBackendImpl) ReadTexture(tex *resource.Texture) ([]byte, error) {
	img, ok := tex.Handle().(*image.RGBA)
	if !ok {
		return nil, fmt.Errorf("texture %q is not a software texture", tex.Label())
	}
	out := make([]byte, len(img.Pix))
	copy(out, img.Pix)
	return out, nil
}

func (b *softwareRendererBackendImpl) BeginComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.computeOpen = true
	b.computeQueue = b.computeQueue[:0]
	return nil
}

func (b *softwareRendererBackendImpl) DispatchCompute(p pipeline.Pipeline, bindGroup *resource.BindGroup, workGroupCount [3]uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.faults[FaultDispatch] {
		return fmt.Errorf("%w: injected fault", ErrDispatchFailed)
	}
	if !b.computeOpen {
		return fmt.Errorf("%w: no compute frame in progress", ErrDispatchFailed)
	}
	kernel, ok := p.Pipeline().(pipeline.ComputeKernel)
	if !ok || kernel == nil {
		return fmt.Errorf("%w: pipeline %q is not a registered compute pipeline", ErrDispatchFailed, p.PipelineKey())
	}
	b.computeQueue = append(b.computeQueue, softwareDispatch{
		p:      p,
		kernel: kernel,
		group:  bindGroup,
		count:  workGroupCount,
	})
	return nil
}

func (b *softwareRendererBackendImpl) EndComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.computeOpen {
		return fmt.Errorf("%w: no compute frame in progress", ErrDispatchFailed)
	}
	b.computeOpen = false
	queue := b.computeQueue
	b.computeQueue = b.computeQueue[:0]

	if b.faults[FaultDeviceLost] {
		return fmt.Errorf("%w: injected fault", ErrDeviceLost)
	}
	for _, d := range queue {
		b.run(d)
	}
	return nil
}

// run executes one dispatch. Dispatches run in submission order; the workgroups of one dispatch run
// in parallel, one task per (y, z) row of workgroups, and all finish before run returns.
func (b *softwareRendererBackendImpl) run(d softwareDispatch) {
	size := d.p.Shader(shader.ShaderTypeCompute).WorkgroupSize()
	bindings := newKernelBindings(d.group)

	var wg sync.WaitGroup
	for gz := uint32(0); gz < d.count[2]; gz++ {
		for gy := uint32(0); gy < d.count[1]; gy++ {
			wg.Add(1)
			gyCap, gzCap := gy, gz
			id := b.taskID
			b.taskID++
			b.computePool.SubmitTask(worker.Task{
				ID: id,
				Do: func() (any, error) {
					defer wg.Done()
					for gx := uint32(0); gx < d.count[0]; gx++ {
						for lz := uint32(0); lz < size[2]; lz++ {
							for ly := uint32(0); ly < size[1]; ly++ {
								for lx := uint32(0); lx < size[0]; lx++ {
									d.kernel(bindings, [3]uint32{
										gx*size[0] + lx,
										gyCap*size[1] + ly,
										gzCap*size[2] + lz,
									})
								}
							}
						}
					}
					return nil, nil
				},
			})
		}
	}
	wg.Wait()
}

func (b *softwareRendererBackendImpl) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.faults[FaultSurfaceLost] {
		return fmt.Errorf("%w: injected fault", ErrSurfaceLost)
	}
	if b.surfaceWidth <= 0 || b.surfaceHeight <= 0 {
		return fmt.Errorf("%w: surface is %dx%d", ErrNoFrame, b.surfaceWidth, b.surfaceHeight)
	}
	if b.frame != nil {
		return errors.New("previous frame surface not yet presented")
	}

	b.frame = image.NewRGBA(image.Rect(0, 0, b.surfaceWidth, b.surfaceHeight))
	draw.Draw(b.frame, b.frame.Rect, image.NewUniform(b.clearColor), image.Point{}, draw.Src)
	b.frameEnded = false
	return nil
}

func (b *softwareRendererBackendImpl) DrawCall(p pipeline.Pipeline, meshProvider bind_group_provider.BindGroupProvider, instanceCount uint32, bindGroups []*resource.BindGroup) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frame == nil || b.frameEnded {
		return ErrNoFrame
	}
	if b.faults[FaultDraw] {
		return fmt.Errorf("%w: injected fault", ErrDrawFailed)
	}
	state, ok := p.Pipeline().(*softwareRenderPipeline)
	if !ok {
		return fmt.Errorf("pipeline %q is not a registered render pipeline", p.PipelineKey())
	}
	if instanceCount == 0 {
		return nil
	}
	// Instances share the quad and the bind groups, so one pass covers all of them.
	return state.drawTexturedQuad(b.frame, meshProvider, bindGroups)
}

func (b *softwareRendererBackendImpl) EndFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frame == nil || b.frameEnded {
		return ErrNoFrame
	}
	b.frameEnded = true
	return nil
}

func (b *softwareRendererBackendImpl) Present() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frame == nil || !b.frameEnded {
		return ErrNoFrame
	}
	b.presented = b.frame
	b.presentCount++
	b.frame = nil
	b.frameEnded = false
	return nil
}

func (b *softwareRendererBackendImpl) Framebuffer() *image.RGBA {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.presented == nil {
		return nil
	}
	out := image.NewRGBA(b.presented.Rect)
	copy(out.Pix, b.presented.Pix)
	return out
}

func (b *softwareRendererBackendImpl) PresentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.presentCount
}

func (b *softwareRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frame = nil
	b.presented = nil
	b.computeQueue = nil
	b.computeOpen = false
}
