package renderer

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-life/common"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// readbackRowAlignment is the row pitch alignment WebGPU requires for texture to buffer copies.
const readbackRowAlignment = 256

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	surfaceFormat *wgpu.TextureFormat
	surfaceWidth  int
	surfaceHeight int
	presentMode   wgpu.PresentMode // defaults to PresentModeFifo (VSync)
	clearColor    wgpu.Color

	// Frame state for batched rendering across multiple draw calls
	frameEncoder *wgpu.CommandEncoder
	framePass    *wgpu.RenderPassEncoder
	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView

	// Compute frame state for batching all compute dispatches into a single GPU submission
	computeFrameEncoder *wgpu.CommandEncoder
}

// wgpuRendererBackend is the WebGPU backend. Besides the common backend operations it exposes the
// underlying WebGPU objects.
type wgpuRendererBackend interface {
	RendererBackend

	Device() *wgpu.Device
	Queue() *wgpu.Queue
	Instance() *wgpu.Instance
	Adapter() *wgpu.Adapter
	Surface() *wgpu.Surface
}

var _ wgpuRendererBackend = &wgpuRendererBackendImpl{}

func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool, clearColor wgpu.Color) (wgpuRendererBackend, error) {
	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeFifo,
		clearColor:  clearColor,
	}
	w.surface = w.instance.CreateSurface(surfaceDescriptor)
	if w.surface == nil {
		w.instance.Release()
		return nil, errors.New("create surface: no surface for the window")
	}

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    w.surface,
	})
	if err != nil {
		w.surface.Release()
		w.instance.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	w.adapter = a
	common.Logger().Info("adapter acquired", "fallback", forceFallbackAdapter)

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		a.Release()
		w.surface.Release()
		w.instance.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()

	return w, nil
}

func (b *wgpuRendererBackendImpl) ConfigureSurface(width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.releaseFrame()
	b.surfaceWidth, b.surfaceHeight = width, height
	if width <= 0 || height <= 0 {
		return nil
	}

	capabilities := b.surface.GetCapabilities(b.adapter)
	if len(capabilities.Formats) == 0 || len(capabilities.AlphaModes) == 0 {
		return fmt.Errorf("%w: surface reports no formats", ErrSurfaceLost)
	}
	b.surfaceFormat = &capabilities.Formats[0]

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      *b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
	return nil
}

func (b *wgpuRendererBackendImpl) SurfaceSize() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surfaceWidth, b.surfaceHeight
}

func (b *wgpuRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch mode {
	case PresentModeUncapped:
		b.presentMode = wgpu.PresentModeImmediate
	case PresentModeVSync:
		fallthrough
	default:
		b.presentMode = wgpu.PresentModeFifo
	}
}

// createLayouts creates the bind group layouts for a pipeline, stores them on it and returns them as
// a gap-free slice ready for a pipeline layout.
func (b *wgpuRendererBackendImpl) createLayouts(p pipeline.Pipeline) ([]*wgpu.BindGroupLayout, error) {
	descriptors, err := pipelineLayoutDescriptors(p)
	if err != nil {
		return nil, err
	}

	layouts := make(map[int]*resource.BindGroupLayout, len(descriptors))
	handles := make([]*wgpu.BindGroupLayout, len(descriptors))
	for g, desc := range descriptors {
		if g < 0 || g >= len(descriptors) {
			return nil, fmt.Errorf("pipeline %q: bind groups must be numbered from 0 without gaps, found group %d", p.PipelineKey(), g)
		}
		layout, layoutErr := b.device.CreateBindGroupLayout(&desc)
		if layoutErr != nil {
			return nil, fmt.Errorf("failed to create bind group layout for group %d: %w", g, layoutErr)
		}
		handles[g] = layout
		layouts[g] = resource.NewBindGroupLayout(desc, layout, layout.Release)
		common.Logger().Debug("bind group layout created", "pipeline", p.PipelineKey(), "group", g, "entries", len(desc.Entries))
	}
	p.SetBindGroupLayouts(layouts)
	return handles, nil
}

func (b *wgpuRendererBackendImpl) createModule(s shader.Shader) (*wgpu.ShaderModule, error) {
	module, err := b.device.CreateShaderModule(s.Module())
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", s.Key(), err)
	}
	return module, nil
}

func (b *wgpuRendererBackendImpl) RegisterRenderPipeline(p pipeline.Pipeline) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.surfaceFormat == nil {
		return errors.New("surface must be configured before registering a render pipeline")
	}

	bindGroupLayouts, err := b.createLayouts(p)
	if err != nil {
		return err
	}
	vertexShader := p.Shader(shader.ShaderTypeVertex)
	fragmentShader := p.Shader(shader.ShaderTypeFragment)

	vs, err := b.createModule(vertexShader)
	if err != nil {
		return err
	}
	defer vs.Release()
	fs, err := b.createModule(fragmentShader)
	if err != nil {
		return err
	}
	defer fs.Release()

	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: bindGroupLayouts,
	})
	if err != nil {
		return err
	}

	target := wgpu.ColorTargetState{
		Format:    *b.surfaceFormat,
		WriteMask: p.WriteMask(),
	}
	if p.BlendEnabled() {
		target.Blend = p.BlendState()
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  p.PipelineKey() + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: vertexShader.EntryPoint(),
			Buffers:    vertexShader.VertexLayouts(),
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: fragmentShader.EntryPoint(),
			Targets:    []wgpu.ColorTargetState{target},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  p.Topology(),
			FrontFace: p.FrontFace(),
			CullMode:  p.CullMode(),
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return err
	}

	p.SetPipeline(created)
	return nil
}

func (b *wgpuRendererBackendImpl) RegisterComputePipeline(p pipeline.Pipeline) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bindGroupLayouts, err := b.createLayouts(p)
	if err != nil {
		return err
	}
	computeShader := p.Shader(shader.ShaderTypeCompute)

	s, err := b.createModule(computeShader)
	if err != nil {
		return err
	}
	defer s.Release()

	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: bindGroupLayouts,
	})
	if err != nil {
		return err
	}

	created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  p.PipelineKey() + " Compute Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     s,
			EntryPoint: computeShader.EntryPoint(),
		},
	})
	if err != nil {
		return err
	}

	p.SetPipeline(created)
	return nil
}

func (b *wgpuRendererBackendImpl) CreateTexture(desc common.TextureStagingData) (*resource.Texture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := wgpu.Extent3D{
		Width:              desc.Width,
		Height:             desc.Height,
		DepthOrArrayLayers: 1,
	}
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         desc.Label,
		Usage:         desc.Usage,
		Dimension:     wgpu.TextureDimension2D,
		Size:          size,
		Format:        desc.Format,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("texture %q: %w", desc.Label, err)
	}

	if desc.Pixels != nil {
		b.writeTexture(tex, desc.Width, desc.Height, desc.Pixels)
	}

	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("texture %q view: %w", desc.Label, err)
	}

	desc.Pixels = nil
	return resource.NewTexture(desc, tex, view, func() {
		view.Release()
		tex.Release()
	}), nil
}

func (b *wgpuRendererBackendImpl) writeTexture(tex *wgpu.Texture, width, height uint32, pixels []byte) {
	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  width * 4,
			RowsPerImage: height,
		},
		&wgpu.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: 1,
		},
	)
}

func (b *wgpuRendererBackendImpl) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage, data []byte) (*resource.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Size:             size,
		Usage:            usage,
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, fmt.Errorf("buffer %q: %w", label, err)
	}
	if len(data) > 0 {
		b.queue.WriteBuffer(buf, 0, data)
	}
	common.Logger().Debug("buffer created", "label", label, "size", size)
	return resource.NewBuffer(label, size, usage, buf, buf.Release), nil
}

func (b *wgpuRendererBackendImpl) CreateSampler(config common.SamplerStagingData) (*resource.Sampler, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Filter and address modes are passed through as-is: their zero values are valid modes.
	samp, err := b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         config.Label,
		AddressModeU:  config.AddressModeU,
		AddressModeV:  config.AddressModeV,
		AddressModeW:  config.AddressModeW,
		MagFilter:     config.MagFilter,
		MinFilter:     config.MinFilter,
		MipmapFilter:  config.MipmapFilter,
		LodMinClamp:   config.LodMinClamp,
		LodMaxClamp:   common.Coalesce(config.LodMaxClamp, 32.0),
		MaxAnisotropy: common.Coalesce(config.MaxAnisotropy, 1),
	})
	if err != nil {
		return nil, fmt.Errorf("sampler %q: %w", config.Label, err)
	}
	return resource.NewSampler(config, samp, samp.Release), nil
}

func (b *wgpuRendererBackendImpl) CreateBindGroup(label string, layout *resource.BindGroupLayout, entries []resource.BindGroupEntry) (*resource.BindGroup, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	layoutHandle, ok := layout.Handle().(*wgpu.BindGroupLayout)
	if !ok {
		return nil, fmt.Errorf("layout %q was not created by the wgpu backend", layout.Label())
	}

	bindGroupEntries := make([]wgpu.BindGroupEntry, len(entries))
	for i, e := range entries {
		entry := wgpu.BindGroupEntry{Binding: e.Binding}
		switch {
		case e.Texture != nil:
			view, ok := e.Texture.View().(*wgpu.TextureView)
			if !ok {
				return nil, fmt.Errorf("texture %q at binding %d has no wgpu view", e.Texture.Label(), e.Binding)
			}
			entry.TextureView = view
		case e.Sampler != nil:
			samp, ok := e.Sampler.Handle().(*wgpu.Sampler)
			if !ok {
				return nil, fmt.Errorf("sampler %q at binding %d is not a wgpu sampler", e.Sampler.Label(), e.Binding)
			}
			entry.Sampler = samp
		case e.Buffer != nil:
			buf, ok := e.Buffer.Handle().(*wgpu.Buffer)
			if !ok {
				return nil, fmt.Errorf("buffer %q at binding %d is not a wgpu buffer", e.Buffer.Label(), e.Binding)
			}
			entry.Buffer = buf
			entry.Offset = 0
			entry.Size = wgpu.WholeSize
		}
		bindGroupEntries[i] = entry
	}

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label,
		Layout:  layoutHandle,
		Entries: bindGroupEntries,
	})
	if err != nil {
		return nil, err
	}
	return resource.NewBindGroup(label, layout, entries, bindGroup, bindGroup.Release), nil
}

func (b *wgpuRendererBackendImpl) WriteBuffer(buf *resource.Buffer, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	handle, ok := buf.Handle().(*wgpu.Buffer)
	if !ok || buf.Released() {
		return fmt.Errorf("buffer %q is not a live wgpu buffer", buf.Label())
	}
	if offset+uint64(len(data)) > buf.Size() {
		return fmt.Errorf("buffer %q: write of %d bytes at %d overflows %d", buf.Label(), len(data), offset, buf.Size())
	}
	b.queue.WriteBuffer(handle, offset, data)
	return nil
}

func (b *wgpuRendererBackendImpl) WriteTexture(tex *resource.Texture, pixels []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	handle, ok := tex.Handle().(*wgpu.Texture)
	if !ok {
		return fmt.Errorf("texture %q is not a wgpu texture", tex.Label())
	}
	b.writeTexture(handle, tex.Width(), tex.Height(), pixels)
	return nil
}

func (b *wgpuRendererBackendImpl) ReadTexture(tex *resource.Texture) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handle, ok := tex.Handle().(*wgpu.Texture)
	if !ok {
		return nil, fmt.Errorf("texture %q is not a wgpu texture", tex.Label())
	}

	width, height := tex.Width(), tex.Height()
	rowBytes := width * 4
	bytesPerRow := (rowBytes + readbackRowAlignment - 1) / readbackRowAlignment * readbackRowAlignment
	size := uint64(bytesPerRow) * uint64(height)

	staging, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: tex.Label() + " Readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("readback buffer: %w", err)
	}
	defer staging.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceLost, err)
	}
	encoder.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{
			Texture:  handle,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.ImageCopyBuffer{
			Layout: wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  bytesPerRow,
				RowsPerImage: height,
			},
			Buffer: staging,
		},
		&wgpu.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: 1,
		},
	)
	commandBuffer, err := encoder.Finish(nil)
	encoder.Release()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceLost, err)
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()

	done := false
	status := wgpu.BufferMapAsyncStatusSuccess
	err = staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
		done = true
	})
	if err != nil {
		return nil, fmt.Errorf("map readback buffer: %w", err)
	}
	for !done {
		b.device.Poll(true, nil)
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("%w: readback map status %v", ErrDeviceLost, status)
	}

	mapped := staging.GetMappedRange(0, uint(size))
	out := make([]byte, int(rowBytes)*int(height))
	for y := 0; y < int(height); y++ {
		copy(out[y*int(rowBytes):(y+1)*int(rowBytes)], mapped[y*int(bytesPerRow):])
	}
	staging.Unmap()
	return out, nil
}

func (b *wgpuRendererBackendImpl) BeginComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder != nil {
		b.computeFrameEncoder.Release()
		b.computeFrameEncoder = nil
	}
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceLost, err)
	}
	b.computeFrameEncoder = encoder
	return nil
}

func (b *wgpuRendererBackendImpl) EndComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return fmt.Errorf("%w: no compute frame in progress", ErrDispatchFailed)
	}

	commandBuffer, err := b.computeFrameEncoder.Finish(nil)
	b.computeFrameEncoder.Release()
	b.computeFrameEncoder = nil
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

func (b *wgpuRendererBackendImpl) DispatchCompute(p pipeline.Pipeline, bindGroup *resource.BindGroup, workGroupCount [3]uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return fmt.Errorf("%w: no compute frame in progress", ErrDispatchFailed)
	}
	computePipeline, ok := p.Pipeline().(*wgpu.ComputePipeline)
	if !ok {
		return fmt.Errorf("%w: pipeline %q is not a registered compute pipeline", ErrDispatchFailed, p.PipelineKey())
	}
	group, ok := bindGroup.Handle().(*wgpu.BindGroup)
	if !ok {
		return fmt.Errorf("%w: bind group %q is not a wgpu bind group", ErrDispatchFailed, bindGroup.Label())
	}

	pass := b.computeFrameEncoder.BeginComputePass(nil)
	pass.SetPipeline(computePipeline)
	pass.SetBindGroup(0, group, nil)
	pass.DispatchWorkgroups(workGroupCount[0], workGroupCount[1], workGroupCount[2])
	pass.End()
	pass.Release()
	return nil
}

func (b *wgpuRendererBackendImpl) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.surfaceWidth <= 0 || b.surfaceHeight <= 0 {
		return fmt.Errorf("%w: surface is %dx%d", ErrNoFrame, b.surfaceWidth, b.surfaceHeight)
	}
	// If a previous frame's surface texture is still held, do not acquire another one; wgpu-native
	// rejects a second acquire with "Surface image is already acquired".
	if b.frameSurface != nil {
		return errors.New("previous frame surface not yet presented")
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSurfaceLost, err)
	}

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return fmt.Errorf("%w: %v", ErrSurfaceLost, err)
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		view.Release()
		surfaceTexture.Release()
		return fmt.Errorf("%w: %v", ErrDeviceLost, err)
	}

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       view,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: b.clearColor,
			},
		},
	})

	b.frameEncoder = encoder
	b.framePass = pass
	b.frameSurface = surfaceTexture
	b.frameView = view

	return nil
}

func (b *wgpuRendererBackendImpl) DrawCall(p pipeline.Pipeline, meshProvider bind_group_provider.BindGroupProvider, instanceCount uint32, bindGroups []*resource.BindGroup) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.framePass == nil {
		return ErrNoFrame
	}
	renderPipeline, ok := p.Pipeline().(*wgpu.RenderPipeline)
	if !ok {
		return fmt.Errorf("pipeline %q is not a registered render pipeline", p.PipelineKey())
	}
	vertexBuffer, vok := meshProvider.VertexBuffer().Handle().(*wgpu.Buffer)
	indexBuffer, iok := meshProvider.IndexBuffer().Handle().(*wgpu.Buffer)
	if !vok || !iok {
		return fmt.Errorf("%s: mesh buffers are not wgpu buffers", meshProvider.Label())
	}

	b.framePass.SetPipeline(renderPipeline)
	for i, bg := range bindGroups {
		group, ok := bg.Handle().(*wgpu.BindGroup)
		if !ok {
			return fmt.Errorf("bind group %q is not a wgpu bind group", bg.Label())
		}
		b.framePass.SetBindGroup(uint32(i), group, nil)
	}

	b.framePass.SetVertexBuffer(0, vertexBuffer, 0, wgpu.WholeSize)
	b.framePass.SetIndexBuffer(indexBuffer, wgpu.IndexFormatUint16, 0, wgpu.WholeSize)
	b.framePass.DrawIndexed(uint32(meshProvider.IndexCount()), instanceCount, 0, 0, 0)
	return nil
}

func (b *wgpuRendererBackendImpl) EndFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.framePass == nil {
		return ErrNoFrame
	}
	b.framePass.End()
	b.framePass.Release()
	b.framePass = nil

	commandBuffer, err := b.frameEncoder.Finish(nil)
	b.frameEncoder.Release()
	b.frameEncoder = nil
	if err != nil {
		b.releaseFrame()
		return fmt.Errorf("%w: %v", ErrDeviceLost, err)
	}

	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

func (b *wgpuRendererBackendImpl) Present() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameSurface == nil {
		return ErrNoFrame
	}

	b.surface.Present()
	b.releaseFrame()
	return nil
}

// releaseFrame drops every per-frame object still held. Callers hold b.mu.
func (b *wgpuRendererBackendImpl) releaseFrame() {
	if b.framePass != nil {
		b.framePass.End()
		b.framePass.Release()
		b.framePass = nil
	}
	if b.frameEncoder != nil {
		b.frameEncoder.Release()
		b.frameEncoder = nil
	}
	if b.frameView != nil {
		b.frameView.Release()
		b.frameView = nil
	}
	if b.frameSurface != nil {
		b.frameSurface.Release()
		b.frameSurface = nil
	}
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.releaseFrame()
	if b.computeFrameEncoder != nil {
		b.computeFrameEncoder.Release()
		b.computeFrameEncoder = nil
	}
	if b.queue != nil {
		b.queue.Release()
	}
	if b.device != nil {
		b.device.Release()
	}
	if b.adapter != nil {
		b.adapter.Release()
	}
	if b.surface != nil {
		b.surface.Release()
	}
	if b.instance != nil {
		b.instance.Release()
	}
}

func (b *wgpuRendererBackendImpl) Device() *wgpu.Device {
	return b.device
}

func (b *wgpuRendererBackendImpl) Queue() *wgpu.Queue {
	return b.queue
}

func (b *wgpuRendererBackendImpl) Instance() *wgpu.Instance {
	return b.instance
}

func (b *wgpuRendererBackendImpl) Adapter() *wgpu.Adapter {
	return b.adapter
}

func (b *wgpuRendererBackendImpl) Surface() *wgpu.Surface {
	return b.surface
}
