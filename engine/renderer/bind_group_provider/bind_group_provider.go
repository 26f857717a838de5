package bind_group_provider

import (
	"github.com/Carmen-Shannon/oxy-life/engine/renderer/resource"
)

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	// label is a debug label used as the prefix of every resource the renderer creates for this provider.
	label string

	// buffers holds the uniform and storage buffers owned by this provider, keyed by binding index.
	buffers map[int]*resource.Buffer
	// textures holds textures owned by this provider, keyed by binding index.
	textures map[int]*resource.Texture
	// samplers holds samplers owned by this provider, keyed by binding index.
	samplers map[int]*resource.Sampler

	vertexBuffer *resource.Buffer
	indexBuffer  *resource.Buffer
	// indexCount is the number of indices used for DrawIndexed.
	indexCount int
}

// BindGroupProvider holds the long-lived GPU resources a component owns: its mesh buffers and the
// buffers, textures and samplers it binds. The Renderer fills it during initialization; bind groups
// themselves are built per use from these resources by explicit factory functions.
//
// Usage pattern:
//  1. Component creates a BindGroupProvider with a label
//  2. Component calls Renderer.InitMeshBuffers and Renderer.InitBuffers with it
//  3. Component stages writes as BufferWrite values and passes them to Renderer.WriteBuffers
//  4. Component builds bind groups from Buffer/Texture/Sampler when it draws or dispatches
type BindGroupProvider interface {
	// Release releases every GPU resource held by this provider and forgets it.
	Release()

	// Label returns the debug label for this provider.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// Buffer returns the buffer stored at a binding index.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - *resource.Buffer: the buffer or nil
	Buffer(binding int) *resource.Buffer

	// Buffers returns all buffers keyed by binding index.
	//
	// Returns:
	//   - map[int]*resource.Buffer: the buffers
	Buffers() map[int]*resource.Buffer

	// Texture returns the texture stored at a binding index.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - *resource.Texture: the texture or nil
	Texture(binding int) *resource.Texture

	// Sampler returns the sampler stored at a binding index.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - *resource.Sampler: the sampler or nil
	Sampler(binding int) *resource.Sampler

	// VertexBuffer returns the vertex buffer, or nil if not initialized.
	//
	// Returns:
	//   - *resource.Buffer: the vertex buffer or nil
	VertexBuffer() *resource.Buffer

	// IndexBuffer returns the index buffer, or nil if not initialized.
	//
	// Returns:
	//   - *resource.Buffer: the index buffer or nil
	IndexBuffer() *resource.Buffer

	// IndexCount returns the number of indices for draw calls.
	//
	// Returns:
	//   - int: the index count
	IndexCount() int

	// SetBuffer stores a buffer at a binding index.
	//
	// Parameters:
	//   - binding: the binding index
	//   - buf: the buffer
	SetBuffer(binding int, buf *resource.Buffer)

	// SetTexture stores a texture at a binding index.
	//
	// Parameters:
	//   - binding: the binding index
	//   - tex: the texture
	SetTexture(binding int, tex *resource.Texture)

	// SetVertexBuffer stores the vertex buffer.
	//
	// Parameters:
	//   - buf: the created vertex buffer
	SetVertexBuffer(buf *resource.Buffer)

	// SetIndexBuffer stores the index buffer.
	//
	// Parameters:
	//   - buf: the created index buffer
	SetIndexBuffer(buf *resource.Buffer)

	// SetIndexCount sets the number of indices for draw calls.
	//
	// Parameters:
	//   - count: the index count
	SetIndexCount(count int)
}

var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates a new BindGroupProvider with the provided options.
//
// Parameters:
//   - label: the debug label for the provider and the resources created for it
//   - options: a variadic list of options to configure the provider
//
// Returns:
//   - BindGroupProvider: a new instance of BindGroupProvider configured with the provided options
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		label:    label,
		buffers:  make(map[int]*resource.Buffer),
		textures: make(map[int]*resource.Texture),
		samplers: make(map[int]*resource.Sampler),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) Buffer(binding int) *resource.Buffer {
	return p.buffers[binding]
}

func (p *bindGroupProvider) Buffers() map[int]*resource.Buffer {
	return p.buffers
}

func (p *bindGroupProvider) Texture(binding int) *resource.Texture {
	return p.textures[binding]
}

func (p *bindGroupProvider) Sampler(binding int) *resource.Sampler {
	return p.samplers[binding]
}

func (p *bindGroupProvider) VertexBuffer() *resource.Buffer {
	return p.vertexBuffer
}

func (p *bindGroupProvider) IndexBuffer() *resource.Buffer {
	return p.indexBuffer
}

func (p *bindGroupProvider) IndexCount() int {
	return p.indexCount
}

func (p *bindGroupProvider) SetBuffer(binding int, buf *resource.Buffer) {
	p.buffers[binding] = buf
}

func (p *bindGroupProvider) SetTexture(binding int, tex *resource.Texture) {
	p.textures[binding] = tex
}

func (p *bindGroupProvider) SetVertexBuffer(buf *resource.Buffer) {
	p.vertexBuffer = buf
}

func (p *bindGroupProvider) SetIndexBuffer(buf *resource.Buffer) {
	p.indexBuffer = buf
}

func (p *bindGroupProvider) SetIndexCount(count int) {
	p.indexCount = count
}

func (p *bindGroupProvider) Release() {
	for i, buf := range p.buffers {
		if buf != nil {
			buf.Release()
		}
		delete(p.buffers, i)
	}
	for i, tex := range p.textures {
		if tex != nil {
			tex.Release()
		}
		delete(p.textures, i)
	}
	for i, s := range p.samplers {
		if s != nil {
			s.Release()
		}
		delete(p.samplers, i)
	}
	if p.vertexBuffer != nil {
		p.vertexBuffer.Release()
		p.vertexBuffer = nil
	}
	if p.indexBuffer != nil {
		p.indexBuffer.Release()
		p.indexBuffer = nil
	}
	p.indexCount = 0
}
