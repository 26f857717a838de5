package shader

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// vertexFormats maps WGSL vertex input types to a wgpu vertex format and its byte size.
var vertexFormats = map[string]vertexFormatInfo{
	"f32":       {wgpu.VertexFormatFloat32, 4},
	"vec2f":     {wgpu.VertexFormatFloat32x2, 8},
	"vec2<f32>": {wgpu.VertexFormatFloat32x2, 8},
	"vec3f":     {wgpu.VertexFormatFloat32x3, 12},
	"vec3<f32>": {wgpu.VertexFormatFloat32x3, 12},
	"vec4f":     {wgpu.VertexFormatFloat32x4, 16},
	"vec4<f32>": {wgpu.VertexFormatFloat32x4, 16},
	"u32":       {wgpu.VertexFormatUint32, 4},
	"vec2u":     {wgpu.VertexFormatUint32x2, 8},
	"vec2<u32>": {wgpu.VertexFormatUint32x2, 8},
	"i32":       {wgpu.VertexFormatSint32, 4},
	"vec2i":     {wgpu.VertexFormatSint32x2, 8},
	"vec2<i32>": {wgpu.VertexFormatSint32x2, 8},
}

var sampledTextureDims = map[string]wgpu.TextureViewDimension{
	"texture_1d":         wgpu.TextureViewDimension1D,
	"texture_2d":         wgpu.TextureViewDimension2D,
	"texture_2d_array":   wgpu.TextureViewDimension2DArray,
	"texture_3d":         wgpu.TextureViewDimension3D,
	"texture_cube":       wgpu.TextureViewDimensionCube,
	"texture_cube_array": wgpu.TextureViewDimensionCubeArray,
}

var storageTextureDims = map[string]wgpu.TextureViewDimension{
	"texture_storage_1d":       wgpu.TextureViewDimension1D,
	"texture_storage_2d":       wgpu.TextureViewDimension2D,
	"texture_storage_2d_array": wgpu.TextureViewDimension2DArray,
	"texture_storage_3d":       wgpu.TextureViewDimension3D,
}

var sampleTypes = map[string]wgpu.TextureSampleType{
	"f32": wgpu.TextureSampleTypeFloat,
	"i32": wgpu.TextureSampleTypeSint,
	"u32": wgpu.TextureSampleTypeUint,
}

var storageAccessModes = map[string]wgpu.StorageTextureAccess{
	"write":      wgpu.StorageTextureAccessWriteOnly,
	"read":       wgpu.StorageTextureAccessReadOnly,
	"read_write": wgpu.StorageTextureAccessReadWrite,
}

// texelFormats lists the storage texel formats the engine can bind.
var texelFormats = map[string]wgpu.TextureFormat{
	"rgba8unorm":  wgpu.TextureFormatRGBA8Unorm,
	"rgba8snorm":  wgpu.TextureFormatRGBA8Snorm,
	"rgba8uint":   wgpu.TextureFormatRGBA8Uint,
	"rgba8sint":   wgpu.TextureFormatRGBA8Sint,
	"rgba16float": wgpu.TextureFormatRGBA16Float,
	"r32uint":     wgpu.TextureFormatR32Uint,
	"r32float":    wgpu.TextureFormatR32Float,
	"rgba32float": wgpu.TextureFormatRGBA32Float,
	"bgra8unorm":  wgpu.TextureFormatBGRA8Unorm,
}

var (
	// structRegex captures the name and body of a struct declaration.
	structRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// locationRegex captures N from @location(N).
	locationRegex = regexp.MustCompile(`@location\((\d+)\)`)

	// builtinRegex matches any @builtin(...) attribute.
	builtinRegex = regexp.MustCompile(`@builtin\(\w+\)`)

	// memberRegex captures the name and type of a struct member after its attributes.
	memberRegex = regexp.MustCompile(`^(?:@\w+(?:\([^)]*\))?\s*)*(\w+)\s*:\s*(.+)$`)

	// entryRegexes capture the function name following a stage attribute.
	entryRegexes = map[ShaderType]*regexp.Regexp{
		ShaderTypeCompute:  regexp.MustCompile(`(?s)@compute\b.*?\bfn\s+(\w+)`),
		ShaderTypeVertex:   regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)`),
		ShaderTypeFragment: regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)`),
	}

	// workgroupSizeRegex captures one to three literal dimensions from @workgroup_size.
	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?(?:,\s*(\d+)\s*)?,?\s*\)`)

	// resourceDeclRegex captures group, binding, address space, name and type of a module-scope resource, e.g.
	// @group(0) @binding(2) var<uniform> dims: vec4<f32>;
	// @group(0) @binding(0) var src: texture_2d<f32>;
	resourceDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// reflectedLayouts is the result of scanning the resource declarations of a module.
type reflectedLayouts struct {
	descriptors map[int]wgpu.BindGroupLayoutDescriptor
	varNames    map[int]map[int]string
}

// stripComments removes line comments and (nested) block comments from WGSL source.
//
// Parameters:
//   - source: raw WGSL source
//
// Returns:
//   - string: the source without comments, with line structure preserved for line comments
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		if i+1 < len(source) {
			pair := source[i : i+2]
			switch {
			case pair == "/*":
				depth++
				i++
				continue
			case pair == "*/" && depth > 0:
				depth--
				i++
				continue
			case pair == "//" && depth == 0:
				for i < len(source) && source[i] != '\n' {
					i++
				}
				if i < len(source) {
					sb.WriteByte('\n')
				}
				continue
			}
		}
		if depth == 0 {
			sb.WriteByte(source[i])
		}
	}
	return sb.String()
}

// findEntryPoint returns the name of the first function carrying the stage attribute, or "".
func findEntryPoint(cleaned string, shaderType ShaderType) string {
	re, ok := entryRegexes[shaderType]
	if !ok {
		return ""
	}
	if m := re.FindStringSubmatch(cleaned); m != nil {
		return m[1]
	}
	return ""
}

// findWorkgroupSize reads @workgroup_size, defaulting omitted dimensions to 1.
// Override expressions (non-literal sizes) are not resolved and leave the default in place.
func findWorkgroupSize(cleaned string) [3]uint32 {
	size := [3]uint32{1, 1, 1}
	m := workgroupSizeRegex.FindStringSubmatch(cleaned)
	if m == nil {
		return size
	}
	for i := range size {
		if m[i+1] == "" {
			continue
		}
		if v, err := strconv.ParseUint(m[i+1], 10, 32); err == nil && v > 0 {
			size[i] = uint32(v)
		}
	}
	return size
}

// parseStructs extracts every struct declaration and its members.
func parseStructs(cleaned string) []parsedStruct {
	matches := structRegex.FindAllStringSubmatch(cleaned, -1)
	out := make([]parsedStruct, 0, len(matches))
	for _, m := range matches {
		ps := parsedStruct{name: m[1]}
		for _, raw := range splitTopLevel(m[2]) {
			raw = strings.Join(strings.Fields(raw), " ")
			if raw == "" {
				continue
			}
			mm := memberRegex.FindStringSubmatch(raw)
			if mm == nil {
				continue
			}
			f := parsedField{
				name:      mm[1],
				typeName:  strings.TrimSpace(mm[2]),
				location:  -1,
				isBuiltin: builtinRegex.MatchString(raw),
			}
			if lm := locationRegex.FindStringSubmatch(raw); lm != nil {
				f.location, _ = strconv.Atoi(lm[1])
			}
			ps.fields = append(ps.fields, f)
		}
		out = append(out, ps)
	}
	return out
}

// splitTopLevel splits a struct body at commas that are not inside angle brackets,
// so array<T, N> stays one member.
func splitTopLevel(body string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, body[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, body[start:])
}

// vertexLayoutsFromStructs turns every pure vertex input struct (at least one @location member and no
// @builtin member) into a tightly packed vertex buffer layout. Structs with unknown member types are skipped.
func vertexLayoutsFromStructs(structs []parsedStruct) []wgpu.VertexBufferLayout {
	var layouts []wgpu.VertexBufferLayout
outer:
	for _, ps := range structs {
		hasLocation := false
		for _, f := range ps.fields {
			if f.isBuiltin {
				continue outer
			}
			hasLocation = hasLocation || f.location >= 0
		}
		if !hasLocation {
			continue
		}

		attrs := make([]wgpu.VertexAttribute, 0, len(ps.fields))
		var offset uint64
		for _, f := range ps.fields {
			info, ok := vertexFormats[f.typeName]
			if !ok {
				continue outer
			}
			attrs = append(attrs, wgpu.VertexAttribute{
				Format:         info.format,
				Offset:         offset,
				ShaderLocation: uint32(f.location),
			})
			offset += info.size
		}
		layouts = append(layouts, wgpu.VertexBufferLayout{
			ArrayStride: offset,
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes:  attrs,
		})
	}
	return layouts
}

// bindGroupLayoutsFromDecls builds one layout descriptor per @group from the module-scope resource
// declarations. Buffer entries get MinBindingSize from the bound type when it can be sized.
//
// Parameters:
//   - cleaned: WGSL source without comments
//   - visibility: the stage flag applied to every entry
//   - known: struct layouts used to size buffer bindings
//
// Returns:
//   - reflectedLayouts: descriptors and variable names keyed by group (and binding)
//   - error: an error if two declarations share a group and binding
func bindGroupLayoutsFromDecls(cleaned string, visibility wgpu.ShaderStage, known map[string]typeLayout) (reflectedLayouts, error) {
	entries := make(map[int][]wgpu.BindGroupLayoutEntry)
	out := reflectedLayouts{
		descriptors: make(map[int]wgpu.BindGroupLayoutDescriptor),
		varNames:    make(map[int]map[int]string),
	}

	for _, m := range resourceDeclRegex.FindAllStringSubmatch(cleaned, -1) {
		group, _ := strconv.Atoi(m[1])
		binding, _ := strconv.Atoi(m[2])
		addressSpace := strings.TrimSpace(m[3])
		name := m[4]
		typeName := strings.Join(strings.Fields(m[5]), " ")

		if out.varNames[group] == nil {
			out.varNames[group] = make(map[int]string)
		}
		if prev, dup := out.varNames[group][binding]; dup {
			return out, fmt.Errorf("@group(%d) @binding(%d) declared twice (%s, %s)", group, binding, prev, name)
		}
		out.varNames[group][binding] = name

		entry := layoutEntryFor(uint32(binding), visibility, addressSpace, typeName)
		if entry.Buffer.Type != wgpu.BufferBindingTypeUndefined {
			if l, ok := resolveLayout(typeName, known); ok {
				entry.Buffer.MinBindingSize = l.size
			}
		}
		entries[group] = append(entries[group], entry)
	}

	for g, es := range entries {
		sort.Slice(es, func(i, j int) bool {
			return es[i].Binding < es[j].Binding
		})
		out.descriptors[g] = wgpu.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("group %d", g),
			Entries: es,
		}
	}
	return out, nil
}

// layoutEntryFor classifies one resource declaration. Declarations with an address space are buffers,
// everything else is a handle type (sampler, sampled texture or storage texture).
func layoutEntryFor(binding uint32, visibility wgpu.ShaderStage, addressSpace, typeName string) wgpu.BindGroupLayoutEntry {
	entry := wgpu.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: visibility,
	}

	switch {
	case addressSpace == "uniform":
		entry.Buffer.Type = wgpu.BufferBindingTypeUniform
	case strings.HasPrefix(addressSpace, "storage"):
		entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		if strings.Contains(addressSpace, "read_write") {
			entry.Buffer.Type = wgpu.BufferBindingTypeStorage
		}
	case addressSpace != "":
	case typeName == "sampler":
		entry.Sampler.Type = wgpu.SamplerBindingTypeFiltering
	case typeName == "sampler_comparison":
		entry.Sampler.Type = wgpu.SamplerBindingTypeComparison
	case strings.HasPrefix(typeName, "texture_storage_"):
		base, params := splitTypeParams(typeName)
		entry.StorageTexture.ViewDimension = storageTextureDims[base]
		format, access, _ := strings.Cut(params, ",")
		entry.StorageTexture.Format = texelFormats[strings.TrimSpace(format)]
		entry.StorageTexture.Access = storageAccessModes[strings.TrimSpace(access)]
	case strings.HasPrefix(typeName, "texture_depth_"):
		entry.Texture.SampleType = wgpu.TextureSampleTypeDepth
		entry.Texture.ViewDimension = sampledTextureDims["texture_"+strings.TrimPrefix(typeName, "texture_depth_")]
	case strings.HasPrefix(typeName, "texture_multisampled_2d"):
		_, param := splitTypeParams(typeName)
		entry.Texture.SampleType = sampleTypes[param]
		entry.Texture.ViewDimension = wgpu.TextureViewDimension2D
		entry.Texture.Multisampled = true
	case strings.HasPrefix(typeName, "texture_"):
		base, param := splitTypeParams(typeName)
		entry.Texture.ViewDimension = sampledTextureDims[base]
		entry.Texture.SampleType = sampleTypes[param]
	}
	return entry
}

// splitTypeParams splits "texture_2d<f32>" into ("texture_2d", "f32"). Types without parameters
// return an empty parameter string.
func splitTypeParams(typeName string) (string, string) {
	base, rest, ok := strings.Cut(typeName, "<")
	if !ok {
		return typeName, ""
	}
	return strings.TrimSpace(base), strings.TrimSpace(strings.TrimSuffix(rest, ">"))
}
