package shader

import (
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// vertexFormatInfo holds the wgpu vertex format of a WGSL type and its byte size.
type vertexFormatInfo struct {
	format wgpu.VertexFormat
	size   uint64
}

// typeLayout is the host-shareable size and alignment of a WGSL type.
type typeLayout struct {
	size  uint64
	align uint64
}

// parsedField is one struct member.
type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

// parsedStruct is one struct declaration.
type parsedStruct struct {
	name   string
	fields []parsedField
}

// scalarLayouts holds the size and alignment of the built-in scalar, vector and matrix types
// (https://www.w3.org/TR/WGSL/#alignment-and-size).
var scalarLayouts = map[string]typeLayout{
	"f32": {4, 4}, "i32": {4, 4}, "u32": {4, 4}, "f16": {2, 2},

	"vec2<f32>": {8, 8}, "vec2f": {8, 8}, "vec2<i32>": {8, 8}, "vec2i": {8, 8}, "vec2<u32>": {8, 8}, "vec2u": {8, 8},
	"vec3<f32>": {12, 16}, "vec3f": {12, 16}, "vec3<i32>": {12, 16}, "vec3i": {12, 16}, "vec3<u32>": {12, 16}, "vec3u": {12, 16},
	"vec4<f32>": {16, 16}, "vec4f": {16, 16}, "vec4<i32>": {16, 16}, "vec4i": {16, 16}, "vec4<u32>": {16, 16}, "vec4u": {16, 16},

	"mat2x2<f32>": {16, 8}, "mat2x2f": {16, 8},
	"mat3x3<f32>": {48, 16}, "mat3x3f": {48, 16},
	"mat4x4<f32>": {64, 16}, "mat4x4f": {64, 16},

	"atomic<u32>": {4, 4}, "atomic<i32>": {4, 4},
}

// alignUp rounds v up to a multiple of the power-of-two alignment a.
func alignUp(a, v uint64) uint64 {
	if a == 0 {
		return v
	}
	return (v + a - 1) &^ (a - 1)
}

// resolveLayout sizes a type from the scalar table, the known structs, or as a fixed-size array of either.
// Runtime-sized arrays resolve to a single element stride.
func resolveLayout(typeName string, known map[string]typeLayout) (typeLayout, bool) {
	if l, ok := scalarLayouts[typeName]; ok {
		return l, true
	}
	if l, ok := known[typeName]; ok {
		return l, true
	}
	if !strings.HasPrefix(typeName, "array<") || !strings.HasSuffix(typeName, ">") {
		return typeLayout{}, false
	}

	elem, count, sized := strings.Cut(typeName[len("array<"):len(typeName)-1], ",")
	el, ok := resolveLayout(strings.TrimSpace(elem), known)
	if !ok {
		return typeLayout{}, false
	}
	stride := alignUp(el.align, el.size)
	if !sized {
		return typeLayout{stride, el.align}, true
	}
	n, err := strconv.ParseUint(strings.TrimSpace(count), 10, 64)
	if err != nil {
		return typeLayout{}, false
	}
	return typeLayout{n * stride, el.align}, true
}

// structLayouts sizes every struct, repeating passes until structs that embed other structs resolve.
// Builtin members are ignored. A trailing runtime-sized array contributes nothing beyond its offset.
func structLayouts(structs []parsedStruct) map[string]typeLayout {
	known := make(map[string]typeLayout, len(structs))
	pending := append([]parsedStruct(nil), structs...)

	for len(pending) > 0 {
		var next []parsedStruct
		for _, ps := range pending {
			if l, ok := layoutOfStruct(ps, known); ok {
				known[ps.name] = l
			} else {
				next = append(next, ps)
			}
		}
		if len(next) == len(pending) {
			break
		}
		pending = next
	}
	return known
}

func layoutOfStruct(ps parsedStruct, known map[string]typeLayout) (typeLayout, bool) {
	var offset uint64
	maxAlign := uint64(1)
	for i, f := range ps.fields {
		if f.isBuiltin {
			continue
		}
		if i == len(ps.fields)-1 && strings.HasPrefix(f.typeName, "array<") && !strings.Contains(f.typeName, ",") {
			el, ok := resolveLayout(f.typeName, known)
			if !ok {
				return typeLayout{}, false
			}
			if el.align > maxAlign {
				maxAlign = el.align
			}
			offset = alignUp(el.align, offset)
			if offset == 0 {
				return typeLayout{el.size, maxAlign}, true
			}
			break
		}
		fl, ok := resolveLayout(f.typeName, known)
		if !ok {
			return typeLayout{}, false
		}
		offset = alignUp(fl.align, offset) + fl.size
		if fl.align > maxAlign {
			maxAlign = fl.align
		}
	}
	return typeLayout{alignUp(maxAlign, offset), maxAlign}, true
}
