package shader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/naga"
	"golang.org/x/sync/errgroup"
)

// ErrUnsupported marks a naga failure caused by a language feature the compiler does not implement yet,
// as opposed to a broken shader.
var ErrUnsupported = errors.New("shader: feature not supported by validator")

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// unsupportedMarkers are substrings naga uses for missing features.
var unsupportedMarkers = []string{"not yet implemented", "not supported", "unsupported", "lowering"}

// Validate compiles the shader source to SPIR-V with naga.
//
// Parameters:
//   - s: the shader to validate
//
// Returns:
//   - error: nil if the shader compiled, an error wrapping ErrUnsupported if naga lacks a feature the
//     shader uses, or any other compile error
func Validate(s Shader) error {
	spirv, err := compile(s.Source())
	if err != nil {
		msg := err.Error()
		for _, marker := range unsupportedMarkers {
			if strings.Contains(msg, marker) {
				return fmt.Errorf("shader %s: %w: %v", s.Key(), ErrUnsupported, err)
			}
		}
		return fmt.Errorf("shader %s: %w", s.Key(), err)
	}
	if len(spirv) < 4 {
		return fmt.Errorf("shader %s: naga produced %d bytes of SPIR-V", s.Key(), len(spirv))
	}
	magic := uint32(spirv[0]) | uint32(spirv[1])<<8 | uint32(spirv[2])<<16 | uint32(spirv[3])<<24
	if magic != spirvMagic {
		return fmt.Errorf("shader %s: invalid SPIR-V magic 0x%08X", s.Key(), magic)
	}
	return nil
}

// ValidateAll validates several shaders concurrently and returns the first hard failure.
// Shaders that only hit ErrUnsupported are reported through the returned slice instead.
//
// Parameters:
//   - shaders: the shaders to validate
//
// Returns:
//   - []error: one ErrUnsupported error per shader naga could not fully compile
//   - error: the first compile error that is not ErrUnsupported
func ValidateAll(shaders ...Shader) ([]error, error) {
	results := make([]error, len(shaders))
	var g errgroup.Group
	for i, s := range shaders {
		g.Go(func() error {
			err := Validate(s)
			if errors.Is(err, ErrUnsupported) {
				results[i] = err
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var unsupported []error
	for _, err := range results {
		if err != nil {
			unsupported = append(unsupported, err)
		}
	}
	return unsupported, nil
}

// compile runs naga, turning a compiler panic into an unsupported-feature error.
func compile(source string) (spirv []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("naga panic (not supported): %v", r)
		}
	}()
	return naga.Compile(source)
}
