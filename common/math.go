package common

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// Float32sToBytes serializes float32 values into a little-endian byte buffer.
// Unlike SliceToBytes the result is a copy, so it is safe to keep after the source changes.
//
// Parameters:
//   - values: the float32 values to serialize
//
// Returns:
//   - []byte: a new buffer of len(values)*4 bytes
func Float32sToBytes(values ...float32) []byte {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// BytesToFloat32s decodes a little-endian byte buffer into float32 values.
// Trailing bytes that do not form a full value are ignored.
//
// Parameters:
//   - data: the bytes to decode
//
// Returns:
//   - []float32: the decoded values
func BytesToFloat32s(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// Uint16sToBytes serializes uint16 values (e.g. index data) into a little-endian byte buffer.
//
// Parameters:
//   - values: the uint16 values to serialize
//
// Returns:
//   - []byte: a new buffer of len(values)*2 bytes
func Uint16sToBytes(values ...uint16) []byte {
	buf := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(buf[i*2:], v)
	}
	return buf
}
