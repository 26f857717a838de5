package common

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// CeilDiv returns n / d rounded up. It is used to size workgroup dispatches that must cover
// a grid whose dimensions are not a multiple of the tile size.
//
// Parameters:
//   - n: the number of items to cover
//   - d: the tile size, must be greater than zero
//
// Returns:
//   - uint32: the number of tiles needed to cover n items
func CeilDiv(n, d uint32) uint32 {
	return (n + d - 1) / d
}
