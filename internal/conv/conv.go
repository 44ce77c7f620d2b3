// Package conv provides safe integer conversion helpers for the regex core.
//
// The bytecode stream packs an opcode together with direction and
// case-sensitivity flags into a single 32-bit word; this helper guards the
// narrowing conversion that packing requires so a malformed or oversized
// program fails loudly instead of silently wrapping.
package conv

import "math"

// IntToInt32 safely converts an int to int32.
// Panics if n is outside the int32 range.
//
//go:inline
func IntToInt32(n int) int32 {
	if n < math.MinInt32 || n > math.MaxInt32 {
		panic("integer overflow: int value out of int32 range")
	}
	return int32(n)
}
