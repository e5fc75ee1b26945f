// Package vector holds the float32 embedding arithmetic shared by the chunker
// and the in-process search path.
package vector

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Cosine returns dot(a,b) / (|a| * |b|).
// Zero norm or a length mismatch yields 0 instead of NaN.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Mean returns the element-wise average of a and b.
// Vectors of different length are not averaged; a copy of a is returned.
func Mean(a, b []float32) []float32 {
	out := make([]float32, len(a))
	if len(a) != len(b) {
		copy(out, a)
		return out
	}
	for i := range a {
		out[i] = (a[i] + b[i]) / 2
	}
	return out
}

// IsFinite reports whether every component is neither NaN nor Inf.
func IsFinite(v []float32) bool {
	for _, f := range v {
		x := float64(f)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Validate checks the fixed-dimension and finiteness invariants.
func Validate(v []float32, dim int) error {
	if dim > 0 && len(v) != dim {
		return fmt.Errorf("expected %d dimensions, got %d", dim, len(v))
	}
	if !IsFinite(v) {
		return fmt.Errorf("vector contains non-finite values")
	}
	return nil
}

// Encode packs v as little-endian float32, the layout used by both the
// Redis vector fields and the SQLite blob column.
func Encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Decode is the inverse of Encode.
func Decode(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
