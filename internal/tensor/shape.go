package tensor

import "fmt"

// Shape holds the dimensions of a tensor. An empty Shape is a scalar.
type Shape []int

// NumElements returns the total element count (1 for scalars).
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate reports an error if any dimension is non-positive.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("dimension %d must be positive, got %d", i, dim)
		}
	}
	return nil
}

// Equal reports whether two shapes match dimension for dimension.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s Shape) Clone() Shape {
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

// ComputeStrides returns row-major strides: stride[i] is the element
// distance between consecutive indices along dimension i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	acc := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= s[i]
	}
	return strides
}

// BroadcastShapes resolves the result shape of a binary op under
// NumPy broadcasting rules: shapes align from the right, and dimensions
// are compatible when equal or when one of them is 1. Missing leading
// dimensions count as 1.
//
// Returns the result shape and whether any input actually needs
// broadcasting (false when the shapes already match).
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	n := max(len(a), len(b))
	out := make(Shape, n)
	broadcast := false

	for i := 0; i < n; i++ {
		da, db := 1, 1
		if j := len(a) - 1 - i; j >= 0 {
			da = a[j]
		}
		if j := len(b) - 1 - i; j >= 0 {
			db = b[j]
		}
		switch {
		case da == db:
			out[n-1-i] = da
		case da == 1:
			out[n-1-i] = db
			broadcast = true
		case db == 1:
			out[n-1-i] = da
			broadcast = true
		default:
			return nil, false, fmt.Errorf("cannot broadcast %v with %v (dim %d: %d vs %d)", a, b, n-1-i, da, db)
		}
	}
	return out, broadcast, nil
}
