package tensor

import (
	"math"
	"math/rand"
)

// Zeros creates a tensor filled with zeros.
//
// Example:
//
//	backend := cpu.New()
//	t := tensor.Zeros[float32](tensor.Shape{3, 4}, backend)
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	raw, err := NewRaw(shape, dataTypeOf[T](), b.Device())
	if err != nil {
		panic(err)
	}
	return New[T, B](raw, b)
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return Full[T, B](shape, 1, b)
}

// Full creates a tensor filled with value.
//
// Example:
//
//	t := tensor.Full[float32](tensor.Shape{3, 3}, 3.14, backend)
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Randn fills a float tensor from the standard normal distribution
// using the Box-Muller transform. math/rand on purpose: training wants
// seedable, reproducible randomness.
func Randn[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	fillFloats(t.Data(), func() float64 {
		u1, u2 := rand.Float64(), rand.Float64()
		return math.Sqrt(-2*math.Log(u1+1e-12)) * math.Cos(2*math.Pi*u2)
	})
	return t
}

// Rand fills a float tensor with uniform values in [0, 1).
func Rand[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	fillFloats(t.Data(), rand.Float64)
	return t
}

// fillFloats writes successive samples into a float32 or float64 slice.
func fillFloats[T DType](data []T, sample func() float64) {
	switch dst := any(data).(type) {
	case []float32:
		for i := range dst {
			dst[i] = float32(sample())
		}
	case []float64:
		for i := range dst {
			dst[i] = sample()
		}
	default:
		panic("random initialization requires a float tensor")
	}
}

// Arange creates a 1D tensor counting from start up to but excluding
// end in steps of one.
//
// Example:
//
//	t := tensor.Arange[int32](0, 10, backend) // [0 1 ... 9]
func Arange[T DType, B Backend](start, end T, b B) *Tensor[T, B] {
	n := int(float64(end) - float64(start))
	if n <= 0 {
		panic("Arange: end must be greater than start")
	}
	t := Zeros[T, B](Shape{n}, b)
	data := t.Data()
	for i := range data {
		data[i] = start + T(i)
	}
	return t
}

// Eye creates an n-by-n identity matrix.
func Eye[T DType, B Backend](n int, b B) *Tensor[T, B] {
	t := Zeros[T, B](Shape{n, n}, b)
	for i := 0; i < n; i++ {
		t.Set(1, i, i)
	}
	return t
}
