package tensor

import (
	"math"
	"testing"
)

// hostBackend is a minimal same-shape float32 backend for exercising
// the typed wrapper without importing a real backend package.
type hostBackend struct{}

func (hostBackend) binary(a, b *RawTensor, f func(x, y float32) float32) *RawTensor {
	if !a.Shape().Equal(b.Shape()) {
		panic("hostBackend: shape mismatch")
	}
	out, _ := NewRaw(a.Shape(), Float32, CPU)
	av, bv, ov := a.AsFloat32(), b.AsFloat32(), out.AsFloat32()
	for i := range ov {
		ov[i] = f(av[i], bv[i])
	}
	return out
}

func (h hostBackend) Add(a, b *RawTensor) *RawTensor {
	return h.binary(a, b, func(x, y float32) float32 { return x + y })
}
func (h hostBackend) Sub(a, b *RawTensor) *RawTensor {
	return h.binary(a, b, func(x, y float32) float32 { return x - y })
}
func (h hostBackend) Mul(a, b *RawTensor) *RawTensor {
	return h.binary(a, b, func(x, y float32) float32 { return x * y })
}
func (h hostBackend) Div(a, b *RawTensor) *RawTensor {
	return h.binary(a, b, func(x, y float32) float32 { return x / y })
}

func (hostBackend) unary(x *RawTensor, f func(v float32) float32) *RawTensor {
	out, _ := NewRaw(x.Shape(), Float32, CPU)
	xv, ov := x.AsFloat32(), out.AsFloat32()
	for i := range ov {
		ov[i] = f(xv[i])
	}
	return out
}

func (h hostBackend) AddScalar(x *RawTensor, s float64) *RawTensor {
	return h.unary(x, func(v float32) float32 { return v + float32(s) })
}
func (h hostBackend) MulScalar(x *RawTensor, s float64) *RawTensor {
	return h.unary(x, func(v float32) float32 { return v * float32(s) })
}
func (h hostBackend) Exp(x *RawTensor) *RawTensor {
	return h.unary(x, func(v float32) float32 { return float32(math.Exp(float64(v))) })
}
func (h hostBackend) Log(x *RawTensor) *RawTensor {
	return h.unary(x, func(v float32) float32 { return float32(math.Log(float64(v))) })
}

func (hostBackend) MatMul(a, b *RawTensor) *RawTensor {
	m, k, n := a.Shape()[0], a.Shape()[1], b.Shape()[1]
	out, _ := NewRaw(Shape{m, n}, Float32, CPU)
	av, bv, ov := a.AsFloat32(), b.AsFloat32(), out.AsFloat32()
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var acc float32
			for p := 0; p < k; p++ {
				acc += av[i*k+p] * bv[p*n+j]
			}
			ov[i*n+j] = acc
		}
	}
	return out
}

func (hostBackend) Softmax(x *RawTensor, dim int) *RawTensor { panic("not implemented") }
func (hostBackend) Sum(x *RawTensor) *RawTensor              { panic("not implemented") }
func (hostBackend) SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor {
	panic("not implemented")
}
func (hostBackend) Argmax(x *RawTensor, dim int) *RawTensor { panic("not implemented") }

func (hostBackend) Reshape(x *RawTensor, shape Shape) *RawTensor {
	if shape.NumElements() != x.NumElements() {
		panic("hostBackend: reshape element count mismatch")
	}
	out := x.Clone()
	out.shape = shape.Clone()
	out.stride = shape.ComputeStrides()
	return out
}
func (hostBackend) Transpose(x *RawTensor, axes ...int) *RawTensor { panic("not implemented") }
func (hostBackend) Name() string                                   { return "host" }
func (hostBackend) Device() Device                                 { return CPU }

func TestFromSliceRoundTrip(t *testing.T) {
	b := hostBackend{}
	data := []float32{1, 2, 3, 4, 5, 6}
	x, err := FromSlice(data, Shape{2, 3}, b)
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	if !x.Shape().Equal(Shape{2, 3}) {
		t.Fatalf("shape = %v", x.Shape())
	}
	if x.At(1, 2) != 6 {
		t.Errorf("At(1,2) = %v, want 6", x.At(1, 2))
	}
	x.Set(42, 0, 1)
	if x.Data()[1] != 42 {
		t.Errorf("Set did not write through: %v", x.Data())
	}
}

func TestFromSliceShapeMismatch(t *testing.T) {
	if _, err := FromSlice([]float32{1, 2, 3}, Shape{2, 2}, hostBackend{}); err == nil {
		t.Fatal("expected error for 3 elements into shape [2,2]")
	}
}

func TestArithmetic(t *testing.T) {
	b := hostBackend{}
	x, _ := FromSlice([]float32{1, 2, 3, 4}, Shape{2, 2}, b)
	y, _ := FromSlice([]float32{10, 20, 30, 40}, Shape{2, 2}, b)

	sum := x.Add(y).Data()
	want := []float32{11, 22, 33, 44}
	for i := range want {
		if sum[i] != want[i] {
			t.Fatalf("Add = %v, want %v", sum, want)
		}
	}

	prod := x.MulScalar(2).Data()
	for i, v := range []float32{2, 4, 6, 8} {
		if prod[i] != v {
			t.Fatalf("MulScalar = %v", prod)
		}
	}
}

func TestMatMul(t *testing.T) {
	b := hostBackend{}
	x, _ := FromSlice([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3}, b)
	id := Eye[float32](3, b)
	got := x.MatMul(id).Data()
	for i, v := range []float32{1, 2, 3, 4, 5, 6} {
		if got[i] != v {
			t.Fatalf("MatMul with identity = %v", got)
		}
	}
}

func TestItem(t *testing.T) {
	b := hostBackend{}
	s, _ := FromSlice([]float32{7}, Shape{1}, b)
	if s.Item() != 7 {
		t.Errorf("Item = %v", s.Item())
	}

	defer func() {
		if recover() == nil {
			t.Error("Item on multi-element tensor did not panic")
		}
	}()
	m, _ := FromSlice([]float32{1, 2}, Shape{2}, b)
	m.Item()
}

func TestCloneSharesBuffer(t *testing.T) {
	b := hostBackend{}
	x, _ := FromSlice([]float32{1, 2, 3}, Shape{3}, b)
	if !x.Raw().IsUnique() {
		t.Fatal("fresh tensor should be unique")
	}

	c := x.Clone()
	if x.Raw().IsUnique() {
		t.Error("clone should pin the shared buffer")
	}

	// Writes alias both views.
	c.Data()[0] = 99
	if x.Data()[0] != 99 {
		t.Error("clone does not share storage")
	}

	c.Raw().Release()
	if !x.Raw().IsUnique() {
		t.Error("release should return uniqueness")
	}
}

func TestDetachBreaksIdentity(t *testing.T) {
	b := hostBackend{}
	x, _ := FromSlice([]float32{1, 2}, Shape{2}, b)
	d := x.Detach()
	if d.Raw() == x.Raw() {
		t.Error("Detach must produce a distinct RawTensor identity")
	}
	if &d.Data()[0] != &x.Data()[0] {
		t.Error("Detach must share storage")
	}
}

func TestForceNonUnique(t *testing.T) {
	x, _ := NewRaw(Shape{4}, Float32, CPU)
	release := x.ForceNonUnique()
	if x.IsUnique() {
		t.Error("ForceNonUnique should suppress uniqueness")
	}
	release()
	if !x.IsUnique() {
		t.Error("release should restore uniqueness")
	}
}

func TestCloneData(t *testing.T) {
	x, _ := NewRaw(Shape{3}, Float32, CPU)
	x.AsFloat32()[0] = 5
	y := x.CloneData()
	y.AsFloat32()[0] = 9
	if x.AsFloat32()[0] != 5 {
		t.Error("CloneData must not alias the source")
	}
}

func TestCreationHelpers(t *testing.T) {
	b := hostBackend{}
	ones := Ones[float32](Shape{2, 2}, b)
	for _, v := range ones.Data() {
		if v != 1 {
			t.Fatalf("Ones = %v", ones.Data())
		}
	}

	ar := Arange[int32](3, 7, b)
	for i, v := range []int32{3, 4, 5, 6} {
		if ar.Data()[i] != v {
			t.Fatalf("Arange = %v", ar.Data())
		}
	}

	r := Rand[float32](Shape{100}, b)
	for _, v := range r.Data() {
		if v < 0 || v >= 1 {
			t.Fatalf("Rand out of range: %v", v)
		}
	}

	n := Randn[float64](Shape{1000}, b)
	var mean float64
	for _, v := range n.Data() {
		mean += v
	}
	mean /= 1000
	if math.Abs(mean) > 0.2 {
		t.Errorf("Randn mean too far from zero: %v", mean)
	}
}

func TestTransfer(t *testing.T) {
	b := hostBackend{}
	x, _ := FromSlice([]float32{1, 2, 3}, Shape{3}, b)
	y := Transfer(x, b)
	if &y.Data()[0] == &x.Data()[0] {
		t.Error("Transfer must copy storage")
	}
	for i := range x.Data() {
		if y.Data()[i] != x.Data()[i] {
			t.Fatalf("Transfer data mismatch at %d", i)
		}
	}
}
