//go:build windows

package webgpu

import (
	"math"
	"testing"

	"github.com/anvil-ml/anvil/internal/backend/cpu"
	"github.com/anvil-ml/anvil/internal/tensor"
)

func tensorOf(t *testing.T, shape tensor.Shape, data []float32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.WebGPU)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	copy(raw.AsFloat32(), data)
	return raw
}

func intTensorOf(t *testing.T, shape tensor.Shape, data []int32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Int32, tensor.WebGPU)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	copy(raw.AsInt32(), data)
	return raw
}

func ramp(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i%17) - 8
	}
	return out
}

// wantClose compares against the cpu backend result element by element.
func wantClose(t *testing.T, op string, got, want *tensor.RawTensor, tol float64) {
	t.Helper()
	if !got.Shape().Equal(want.Shape()) {
		t.Fatalf("%s: shape %v, want %v", op, got.Shape(), want.Shape())
	}
	if got.DType() != want.DType() {
		t.Fatalf("%s: dtype %v, want %v", op, got.DType(), want.DType())
	}
	switch got.DType() {
	case tensor.Float32:
		g, w := got.AsFloat32(), want.AsFloat32()
		for i := range g {
			if math.Abs(float64(g[i]-w[i])) > tol {
				t.Fatalf("%s: [%d] = %g, want %g", op, i, g[i], w[i])
			}
		}
	case tensor.Int32:
		g, w := got.AsInt32(), want.AsInt32()
		for i := range g {
			if g[i] != w[i] {
				t.Fatalf("%s: [%d] = %d, want %d", op, i, g[i], w[i])
			}
		}
	}
}

func TestElementwiseMatchesCPU(t *testing.T) {
	gpu := gpuBackend(t)
	ref := cpu.New()

	shapes := []struct {
		name string
		a, b tensor.Shape
	}{
		{"same", tensor.Shape{4, 8}, tensor.Shape{4, 8}},
		{"row_broadcast", tensor.Shape{4, 8}, tensor.Shape{1, 8}},
		{"scalar_broadcast", tensor.Shape{4, 8}, tensor.Shape{1}},
		{"rank_lift", tensor.Shape{2, 3, 4}, tensor.Shape{3, 4}},
	}
	ops := []struct {
		name string
		f    func(tensor.Backend, *tensor.RawTensor, *tensor.RawTensor) *tensor.RawTensor
	}{
		{"add", func(b tensor.Backend, x, y *tensor.RawTensor) *tensor.RawTensor { return b.Add(x, y) }},
		{"sub", func(b tensor.Backend, x, y *tensor.RawTensor) *tensor.RawTensor { return b.Sub(x, y) }},
		{"mul", func(b tensor.Backend, x, y *tensor.RawTensor) *tensor.RawTensor { return b.Mul(x, y) }},
	}

	for _, sh := range shapes {
		for _, op := range ops {
			a := tensorOf(t, sh.a, ramp(sh.a.NumElements()))
			b := tensorOf(t, sh.b, ramp(sh.b.NumElements()))
			got := op.f(gpu, a, b)
			want := op.f(ref, a.CloneData(), b.CloneData())
			wantClose(t, sh.name+"/"+op.name, got, want, 1e-6)
		}
	}
}

func TestDiv(t *testing.T) {
	gpu := gpuBackend(t)

	a := tensorOf(t, tensor.Shape{4}, []float32{10, -9, 6, 1})
	b := tensorOf(t, tensor.Shape{4}, []float32{2, 3, -4, 8})
	got := gpu.Div(a, b).AsFloat32()
	want := []float32{5, -3, -1.5, 0.125}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("div[%d] = %g, want %g", i, got[i], want[i])
		}
	}
}

func TestScalarOps(t *testing.T) {
	gpu := gpuBackend(t)
	ref := cpu.New()

	x := tensorOf(t, tensor.Shape{3, 5}, ramp(15))
	wantClose(t, "add_scalar", gpu.AddScalar(x, 2.5), ref.AddScalar(x.CloneData(), 2.5), 1e-6)
	wantClose(t, "mul_scalar", gpu.MulScalar(x, -0.5), ref.MulScalar(x.CloneData(), -0.5), 1e-6)
}

func TestInt32Arithmetic(t *testing.T) {
	gpu := gpuBackend(t)

	a := intTensorOf(t, tensor.Shape{4}, []int32{7, -7, 10, 3})
	b := intTensorOf(t, tensor.Shape{4}, []int32{2, 2, -3, 3})

	sum := gpu.Add(a, b).AsInt32()
	if sum[0] != 9 || sum[3] != 6 {
		t.Errorf("int add = %v", sum)
	}

	// Integer division truncates toward zero.
	quot := gpu.Div(a, b).AsInt32()
	want := []int32{3, -3, -3, 1}
	for i := range want {
		if quot[i] != want[i] {
			t.Errorf("int div[%d] = %d, want %d", i, quot[i], want[i])
		}
	}

	shifted := gpu.AddScalar(a, 3).AsInt32()
	if shifted[1] != -4 {
		t.Errorf("int add_scalar = %v", shifted)
	}
}

func TestMatMulMatchesCPU(t *testing.T) {
	gpu := gpuBackend(t)
	ref := cpu.New()

	a := tensorOf(t, tensor.Shape{5, 7}, ramp(35))
	b := tensorOf(t, tensor.Shape{7, 3}, ramp(21))
	wantClose(t, "matmul", gpu.MatMul(a, b), ref.MatMul(a.CloneData(), b.CloneData()), 1e-4)
}

func TestUnaryMatchesCPU(t *testing.T) {
	gpu := gpuBackend(t)
	ref := cpu.New()

	pos := make([]float32, 24)
	for i := range pos {
		pos[i] = float32(i)/4 + 0.25
	}
	x := tensorOf(t, tensor.Shape{4, 6}, pos)

	wantClose(t, "exp", gpu.Exp(x), ref.Exp(x.CloneData()), 1e-4)
	wantClose(t, "log", gpu.Log(x), ref.Log(x.CloneData()), 1e-5)

	signed := tensorOf(t, tensor.Shape{4, 6}, ramp(24))
	wantClose(t, "relu", gpu.ReLU(signed), ref.ReLU(signed.CloneData()), 0)
	wantClose(t, "sigmoid", gpu.Sigmoid(signed), ref.Sigmoid(signed.CloneData()), 1e-5)
	wantClose(t, "tanh", gpu.Tanh(signed), ref.Tanh(signed.CloneData()), 1e-5)
}

func TestSoftmax(t *testing.T) {
	gpu := gpuBackend(t)
	ref := cpu.New()

	x := tensorOf(t, tensor.Shape{3, 4}, []float32{
		1, 2, 3, 4,
		100, 100, 100, 100,
		-50, 0, 50, 0,
	})

	got := gpu.Softmax(x, -1)
	wantClose(t, "softmax", got, ref.Softmax(x.CloneData(), -1), 1e-5)

	// Each row normalizes to 1.
	g := got.AsFloat32()
	for r := 0; r < 3; r++ {
		var sum float32
		for c := 0; c < 4; c++ {
			sum += g[r*4+c]
		}
		if math.Abs(float64(sum-1)) > 1e-5 {
			t.Errorf("row %d sums to %g", r, sum)
		}
	}

	// Softmax over the leading dim exercises the strided lane walk.
	y := tensorOf(t, tensor.Shape{2, 3}, []float32{1, 5, 2, 3, 0, 2})
	wantClose(t, "softmax_dim0", gpu.Softmax(y, 0), ref.Softmax(y.CloneData(), 0), 1e-5)
}

func TestSumMultiPass(t *testing.T) {
	gpu := gpuBackend(t)

	// 70k elements force three reduction passes (256-way fold per pass).
	n := 70000
	ones := make([]float32, n)
	for i := range ones {
		ones[i] = 1
	}
	x := tensorOf(t, tensor.Shape{n}, ones)

	got := gpu.Sum(x)
	if !got.Shape().Equal(tensor.Shape{1}) {
		t.Fatalf("sum shape = %v", got.Shape())
	}
	if v := got.AsFloat32()[0]; v != float32(n) {
		t.Errorf("sum = %g, want %d", v, n)
	}
}

func TestSumInt32(t *testing.T) {
	gpu := gpuBackend(t)

	vals := make([]int32, 1000)
	var want int32
	for i := range vals {
		vals[i] = int32(i % 13)
		want += vals[i]
	}
	x := intTensorOf(t, tensor.Shape{1000}, vals)

	if v := gpu.Sum(x).AsInt32()[0]; v != want {
		t.Errorf("int sum = %d, want %d", v, want)
	}
}

func TestSumDim(t *testing.T) {
	gpu := gpuBackend(t)
	ref := cpu.New()

	x := tensorOf(t, tensor.Shape{2, 3, 4}, ramp(24))
	for dim := -1; dim < 3; dim++ {
		for _, keep := range []bool{false, true} {
			got := gpu.SumDim(x, dim, keep)
			want := ref.SumDim(x.CloneData(), dim, keep)
			wantClose(t, "sum_dim", got, want, 1e-5)
		}
	}

	n := intTensorOf(t, tensor.Shape{3, 4}, []int32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
	})
	got := gpu.SumDim(n, 1, false).AsInt32()
	want := []int32{10, 26, 42}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("int sum_dim[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestArgmax(t *testing.T) {
	gpu := gpuBackend(t)

	x := tensorOf(t, tensor.Shape{3, 4}, []float32{
		0, 9, 2, 3,
		7, 7, 7, 7, // tie resolves to the first index
		-5, -2, -9, -1,
	})
	got := gpu.Argmax(x, 1)
	if got.DType() != tensor.Int32 {
		t.Fatalf("argmax dtype = %v", got.DType())
	}
	want := []int32{1, 0, 3}
	for i, w := range want {
		if v := got.AsInt32()[i]; v != w {
			t.Errorf("argmax[%d] = %d, want %d", i, v, w)
		}
	}
}

func TestReshapeIsView(t *testing.T) {
	gpu := gpuBackend(t)

	x := tensorOf(t, tensor.Shape{2, 6}, ramp(12))
	y := gpu.Reshape(x, tensor.Shape{3, 4})
	if !y.Shape().Equal(tensor.Shape{3, 4}) {
		t.Fatalf("reshape shape = %v", y.Shape())
	}

	// Same storage: writing through one view is visible in the other.
	y.AsFloat32()[0] = 42
	if x.AsFloat32()[0] != 42 {
		t.Error("reshape copied instead of viewing")
	}
}

func TestTransposeMatchesCPU(t *testing.T) {
	gpu := gpuBackend(t)
	ref := cpu.New()

	m := tensorOf(t, tensor.Shape{3, 5}, ramp(15))
	wantClose(t, "transpose2d", gpu.Transpose(m), ref.Transpose(m.CloneData()), 0)

	cube := tensorOf(t, tensor.Shape{2, 3, 4}, ramp(24))
	wantClose(t, "transpose3d", gpu.Transpose(cube, 2, 0, 1), ref.Transpose(cube.CloneData(), 2, 0, 1), 0)

	ints := intTensorOf(t, tensor.Shape{2, 3}, []int32{1, 2, 3, 4, 5, 6})
	got := gpu.Transpose(ints).AsInt32()
	want := []int32{1, 4, 2, 5, 3, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("int transpose[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
