package autodiff

import (
	"math"
	"testing"

	"github.com/anvil-ml/anvil/internal/backend/cpu"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// Numerical gradient checking: compare tape gradients against central
// differences of the same forward function.

const (
	gcEps = 1e-3
	gcTol = 5e-2
)

// forwardFn evaluates the test function at the given parameter values
// and returns the scalar output.
type forwardFn func(params [][]float32) float64

func numericalGrad(f forwardFn, params [][]float32, pi, i int) float64 {
	orig := params[pi][i]

	params[pi][i] = orig + gcEps
	plus := f(params)
	params[pi][i] = orig - gcEps
	minus := f(params)
	params[pi][i] = orig

	return (plus - minus) / (2 * gcEps)
}

func checkGrads(t *testing.T, f forwardFn, params [][]float32, analytic [][]float32) {
	t.Helper()
	for pi := range params {
		for i := range params[pi] {
			want := numericalGrad(f, params, pi, i)
			got := float64(analytic[pi][i])
			diff := math.Abs(got - want)
			scale := math.Max(1, math.Max(math.Abs(got), math.Abs(want)))
			if diff/scale > gcTol {
				t.Errorf("param %d[%d]: analytic %v, numerical %v", pi, i, got, want)
			}
		}
	}
}

func TestGradientCheckDenseTanh(t *testing.T) {
	xShape := tensor.Shape{2, 3}
	wShape := tensor.Shape{3, 2}
	bShape := tensor.Shape{2}

	xd := []float32{0.5, -0.2, 0.1, 0.7, 0.3, -0.5}
	wd := []float32{0.1, 0.4, -0.3, 0.2, 0.6, -0.1}
	bd := []float32{0.05, -0.05}

	// f = sum(tanh(x @ w + b))
	eval := func(params [][]float32) float64 {
		be := New(cpu.New())
		x, _ := tensor.FromSlice(params[0], xShape, be)
		w, _ := tensor.FromSlice(params[1], wShape, be)
		b, _ := tensor.FromSlice(params[2], bShape, be)
		h := x.MatMul(w).Add(b)
		y := tensor.New[float32](be.Tanh(h.Raw()), be)
		return float64(y.Sum().Item())
	}

	be := New(cpu.New())
	be.Tape().StartRecording()
	x, _ := tensor.FromSlice(append([]float32(nil), xd...), xShape, be)
	w, _ := tensor.FromSlice(append([]float32(nil), wd...), wShape, be)
	b, _ := tensor.FromSlice(append([]float32(nil), bd...), bShape, be)
	h := x.MatMul(w).Add(b)
	y := tensor.New[float32](be.Tanh(h.Raw()), be)
	loss := y.Sum()

	grads := Backward(loss, be)
	analytic := [][]float32{
		grads[x.Raw()].AsFloat32(),
		grads[w.Raw()].AsFloat32(),
		grads[b.Raw()].AsFloat32(),
	}

	checkGrads(t, eval, [][]float32{xd, wd, bd}, analytic)
}

func TestGradientCheckCrossEntropy(t *testing.T) {
	shape := tensor.Shape{3, 4}
	logitsData := []float32{
		0.2, -0.5, 1.0, 0.3,
		-0.1, 0.8, 0.2, -0.7,
		0.0, 0.1, -0.2, 0.5,
	}
	targets := []int32{2, 1, 3}

	eval := func(params [][]float32) float64 {
		be := New(cpu.New())
		logits, _ := tensor.FromSlice(params[0], shape, be)
		tg, _ := tensor.FromSlice(targets, tensor.Shape{3}, be)
		loss := tensor.New[float32](be.CrossEntropy(logits.Raw(), tg.Raw()), be)
		return float64(loss.Item())
	}

	be := New(cpu.New())
	be.Tape().StartRecording()
	logits, _ := tensor.FromSlice(append([]float32(nil), logitsData...), shape, be)
	tg, _ := tensor.FromSlice(targets, tensor.Shape{3}, be)
	loss := tensor.New[float32](be.CrossEntropy(logits.Raw(), tg.Raw()), be)

	grads := Backward(loss, be)
	checkGrads(t, eval, [][]float32{logitsData}, [][]float32{grads[logits.Raw()].AsFloat32()})
}

func TestGradientCheckDivSoftmax(t *testing.T) {
	shape := tensor.Shape{2, 3}
	ad := []float32{1.2, 0.5, -0.4, 0.9, 1.5, 0.1}
	bd := []float32{2.0, 1.5, 3.0, 1.1, 2.5, 1.7}

	// f = sum(softmax(a / b, dim=-1) * a)
	eval := func(params [][]float32) float64 {
		be := New(cpu.New())
		a, _ := tensor.FromSlice(params[0], shape, be)
		b, _ := tensor.FromSlice(params[1], shape, be)
		s := a.Div(b).Softmax(-1)
		return float64(s.Mul(a).Sum().Item())
	}

	be := New(cpu.New())
	be.Tape().StartRecording()
	a, _ := tensor.FromSlice(append([]float32(nil), ad...), shape, be)
	b, _ := tensor.FromSlice(append([]float32(nil), bd...), shape, be)
	loss := a.Div(b).Softmax(-1).Mul(a).Sum()

	grads := Backward(loss, be)
	checkGrads(t, eval, [][]float32{ad, bd}, [][]float32{
		grads[a.Raw()].AsFloat32(),
		grads[b.Raw()].AsFloat32(),
	})
}
