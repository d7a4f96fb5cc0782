package cpu

import (
	"fmt"

	"github.com/anvil-ml/anvil/internal/parallel"
	"github.com/anvil-ml/anvil/internal/tensor"
)

// MatMul multiplies 2D matrices: [M, K] @ [K, N] -> [M, N].
//
// The kernel uses the i-k-j loop order so the inner loop streams both b
// and the output row, and output rows are distributed across the worker
// pool.
func (c *Backend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	if a.DType() != tensor.Float32 || b.DType() != tensor.Float32 {
		panic(fmt.Sprintf("cpu matmul: float32 required, got %v @ %v", a.DType(), b.DType()))
	}
	as, bs := a.Shape(), b.Shape()
	if len(as) != 2 || len(bs) != 2 {
		panic(fmt.Sprintf("cpu matmul: 2D tensors required, got %v @ %v", as, bs))
	}
	if as[1] != bs[0] {
		panic(fmt.Sprintf("cpu matmul: inner dimensions differ: %v @ %v", as, bs))
	}

	m, k, n := as[0], as[1], bs[1]
	out := c.alloc("matmul", tensor.Shape{m, n}, tensor.Float32)

	av, bv, ov := a.AsFloat32(), b.AsFloat32(), out.AsFloat32()

	// Rows are heavy work items, so parallelize even small row counts.
	rows := c.pool
	rows.MinChunkSize = 1

	parallel.For(m, func(i int) {
		arow := av[i*k : (i+1)*k]
		orow := ov[i*n : (i+1)*n]
		for kk, x := range arow {
			brow := bv[kk*n : (kk+1)*n]
			for j, y := range brow {
				orow[j] += x * y
			}
		}
	}, rows)

	return out
}
