//go:build windows

package webgpu

import "fmt"

// workgroupSize is the thread count per 1D workgroup. 2D dispatches
// (matmul, transpose) use tileSize x tileSize workgroups instead.
const (
	workgroupSize = 256
	tileSize      = 16
)

// maxRank caps the dimensions the strided shaders (broadcast, permute)
// can address. Uniform buffers cannot hold runtime-sized arrays, so the
// stride tables are flattened into fixed fields.
const maxRank = 6

// binarySrc renders an element-wise two-operand shader. elem is the
// WGSL element type (f32 or i32); expr combines a[idx] and b[idx].
func binarySrc(elem, expr string) string {
	return fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> a: array<%[1]s>;
@group(0) @binding(1) var<storage, read> b: array<%[1]s>;
@group(0) @binding(2) var<storage, read_write> result: array<%[1]s>;

struct Params {
    size: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(%[2]d)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx < params.size) {
        result[idx] = %[3]s;
    }
}
`, elem, workgroupSize, expr)
}

// unarySrc renders an element-wise one-operand float shader. expr maps
// x to the output value.
func unarySrc(expr string) string {
	return fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(%d)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx < params.size) {
        let x = input[idx];
        result[idx] = %s;
    }
}
`, workgroupSize, expr)
}

// scalarSrc renders an element-wise shader with one scalar operand
// passed through the uniform block. The scalar is reinterpreted from
// its raw 32-bit pattern so f32 and i32 share the template.
func scalarSrc(elem, expr string) string {
	return fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> input: array<%[1]s>;
@group(0) @binding(1) var<storage, read_write> result: array<%[1]s>;

struct Params {
    size: u32,
    s: %[1]s,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(%[2]d)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx < params.size) {
        let x = input[idx];
        result[idx] = %[3]s;
    }
}
`, elem, workgroupSize, expr)
}

// matmulSrc multiplies [M, K] @ [K, N] into [M, N], one output element
// per thread in tileSize x tileSize workgroups.
var matmulSrc = fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    m: u32,
    k: u32,
    n: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(%[1]d, %[1]d)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let row = gid.y;
    let col = gid.x;
    if (row >= params.m || col >= params.n) {
        return;
    }

    var acc: f32 = 0.0;
    for (var i: u32 = 0u; i < params.k; i = i + 1u) {
        acc = acc + a[row * params.k + i] * b[i * params.n + col];
    }
    result[row * params.n + col] = acc;
}
`, tileSize)

// laneSrc renders a shader that assigns one thread per (outer, inner)
// lane of a tensor factored around a reduction dim. body sees:
//
//	lane   thread id in [0, outer*inner)
//	base   flat offset of the lane's first element
//	step   element stride along the reduced dim (= inner)
//	n      reduced dim size
//
// Softmax, SumDim and Argmax all walk the same lane geometry, only the
// loop body differs.
func laneSrc(outType, body string) string {
	return fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<%s>;

struct Params {
    outer: u32,
    n: u32,
    inner: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(%d)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let lane = gid.x;
    if (lane >= params.outer * params.inner) {
        return;
    }
    let o = lane / params.inner;
    let i = lane %% params.inner;
    let base = o * params.n * params.inner + i;
    let step = params.inner;
    let n = params.n;
%s
}
`, outType, workgroupSize, body)
}

// softmaxBody shifts by the lane max before exponentiation so large
// logits stay finite.
const softmaxBody = `
    var max_v: f32 = input[base];
    for (var j: u32 = 1u; j < n; j = j + 1u) {
        max_v = max(max_v, input[base + j * step]);
    }
    var sum: f32 = 0.0;
    for (var j: u32 = 0u; j < n; j = j + 1u) {
        let e = exp(input[base + j * step] - max_v);
        result[base + j * step] = e;
        sum = sum + e;
    }
    let inv = 1.0 / sum;
    for (var j: u32 = 0u; j < n; j = j + 1u) {
        result[base + j * step] = result[base + j * step] * inv;
    }
`

const sumLaneBody = `
    var acc: f32 = 0.0;
    for (var j: u32 = 0u; j < n; j = j + 1u) {
        acc = acc + input[base + j * step];
    }
    result[lane] = acc;
`

const argmaxBody = `
    var best: f32 = input[base];
    var best_j: u32 = 0u;
    for (var j: u32 = 1u; j < n; j = j + 1u) {
        let v = input[base + j * step];
        if (v > best) {
            best = v;
            best_j = j;
        }
    }
    result[lane] = i32(best_j);
`

// sumDimI32Src is the int32 twin of the f32 lane sum. laneSrc templates
// on the output type only, so the integer input variant is spelled out.
var sumDimI32Src = fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> input: array<i32>;
@group(0) @binding(1) var<storage, read_write> result: array<i32>;

struct Params {
    outer: u32,
    n: u32,
    inner: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(%d)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let lane = gid.x;
    if (lane >= params.outer * params.inner) {
        return;
    }
    let o = lane / params.inner;
    let i = lane %% params.inner;
    let base = o * params.n * params.inner + i;
    var acc: i32 = 0;
    for (var j: u32 = 0u; j < params.n; j = j + 1u) {
        acc = acc + input[base + j * params.inner];
    }
    result[lane] = acc;
}
`, workgroupSize)

// reduceSumSrc folds a buffer by one factor of workgroupSize per pass
// through workgroup shared memory. Repeated passes shrink any input to
// a single element.
func reduceSumSrc(elem, zero string) string {
	return fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> input: array<%[1]s>;
@group(0) @binding(1) var<storage, read_write> result: array<%[1]s>;

struct Params {
    size: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

var<workgroup> partial: array<%[1]s, %[2]d>;

@compute @workgroup_size(%[2]d)
fn main(
    @builtin(global_invocation_id) gid: vec3<u32>,
    @builtin(local_invocation_id) lid: vec3<u32>,
    @builtin(workgroup_id) wid: vec3<u32>
) {
    if (gid.x < params.size) {
        partial[lid.x] = input[gid.x];
    } else {
        partial[lid.x] = %[3]s;
    }
    workgroupBarrier();

    for (var s: u32 = %[4]du; s > 0u; s = s >> 1u) {
        if (lid.x < s) {
            partial[lid.x] = partial[lid.x] + partial[lid.x + s];
        }
        workgroupBarrier();
    }

    if (lid.x == 0u) {
        result[wid.x] = partial[0];
    }
}
`, elem, workgroupSize, zero, workgroupSize/2)
}

// transpose2DSrc swaps the two dims of a [rows, cols] matrix.
var transpose2DSrc = fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    rows: u32,
    cols: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(%[1]d, %[1]d)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let row = gid.y;
    let col = gid.x;
    if (row >= params.rows || col >= params.cols) {
        return;
    }
    result[col * params.rows + row] = input[row * params.cols + col];
}
`, tileSize)

// gatherSrc renders a shader that maps each output element to a source
// element through per-dim stride tables: coordinates come from the
// output strides, the source index from the input strides. Zero input
// strides on a dim materialize a broadcast; permuted input strides
// materialize a transpose.
func gatherSrc(elem string) string {
	return fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> input: array<%[1]s>;
@group(0) @binding(1) var<storage, read_write> result: array<%[1]s>;

struct Params {
    rank: u32,
    size: u32,
    out_stride_0: u32,
    out_stride_1: u32,
    out_stride_2: u32,
    out_stride_3: u32,
    out_stride_4: u32,
    out_stride_5: u32,
    in_stride_0: u32,
    in_stride_1: u32,
    in_stride_2: u32,
    in_stride_3: u32,
    in_stride_4: u32,
    in_stride_5: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(%[2]d)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx >= params.size) {
        return;
    }

    var out_strides: array<u32, %[3]d>;
    out_strides[0] = params.out_stride_0;
    out_strides[1] = params.out_stride_1;
    out_strides[2] = params.out_stride_2;
    out_strides[3] = params.out_stride_3;
    out_strides[4] = params.out_stride_4;
    out_strides[5] = params.out_stride_5;

    var in_strides: array<u32, %[3]d>;
    in_strides[0] = params.in_stride_0;
    in_strides[1] = params.in_stride_1;
    in_strides[2] = params.in_stride_2;
    in_strides[3] = params.in_stride_3;
    in_strides[4] = params.in_stride_4;
    in_strides[5] = params.in_stride_5;

    var rem = idx;
    var src: u32 = 0u;
    for (var d: u32 = 0u; d < params.rank; d = d + 1u) {
        let c = rem / out_strides[d];
        rem = rem %% out_strides[d];
        src = src + c * in_strides[d];
    }
    result[idx] = input[src];
}
`, elem, workgroupSize, maxRank)
}
