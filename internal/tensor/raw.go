package tensor

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// buffer is the reference-counted backing store shared between raw
// tensors. Sharing enables cheap clones; a refcount of exactly 1 lets
// backends reuse the storage for in-place results (copy-on-write).
type buffer struct {
	data []byte
	refs atomic.Int32
}

func newBuffer(size int) *buffer {
	b := &buffer{data: make([]byte, size)}
	b.refs.Store(1)
	return b
}

func (b *buffer) retain() { b.refs.Add(1) }

func (b *buffer) release() {
	if b.refs.Add(-1) == 0 {
		b.data = nil
	}
}

func (b *buffer) unique() bool { return b.refs.Load() == 1 }

// RawTensor is the untyped tensor representation: a byte buffer plus
// shape, strides, element type and device tags. Typed access goes
// through the As* views or the generic Tensor wrapper.
type RawTensor struct {
	buf    *buffer
	shape  Shape
	stride []int
	dtype  DataType
	device Device
}

// NewRaw allocates a zero-filled RawTensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &RawTensor{
		buf:    newBuffer(shape.NumElements() * dtype.Size()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// Shape returns the tensor's dimensions.
func (r *RawTensor) Shape() Shape { return r.shape }

// Strides returns the row-major memory strides.
func (r *RawTensor) Strides() []int { return r.stride }

// DType returns the element type tag.
func (r *RawTensor) DType() DataType { return r.dtype }

// Device returns the device tag.
func (r *RawTensor) Device() Device { return r.device }

// NumElements returns the total element count.
func (r *RawTensor) NumElements() int { return r.shape.NumElements() }

// ByteSize returns the storage size in bytes.
func (r *RawTensor) ByteSize() int { return r.NumElements() * r.dtype.Size() }

// Data exposes the raw storage. Mutations are visible to every clone
// sharing the buffer.
func (r *RawTensor) Data() []byte { return r.buf.data }

// AsFloat32 views the storage as []float32. Panics on dtype mismatch.
func (r *RawTensor) AsFloat32() []float32 {
	r.mustBe(Float32)
	return unsafe.Slice((*float32)(unsafe.Pointer(&r.buf.data[0])), r.NumElements())
}

// AsFloat64 views the storage as []float64. Panics on dtype mismatch.
func (r *RawTensor) AsFloat64() []float64 {
	r.mustBe(Float64)
	return unsafe.Slice((*float64)(unsafe.Pointer(&r.buf.data[0])), r.NumElements())
}

// AsInt32 views the storage as []int32. Panics on dtype mismatch.
func (r *RawTensor) AsInt32() []int32 {
	r.mustBe(Int32)
	return unsafe.Slice((*int32)(unsafe.Pointer(&r.buf.data[0])), r.NumElements())
}

// AsInt64 views the storage as []int64. Panics on dtype mismatch.
func (r *RawTensor) AsInt64() []int64 {
	r.mustBe(Int64)
	return unsafe.Slice((*int64)(unsafe.Pointer(&r.buf.data[0])), r.NumElements())
}

// AsUint8 views the storage as []uint8. Panics on dtype mismatch.
func (r *RawTensor) AsUint8() []uint8 {
	r.mustBe(Uint8)
	return r.buf.data
}

// AsBool views the storage as []bool. Panics on dtype mismatch.
func (r *RawTensor) AsBool() []bool {
	r.mustBe(Bool)
	return unsafe.Slice((*bool)(unsafe.Pointer(&r.buf.data[0])), r.NumElements())
}

func (r *RawTensor) mustBe(dt DataType) {
	if r.dtype != dt {
		panic(fmt.Sprintf("tensor dtype is %s, not %s", r.dtype, dt))
	}
}

// Clone returns a new RawTensor sharing this one's buffer. The copy is
// O(1); the buffer's refcount goes up so in-place reuse is suppressed
// until one of the references is released.
func (r *RawTensor) Clone() *RawTensor {
	r.buf.retain()
	return &RawTensor{
		buf:    r.buf,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		device: r.device,
	}
}

// View returns a RawTensor sharing this one's buffer under a new
// shape. The element count must match; panics otherwise. Reshape is
// built on this, so it never copies.
func (r *RawTensor) View(shape Shape) *RawTensor {
	if shape.NumElements() != r.NumElements() {
		panic(fmt.Sprintf("view: cannot view %v as %v", r.shape, shape))
	}
	r.buf.retain()
	return &RawTensor{
		buf:    r.buf,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  r.dtype,
		device: r.device,
	}
}

// CloneData returns a deep copy with its own buffer. Used where callers
// must keep a stable snapshot (parameter backups, checkpoints).
func (r *RawTensor) CloneData() *RawTensor {
	out, err := NewRaw(r.shape, r.dtype, r.device)
	if err != nil {
		panic(err) // shape already validated
	}
	copy(out.buf.data, r.buf.data)
	return out
}

// Release drops this reference; the buffer is freed when the last
// reference goes away.
func (r *RawTensor) Release() { r.buf.release() }

// IsUnique reports whether this tensor holds the only reference to its
// buffer, in which case backends may write results in place.
func (r *RawTensor) IsUnique() bool { return r.buf.unique() }

// ForceNonUnique pins the buffer so backends will not overwrite it in
// place, and returns the function that unpins it. Gradient recording
// relies on this: an op's inputs must survive until the backward pass.
//
//	defer t.ForceNonUnique()()
func (r *RawTensor) ForceNonUnique() func() {
	r.buf.retain()
	return func() { r.buf.release() }
}
