// Package tensor provides the core tensor types and operations for the Anvil ML framework.
package tensor

// DType constrains the element types a Tensor may hold.
// Compile-time checked through Go generics.
type DType interface {
	~float32 | ~float64 | ~int32 | ~int64 | ~uint8
}

// DataType carries the runtime type tag of a RawTensor.
type DataType int

// Supported element types. Bool exists only as a runtime tag for mask
// tensors (one byte per element); it is not part of the DType
// constraint, and backend kernels reject it the way they reject the
// integer types.
const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
	Uint8
	Bool
)

// Size returns the width of one element in bytes.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Uint8, Bool:
		return 1
	default:
		panic("tensor: unknown data type")
	}
}

// String returns the Go-style name of the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// ParseDataType maps a name produced by String back to its DataType.
// Used when decoding checkpoint headers.
func ParseDataType(name string) (DataType, bool) {
	switch name {
	case "float32":
		return Float32, true
	case "float64":
		return Float64, true
	case "int32":
		return Int32, true
	case "int64":
		return Int64, true
	case "uint8":
		return Uint8, true
	case "bool":
		return Bool, true
	default:
		return 0, false
	}
}

// dataTypeOf resolves the DataType tag for a generic element type.
func dataTypeOf[T DType]() DataType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	default:
		panic("tensor: unsupported element type")
	}
}
