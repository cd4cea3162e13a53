// Package tensor provides the tensor value type exchanged between the graph
// runtime and its compute backends.
package tensor

// DataType represents runtime element type information for tensors.
type DataType int

// Supported element types.
const (
	Float32 DataType = iota
	Int32
	Bool
	String
)

// Size returns the byte size of one element. Strings have no fixed size.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Bool:
		return 1
	case String:
		return 0
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	case Bool:
		return "bool"
	case String:
		return "string"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether elements can be represented as float32 for
// upload to a compute device. Bool counts as numeric (0 or 1).
func (dt DataType) IsNumeric() bool {
	return dt == Float32 || dt == Int32 || dt == Bool
}

// ParseDataType returns the DataType for its String form.
func ParseDataType(s string) (DataType, bool) {
	switch s {
	case "float32", "float":
		return Float32, true
	case "int32":
		return Int32, true
	case "bool":
		return Bool, true
	case "string":
		return String, true
	default:
		return 0, false
	}
}
