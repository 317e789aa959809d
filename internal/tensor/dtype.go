// Package tensor provides the opaque tensor payload stored by forward-mode
// gradient holders.
package tensor

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types.
const (
	Float32 DataType = iota
	Float64
)

var dataTypes = [...]struct {
	name string
	size int
}{
	Float32: {"float32", 4},
	Float64: {"float64", 8},
}

func (dt DataType) valid() bool {
	return dt >= 0 && int(dt) < len(dataTypes)
}

// Size returns the byte size of one element. Panics on an unknown type.
func (dt DataType) Size() int {
	if !dt.valid() {
		panic("unknown data type")
	}
	return dataTypes[dt].size
}

// String returns the Go name of the element type.
func (dt DataType) String() string {
	if !dt.valid() {
		return "unknown"
	}
	return dataTypes[dt].name
}
