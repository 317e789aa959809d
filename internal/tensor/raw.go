package tensor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Device represents the compute device a tensor lives on.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	CUDA
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case CUDA:
		return "CUDA"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// tensorBuffer is a reference-counted byte buffer shared between clones.
type tensorBuffer struct {
	data     []byte
	refCount atomic.Int32
	mu       sync.Mutex // guards data on the final release
}

func newTensorBuffer(size int) *tensorBuffer {
	buf := &tensorBuffer{
		data: make([]byte, size),
	}
	buf.refCount.Store(1)
	return buf
}

func (tb *tensorBuffer) addRef() {
	tb.refCount.Add(1)
}

func (tb *tensorBuffer) release() {
	if tb.refCount.Add(-1) == 0 {
		tb.mu.Lock()
		defer tb.mu.Unlock()
		tb.data = nil
	}
}

// RawTensor is the untyped payload stored as a forward gradient.
//
// The zero value is the undefined tensor: it has no buffer, no shape and
// reports Defined() == false. Forward-gradient storage hands out a single
// shared undefined tensor for missing entries, so every method below must
// tolerate a nil buffer.
type RawTensor struct {
	buffer *tensorBuffer
	shape  Shape
	stride []int
	dtype  DataType
	device Device
}

// Undefined returns a new undefined tensor.
func Undefined() *RawTensor {
	return &RawTensor{}
}

// NewRaw allocates a zero-filled tensor with the given shape and type.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	return &RawTensor{
		buffer: newTensorBuffer(shape.NumElements() * dtype.Size()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// FromFloat32 copies data into a new float32 CPU tensor of the given shape.
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v", len(data), shape)
	}
	r, err := NewRaw(shape, Float32, CPU)
	if err != nil {
		return nil, err
	}
	copy(r.AsFloat32(), data)
	return r, nil
}

// FromFloat64 copies data into a new float64 CPU tensor of the given shape.
func FromFloat64(data []float64, shape Shape) (*RawTensor, error) {
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v", len(data), shape)
	}
	r, err := NewRaw(shape, Float64, CPU)
	if err != nil {
		return nil, err
	}
	copy(r.AsFloat64(), data)
	return r, nil
}

// Defined reports whether the tensor carries a buffer.
func (r *RawTensor) Defined() bool {
	return r != nil && r.buffer != nil
}

// Shape returns the tensor's shape. Undefined tensors have a nil shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the row-major strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements, 0 when undefined.
func (r *RawTensor) NumElements() int {
	if !r.Defined() {
		return 0
	}
	return r.shape.NumElements()
}

// Data returns the raw bytes, nil when undefined.
func (r *RawTensor) Data() []byte {
	if !r.Defined() {
		return nil
	}
	return r.buffer.data
}

// AsFloat32 reinterprets the buffer as []float32.
// Panics if the dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	data := r.Data()
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), r.NumElements())
}

// AsFloat64 reinterprets the buffer as []float64.
// Panics if the dtype is not Float64.
func (r *RawTensor) AsFloat64() []float64 {
	if r.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", r.dtype))
	}
	data := r.Data()
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*float64)(unsafe.Pointer(&data[0])), r.NumElements())
}

// Clone returns a tensor sharing the same buffer.
// Cloning an undefined tensor returns another undefined tensor.
func (r *RawTensor) Clone() *RawTensor {
	if !r.Defined() {
		return Undefined()
	}
	r.buffer.addRef()
	return &RawTensor{
		buffer: r.buffer,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		device: r.device,
	}
}

// Release drops one reference to the shared buffer.
func (r *RawTensor) Release() {
	if r.Defined() {
		r.buffer.release()
	}
}

// SameLayout reports whether r and other agree on shape, dtype and device.
// Two undefined tensors share a layout; an undefined and a defined one do not.
func (r *RawTensor) SameLayout(other *RawTensor) bool {
	if !r.Defined() || !other.Defined() {
		return !r.Defined() && !other.Defined()
	}
	return r.dtype == other.dtype && r.device == other.device && r.shape.Equal(other.shape)
}

// String implements fmt.Stringer.
func (r *RawTensor) String() string {
	if !r.Defined() {
		return "RawTensor(undefined)"
	}
	return fmt.Sprintf("RawTensor(%s, %v, %s)", r.dtype, r.shape, r.device)
}
