package tensor

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrNoData is returned when a tensor holds neither a buffer nor a source.
var ErrNoData = errors.New("tensor: no data")

// dataState distinguishes eager tensors from deferred ones.
type dataState int

const (
	eager dataState = iota
	deferred
)

// Source produces the elements of a deferred tensor on demand.
// ReadFloat32 returns the elements in row-major order; the caller converts
// them to the tensor's element type.
type Source interface {
	ReadFloat32() ([]float32, error)
}

// Tensor is an immutable logical value: a shape, an element type and either
// an element buffer (Eager) or a Source that produces it (Deferred).
//
// The first access to the elements of a Deferred tensor reads the source and
// transitions the tensor in place to Eager. Further accesses are free.
type Tensor struct {
	id    ID
	shape Shape
	dtype DataType

	mu     sync.Mutex
	state  dataState
	source Source

	floats  []float32
	ints    []int32
	bools   []bool
	strings []string
}

// New creates a zero-filled eager tensor.
func New(shape Shape, dtype DataType) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	t := &Tensor{id: NextID(), shape: shape.Clone(), dtype: dtype}
	n := shape.NumElements()
	switch dtype {
	case Float32:
		t.floats = make([]float32, n)
	case Int32:
		t.ints = make([]int32, n)
	case Bool:
		t.bools = make([]bool, n)
	case String:
		t.strings = make([]string, n)
	default:
		return nil, fmt.Errorf("tensor: unsupported data type %v", dtype)
	}
	return t, nil
}

// FromFloat32 creates an eager float32 tensor that takes ownership of data.
func FromFloat32(shape Shape, data []float32) (*Tensor, error) {
	if err := checkLen(shape, len(data)); err != nil {
		return nil, err
	}
	return &Tensor{id: NextID(), shape: shape.Clone(), dtype: Float32, floats: data}, nil
}

// FromInt32 creates an eager int32 tensor that takes ownership of data.
func FromInt32(shape Shape, data []int32) (*Tensor, error) {
	if err := checkLen(shape, len(data)); err != nil {
		return nil, err
	}
	return &Tensor{id: NextID(), shape: shape.Clone(), dtype: Int32, ints: data}, nil
}

// FromBool creates an eager bool tensor that takes ownership of data.
func FromBool(shape Shape, data []bool) (*Tensor, error) {
	if err := checkLen(shape, len(data)); err != nil {
		return nil, err
	}
	return &Tensor{id: NextID(), shape: shape.Clone(), dtype: Bool, bools: data}, nil
}

// FromStrings creates an eager string tensor that takes ownership of data.
func FromStrings(shape Shape, data []string) (*Tensor, error) {
	if err := checkLen(shape, len(data)); err != nil {
		return nil, err
	}
	return &Tensor{id: NextID(), shape: shape.Clone(), dtype: String, strings: data}, nil
}

// Scalar creates a rank-0 float32 tensor.
func Scalar(v float32) *Tensor {
	return &Tensor{id: NextID(), shape: Shape{}, dtype: Float32, floats: []float32{v}}
}

// NewDeferred creates a tensor whose elements are produced by src on first
// access. String tensors cannot be deferred.
func NewDeferred(shape Shape, dtype DataType, src Source) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if !dtype.IsNumeric() {
		return nil, fmt.Errorf("tensor: cannot defer %v tensor", dtype)
	}
	if src == nil {
		return nil, ErrNoData
	}
	return &Tensor{id: NextID(), shape: shape.Clone(), dtype: dtype, state: deferred, source: src}, nil
}

func checkLen(shape Shape, n int) error {
	if err := shape.Validate(); err != nil {
		return err
	}
	if shape.NumElements() != n {
		return fmt.Errorf("tensor: shape %v needs %d elements, got %d", shape, shape.NumElements(), n)
	}
	return nil
}

// ID returns the stable identity of the tensor.
func (t *Tensor) ID() ID { return t.id }

// Shape returns a copy of the tensor dimensions.
func (t *Tensor) Shape() Shape { return t.shape.Clone() }

// Dims returns the tensor dimensions without copying. Callers must not modify it.
func (t *Tensor) Dims() Shape { return t.shape }

// DType returns the element type.
func (t *Tensor) DType() DataType { return t.dtype }

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// Size returns the number of elements.
func (t *Tensor) Size() int { return t.shape.NumElements() }

// IsDeferred reports whether the elements have not been produced yet.
func (t *Tensor) IsDeferred() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == deferred
}

// Materialize reads a deferred tensor's source and stores the result.
// It is a no-op for eager tensors and for tensors already materialized.
func (t *Tensor) Materialize() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.materializeLocked()
}

func (t *Tensor) materializeLocked() error {
	if t.state == eager {
		return nil
	}

	values, err := t.source.ReadFloat32()
	if err != nil {
		return fmt.Errorf("tensor %d: materialize: %w", t.id, err)
	}
	n := t.shape.NumElements()
	if len(values) < n {
		return fmt.Errorf("tensor %d: materialize: source returned %d of %d elements", t.id, len(values), n)
	}
	values = values[:n]

	switch t.dtype {
	case Float32:
		t.floats = values
	case Int32:
		t.ints = make([]int32, n)
		for i, v := range values {
			t.ints[i] = int32(math.Round(float64(v)))
		}
	case Bool:
		t.bools = make([]bool, n)
		for i, v := range values {
			t.bools[i] = v != 0
		}
	}

	t.state = eager
	t.source = nil
	return nil
}

// Float32s returns the elements of a float32 tensor, materializing it if needed.
func (t *Tensor) Float32s() ([]float32, error) {
	if err := t.expect(Float32); err != nil {
		return nil, err
	}
	return t.floats, nil
}

// Int32s returns the elements of an int32 tensor, materializing it if needed.
func (t *Tensor) Int32s() ([]int32, error) {
	if err := t.expect(Int32); err != nil {
		return nil, err
	}
	return t.ints, nil
}

// Bools returns the elements of a bool tensor, materializing it if needed.
func (t *Tensor) Bools() ([]bool, error) {
	if err := t.expect(Bool); err != nil {
		return nil, err
	}
	return t.bools, nil
}

// Strings returns the elements of a string tensor.
func (t *Tensor) Strings() ([]string, error) {
	if err := t.expect(String); err != nil {
		return nil, err
	}
	return t.strings, nil
}

func (t *Tensor) expect(dt DataType) error {
	if t.dtype != dt {
		return fmt.Errorf("tensor %d: element type is %v, not %v", t.id, t.dtype, dt)
	}
	return t.Materialize()
}

// NumericData returns the elements converted to float32, the representation
// used for device uploads. Float32 tensors return their buffer without copying.
func (t *Tensor) NumericData() ([]float32, error) {
	if err := t.Materialize(); err != nil {
		return nil, err
	}
	switch t.dtype {
	case Float32:
		return t.floats, nil
	case Int32:
		out := make([]float32, len(t.ints))
		for i, v := range t.ints {
			out[i] = float32(v)
		}
		return out, nil
	case Bool:
		out := make([]float32, len(t.bools))
		for i, v := range t.bools {
			if v {
				out[i] = 1
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("tensor %d: %v has no numeric representation", t.id, t.dtype)
	}
}

// IntegerData returns the elements as ints. It accepts int32 and float32
// tensors and is meant for small shape-like operands (axes, repeats, sizes).
func (t *Tensor) IntegerData() ([]int, error) {
	if err := t.Materialize(); err != nil {
		return nil, err
	}
	switch t.dtype {
	case Int32:
		out := make([]int, len(t.ints))
		for i, v := range t.ints {
			out[i] = int(v)
		}
		return out, nil
	case Float32:
		out := make([]int, len(t.floats))
		for i, v := range t.floats {
			out[i] = int(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("tensor %d: %v is not an integer type", t.id, t.dtype)
	}
}

// Reshape returns a new tensor with a new identity sharing the element buffer.
// Deferred tensors are materialized first.
func (t *Tensor) Reshape(shape Shape) (*Tensor, error) {
	if err := t.Materialize(); err != nil {
		return nil, err
	}
	if err := checkLen(shape, t.Size()); err != nil {
		return nil, err
	}
	return &Tensor{
		id:      NextID(),
		shape:   shape.Clone(),
		dtype:   t.dtype,
		floats:  t.floats,
		ints:    t.ints,
		bools:   t.bools,
		strings: t.strings,
	}, nil
}

// String returns a short description of the tensor.
func (t *Tensor) String() string {
	state := "eager"
	if t.IsDeferred() {
		state = "deferred"
	}
	return fmt.Sprintf("Tensor(id=%d, %v, %v, %s)", t.id, t.dtype, t.shape, state)
}
