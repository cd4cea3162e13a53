// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the tensor value exchanged with onnxgl sessions.
//
// A Tensor is immutable. It is either Eager, holding its elements in host
// memory, or Deferred, holding a Source that produces the elements on first
// access. Tensors returned by the WebGL backend are Deferred: the texture is
// read back only when the elements are requested.
//
// Example:
//
//	x, err := tensor.FromFloat32(tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(x.Shape(), x.DType())
package tensor

import (
	"github.com/born-ml/onnxgl/internal/tensor"
)

// Tensor is an immutable shaped value.
type Tensor = tensor.Tensor

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// DataType represents the element type of a tensor.
type DataType = tensor.DataType

// Element types.
const (
	Float32 DataType = tensor.Float32
	Int32   DataType = tensor.Int32
	Bool    DataType = tensor.Bool
	String  DataType = tensor.String
)

// ID is the stable identity of a tensor. Backends key their caches on it.
type ID = tensor.ID

// Source produces the elements of a Deferred tensor.
type Source = tensor.Source

// ErrNoData is returned when a tensor has neither elements nor a source.
var ErrNoData = tensor.ErrNoData

// New creates a zero-filled tensor.
func New(shape Shape, dtype DataType) (*Tensor, error) {
	return tensor.New(shape, dtype)
}

// FromFloat32 creates a float32 tensor that takes ownership of data.
func FromFloat32(shape Shape, data []float32) (*Tensor, error) {
	return tensor.FromFloat32(shape, data)
}

// FromInt32 creates an int32 tensor that takes ownership of data.
func FromInt32(shape Shape, data []int32) (*Tensor, error) {
	return tensor.FromInt32(shape, data)
}

// FromBool creates a bool tensor that takes ownership of data.
func FromBool(shape Shape, data []bool) (*Tensor, error) {
	return tensor.FromBool(shape, data)
}

// FromStrings creates a string tensor. String tensors never reach a GPU
// backend.
func FromStrings(shape Shape, data []string) (*Tensor, error) {
	return tensor.FromStrings(shape, data)
}

// Scalar creates a rank-0 float32 tensor.
func Scalar(v float32) *Tensor {
	return tensor.Scalar(v)
}

// NewDeferred creates a tensor whose elements src produces on first access.
func NewDeferred(shape Shape, dtype DataType, src Source) (*Tensor, error) {
	return tensor.NewDeferred(shape, dtype, src)
}

// ParseShape parses a comma separated dimension list such as "2,3,4".
func ParseShape(text string) (Shape, error) {
	return tensor.ParseShape(text)
}

// ParseDataType returns the DataType named s.
func ParseDataType(s string) (DataType, bool) {
	return tensor.ParseDataType(s)
}
