// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ndarray implements Array, a dense multidimensional array of numbers stored in
// row-major (C) order in a flat Go slice.
//
// It is the in-memory representation of images, masks and sizes loaded from (or saved to) the
// dataset cache. It only supports what data loading needs: construction from flat data, stacking
// along a new leading or trailing axis, gathering examples along the first axis and comparison.
//
// Example:
//
//	a := ndarray.MustFromFlat([]uint8{1, 2, 3, 4, 5, 6}, 2, 3) // [[1,2,3], [4,5,6]]
//	first := a.Example(0)                                      // [1,2,3]
package ndarray

import (
	"fmt"
	"math"
	"reflect"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Number constrains the Go types an Array can hold.
type Number interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}

// Array is a dense multidimensional array. The zero value is not valid, use one of the constructors.
//
// Arrays are not safe for concurrent mutation, but they are never mutated by this package once created.
type Array struct {
	dtype      dtypes.DType
	dimensions []int
	flat       any // []T, where T matches dtype.
}

// DTypeOf returns the dtype used for the Go type T.
func DTypeOf[T Number]() dtypes.DType {
	var zero T
	dtype, _ := dtypeForValue(zero)
	return dtype
}

func dtypeForValue(value any) (dtypes.DType, reflect.Type) {
	switch value.(type) {
	case int8:
		return dtypes.Int8, reflect.TypeOf(int8(0))
	case int16:
		return dtypes.Int16, reflect.TypeOf(int16(0))
	case int32:
		return dtypes.Int32, reflect.TypeOf(int32(0))
	case int64:
		return dtypes.Int64, reflect.TypeOf(int64(0))
	case uint8:
		return dtypes.Uint8, reflect.TypeOf(uint8(0))
	case uint16:
		return dtypes.Uint16, reflect.TypeOf(uint16(0))
	case uint32:
		return dtypes.Uint32, reflect.TypeOf(uint32(0))
	case uint64:
		return dtypes.Uint64, reflect.TypeOf(uint64(0))
	case float32:
		return dtypes.Float32, reflect.TypeOf(float32(0))
	case float64:
		return dtypes.Float64, reflect.TypeOf(float64(0))
	}
	return dtypes.InvalidDType, nil
}

// goTypeOf returns the Go element type for the dtype, or nil if not supported by Array.
func goTypeOf(dtype dtypes.DType) reflect.Type {
	for _, zero := range []any{int8(0), int16(0), int32(0), int64(0), uint8(0), uint16(0), uint32(0), uint64(0),
		float32(0), float64(0)} {
		if dt, t := dtypeForValue(zero); dt == dtype {
			return t
		}
	}
	return nil
}

// sizeOf returns the number of elements for the given dimensions, already checked with NumElements.
func sizeOf(dimensions []int) int {
	size := 1
	for _, dim := range dimensions {
		size *= dim
	}
	return size
}

// NumElements returns the number of elements of an array with the given dimensions.
// It returns an error if a dimension is negative or if the product doesn't fit an int.
func NumElements(dimensions []int) (int, error) {
	for axis, dim := range dimensions {
		if dim < 0 {
			return 0, errors.Errorf("invalid negative dimension %d for axis %d in %v", dim, axis, dimensions)
		}
	}
	if slices.Contains(dimensions, 0) {
		return 0, nil
	}
	size := 1
	for _, dim := range dimensions {
		if size > math.MaxInt/dim {
			return 0, errors.Errorf("dimensions %v overflow the number of elements", dimensions)
		}
		size *= dim
	}
	return size, nil
}

func checkDimensions(dimensions []int) error {
	_, err := NumElements(dimensions)
	return err
}

// FromFlat creates an Array with the given dimensions, backed by flat (not copied).
// The length of flat must match the product of the dimensions. No dimensions means a scalar.
func FromFlat[T Number](flat []T, dimensions ...int) (*Array, error) {
	if err := checkDimensions(dimensions); err != nil {
		return nil, err
	}
	if size := sizeOf(dimensions); size != len(flat) {
		return nil, errors.Errorf("flat data has %d elements, but dimensions %v require %d", len(flat), dimensions, size)
	}
	return &Array{
		dtype:      DTypeOf[T](),
		dimensions: slices.Clone(dimensions),
		flat:       flat,
	}, nil
}

// MustFromFlat is like FromFlat, but panics on error.
func MustFromFlat[T Number](flat []T, dimensions ...int) *Array {
	a, err := FromFlat(flat, dimensions...)
	if err != nil {
		panic(err)
	}
	return a
}

// FromDType returns a zero-initialized Array for a dtype known only at runtime.
func FromDType(dtype dtypes.DType, dimensions ...int) (*Array, error) {
	if err := checkDimensions(dimensions); err != nil {
		return nil, err
	}
	goType := goTypeOf(dtype)
	if goType == nil {
		return nil, errors.Errorf("dtype %s not supported by ndarray", dtype)
	}
	size := sizeOf(dimensions)
	return &Array{
		dtype:      dtype,
		dimensions: slices.Clone(dimensions),
		flat:       reflect.MakeSlice(reflect.SliceOf(goType), size, size).Interface(),
	}, nil
}

// Flat returns the underlying flat slice. It returns an error if T doesn't match the array dtype.
//
// The returned slice is shared with the Array: changes are visible to both.
func Flat[T Number](a *Array) ([]T, error) {
	flat, ok := a.flat.([]T)
	if !ok {
		var zero T
		return nil, errors.Errorf("array has dtype %s, cannot access it as []%T", a.dtype, zero)
	}
	return flat, nil
}

// MustFlat is like Flat, but panics on error.
func MustFlat[T Number](a *Array) []T {
	flat, err := Flat[T](a)
	if err != nil {
		panic(err)
	}
	return flat
}

// FlatAny returns the underlying flat slice as an `any`. It will be a []T for the Go type of the dtype.
func (a *Array) FlatAny() any { return a.flat }

// DType of the elements.
func (a *Array) DType() dtypes.DType { return a.dtype }

// Dimensions returns a copy of the array dimensions.
func (a *Array) Dimensions() []int { return slices.Clone(a.dimensions) }

// Dim returns the dimension of the given axis. Negative axis counts from the end.
func (a *Array) Dim(axis int) int {
	if axis < 0 {
		axis += len(a.dimensions)
	}
	return a.dimensions[axis]
}

// Rank is the number of axes.
func (a *Array) Rank() int { return len(a.dimensions) }

// Size is the total number of elements.
func (a *Array) Size() int { return reflect.ValueOf(a.flat).Len() }

// Memory used by the elements, in bytes.
func (a *Array) Memory() uintptr {
	return uintptr(a.Size() * a.ElementSize())
}

// ElementSize is the size in bytes of one element.
func (a *Array) ElementSize() int {
	return int(reflect.TypeOf(a.flat).Elem().Size())
}

// NumExamples is the dimension of the leading axis. It is 1 for scalars.
func (a *Array) NumExamples() int {
	if len(a.dimensions) == 0 {
		return 1
	}
	return a.dimensions[0]
}

// exampleSize is the number of elements of one example (one entry of the leading axis).
func (a *Array) exampleSize() int {
	if len(a.dimensions) == 0 {
		return 1
	}
	return sizeOf(a.dimensions[1:])
}

// String returns the dtype and dimensions, e.g. "(Uint8)[10 64 64 3]".
func (a *Array) String() string {
	return fmt.Sprintf("(%s)%v", a.dtype, a.dimensions)
}

// Equal returns whether both arrays have the same dtype, dimensions and contents.
func (a *Array) Equal(b *Array) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.dtype == b.dtype && slices.Equal(a.dimensions, b.dimensions) && reflect.DeepEqual(a.flat, b.flat)
}

// Example returns a copy of the example at index idx of the leading axis.
// It panics if the array is a scalar or idx is out of range.
func (a *Array) Example(idx int) *Array {
	if a.Rank() == 0 || idx < 0 || idx >= a.dimensions[0] {
		exceptions.Panicf("Example(%d) out of range for array %s", idx, a)
	}
	gathered, err := a.Gather([]int{idx})
	if err != nil {
		panic(err)
	}
	gathered.dimensions = gathered.dimensions[1:]
	return gathered
}

// Gather returns a new array with the examples (entries of the leading axis) selected by indices, in that order.
func (a *Array) Gather(indices []int) (*Array, error) {
	if a.Rank() == 0 {
		return nil, errors.Errorf("cannot gather from a scalar array %s", a)
	}
	numExamples := a.dimensions[0]
	exampleSize := a.exampleSize()
	src := reflect.ValueOf(a.flat)
	dst := reflect.MakeSlice(src.Type(), len(indices)*exampleSize, len(indices)*exampleSize)
	for ii, idx := range indices {
		if idx < 0 || idx >= numExamples {
			return nil, errors.Errorf("gather index %d out of range for array %s", idx, a)
		}
		reflect.Copy(
			dst.Slice(ii*exampleSize, (ii+1)*exampleSize),
			src.Slice(idx*exampleSize, (idx+1)*exampleSize))
	}
	dimensions := slices.Clone(a.dimensions)
	dimensions[0] = len(indices)
	return &Array{dtype: a.dtype, dimensions: dimensions, flat: dst.Interface()}, nil
}

// checkSameShape returns an error if the arrays don't all share dtype and dimensions.
func checkSameShape(arrays []*Array) error {
	if len(arrays) == 0 {
		return errors.New("no arrays given")
	}
	first := arrays[0]
	for ii, a := range arrays[1:] {
		if a.dtype != first.dtype || !slices.Equal(a.dimensions, first.dimensions) {
			return errors.Errorf("all arrays must have the same shape, but array #0 is %s and array #%d is %s",
				first, ii+1, a)
		}
	}
	return nil
}

// Stack the arrays along a new leading axis. All arrays must have the same dtype and dimensions.
func Stack(arrays []*Array) (*Array, error) {
	if err := checkSameShape(arrays); err != nil {
		return nil, errors.WithMessage(err, "Stack")
	}
	first := arrays[0]
	exampleSize := first.Size()
	dst := reflect.MakeSlice(reflect.TypeOf(first.flat), len(arrays)*exampleSize, len(arrays)*exampleSize)
	for ii, a := range arrays {
		reflect.Copy(dst.Slice(ii*exampleSize, (ii+1)*exampleSize), reflect.ValueOf(a.flat))
	}
	dimensions := append([]int{len(arrays)}, first.dimensions...)
	return &Array{dtype: first.dtype, dimensions: dimensions, flat: dst.Interface()}, nil
}

// StackLast stacks the arrays along a new trailing axis: the result has the dimensions
// of the inputs plus one last axis of dimension len(arrays).
//
// It is used to compose a multichannel image from single channel files.
func StackLast(arrays []*Array) (*Array, error) {
	if err := checkSameShape(arrays); err != nil {
		return nil, errors.WithMessage(err, "StackLast")
	}
	first := arrays[0]
	size := first.Size()
	numArrays := len(arrays)
	dst := reflect.MakeSlice(reflect.TypeOf(first.flat), size*numArrays, size*numArrays)
	for arrayIdx, a := range arrays {
		src := reflect.ValueOf(a.flat)
		for ii := 0; ii < size; ii++ {
			dst.Index(ii*numArrays + arrayIdx).Set(src.Index(ii))
		}
	}
	dimensions := append(slices.Clone(first.dimensions), numArrays)
	return &Array{dtype: first.dtype, dimensions: dimensions, flat: dst.Interface()}, nil
}
