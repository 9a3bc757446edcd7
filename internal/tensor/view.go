// Package tensor provides shape-checked views over flat activation buffers.
package tensor

import (
	"errors"
	"fmt"
)

// ErrInvalidShape indicates a buffer whose length disagrees with its
// declared shape, or a shape with a negative dimension.
var ErrInvalidShape = errors.New("tensor: invalid shape")

// View3 is a borrowed (B, T, C) activation buffer in row-major order:
// B samples, T positions per sample, C channels per position.
// Element (b, t, c) lives at offset b*T*C + t*C + c.
// The view does not own the buffer; the caller manages its lifetime.
type View3 struct {
	Data []float64
	B    int
	T    int
	C    int
}

// NewView3 wraps data as a (B, T, C) view after validating its length.
func NewView3(data []float64, b, t, c int) (View3, error) {
	v := View3{Data: data, B: b, T: t, C: c}
	if err := v.Check(); err != nil {
		return View3{}, err
	}
	return v, nil
}

// Check validates the buffer length against the declared shape.
func (v View3) Check() error {
	if v.B < 0 || v.T < 0 || v.C < 0 {
		return fmt.Errorf("%w: negative dimension in (%d, %d, %d)", ErrInvalidShape, v.B, v.T, v.C)
	}
	if len(v.Data) != v.B*v.T*v.C {
		return fmt.Errorf("%w: buffer length %d, shape (%d, %d, %d) needs %d",
			ErrInvalidShape, len(v.Data), v.B, v.T, v.C, v.B*v.T*v.C)
	}
	return nil
}

// Row returns the C channel values at position (b, t).
// The subslice shares memory with the underlying buffer.
func (v View3) Row(b, t int) []float64 {
	off := (b*v.T + t) * v.C
	return v.Data[off : off+v.C]
}

// SameShape reports whether both views declare identical dimensions.
func (v View3) SameShape(o View3) bool {
	return v.B == o.B && v.T == o.T && v.C == o.C
}

// View2 is a borrowed (B, T) statistics buffer in row-major order.
// Element (b, t) lives at offset b*T + t.
type View2 struct {
	Data []float64
	B    int
	T    int
}

// NewView2 wraps data as a (B, T) view after validating its length.
func NewView2(data []float64, b, t int) (View2, error) {
	v := View2{Data: data, B: b, T: t}
	if err := v.Check(); err != nil {
		return View2{}, err
	}
	return v, nil
}

// Check validates the buffer length against the declared shape.
func (v View2) Check() error {
	if v.B < 0 || v.T < 0 {
		return fmt.Errorf("%w: negative dimension in (%d, %d)", ErrInvalidShape, v.B, v.T)
	}
	if len(v.Data) != v.B*v.T {
		return fmt.Errorf("%w: buffer length %d, shape (%d, %d) needs %d",
			ErrInvalidShape, len(v.Data), v.B, v.T, v.B*v.T)
	}
	return nil
}

// At returns the element at position (b, t).
func (v View2) At(b, t int) float64 {
	return v.Data[b*v.T+t]
}

// Set stores x at position (b, t).
func (v View2) Set(b, t int, x float64) {
	v.Data[b*v.T+t] = x
}

// CheckVec validates that a parameter or gradient vector has length c.
func CheckVec(name string, data []float64, c int) error {
	if len(data) != c {
		return fmt.Errorf("%w: %s length %d, want %d", ErrInvalidShape, name, len(data), c)
	}
	return nil
}
