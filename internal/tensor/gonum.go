package tensor

import (
	"gonum.org/v1/gonum/mat"
)

// FromDense wraps a (T, C) gonum matrix as a single-sample (1, T, C) view.
// When the matrix is compact (stride equals the column count) the backing
// array is shared with the matrix; otherwise the data is copied row by row.
func FromDense(m *mat.Dense) (View3, error) {
	t, c := m.Dims()
	raw := m.RawMatrix()
	if raw.Stride == c {
		return NewView3(raw.Data[:t*c], 1, t, c)
	}
	data := make([]float64, t*c)
	for i := 0; i < t; i++ {
		copy(data[i*c:(i+1)*c], raw.Data[i*raw.Stride:i*raw.Stride+c])
	}
	return NewView3(data, 1, t, c)
}

// Sample copies sample b out of the view into a new (T, C) gonum matrix.
// Panics if the view has no positions or no channels, since gonum matrices
// cannot be empty.
func (v View3) Sample(b int) *mat.Dense {
	if v.T == 0 || v.C == 0 {
		panic("tensor: cannot export an empty sample as a matrix")
	}
	out := mat.NewDense(v.T, v.C, nil)
	for t := 0; t < v.T; t++ {
		copy(out.RawRowView(t), v.Row(b, t))
	}
	return out
}
