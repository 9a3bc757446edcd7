package gonorm

import (
	"github.com/FlavioCFOliveira/GoNorm/internal/kernel"
	"github.com/FlavioCFOliveira/GoNorm/internal/layer"
	"github.com/FlavioCFOliveira/GoNorm/internal/tensor"
)

// Re-export common types for easier access
type (
	View3 = tensor.View3
	View2 = tensor.View2
	Layer = layer.Layer
)

// DefaultEps is the conventional variance floor for layer normalization.
const DefaultEps = kernel.DefaultEps

// Errors
var (
	ErrInvalidShape       = tensor.ErrInvalidShape
	ErrDegenerateChannels = kernel.ErrDegenerateChannels
)

// Views
func NewView3(data []float64, b, t, c int) (View3, error) {
	return tensor.NewView3(data, b, t, c)
}

func NewView2(data []float64, b, t int) (View2, error) {
	return tensor.NewView2(data, b, t)
}

// Kernels
func Forward(out View3, mean, rstd View2, inp View3, gamma, beta []float64, eps float64) error {
	return kernel.Forward(out, mean, rstd, inp, gamma, beta, eps)
}

func ForwardParallel(out View3, mean, rstd View2, inp View3, gamma, beta []float64, eps float64, numWorkers int) error {
	return kernel.ForwardParallel(out, mean, rstd, inp, gamma, beta, eps, numWorkers)
}

func Backward(dinp View3, dgamma, dbeta []float64, dout, inp View3, gamma []float64, mean, rstd View2) error {
	return kernel.Backward(dinp, dgamma, dbeta, dout, inp, gamma, mean, rstd)
}

func BackwardParallel(dinp View3, dgamma, dbeta []float64, dout, inp View3, gamma []float64, mean, rstd View2, numWorkers int) error {
	return kernel.BackwardParallel(dinp, dgamma, dbeta, dout, inp, gamma, mean, rstd, numWorkers)
}

// Layers
func LayerNorm(normalizedShape int) Layer {
	return layer.NewLayerNorm(normalizedShape, kernel.DefaultEps, true)
}
