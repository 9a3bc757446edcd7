// Package layer provides neural network layer implementations.
package layer

// Layer is a neural network layer.
type Layer interface {
	Forward(x []float64) []float64
	Backward(grad []float64) []float64
	Params() []float64
	SetParams([]float64)
	Gradients() []float64
}
