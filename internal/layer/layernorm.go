package layer

import (
	"fmt"

	"github.com/FlavioCFOliveira/GoNorm/internal/kernel"
	"github.com/FlavioCFOliveira/GoNorm/internal/tensor"
)

// LayerNorm implements layer normalization.
// Normalizes across feature dimensions (not batch dimension), delegating the
// numeric work to the kernel package's forward/backward pair.
type LayerNorm struct {
	// Normalization parameters
	normalizedShape   int
	eps               float64
	elementwiseAffine bool

	// Learnable parameters. Allocated even when affine is disabled (as
	// identity values) so the kernels always receive length-C vectors;
	// exposed through Params only when affine is enabled.
	gamma []float64
	beta  []float64

	// Pre-allocated buffers
	outputBuf    []float64
	gradInBuf    []float64
	gradGammaBuf []float64
	gradBetaBuf  []float64
	savedInput   []float64 // Input saved for backward pass
	meanBuf      []float64 // Stored means for backward
	rstdBuf      []float64 // Stored reciprocal stds for backward
}

// NewLayerNorm creates a new layer normalization layer.
// normalizedShape: the number of trailing features normalized together
// eps: small value for numerical stability (default kernel.DefaultEps)
// elementwiseAffine: whether to learn scale (gamma) and shift (beta) parameters
func NewLayerNorm(normalizedShape int, eps float64, elementwiseAffine bool) *LayerNorm {
	if normalizedShape <= 0 {
		panic(fmt.Sprintf("LayerNorm: normalizedShape must be positive, got %d", normalizedShape))
	}

	l := &LayerNorm{
		normalizedShape:   normalizedShape,
		eps:               eps,
		elementwiseAffine: elementwiseAffine,
		gamma:             make([]float64, normalizedShape),
		beta:              make([]float64, normalizedShape),
		gradGammaBuf:      make([]float64, normalizedShape),
		gradBetaBuf:       make([]float64, normalizedShape),
	}

	// Initialize gamma to 1 and beta to 0
	for i := 0; i < normalizedShape; i++ {
		l.gamma[i] = 1.0
	}

	return l
}

// Forward performs a forward pass through the layer normalization layer.
// x: input tensor of shape [..., normalizedShape]
// Returns: normalized output with same shape as input
func (l *LayerNorm) Forward(x []float64) []float64 {
	numSamples := l.numSamples(len(x))

	if len(l.outputBuf) != len(x) {
		l.outputBuf = make([]float64, len(x))
	}
	if len(l.meanBuf) != numSamples {
		l.meanBuf = make([]float64, numSamples)
		l.rstdBuf = make([]float64, numSamples)
	}
	if cap(l.savedInput) < len(x) {
		l.savedInput = make([]float64, len(x))
	}
	l.savedInput = l.savedInput[:len(x)]
	copy(l.savedInput, x)

	inp := l.view3(l.savedInput, numSamples)
	out := l.view3(l.outputBuf, numSamples)
	mean := l.view2(l.meanBuf, numSamples)
	rstd := l.view2(l.rstdBuf, numSamples)

	if err := kernel.Forward(out, mean, rstd, inp, l.gamma, l.beta, l.eps); err != nil {
		panic(err)
	}

	return l.outputBuf
}

// Backward performs backpropagation through the layer normalization layer
// using the statistics saved by the last Forward call. The returned input
// gradient is freshly computed each call; the gamma and beta gradients
// accumulate across calls until ClearGradients.
func (l *LayerNorm) Backward(grad []float64) []float64 {
	numSamples := l.numSamples(len(grad))
	if len(grad) != len(l.savedInput) {
		panic(fmt.Sprintf("LayerNorm: gradient length %d does not match saved input length %d",
			len(grad), len(l.savedInput)))
	}

	if len(l.gradInBuf) != len(grad) {
		l.gradInBuf = make([]float64, len(grad))
	}
	// The kernel accumulates into the input gradient; the layer contract
	// returns a fresh one.
	for i := range l.gradInBuf {
		l.gradInBuf[i] = 0
	}

	dinp := l.view3(l.gradInBuf, numSamples)
	dout := l.view3(grad, numSamples)
	inp := l.view3(l.savedInput, numSamples)
	mean := l.view2(l.meanBuf, numSamples)
	rstd := l.view2(l.rstdBuf, numSamples)

	if err := kernel.Backward(dinp, l.gradGammaBuf, l.gradBetaBuf, dout, inp, l.gamma, mean, rstd); err != nil {
		panic(err)
	}

	return l.gradInBuf
}

// numSamples derives the position count from a flat buffer length.
func (l *LayerNorm) numSamples(n int) int {
	if n%l.normalizedShape != 0 {
		panic(fmt.Sprintf("LayerNorm: input length %d is not a multiple of %d", n, l.normalizedShape))
	}
	return n / l.normalizedShape
}

// view3 wraps a flat buffer as a single-sample (1, numSamples, C) view.
// Shapes are correct by construction here, so errors are programmer errors.
func (l *LayerNorm) view3(data []float64, numSamples int) tensor.View3 {
	v, err := tensor.NewView3(data, 1, numSamples, l.normalizedShape)
	if err != nil {
		panic(err)
	}
	return v
}

func (l *LayerNorm) view2(data []float64, numSamples int) tensor.View2 {
	v, err := tensor.NewView2(data, 1, numSamples)
	if err != nil {
		panic(err)
	}
	return v
}

// Params returns layer parameters (gamma and beta when affine is enabled).
func (l *LayerNorm) Params() []float64 {
	if !l.elementwiseAffine {
		return make([]float64, 0)
	}

	total := len(l.gamma) + len(l.beta)
	params := make([]float64, total)
	copy(params, l.gamma)
	copy(params[len(l.gamma):], l.beta)
	return params
}

// SetParams updates gamma and beta from a flattened slice.
func (l *LayerNorm) SetParams(params []float64) {
	if !l.elementwiseAffine {
		return
	}

	totalGamma := len(l.gamma)
	copy(l.gamma, params[:totalGamma])
	copy(l.beta, params[totalGamma:])
}

// Gradients returns layer gradients (gamma and beta gradients when affine is enabled).
func (l *LayerNorm) Gradients() []float64 {
	if !l.elementwiseAffine {
		return make([]float64, 0)
	}

	total := len(l.gradGammaBuf) + len(l.gradBetaBuf)
	gradients := make([]float64, total)
	copy(gradients, l.gradGammaBuf)
	copy(gradients[len(l.gradGammaBuf):], l.gradBetaBuf)
	return gradients
}

// SetGradients sets gradients from a flattened slice.
func (l *LayerNorm) SetGradients(gradients []float64) {
	if !l.elementwiseAffine {
		return
	}

	totalGamma := len(l.gradGammaBuf)
	copy(l.gradGammaBuf, gradients[:totalGamma])
	copy(l.gradBetaBuf, gradients[totalGamma:])
}

// ClearGradients zeroes out the accumulated gradients.
func (l *LayerNorm) ClearGradients() {
	for i := range l.gradGammaBuf {
		l.gradGammaBuf[i] = 0
	}
	for i := range l.gradBetaBuf {
		l.gradBetaBuf[i] = 0
	}
}

// InSize returns the input size.
func (l *LayerNorm) InSize() int {
	return l.normalizedShape
}

// OutSize returns the output size.
func (l *LayerNorm) OutSize() int {
	return l.normalizedShape
}

// Clone creates a deep copy of the layer normalization layer.
func (l *LayerNorm) Clone() Layer {
	newL := NewLayerNorm(l.normalizedShape, l.eps, l.elementwiseAffine)
	copy(newL.gamma, l.gamma)
	copy(newL.beta, l.beta)
	return newL
}

// GetGamma returns the gamma parameters (for affine layers).
func (l *LayerNorm) GetGamma() []float64 {
	if !l.elementwiseAffine {
		return nil
	}
	return l.gamma
}

// GetBeta returns the beta parameters (for affine layers).
func (l *LayerNorm) GetBeta() []float64 {
	if !l.elementwiseAffine {
		return nil
	}
	return l.beta
}

// GetEps returns the epsilon value for numerical stability.
func (l *LayerNorm) GetEps() float64 {
	return l.eps
}

// AccumulateBackward performs backpropagation and accumulates gradients.
// For LayerNorm, gradients are already accumulated in Backward, so this just calls Backward.
func (l *LayerNorm) AccumulateBackward(grad []float64) []float64 {
	return l.Backward(grad)
}
