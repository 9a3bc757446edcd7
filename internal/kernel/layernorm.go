// Package kernel implements the layer normalization forward and backward
// passes used by the transformer training loop.
//
// Both passes operate on caller-owned flat buffers addressed through the
// views in the tensor package. Forward overwrites its destinations and
// saves per-position statistics; Backward consumes those statistics and
// accumulates into its gradient destinations.
package kernel

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/FlavioCFOliveira/GoNorm/internal/tensor"
)

// DefaultEps is the conventional variance floor for layer normalization.
// It keeps the reciprocal standard deviation finite when a position's
// channel values are all equal.
const DefaultEps = 1e-5

// ErrDegenerateChannels indicates a zero channel dimension, for which the
// per-position mean and variance are undefined.
var ErrDegenerateChannels = errors.New("kernel: zero channel dimension")

// Forward normalizes each (b, t) position of inp to zero mean and unit
// variance across its C channels, applies the learned affine transform
// gamma*x + beta, and writes the result to out. The per-position mean and
// reciprocal standard deviation are stored in mean and rstd for the
// matching Backward call.
//
// out, mean and rstd are overwritten. Positions are independent: the output
// at (b, t) depends only on the C input values at (b, t), gamma, beta and
// eps.
func Forward(out tensor.View3, mean, rstd tensor.View2, inp tensor.View3, gamma, beta []float64, eps float64) error {
	if err := checkForward(out, mean, rstd, inp, gamma, beta); err != nil {
		return err
	}
	for b := 0; b < inp.B; b++ {
		for t := 0; t < inp.T; t++ {
			forwardPosition(out, mean, rstd, inp, gamma, beta, eps, b, t)
		}
	}
	return nil
}

// forwardPosition normalizes the single position (b, t).
func forwardPosition(out tensor.View3, mean, rstd tensor.View2, inp tensor.View3, gamma, beta []float64, eps float64, b, t int) {
	x := inp.Row(b, t)
	c := float64(len(x))

	m := floats.Sum(x) / c

	// Biased variance: divide by C, not C-1.
	v := 0.0
	for _, xi := range x {
		d := xi - m
		v += d * d
	}
	v /= c

	r := 1.0 / math.Sqrt(v+eps)

	y := out.Row(b, t)
	for i, xi := range x {
		y[i] = (xi-m)*r*gamma[i] + beta[i]
	}

	mean.Set(b, t, m)
	rstd.Set(b, t, r)
}

// Backward computes the vector-Jacobian product of the normalization and
// affine transform. Given the upstream gradient dout, the original forward
// input inp and the statistics saved by Forward, it accumulates the input
// gradient into dinp and the parameter gradients into dgamma and dbeta.
//
// All three destinations are accumulated into, never overwritten: the beta
// and gamma gradients are shared by every position in the batch, and callers
// may sum gradients across micro-batches before an optimizer step. Zeroing
// before the first accumulation of a step is the caller's responsibility.
//
// mean and rstd must come from a Forward call over this same inp. Stale or
// mismatched statistics cannot be detected here and silently produce wrong
// gradients.
func Backward(dinp tensor.View3, dgamma, dbeta []float64, dout, inp tensor.View3, gamma []float64, mean, rstd tensor.View2) error {
	if err := checkBackward(dinp, dgamma, dbeta, dout, inp, gamma, mean, rstd); err != nil {
		return err
	}
	for b := 0; b < inp.B; b++ {
		for t := 0; t < inp.T; t++ {
			backwardPosition(dinp, dgamma, dbeta, dout, inp, gamma, mean, rstd, b, t)
		}
	}
	return nil
}

// backwardPosition accumulates the gradients contributed by position (b, t).
// dgamma and dbeta may be per-worker partial accumulators rather than the
// caller's buffers; see BackwardParallel.
func backwardPosition(dinp tensor.View3, dgamma, dbeta []float64, dout, inp tensor.View3, gamma []float64, mean, rstd tensor.View2, b, t int) {
	x := inp.Row(b, t)
	dy := dout.Row(b, t)
	dx := dinp.Row(b, t)
	m := mean.At(b, t)
	r := rstd.At(b, t)
	c := float64(len(x))

	// First pass: reduce the upstream gradient to its mean and its
	// normalized-weighted mean. Both must be finalized before the second
	// pass applies the per-channel correction.
	dnormMean := 0.0
	dnormNormMean := 0.0
	for i, xi := range x {
		norm := (xi - m) * r
		dnorm := gamma[i] * dy[i]
		dnormMean += dnorm
		dnormNormMean += dnorm * norm
	}
	dnormMean /= c
	dnormNormMean /= c

	// Second pass: accumulate parameter and input gradients.
	floats.Add(dbeta, dy)
	for i, xi := range x {
		norm := (xi - m) * r
		dnorm := gamma[i] * dy[i]
		dgamma[i] += norm * dy[i]
		dx[i] += (dnorm - dnormMean - norm*dnormNormMean) * r
	}
}

// checkForward validates every forward buffer before any element is
// touched, so a shape mismatch never leaves partial writes behind.
func checkForward(out tensor.View3, mean, rstd tensor.View2, inp tensor.View3, gamma, beta []float64) error {
	if err := inp.Check(); err != nil {
		return err
	}
	if err := out.Check(); err != nil {
		return err
	}
	if inp.C == 0 {
		return ErrDegenerateChannels
	}
	if !out.SameShape(inp) {
		return fmt.Errorf("%w: output (%d, %d, %d) does not match input (%d, %d, %d)",
			tensor.ErrInvalidShape, out.B, out.T, out.C, inp.B, inp.T, inp.C)
	}
	if err := checkStats(mean, rstd, inp); err != nil {
		return err
	}
	if err := tensor.CheckVec("gamma", gamma, inp.C); err != nil {
		return err
	}
	return tensor.CheckVec("beta", beta, inp.C)
}

// checkBackward validates every backward buffer up front, mirroring
// checkForward.
func checkBackward(dinp tensor.View3, dgamma, dbeta []float64, dout, inp tensor.View3, gamma []float64, mean, rstd tensor.View2) error {
	if err := inp.Check(); err != nil {
		return err
	}
	if err := dinp.Check(); err != nil {
		return err
	}
	if err := dout.Check(); err != nil {
		return err
	}
	if inp.C == 0 {
		return ErrDegenerateChannels
	}
	if !dinp.SameShape(inp) {
		return fmt.Errorf("%w: input gradient (%d, %d, %d) does not match input (%d, %d, %d)",
			tensor.ErrInvalidShape, dinp.B, dinp.T, dinp.C, inp.B, inp.T, inp.C)
	}
	if !dout.SameShape(inp) {
		return fmt.Errorf("%w: upstream gradient (%d, %d, %d) does not match input (%d, %d, %d)",
			tensor.ErrInvalidShape, dout.B, dout.T, dout.C, inp.B, inp.T, inp.C)
	}
	if err := checkStats(mean, rstd, inp); err != nil {
		return err
	}
	if err := tensor.CheckVec("gamma", gamma, inp.C); err != nil {
		return err
	}
	if err := tensor.CheckVec("dgamma", dgamma, inp.C); err != nil {
		return err
	}
	return tensor.CheckVec("dbeta", dbeta, inp.C)
}

// checkStats validates the statistics buffers against the activation shape.
func checkStats(mean, rstd tensor.View2, inp tensor.View3) error {
	if err := mean.Check(); err != nil {
		return err
	}
	if err := rstd.Check(); err != nil {
		return err
	}
	if mean.B != inp.B || mean.T != inp.T {
		return fmt.Errorf("%w: mean (%d, %d) does not match input positions (%d, %d)",
			tensor.ErrInvalidShape, mean.B, mean.T, inp.B, inp.T)
	}
	if rstd.B != inp.B || rstd.T != inp.T {
		return fmt.Errorf("%w: rstd (%d, %d) does not match input positions (%d, %d)",
			tensor.ErrInvalidShape, rstd.B, rstd.T, inp.B, inp.T)
	}
	return nil
}
