package kernel

import (
	"math"
	"math/rand"
	"testing"
)

func TestForwardParallelMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	seq := newBuffers(t, 4, 16, 32)
	par := newBuffers(t, 4, 16, 32)
	fillRandom(rng, seq.inp.Data)
	copy(par.inp.Data, seq.inp.Data)

	if err := Forward(seq.out, seq.mean, seq.rstd, seq.inp, seq.gamma, seq.beta, DefaultEps); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if err := ForwardParallel(par.out, par.mean, par.rstd, par.inp, par.gamma, par.beta, DefaultEps, 3); err != nil {
		t.Fatalf("ForwardParallel: %v", err)
	}

	// Positions are computed independently, so the parallel forward is
	// bit-identical to the sequential one.
	for i := range seq.out.Data {
		if par.out.Data[i] != seq.out.Data[i] {
			t.Fatalf("Output[%d] = %g parallel, %g sequential", i, par.out.Data[i], seq.out.Data[i])
		}
	}
	for i := range seq.mean.Data {
		if par.mean.Data[i] != seq.mean.Data[i] || par.rstd.Data[i] != seq.rstd.Data[i] {
			t.Fatalf("Statistics[%d] differ between parallel and sequential", i)
		}
	}
}

func TestForwardParallelSmallBatch(t *testing.T) {
	// Below the threshold the parallel entry point runs sequentially.
	rng := rand.New(rand.NewSource(22))
	seq := newBuffers(t, 1, 4, 8)
	par := newBuffers(t, 1, 4, 8)
	fillRandom(rng, seq.inp.Data)
	copy(par.inp.Data, seq.inp.Data)

	if err := Forward(seq.out, seq.mean, seq.rstd, seq.inp, seq.gamma, seq.beta, DefaultEps); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if err := ForwardParallel(par.out, par.mean, par.rstd, par.inp, par.gamma, par.beta, DefaultEps, 8); err != nil {
		t.Fatalf("ForwardParallel: %v", err)
	}

	for i := range seq.out.Data {
		if par.out.Data[i] != seq.out.Data[i] {
			t.Fatalf("Output[%d] = %g parallel, %g sequential", i, par.out.Data[i], seq.out.Data[i])
		}
	}
}

func TestBackwardParallelMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	seq := newBackwardBuffers(t, 4, 16, 32)
	par := newBackwardBuffers(t, 4, 16, 32)
	fillRandom(rng, seq.inp.Data)
	fillRandom(rng, seq.dout.Data)
	copy(par.inp.Data, seq.inp.Data)
	copy(par.dout.Data, seq.dout.Data)

	if err := Forward(seq.out, seq.mean, seq.rstd, seq.inp, seq.gamma, seq.beta, DefaultEps); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	copy(par.mean.Data, seq.mean.Data)
	copy(par.rstd.Data, seq.rstd.Data)

	if err := Backward(seq.dinp, seq.dgamma, seq.dbeta, seq.dout, seq.inp, seq.gamma, seq.mean, seq.rstd); err != nil {
		t.Fatalf("Backward: %v", err)
	}
	if err := BackwardParallel(par.dinp, par.dgamma, par.dbeta, par.dout, par.inp, par.gamma, par.mean, par.rstd, 3); err != nil {
		t.Fatalf("BackwardParallel: %v", err)
	}

	// Input-gradient rows are disjoint per position: bit-identical.
	for i := range seq.dinp.Data {
		if par.dinp.Data[i] != seq.dinp.Data[i] {
			t.Fatalf("Dinp[%d] = %g parallel, %g sequential", i, par.dinp.Data[i], seq.dinp.Data[i])
		}
	}

	// The gamma/beta reductions are regrouped across workers, so allow
	// low-order-bit drift.
	for i := range seq.dgamma {
		if math.Abs(par.dgamma[i]-seq.dgamma[i]) > 1e-10 {
			t.Errorf("Dgamma[%d] = %g parallel, %g sequential", i, par.dgamma[i], seq.dgamma[i])
		}
		if math.Abs(par.dbeta[i]-seq.dbeta[i]) > 1e-10 {
			t.Errorf("Dbeta[%d] = %g parallel, %g sequential", i, par.dbeta[i], seq.dbeta[i])
		}
	}
}

func TestBackwardParallelDeterministic(t *testing.T) {
	// For a fixed worker count the partial accumulators are merged in
	// worker order, so repeated runs are bit-identical.
	rng := rand.New(rand.NewSource(24))
	a := newBackwardBuffers(t, 2, 32, 16)
	b := newBackwardBuffers(t, 2, 32, 16)
	fillRandom(rng, a.inp.Data)
	fillRandom(rng, a.dout.Data)
	copy(b.inp.Data, a.inp.Data)
	copy(b.dout.Data, a.dout.Data)

	if err := Forward(a.out, a.mean, a.rstd, a.inp, a.gamma, a.beta, DefaultEps); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	copy(b.mean.Data, a.mean.Data)
	copy(b.rstd.Data, a.rstd.Data)

	if err := BackwardParallel(a.dinp, a.dgamma, a.dbeta, a.dout, a.inp, a.gamma, a.mean, a.rstd, 4); err != nil {
		t.Fatalf("BackwardParallel: %v", err)
	}
	if err := BackwardParallel(b.dinp, b.dgamma, b.dbeta, b.dout, b.inp, b.gamma, b.mean, b.rstd, 4); err != nil {
		t.Fatalf("BackwardParallel: %v", err)
	}

	for i := range a.dgamma {
		if a.dgamma[i] != b.dgamma[i] {
			t.Fatalf("Dgamma[%d] differs between identical parallel runs", i)
		}
		if a.dbeta[i] != b.dbeta[i] {
			t.Fatalf("Dbeta[%d] differs between identical parallel runs", i)
		}
	}
	for i := range a.dinp.Data {
		if a.dinp.Data[i] != b.dinp.Data[i] {
			t.Fatalf("Dinp[%d] differs between identical parallel runs", i)
		}
	}
}

func TestBackwardParallelAccumulates(t *testing.T) {
	// The additive contract holds for the parallel path too.
	rng := rand.New(rand.NewSource(25))
	bufs := newBackwardBuffers(t, 2, 16, 8)
	fillRandom(rng, bufs.inp.Data)
	fillRandom(rng, bufs.dout.Data)

	if err := Forward(bufs.out, bufs.mean, bufs.rstd, bufs.inp, bufs.gamma, bufs.beta, DefaultEps); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if err := BackwardParallel(bufs.dinp, bufs.dgamma, bufs.dbeta, bufs.dout, bufs.inp, bufs.gamma, bufs.mean, bufs.rstd, 4); err != nil {
		t.Fatalf("BackwardParallel: %v", err)
	}

	dgammaOnce := append([]float64(nil), bufs.dgamma...)
	dbetaOnce := append([]float64(nil), bufs.dbeta...)

	if err := BackwardParallel(bufs.dinp, bufs.dgamma, bufs.dbeta, bufs.dout, bufs.inp, bufs.gamma, bufs.mean, bufs.rstd, 4); err != nil {
		t.Fatalf("BackwardParallel: %v", err)
	}

	for i := range dgammaOnce {
		if math.Abs(bufs.dgamma[i]-2*dgammaOnce[i]) > 1e-12*math.Max(1, math.Abs(2*dgammaOnce[i])) {
			t.Fatalf("Dgamma[%d] = %g after two calls, expected %g", i, bufs.dgamma[i], 2*dgammaOnce[i])
		}
		if math.Abs(bufs.dbeta[i]-2*dbetaOnce[i]) > 1e-12*math.Max(1, math.Abs(2*dbetaOnce[i])) {
			t.Fatalf("Dbeta[%d] = %g after two calls, expected %g", i, bufs.dbeta[i], 2*dbetaOnce[i])
		}
	}
}
