package kernel

import (
	"math/rand"
	"testing"
)

func BenchmarkForward(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	bufs := newBuffers(b, 8, 128, 768)
	fillRandom(rng, bufs.inp.Data)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := Forward(bufs.out, bufs.mean, bufs.rstd, bufs.inp, bufs.gamma, bufs.beta, DefaultEps); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkForwardParallel(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	bufs := newBuffers(b, 8, 128, 768)
	fillRandom(rng, bufs.inp.Data)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := ForwardParallel(bufs.out, bufs.mean, bufs.rstd, bufs.inp, bufs.gamma, bufs.beta, DefaultEps, 0); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBackward(b *testing.B) {
	rng := rand.New(rand.NewSource(2))
	bufs := newBackwardBuffers(b, 8, 128, 768)
	fillRandom(rng, bufs.inp.Data)
	fillRandom(rng, bufs.dout.Data)

	if err := Forward(bufs.out, bufs.mean, bufs.rstd, bufs.inp, bufs.gamma, bufs.beta, DefaultEps); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := Backward(bufs.dinp, bufs.dgamma, bufs.dbeta, bufs.dout, bufs.inp, bufs.gamma, bufs.mean, bufs.rstd); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBackwardParallel(b *testing.B) {
	rng := rand.New(rand.NewSource(2))
	bufs := newBackwardBuffers(b, 8, 128, 768)
	fillRandom(rng, bufs.inp.Data)
	fillRandom(rng, bufs.dout.Data)

	if err := Forward(bufs.out, bufs.mean, bufs.rstd, bufs.inp, bufs.gamma, bufs.beta, DefaultEps); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := BackwardParallel(bufs.dinp, bufs.dgamma, bufs.dbeta, bufs.dout, bufs.inp, bufs.gamma, bufs.mean, bufs.rstd, 0); err != nil {
			b.Fatal(err)
		}
	}
}
