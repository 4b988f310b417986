package trend

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// lstmLayer is a single LSTM layer. Gate blocks in wx, wh and b are
// ordered input, forget, cell, output.
type lstmLayer struct {
	in     int
	hidden int

	wx *param // 4H x in
	wh *param // 4H x H
	b  *param // 4H
}

type lstmStep struct {
	x, hPrev, cPrev []float64
	i, f, g, o      []float64
	c, tanhC        []float64
	h               []float64
}

func newLSTMLayer(rng *rand.Rand, in, hidden int) *lstmLayer {
	l := &lstmLayer{
		in:     in,
		hidden: hidden,
		wx:     newParam(4 * hidden * in),
		wh:     newParam(4 * hidden * hidden),
		b:      newParam(4 * hidden),
	}
	l.wx.glorotUniform(rng, in, 4*hidden)
	l.wh.glorotUniform(rng, hidden, 4*hidden)

	// forget gate starts open
	for k := hidden; k < 2*hidden; k++ {
		l.b.value[k] = 1
	}
	return l
}

func (l *lstmLayer) params() []*param {
	return []*param{l.wx, l.wh, l.b}
}

// forward runs the layer over a sequence and returns every step, so the
// caller can read h at each timestep and backward can replay the gates.
func (l *lstmLayer) forward(xs [][]float64) []lstmStep {
	H := l.hidden
	wx := mat.NewDense(4*H, l.in, l.wx.value)
	wh := mat.NewDense(4*H, H, l.wh.value)
	bias := mat.NewVecDense(4*H, l.b.value)

	steps := make([]lstmStep, len(xs))
	hPrev := make([]float64, H)
	cPrev := make([]float64, H)

	var z, zh mat.VecDense
	for t, x := range xs {
		z.MulVec(wx, mat.NewVecDense(l.in, x))
		zh.MulVec(wh, mat.NewVecDense(H, hPrev))
		z.AddVec(&z, &zh)
		z.AddVec(&z, bias)

		s := lstmStep{
			x:     x,
			hPrev: hPrev,
			cPrev: cPrev,
			i:     make([]float64, H),
			f:     make([]float64, H),
			g:     make([]float64, H),
			o:     make([]float64, H),
			c:     make([]float64, H),
			tanhC: make([]float64, H),
			h:     make([]float64, H),
		}
		for k := 0; k < H; k++ {
			s.i[k] = sigmoid(z.AtVec(k))
			s.f[k] = sigmoid(z.AtVec(H + k))
			s.g[k] = math.Tanh(z.AtVec(2*H + k))
			s.o[k] = sigmoid(z.AtVec(3*H + k))
			s.c[k] = s.f[k]*cPrev[k] + s.i[k]*s.g[k]
			s.tanhC[k] = math.Tanh(s.c[k])
			s.h[k] = s.o[k] * s.tanhC[k]
		}
		steps[t] = s
		hPrev, cPrev = s.h, s.c
	}
	return steps
}

// backward accumulates parameter gradients given dL/dh for every step
// and returns dL/dx for every step.
func (l *lstmLayer) backward(steps []lstmStep, dhs [][]float64) [][]float64 {
	H := l.hidden
	wx := mat.NewDense(4*H, l.in, l.wx.value)
	wh := mat.NewDense(4*H, H, l.wh.value)
	gwx := mat.NewDense(4*H, l.in, l.wx.grad)
	gwh := mat.NewDense(4*H, H, l.wh.grad)

	dxs := make([][]float64, len(steps))
	dhNext := make([]float64, H)
	dcNext := make([]float64, H)
	dz := make([]float64, 4*H)
	dzVec := mat.NewVecDense(4*H, dz)
	dhNextVec := mat.NewVecDense(H, dhNext)

	for t := len(steps) - 1; t >= 0; t-- {
		s := steps[t]
		for k := 0; k < H; k++ {
			dh := dhs[t][k] + dhNext[k]
			dc := dh*s.o[k]*(1-s.tanhC[k]*s.tanhC[k]) + dcNext[k]

			dz[k] = dc * s.g[k] * s.i[k] * (1 - s.i[k])
			dz[H+k] = dc * s.cPrev[k] * s.f[k] * (1 - s.f[k])
			dz[2*H+k] = dc * s.i[k] * (1 - s.g[k]*s.g[k])
			dz[3*H+k] = dh * s.tanhC[k] * s.o[k] * (1 - s.o[k])

			dcNext[k] = dc * s.f[k]
		}

		gwx.RankOne(gwx, 1, dzVec, mat.NewVecDense(l.in, s.x))
		gwh.RankOne(gwh, 1, dzVec, mat.NewVecDense(H, s.hPrev))
		floats.Add(l.b.grad, dz)

		dxs[t] = make([]float64, l.in)
		mat.NewVecDense(l.in, dxs[t]).MulVec(wx.T(), dzVec)
		dhNextVec.MulVec(wh.T(), dzVec)
	}
	return dxs
}
