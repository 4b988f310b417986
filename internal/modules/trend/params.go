package trend

import (
	"math"
	"math/rand"
)

// param is a flat trainable tensor. value and grad back gonum matrices
// directly, so layer code reads and writes them through mat views.
type param struct {
	value []float64
	grad  []float64

	// Adam moments
	m []float64
	v []float64
}

func newParam(n int) *param {
	return &param{
		value: make([]float64, n),
		grad:  make([]float64, n),
		m:     make([]float64, n),
		v:     make([]float64, n),
	}
}

func (p *param) zeroGrad() {
	for i := range p.grad {
		p.grad[i] = 0
	}
}

// glorotUniform fills p with U(-limit, limit), limit = sqrt(6/(fanIn+fanOut)).
func (p *param) glorotUniform(rng *rand.Rand, fanIn, fanOut int) {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	for i := range p.value {
		p.value[i] = (rng.Float64()*2 - 1) * limit
	}
}

// adam implements the Adam update rule.
type adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	t     int
}

func newAdam(lr float64) *adam {
	return &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-7}
}

func (a *adam) step(params []*param) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))

	for _, p := range params {
		for i, g := range p.grad {
			p.m[i] = a.beta1*p.m[i] + (1-a.beta1)*g
			p.v[i] = a.beta2*p.v[i] + (1-a.beta2)*g*g
			mHat := p.m[i] / c1
			vHat := p.v[i] / c2
			p.value[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
