package trend

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SequenceModel maps a window of scaled rows to a scaled next-row vector.
type SequenceModel interface {
	Predict(window [][]float64) []float64
	Width() int
}

// denseLayer is a fully connected output head.
type denseLayer struct {
	in, out int
	w       *param // out x in
	b       *param // out
}

func newDenseLayer(rng *rand.Rand, in, out int) *denseLayer {
	d := &denseLayer{in: in, out: out, w: newParam(out * in), b: newParam(out)}
	d.w.glorotUniform(rng, in, out)
	return d
}

func (d *denseLayer) forward(x []float64) []float64 {
	y := make([]float64, d.out)
	yVec := mat.NewVecDense(d.out, y)
	yVec.MulVec(mat.NewDense(d.out, d.in, d.w.value), mat.NewVecDense(d.in, x))
	floats.Add(y, d.b.value)
	return y
}

func (d *denseLayer) backward(x, dy []float64) []float64 {
	dyVec := mat.NewVecDense(d.out, dy)
	gw := mat.NewDense(d.out, d.in, d.w.grad)
	gw.RankOne(gw, 1, dyVec, mat.NewVecDense(d.in, x))
	floats.Add(d.b.grad, dy)

	dx := make([]float64, d.in)
	mat.NewVecDense(d.in, dx).MulVec(mat.NewDense(d.out, d.in, d.w.value).T(), dyVec)
	return dx
}

// lstmNetwork stacks LSTM -> Dropout -> LSTM -> Dropout -> Dense. The
// first LSTM returns its full sequence, the second only its last state.
type lstmNetwork struct {
	first   *lstmLayer
	second  *lstmLayer
	head    *denseLayer
	dropout float64
	width   int
}

type networkPass struct {
	steps1   []lstmStep
	mask1    [][]float64
	dropped1 [][]float64
	steps2   []lstmStep
	mask2    []float64
	dropped2 []float64
	out      []float64
}

func newLSTMNetwork(rng *rand.Rand, width, hidden int, dropout float64) *lstmNetwork {
	return &lstmNetwork{
		first:   newLSTMLayer(rng, width, hidden),
		second:  newLSTMLayer(rng, hidden, hidden),
		head:    newDenseLayer(rng, hidden, width),
		dropout: dropout,
		width:   width,
	}
}

func (n *lstmNetwork) params() []*param {
	ps := append(n.first.params(), n.second.params()...)
	return append(ps, n.head.w, n.head.b)
}

func (n *lstmNetwork) zeroGrad() {
	for _, p := range n.params() {
		p.zeroGrad()
	}
}

// Width implements SequenceModel.
func (n *lstmNetwork) Width() int {
	return n.width
}

// Predict implements SequenceModel. Dropout is inactive at inference.
func (n *lstmNetwork) Predict(window [][]float64) []float64 {
	return n.forward(window, nil).out
}

// forward runs one pass. A non-nil rng enables inverted dropout.
func (n *lstmNetwork) forward(window [][]float64, rng *rand.Rand) *networkPass {
	p := &networkPass{}

	p.steps1 = n.first.forward(window)
	p.dropped1 = make([][]float64, len(p.steps1))
	p.mask1 = make([][]float64, len(p.steps1))
	for t, s := range p.steps1 {
		p.mask1[t] = n.dropoutMask(rng, len(s.h))
		p.dropped1[t] = applyMask(s.h, p.mask1[t])
	}

	p.steps2 = n.second.forward(p.dropped1)
	last := p.steps2[len(p.steps2)-1].h
	p.mask2 = n.dropoutMask(rng, len(last))
	p.dropped2 = applyMask(last, p.mask2)

	p.out = n.head.forward(p.dropped2)
	return p
}

// backward accumulates gradients for dL/dout.
func (n *lstmNetwork) backward(p *networkPass, dout []float64) {
	dLast := applyMask(n.head.backward(p.dropped2, dout), p.mask2)

	dhs2 := make([][]float64, len(p.steps2))
	for t := range dhs2 {
		dhs2[t] = make([]float64, n.second.hidden)
	}
	dhs2[len(dhs2)-1] = dLast

	dDropped1 := n.second.backward(p.steps2, dhs2)
	dhs1 := make([][]float64, len(dDropped1))
	for t, d := range dDropped1 {
		dhs1[t] = applyMask(d, p.mask1[t])
	}
	n.first.backward(p.steps1, dhs1)
}

// dropoutMask returns nil (keep everything) when rng is nil or dropout is
// off, else a mask of 0 or 1/(1-rate).
func (n *lstmNetwork) dropoutMask(rng *rand.Rand, size int) []float64 {
	if rng == nil || n.dropout <= 0 {
		return nil
	}
	keep := 1 - n.dropout
	mask := make([]float64, size)
	for k := range mask {
		if rng.Float64() < keep {
			mask[k] = 1 / keep
		}
	}
	return mask
}

func applyMask(x, mask []float64) []float64 {
	out := append([]float64(nil), x...)
	if mask != nil {
		floats.Mul(out, mask)
	}
	return out
}

// persistenceModel forecasts the last row of the window. It stands in
// for a trained network when the history is too short to train one.
type persistenceModel struct {
	width int
}

func (m persistenceModel) Width() int {
	return m.width
}

func (m persistenceModel) Predict(window [][]float64) []float64 {
	if len(window) == 0 {
		return make([]float64, m.width)
	}
	return append([]float64(nil), window[len(window)-1]...)
}
