package trend

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Backpropagated gradients must agree with central differences.
func TestLSTMNetwork_GradientsMatchFiniteDifferences(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	net := newLSTMNetwork(rng, 2, 3, 0)

	window := [][]float64{{0.1, 0.9}, {0.4, 0.2}, {0.7, 0.5}, {0.3, 0.3}}
	weights := []float64{0.7, -1.3}

	objective := func() float64 {
		out := net.Predict(window)
		return weights[0]*out[0] + weights[1]*out[1]
	}

	net.zeroGrad()
	net.backward(net.forward(window, nil), weights)

	const h = 1e-6
	for pi, p := range net.params() {
		for i := range p.value {
			orig := p.value[i]
			p.value[i] = orig + h
			up := objective()
			p.value[i] = orig - h
			down := objective()
			p.value[i] = orig

			numeric := (up - down) / (2 * h)
			require.InDeltaf(t, numeric, p.grad[i], 1e-6, "param %d index %d", pi, i)
		}
	}
}

func TestLSTMNetwork_DropoutOnlyWhenTraining(t *testing.T) {
	net := newLSTMNetwork(rand.New(rand.NewSource(3)), 2, 4, 0.5)
	window := [][]float64{{0.2, 0.8}, {0.6, 0.1}}

	a := net.Predict(window)
	b := net.Predict(window)
	assert.Equal(t, a, b)

	pass := net.forward(window, rand.New(rand.NewSource(9)))
	require.Len(t, pass.mask2, 4)
	for _, m := range pass.mask2 {
		assert.Contains(t, []float64{0, 2}, m)
	}
}

func TestPersistenceModel(t *testing.T) {
	m := persistenceModel{width: 2}

	assert.Equal(t, []float64{3, 4}, m.Predict([][]float64{{1, 2}, {3, 4}}))
	assert.Equal(t, []float64{0, 0}, m.Predict(nil))
	assert.Equal(t, 2, m.Width())
}
