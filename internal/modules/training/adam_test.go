package training

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skewcast/skewcast/internal/modules/model"
)

// quadraticGrads fills grads with the gradient of sum((w-target)^2)
func quadraticGrads(net *model.Network, grads *model.Gradients, target float64) {
	grads.Zero()
	for l := range net.Weights {
		for i := range net.Weights[l] {
			for j := range net.Weights[l][i] {
				grads.Weights[l][i][j] = 2 * (net.Weights[l][i][j] - target)
			}
		}
		for j := range net.Biases[l] {
			grads.Biases[l][j] = 2 * (net.Biases[l][j] - target)
		}
	}
}

func TestAdamConvergesOnQuadratic(t *testing.T) {
	net := model.NewNetwork(2, []int{3}, newSeededRand(11))
	grads := model.NewGradients(net)
	opt := newAdam(net, 0.01)

	const target = 0.7
	for step := 0; step < 1500; step++ {
		quadraticGrads(net, grads, target)
		opt.Step(net, grads)
	}

	for l := range net.Weights {
		for i := range net.Weights[l] {
			for j := range net.Weights[l][i] {
				assert.InDelta(t, target, net.Weights[l][i][j], 0.05)
			}
		}
		for j := range net.Biases[l] {
			assert.InDelta(t, target, net.Biases[l][j], 0.05)
		}
	}
}

func TestAdamFirstStepIsBounded(t *testing.T) {
	net := model.NewNetwork(2, nil, newSeededRand(5))
	before := net.Clone()

	grads := model.NewGradients(net)
	grads.Weights[0][0][0] = 1e6
	grads.Weights[0][1][1] = -3e-3

	opt := newAdam(net, 0.01)
	opt.Step(net, grads)

	// With bias correction the very first update is lr*sign(g) regardless
	// of gradient magnitude
	d1 := net.Weights[0][0][0] - before.Weights[0][0][0]
	d2 := net.Weights[0][1][1] - before.Weights[0][1][1]
	require.InDelta(t, -0.01, d1, 1e-6)
	require.InDelta(t, 0.01, d2, 1e-6)

	// Untouched parameters stay put
	assert.Equal(t, before.Weights[0][0][1], net.Weights[0][0][1])
	assert.Equal(t, before.Biases[0][0], net.Biases[0][0])
}

func TestAdamStateShapesMatchNetwork(t *testing.T) {
	net := model.NewNetwork(6, []int{32, 16}, newSeededRand(1))
	opt := newAdam(net, 0.005)

	require.Len(t, opt.mWeights, len(net.Weights))
	require.Len(t, opt.vWeights, len(net.Weights))
	for l := range net.Weights {
		require.Len(t, opt.mWeights[l], len(net.Weights[l]))
		for i := range net.Weights[l] {
			require.Len(t, opt.mWeights[l][i], len(net.Weights[l][i]))
		}
		require.Len(t, opt.mBiases[l], len(net.Biases[l]))
		require.Len(t, opt.vBiases[l], len(net.Biases[l]))
	}
	assert.Equal(t, 0, opt.steps)
}
