package training

import (
	"math"

	"github.com/skewcast/skewcast/internal/modules/model"
)

// adam applies Adam updates to the network parameters, keeping first and
// second moment estimates shaped like the network itself.
type adam struct {
	lr      float64
	beta1   float64
	beta2   float64
	epsilon float64
	steps   int

	mWeights [][][]float64
	vWeights [][][]float64
	mBiases  [][]float64
	vBiases  [][]float64
}

func newAdam(net *model.Network, lr float64) *adam {
	a := &adam{
		lr:      lr,
		beta1:   0.9,
		beta2:   0.999,
		epsilon: 1e-8,
	}

	a.mWeights = make([][][]float64, len(net.Weights))
	a.vWeights = make([][][]float64, len(net.Weights))
	a.mBiases = make([][]float64, len(net.Biases))
	a.vBiases = make([][]float64, len(net.Biases))
	for l := range net.Weights {
		a.mWeights[l] = make([][]float64, len(net.Weights[l]))
		a.vWeights[l] = make([][]float64, len(net.Weights[l]))
		for i := range net.Weights[l] {
			a.mWeights[l][i] = make([]float64, len(net.Weights[l][i]))
			a.vWeights[l][i] = make([]float64, len(net.Weights[l][i]))
		}
		a.mBiases[l] = make([]float64, len(net.Biases[l]))
		a.vBiases[l] = make([]float64, len(net.Biases[l]))
	}

	return a
}

// Step applies one update from the accumulated (and already clipped)
// mean gradients, with the standard bias correction.
func (a *adam) Step(net *model.Network, grads *model.Gradients) {
	a.steps++
	c1 := 1 - math.Pow(a.beta1, float64(a.steps))
	c2 := 1 - math.Pow(a.beta2, float64(a.steps))

	for l := range net.Weights {
		for i := range net.Weights[l] {
			for j := range net.Weights[l][i] {
				g := grads.Weights[l][i][j]
				a.mWeights[l][i][j] = a.beta1*a.mWeights[l][i][j] + (1-a.beta1)*g
				a.vWeights[l][i][j] = a.beta2*a.vWeights[l][i][j] + (1-a.beta2)*g*g
				net.Weights[l][i][j] -= a.lr * (a.mWeights[l][i][j] / c1) /
					(math.Sqrt(a.vWeights[l][i][j]/c2) + a.epsilon)
			}
		}
		for j := range net.Biases[l] {
			g := grads.Biases[l][j]
			a.mBiases[l][j] = a.beta1*a.mBiases[l][j] + (1-a.beta1)*g
			a.vBiases[l][j] = a.beta2*a.vBiases[l][j] + (1-a.beta2)*g*g
			net.Biases[l][j] -= a.lr * (a.mBiases[l][j] / c1) /
				(math.Sqrt(a.vBiases[l][j]/c2) + a.epsilon)
		}
	}
}
