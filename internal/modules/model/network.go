package model

import (
	"fmt"
	"math"
	"math/rand"
)

// OutputSize is the number of raw distribution outputs: location, log
// scale, skew pre-activation and log tail weight.
const OutputSize = 4

// Network is a small feed-forward net mapping standardized feature vectors
// to the four raw distribution outputs. Hidden layers use tanh, the output
// layer is linear. Weights are plain nested slices and both passes are
// explicit loops; at this parameter count a tensor library would only add
// ceremony.
type Network struct {
	InputSize   int           `msgpack:"input_size"`
	HiddenSizes []int         `msgpack:"hidden_sizes"`
	Weights     [][][]float64 `msgpack:"weights"` // [layer][from][to]
	Biases      [][]float64   `msgpack:"biases"`  // [layer][to]
}

// NewNetwork initializes a network with scaled uniform weights from the
// given source, so a fixed seed reproduces the same starting point.
func NewNetwork(inputSize int, hiddenSizes []int, rng *rand.Rand) *Network {
	sizes := layerSizes(inputSize, hiddenSizes)

	n := &Network{
		InputSize:   inputSize,
		HiddenSizes: append([]int{}, hiddenSizes...),
		Weights:     make([][][]float64, len(sizes)-1),
		Biases:      make([][]float64, len(sizes)-1),
	}

	for l := 0; l < len(sizes)-1; l++ {
		from, to := sizes[l], sizes[l+1]
		scale := 1.0 / math.Sqrt(float64(from))

		n.Weights[l] = make([][]float64, from)
		for i := 0; i < from; i++ {
			n.Weights[l][i] = make([]float64, to)
			for j := 0; j < to; j++ {
				n.Weights[l][i][j] = (rng.Float64() - 0.5) * 2 * scale
			}
		}

		n.Biases[l] = make([]float64, to)
		for j := 0; j < to; j++ {
			n.Biases[l][j] = (rng.Float64() - 0.5) * 0.1
		}
	}

	return n
}

// Cache holds the per-layer activations of one forward pass, which the
// backward pass consumes
type Cache struct {
	activations [][]float64 // [layer][unit], activations[0] is the input
}

// Forward runs one input through the network and keeps the activations
func (n *Network) Forward(features []float64) ([OutputSize]float64, *Cache) {
	cache := &Cache{activations: make([][]float64, len(n.Weights)+1)}
	cache.activations[0] = features

	current := features
	last := len(n.Weights) - 1
	for l := range n.Weights {
		to := len(n.Biases[l])
		next := make([]float64, to)
		for j := 0; j < to; j++ {
			sum := n.Biases[l][j]
			for i, a := range current {
				sum += a * n.Weights[l][i][j]
			}
			if l < last {
				sum = math.Tanh(sum)
			}
			next[j] = sum
		}
		cache.activations[l+1] = next
		current = next
	}

	var raw [OutputSize]float64
	copy(raw[:], current)
	return raw, cache
}

// Outputs runs a forward pass and discards the cache
func (n *Network) Outputs(features []float64) [OutputSize]float64 {
	raw, _ := n.Forward(features)
	return raw
}

// Backward accumulates parameter gradients for one sample into grads,
// given the gradient of the loss with respect to the raw outputs.
func (n *Network) Backward(cache *Cache, dRaw [OutputSize]float64, grads *Gradients) {
	delta := dRaw[:]

	for l := len(n.Weights) - 1; l >= 0; l-- {
		input := cache.activations[l]

		for i, a := range input {
			for j, d := range delta {
				grads.Weights[l][i][j] += a * d
			}
		}
		for j, d := range delta {
			grads.Biases[l][j] += d
		}

		if l == 0 {
			break
		}

		// Propagate through the tanh of the previous layer
		prev := make([]float64, len(input))
		for i, a := range input {
			sum := 0.0
			for j, d := range delta {
				sum += n.Weights[l][i][j] * d
			}
			prev[i] = (1 - a*a) * sum
		}
		delta = prev
	}
}

// Clone returns a deep copy, used to hold on to the best weights during
// early stopping
func (n *Network) Clone() *Network {
	c := &Network{
		InputSize:   n.InputSize,
		HiddenSizes: append([]int{}, n.HiddenSizes...),
		Weights:     make([][][]float64, len(n.Weights)),
		Biases:      make([][]float64, len(n.Biases)),
	}
	for l := range n.Weights {
		c.Weights[l] = make([][]float64, len(n.Weights[l]))
		for i := range n.Weights[l] {
			c.Weights[l][i] = append([]float64{}, n.Weights[l][i]...)
		}
		c.Biases[l] = append([]float64{}, n.Biases[l]...)
	}
	return c
}

// ParamCount returns the number of trainable parameters
func (n *Network) ParamCount() int {
	count := 0
	for l := range n.Weights {
		for i := range n.Weights[l] {
			count += len(n.Weights[l][i])
		}
		count += len(n.Biases[l])
	}
	return count
}

// Validate checks structural consistency, mainly after decoding a snapshot
func (n *Network) Validate() error {
	if n.InputSize < 1 {
		return fmt.Errorf("network input size %d is invalid", n.InputSize)
	}

	sizes := layerSizes(n.InputSize, n.HiddenSizes)
	if len(n.Weights) != len(sizes)-1 || len(n.Biases) != len(sizes)-1 {
		return fmt.Errorf("network has %d weight layers, want %d", len(n.Weights), len(sizes)-1)
	}

	for l := 0; l < len(sizes)-1; l++ {
		from, to := sizes[l], sizes[l+1]
		if len(n.Weights[l]) != from {
			return fmt.Errorf("layer %d has %d input rows, want %d", l, len(n.Weights[l]), from)
		}
		for i := range n.Weights[l] {
			if len(n.Weights[l][i]) != to {
				return fmt.Errorf("layer %d row %d has width %d, want %d", l, i, len(n.Weights[l][i]), to)
			}
		}
		if len(n.Biases[l]) != to {
			return fmt.Errorf("layer %d has %d biases, want %d", l, len(n.Biases[l]), to)
		}
	}

	return nil
}

// Gradients mirrors the network's parameter shapes
type Gradients struct {
	Weights [][][]float64
	Biases  [][]float64
}

// NewGradients allocates zeroed gradients shaped like the network
func NewGradients(n *Network) *Gradients {
	g := &Gradients{
		Weights: make([][][]float64, len(n.Weights)),
		Biases:  make([][]float64, len(n.Biases)),
	}
	for l := range n.Weights {
		g.Weights[l] = make([][]float64, len(n.Weights[l]))
		for i := range n.Weights[l] {
			g.Weights[l][i] = make([]float64, len(n.Weights[l][i]))
		}
		g.Biases[l] = make([]float64, len(n.Biases[l]))
	}
	return g
}

// Zero resets all accumulated gradients
func (g *Gradients) Zero() {
	for l := range g.Weights {
		for i := range g.Weights[l] {
			for j := range g.Weights[l][i] {
				g.Weights[l][i][j] = 0
			}
		}
		for j := range g.Biases[l] {
			g.Biases[l][j] = 0
		}
	}
}

// GlobalNorm returns the L2 norm over every gradient entry
func (g *Gradients) GlobalNorm() float64 {
	sum := 0.0
	for l := range g.Weights {
		for i := range g.Weights[l] {
			for _, v := range g.Weights[l][i] {
				sum += v * v
			}
		}
		for _, v := range g.Biases[l] {
			sum += v * v
		}
	}
	return math.Sqrt(sum)
}

// Scale multiplies every gradient entry by f
func (g *Gradients) Scale(f float64) {
	for l := range g.Weights {
		for i := range g.Weights[l] {
			for j := range g.Weights[l][i] {
				g.Weights[l][i][j] *= f
			}
		}
		for j := range g.Biases[l] {
			g.Biases[l][j] *= f
		}
	}
}

func layerSizes(inputSize int, hiddenSizes []int) []int {
	sizes := make([]int, 0, len(hiddenSizes)+2)
	sizes = append(sizes, inputSize)
	sizes = append(sizes, hiddenSizes...)
	return append(sizes, OutputSize)
}
