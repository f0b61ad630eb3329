package network

import (
	"errors"
	"fmt"

	exprand "golang.org/x/exp/rand"
)

// ErrMalformedWeights reports weight tensors whose shapes do not fit
// together. Loading and parsing a weight source is the caller's concern;
// the network only checks that what it was handed is usable.
var ErrMalformedWeights = errors.New("network: malformed weights")

// ConvLayer is one convolution with its fused batch-norm statistics.
// Weights are laid out (outputs, inputs, k, k) row-major.
type ConvLayer struct {
	Weights   []float32
	Biases    []float32
	Means     []float32
	Variances []float32
}

func (l *ConvLayer) check(name string, filterLen, inputs, outputs int) error {
	if len(l.Biases) != outputs || len(l.Means) != outputs || len(l.Variances) != outputs {
		return fmt.Errorf("%w: %s has %d/%d/%d biases/means/variances, want %d",
			ErrMalformedWeights, name, len(l.Biases), len(l.Means), len(l.Variances), outputs)
	}
	if len(l.Weights) != outputs*inputs*filterLen {
		return fmt.Errorf("%w: %s has %d weights, want %d",
			ErrMalformedWeights, name, len(l.Weights), outputs*inputs*filterLen)
	}
	return nil
}

// ResidualBlock is two 3x3 convolutions with a skip connection around
// them.
type ResidualBlock struct {
	Conv1 ConvLayer
	Conv2 ConvLayer
}

// DenseLayer is a fully connected layer, weights (outputs, inputs)
// row-major.
type DenseLayer struct {
	Weights []float32
	Biases  []float32
}

func (l *DenseLayer) check(name string, inputs, outputs int) error {
	if len(l.Biases) != outputs || len(l.Weights) != outputs*inputs {
		return fmt.Errorf("%w: %s has %d weights and %d biases, want %d and %d",
			ErrMalformedWeights, name, len(l.Weights), len(l.Biases), outputs*inputs, outputs)
	}
	return nil
}

// Weights holds every tensor of the dual-headed residual network. The
// tower depth is whatever the weight source supplied, not a compile-time
// constant.
type Weights struct {
	// Input convolution, 3x3, InputChannels -> Channels().
	Input ConvLayer
	// Residual tower, 3x3 throughout.
	Tower []ResidualBlock

	// Policy head: 1x1 convolution to 2 channels, then 722 -> 362.
	PolicyConv  ConvLayer
	PolicyDense DenseLayer

	// Value head: 1x1 convolution to 1 channel, then 361 -> 256 -> 1.
	ValueConv   ConvLayer
	ValueHidden DenseLayer
	ValueOut    DenseLayer
}

// Channels returns the residual tower width.
func (w *Weights) Channels() int {
	return len(w.Input.Biases)
}

func (w *Weights) validate() error {
	channels := w.Channels()
	if channels == 0 {
		return fmt.Errorf("%w: empty input convolution", ErrMalformedWeights)
	}

	if err := w.Input.check("input conv", 9, InputChannels, channels); err != nil {
		return err
	}
	for i := range w.Tower {
		if err := w.Tower[i].Conv1.check(fmt.Sprintf("residual %d conv1", i), 9, channels, channels); err != nil {
			return err
		}
		if err := w.Tower[i].Conv2.check(fmt.Sprintf("residual %d conv2", i), 9, channels, channels); err != nil {
			return err
		}
	}

	if err := w.PolicyConv.check("policy conv", 1, channels, 2); err != nil {
		return err
	}
	if err := w.PolicyDense.check("policy dense", 2*NumIntersections, PolicyOutputs); err != nil {
		return err
	}
	if err := w.ValueConv.check("value conv", 1, channels, 1); err != nil {
		return err
	}
	if err := w.ValueHidden.check("value hidden", NumIntersections, 256); err != nil {
		return err
	}
	return w.ValueOut.check("value out", 256, 1)
}

// NewRandomWeights builds a tower of the given width and depth with
// small gaussian weights and identity batch norms. Used by benchmarks,
// examples and tests; a real engine loads trained tensors instead.
func NewRandomWeights(channels, blocks int, rng *exprand.Rand) *Weights {
	w := &Weights{
		Input: randomConv(rng, 9, InputChannels, channels),
		Tower: make([]ResidualBlock, blocks),

		PolicyConv:  randomConv(rng, 1, channels, 2),
		PolicyDense: randomDense(rng, 2*NumIntersections, PolicyOutputs),
		ValueConv:   randomConv(rng, 1, channels, 1),
		ValueHidden: randomDense(rng, NumIntersections, 256),
		ValueOut:    randomDense(rng, 256, 1),
	}
	for i := range w.Tower {
		w.Tower[i] = ResidualBlock{
			Conv1: randomConv(rng, 9, channels, channels),
			Conv2: randomConv(rng, 9, channels, channels),
		}
	}
	return w
}

func randomConv(rng *exprand.Rand, filterLen, inputs, outputs int) ConvLayer {
	l := ConvLayer{
		Weights:   make([]float32, outputs*inputs*filterLen),
		Biases:    make([]float32, outputs),
		Means:     make([]float32, outputs),
		Variances: make([]float32, outputs),
	}
	scale := 1.0 / float64(inputs*filterLen)
	for i := range l.Weights {
		l.Weights[i] = float32(rng.NormFloat64() * scale)
	}
	for i := range l.Variances {
		l.Variances[i] = 1
	}
	return l
}

func randomDense(rng *exprand.Rand, inputs, outputs int) DenseLayer {
	l := DenseLayer{
		Weights: make([]float32, outputs*inputs),
		Biases:  make([]float32, outputs),
	}
	scale := 1.0 / float64(inputs)
	for i := range l.Weights {
		l.Weights[i] = float32(rng.NormFloat64() * scale)
	}
	return l
}
