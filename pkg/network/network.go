// Package network evaluates board positions with a dual-headed residual
// convolution network: binary feature planes in, a move probability
// distribution (including pass) and a side-to-move win probability out.
// The forward pass runs synchronously on the calling goroutine; the
// tensors are plain float32 slices multiplied through gonum's BLAS
// bindings.
package network

import (
	"errors"
	"fmt"
	"math"

	"gozero/pkg/game"
)

// ErrUnsupportedBoardSize reports a position whose dimension does not
// match the network's fixed input size. The evaluation cannot proceed;
// the search driver decides whether to skip the branch or abort.
var ErrUnsupportedBoardSize = errors.New("network: unsupported board size")

// Network is a loaded model ready for evaluation. Safe for concurrent
// use: the forward pass only reads the weights.
type Network struct {
	weights     *Weights
	softmaxTemp float32
	telemetry   *Telemetry
}

type Option func(*Network)

// WithSoftmaxTemperature sets the policy softmax temperature. Values
// above 1 flatten the distribution, values below sharpen it.
func WithSoftmaxTemperature(t float32) Option {
	return func(nw *Network) {
		if t > 0 {
			nw.softmaxTemp = t
		}
	}
}

// WithTelemetry attaches an evaluation-dedup ledger.
func WithTelemetry(t *Telemetry) Option {
	return func(nw *Network) {
		nw.telemetry = t
	}
}

// New validates the weight shapes and builds a Network. A malformed
// weight set is a configuration error surfaced at startup, not during
// search.
func New(w *Weights, opts ...Option) (*Network, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}

	nw := &Network{weights: w, softmaxTemp: 1}
	for _, opt := range opts {
		opt(nw)
	}
	return nw, nil
}

// Channels returns the residual tower width.
func (nw *Network) Channels() int { return nw.weights.Channels() }

// Blocks returns the residual tower depth.
func (nw *Network) Blocks() int { return len(nw.weights.Tower) }

// Evaluate runs a forward pass over the position under the given
// symmetry in [0, NumSymmetries). It returns the policy as (vertex,
// probability) pairs for every empty intersection plus one pass entry,
// in original board coordinates regardless of the symmetry, and the win
// probability in [0,1] for the side to move.
func (nw *Network) Evaluate(state game.State, symmetry int) ([]game.ScoredMove, float32, error) {
	if state.Size() != BoardSize {
		return nil, 0, fmt.Errorf("%w: position is %dx%d, network wants %dx%d",
			ErrUnsupportedBoardSize, state.Size(), state.Size(), BoardSize, BoardSize)
	}
	if symmetry < 0 || symmetry >= NumSymmetries {
		return nil, 0, fmt.Errorf("network: symmetry %d out of range", symmetry)
	}

	planes := GatherFeatures(state)
	if nw.telemetry != nil {
		nw.telemetry.record(planes.Hash())
	}

	// Transform the spatial features into the symmetry's frame.
	input := make([]float32, InputChannels*NumIntersections)
	for c := 0; c < InputChannels; c++ {
		base := c * NumIntersections
		for v := 0; v < NumIntersections; v++ {
			if planes[c][rotateIndex(v, symmetry)] {
				input[base+v] = 1
			}
		}
	}

	w := nw.weights
	features := forwardTower(w, input)

	// Policy head.
	polConv := make([]float32, 2*NumIntersections)
	polNorm := make([]float32, 2*NumIntersections)
	logits := make([]float32, PolicyOutputs)
	policy := make([]float32, PolicyOutputs)
	convolve(1, 2, features, w.PolicyConv.Weights, w.PolicyConv.Biases, polConv)
	batchNorm(2, polConv, w.PolicyConv.Means, w.PolicyConv.Variances, nil, polNorm)
	innerProduct(2*NumIntersections, PolicyOutputs, polNorm, w.PolicyDense.Weights, w.PolicyDense.Biases, logits, false)
	softmax(logits, policy, nw.softmaxTemp)

	// Value head.
	valConv := make([]float32, NumIntersections)
	valNorm := make([]float32, NumIntersections)
	hidden := make([]float32, 256)
	out := make([]float32, 1)
	convolve(1, 1, features, w.ValueConv.Weights, w.ValueConv.Biases, valConv)
	batchNorm(1, valConv, w.ValueConv.Means, w.ValueConv.Variances, nil, valNorm)
	innerProduct(NumIntersections, 256, valNorm, w.ValueHidden.Weights, w.ValueHidden.Biases, hidden, true)
	innerProduct(256, 1, hidden, w.ValueOut.Weights, w.ValueOut.Biases, out, false)

	winrate := float32((1 + math.Tanh(float64(out[0]))) / 2)

	// Map the policy back into original coordinates. Occupied points
	// carry no playable probability; the pass output is
	// symmetry-invariant.
	result := make([]game.ScoredMove, 0, PolicyOutputs)
	for idx := 0; idx < NumIntersections; idx++ {
		board := rotateIndex(idx, symmetry)
		if state.Stone(board) == game.Empty {
			result = append(result, game.ScoredMove{Vertex: game.Vertex(board), Prob: policy[idx]})
		}
	}
	result = append(result, game.ScoredMove{Vertex: game.Pass, Prob: policy[NumIntersections]})

	return result, winrate, nil
}
