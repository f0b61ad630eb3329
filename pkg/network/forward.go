package network

import (
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

const bnEpsilon = 1e-5

// im2col unrolls a same-padded convolution input into a
// (channels*k*k) x 361 column matrix so the convolution becomes a single
// GEMM.
func im2col(filterSize, channels int, input, col []float32) {
	pad := (filterSize - 1) / 2

	out := 0
	for c := 0; c < channels; c++ {
		channel := input[c*NumIntersections : (c+1)*NumIntersections]
		for ky := 0; ky < filterSize; ky++ {
			for kx := 0; kx < filterSize; kx++ {
				for y := 0; y < BoardSize; y++ {
					sy := y + ky - pad
					for x := 0; x < BoardSize; x++ {
						sx := x + kx - pad
						if sy >= 0 && sy < BoardSize && sx >= 0 && sx < BoardSize {
							col[out] = channel[sy*BoardSize+sx]
						} else {
							col[out] = 0
						}
						out++
					}
				}
			}
		}
	}
}

// convolve computes output[o*361+b] = sum_k weights[o][k]*col[k][b] + bias[o]
// as one sgemm over the im2col unrolling. The input channel count is
// recovered from the tensor shapes.
func convolve(filterSize, outputs int, input, weights, biases, output []float32) {
	filterLen := filterSize * filterSize
	channels := len(weights) / (outputs * filterLen)
	filterDim := filterLen * channels

	col := make([]float32, filterDim*NumIntersections)
	im2col(filterSize, channels, input, col)

	a := blas32.General{Rows: outputs, Cols: filterDim, Stride: filterDim, Data: weights}
	b := blas32.General{Rows: filterDim, Cols: NumIntersections, Stride: NumIntersections, Data: col}
	c := blas32.General{Rows: outputs, Cols: NumIntersections, Stride: NumIntersections, Data: output}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, a, b, 0, c)

	for o := 0; o < outputs; o++ {
		base := o * NumIntersections
		for i := 0; i < NumIntersections; i++ {
			output[base+i] += biases[o]
		}
	}
}

// batchNorm normalizes per channel and applies ReLU. A non-nil residual
// is added before the ReLU (the skip connection of a residual block).
func batchNorm(channels int, input, means, variances, residual, output []float32) {
	for c := 0; c < channels; c++ {
		mean := means[c]
		scale := float32(1 / math.Sqrt(float64(variances[c])+bnEpsilon))

		base := c * NumIntersections
		for i := 0; i < NumIntersections; i++ {
			v := scale * (input[base+i] - mean)
			if residual != nil {
				v += residual[base+i]
			}
			if v < 0 {
				v = 0
			}
			output[base+i] = v
		}
	}
}

// innerProduct computes output = weights*input + biases with one sgemv,
// optionally clamping through ReLU.
func innerProduct(inputs, outputs int, input, weights, biases, output []float32, relu bool) {
	a := blas32.General{Rows: outputs, Cols: inputs, Stride: inputs, Data: weights}
	x := blas32.Vector{N: inputs, Inc: 1, Data: input}
	y := blas32.Vector{N: outputs, Inc: 1, Data: output}
	blas32.Gemv(blas.NoTrans, 1, a, x, 0, y)

	for o := 0; o < outputs; o++ {
		v := output[o] + biases[o]
		if relu && v < 0 {
			v = 0
		}
		output[o] = v
	}
}

// softmax writes the temperature-scaled softmax of the first len(output)
// entries of input, shifted by the maximum for numerical stability.
func softmax(input, output []float32, temperature float32) {
	alpha := input[0]
	for _, v := range input[:len(output)] {
		if v > alpha {
			alpha = v
		}
	}
	alpha /= temperature

	var denom float32
	for i := range output {
		v := float32(math.Exp(float64(input[i]/temperature - alpha)))
		output[i] = v
		denom += v
	}
	for i := range output {
		output[i] /= denom
	}
}

// forwardTower runs the input convolution and the residual tower,
// returning the shared feature map both heads read from.
func forwardTower(w *Weights, input []float32) []float32 {
	channels := w.Channels()
	spatial := channels * NumIntersections

	conv := make([]float32, spatial)
	cur := make([]float32, spatial)
	mid := make([]float32, spatial)

	convolve(3, channels, input, w.Input.Weights, w.Input.Biases, conv)
	batchNorm(channels, conv, w.Input.Means, w.Input.Variances, nil, cur)

	for i := range w.Tower {
		block := &w.Tower[i]

		convolve(3, channels, cur, block.Conv1.Weights, block.Conv1.Biases, conv)
		batchNorm(channels, conv, block.Conv1.Means, block.Conv1.Variances, nil, mid)

		convolve(3, channels, mid, block.Conv2.Weights, block.Conv2.Biases, conv)

		// Skip connection joins before the final ReLU.
		next := make([]float32, spatial)
		batchNorm(channels, conv, block.Conv2.Means, block.Conv2.Variances, cur, next)
		cur = next
	}

	return cur
}
