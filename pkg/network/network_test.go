package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	exprand "golang.org/x/exp/rand"

	"gozero/pkg/board"
	"gozero/pkg/game"
)

func tinyNetwork(t *testing.T, opts ...Option) *Network {
	t.Helper()
	rng := exprand.New(exprand.NewSource(1))
	nw, err := New(NewRandomWeights(4, 1, rng), opts...)
	require.NoError(t, err)
	return nw
}

func TestEvaluateEmptyBoard(t *testing.T) {
	nw := tinyNetwork(t)

	moves, value, err := nw.Evaluate(board.New(BoardSize), 0)
	require.NoError(t, err)

	// Every intersection is playable, plus pass.
	assert.Len(t, moves, PolicyOutputs)
	assert.GreaterOrEqual(t, value, float32(0))
	assert.LessOrEqual(t, value, float32(1))

	var sum float32
	seen := make(map[game.Vertex]bool)
	for _, sm := range moves {
		assert.False(t, seen[sm.Vertex], "duplicate vertex %d", sm.Vertex)
		seen[sm.Vertex] = true
		assert.GreaterOrEqual(t, sm.Prob, float32(0))
		sum += sm.Prob
	}
	assert.True(t, seen[game.Pass])
	assert.InDelta(t, 1, sum, 1e-3)
}

func TestEvaluateSkipsOccupiedPoints(t *testing.T) {
	nw := tinyNetwork(t)
	b := board.New(BoardSize)
	b.PlayMove(game.Vertex(72))

	moves, _, err := nw.Evaluate(b, 0)
	require.NoError(t, err)
	assert.Len(t, moves, PolicyOutputs-1)
	for _, sm := range moves {
		assert.NotEqual(t, game.Vertex(72), sm.Vertex)
	}
}

func TestEvaluateEverySymmetryNormalizes(t *testing.T) {
	nw := tinyNetwork(t)
	b := board.New(BoardSize)
	b.PlayMove(game.Vertex(60))
	b.PlayMove(game.Vertex(61))

	for sym := 0; sym < NumSymmetries; sym++ {
		moves, value, err := nw.Evaluate(b, sym)
		require.NoError(t, err, "symmetry %d", sym)
		assert.Len(t, moves, PolicyOutputs-2)
		assert.GreaterOrEqual(t, value, float32(0))
		assert.LessOrEqual(t, value, float32(1))

		// Outputs come back in original coordinates whatever the
		// frame: the occupied points never appear.
		var sum float32
		for _, sm := range moves {
			assert.NotEqual(t, game.Vertex(60), sm.Vertex)
			assert.NotEqual(t, game.Vertex(61), sm.Vertex)
			sum += sm.Prob
		}
		assert.Less(t, sum, float32(1.001))
	}
}

func TestEvaluateDerotatesNonInvolutiveSymmetries(t *testing.T) {
	nw := tinyNetwork(t)
	moves := []game.Vertex{60, 61, 100}

	// Symmetries 5 and 6 are not their own inverse, so a forward/inverse
	// mix-up in the output mapping shows up only here: evaluating a
	// position under such a symmetry must equal evaluating the
	// explicitly transformed position in the identity frame, vertex by
	// vertex through the same permutation.
	for _, sym := range []int{5, 6} {
		b := board.New(BoardSize)
		transformed := board.New(BoardSize)
		for _, m := range moves {
			b.PlayMove(game.Vertex(rotateIndex(int(m), sym)))
			transformed.PlayMove(m)
		}

		got, gotValue, err := nw.Evaluate(b, sym)
		require.NoError(t, err, "symmetry %d", sym)
		want, wantValue, err := nw.Evaluate(transformed, 0)
		require.NoError(t, err)

		assert.InDelta(t, wantValue, gotValue, 1e-6, "symmetry %d", sym)
		require.Len(t, got, len(want), "symmetry %d", sym)

		byVertex := make(map[game.Vertex]float32, len(got))
		for _, sm := range got {
			byVertex[sm.Vertex] = sm.Prob
		}
		for _, sm := range want {
			v := sm.Vertex
			if v != game.Pass {
				v = game.Vertex(rotateIndex(int(sm.Vertex), sym))
			}
			prob, ok := byVertex[v]
			require.True(t, ok, "symmetry %d vertex %d", sym, v)
			assert.InDelta(t, sm.Prob, prob, 1e-6, "symmetry %d vertex %d", sym, v)
		}
	}
}

func TestEvaluateRejectsWrongBoardSize(t *testing.T) {
	nw := tinyNetwork(t)

	_, _, err := nw.Evaluate(board.New(9), 0)
	assert.ErrorIs(t, err, ErrUnsupportedBoardSize)
}

func TestEvaluateRejectsBadSymmetry(t *testing.T) {
	nw := tinyNetwork(t)

	_, _, err := nw.Evaluate(board.New(BoardSize), NumSymmetries)
	assert.Error(t, err)
	_, _, err = nw.Evaluate(board.New(BoardSize), -1)
	assert.Error(t, err)
}

func TestTelemetryCountsDuplicates(t *testing.T) {
	telemetry := NewTelemetry()
	nw := tinyNetwork(t, WithTelemetry(telemetry))
	b := board.New(BoardSize)

	_, _, err := nw.Evaluate(b, 0)
	require.NoError(t, err)
	_, _, err = nw.Evaluate(b, 3)
	require.NoError(t, err)

	total, duplicates := telemetry.Counts()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, duplicates, "same position under another symmetry is still a duplicate")

	b.PlayMove(game.Vertex(0))
	_, _, err = nw.Evaluate(b, 0)
	require.NoError(t, err)

	total, duplicates = telemetry.Counts()
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, duplicates)
}

func TestNewRejectsMalformedWeights(t *testing.T) {
	rng := exprand.New(exprand.NewSource(1))
	w := NewRandomWeights(4, 1, rng)
	w.PolicyDense.Biases = w.PolicyDense.Biases[:10]

	_, err := New(w)
	assert.ErrorIs(t, err, ErrMalformedWeights)
}

func TestNetworkShapeAccessors(t *testing.T) {
	rng := exprand.New(exprand.NewSource(1))
	nw, err := New(NewRandomWeights(8, 3, rng))
	require.NoError(t, err)

	assert.Equal(t, 8, nw.Channels())
	assert.Equal(t, 3, nw.Blocks())
}
