package tree

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gozero/pkg/game"
)

// fakeState is a minimal game.State for exercising the tree: a flat list
// of playable vertices with configurable illegal moves and
// superko-producing moves.
type fakeState struct {
	size    int
	passes  int
	toMove  game.Color
	illegal map[game.Vertex]bool
	superko map[game.Vertex]bool

	played  []game.Vertex
	repeats bool
}

func newFakeState(size int) *fakeState {
	return &fakeState{
		size:    size,
		toMove:  game.Black,
		illegal: make(map[game.Vertex]bool),
		superko: make(map[game.Vertex]bool),
	}
}

func (f *fakeState) Stone(idx int) game.Color { return game.Empty }
func (f *fakeState) Size() int                { return f.size }
func (f *fakeState) ToMove() game.Color       { return f.toMove }
func (f *fakeState) Passes() int              { return f.passes }
func (f *fakeState) Terminal() bool           { return f.passes >= 2 }
func (f *fakeState) Superko() bool            { return f.repeats }

func (f *fakeState) IsLegal(c game.Color, v game.Vertex) bool {
	return v == game.Pass || !f.illegal[v]
}

func (f *fakeState) PlayMove(v game.Vertex) {
	if v == game.Pass {
		f.passes++
	} else {
		f.passes = 0
	}
	f.repeats = f.superko[v]
	f.played = append(f.played, v)
	f.toMove = f.toMove.Opponent()
}

func (f *fakeState) History(back int) (game.Position, bool) {
	if back == 0 {
		return f, true
	}
	return nil, false
}

func (f *fakeState) Clone() game.State {
	c := *f
	c.played = append([]game.Vertex(nil), f.played...)
	return &c
}

// fakeEvaluator returns a fixed policy and value, optionally failing or
// sleeping first.
type fakeEvaluator struct {
	policy []game.ScoredMove
	value  float32
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (e *fakeEvaluator) Evaluate(state game.State) ([]game.ScoredMove, float32, error) {
	e.calls.Add(1)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.err != nil {
		return nil, 0, e.err
	}
	return e.policy, e.value, nil
}

func scored(probs ...float32) []game.ScoredMove {
	moves := make([]game.ScoredMove, len(probs))
	for i, p := range probs {
		moves[i] = game.ScoredMove{Vertex: game.Vertex(i), Prob: p}
	}
	return moves
}

// expandedNode builds a node whose candidates carry the given priors.
func expandedNode(t *testing.T, probs ...float32) *Node {
	t.Helper()
	node := NewRoot()
	ev := &fakeEvaluator{policy: scored(probs...), value: 0.5}
	_, ok, err := node.CreateChildren(ev, newFakeState(5))
	require.NoError(t, err)
	require.True(t, ok)
	return node
}

func TestCreateChildrenPublishesSortedCandidates(t *testing.T) {
	node := NewRoot()
	ev := &fakeEvaluator{policy: scored(0.1, 0.5, 0.4), value: 0.7}

	eval, ok, err := node.CreateChildren(ev, newFakeState(5))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 0.7, eval, 1e-6)
	assert.True(t, node.Expanded())
	assert.Equal(t, 3, node.NumCandidates())

	// Selection materializes the best prior first.
	child := node.SelectChild(game.Black)
	require.NotNil(t, child)
	assert.Equal(t, game.Vertex(1), child.Move())
	assert.InDelta(t, 0.5, child.Prior(), 1e-6)
}

func TestCreateChildrenWhitePerspective(t *testing.T) {
	node := NewRoot()
	state := newFakeState(5)
	state.toMove = game.White
	ev := &fakeEvaluator{policy: scored(1), value: 0.7}

	eval, ok, err := node.CreateChildren(ev, state)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.3, eval, 1e-6)
}

func TestCreateChildrenTerminal(t *testing.T) {
	node := NewRoot()
	state := newFakeState(5)
	state.passes = 2
	ev := &fakeEvaluator{policy: scored(1), value: 0.5}

	_, ok, err := node.CreateChildren(ev, state)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, node.Expanded())
	assert.Zero(t, ev.calls.Load(), "terminal positions must not be evaluated")
}

func TestCreateChildrenSingleWinner(t *testing.T) {
	node := NewRoot()
	ev := &fakeEvaluator{policy: scored(0.6, 0.4), value: 0.5, delay: 5 * time.Millisecond}

	const racers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := node.CreateChildren(ev, newFakeState(5))
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(1), ev.calls.Load())
	assert.True(t, node.Expanded())
}

func TestCreateChildrenErrorAllowsRetry(t *testing.T) {
	node := NewRoot()
	boom := errors.New("boom")

	_, ok, err := node.CreateChildren(&fakeEvaluator{err: boom}, newFakeState(5))
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)
	assert.False(t, node.Expanded())

	// The failed expansion released its claim.
	_, ok, err = node.CreateChildren(&fakeEvaluator{policy: scored(1), value: 0.5}, newFakeState(5))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, node.Expanded())
}

func TestCreateChildrenFiltersAndRenormalizes(t *testing.T) {
	node := NewRoot()
	state := newFakeState(5)
	state.illegal[game.Vertex(0)] = true
	ev := &fakeEvaluator{policy: scored(0.5, 0.3, 0.2), value: 0.5}

	_, ok, err := node.CreateChildren(ev, state)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, node.NumCandidates())

	// Remaining mass 0.5 rescaled to 1, order by prior kept.
	first := node.SelectChild(game.Black)
	require.NotNil(t, first)
	assert.Equal(t, game.Vertex(1), first.Move())
	assert.InDelta(t, 0.6, first.Prior(), 1e-6)
}

func TestCreateChildrenNoLegalMoves(t *testing.T) {
	node := NewRoot()
	state := newFakeState(5)
	state.illegal[game.Vertex(0)] = true
	// The whole policy is one illegal move: the node must still publish
	// (as expanded with nothing) instead of staying claimed forever.
	ev := &fakeEvaluator{policy: scored(1), value: 0.4}

	eval, ok, err := node.CreateChildren(ev, state)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 0.4, eval, 1e-6)
	assert.True(t, node.Expanded())
	assert.Zero(t, node.NumCandidates())
	assert.Nil(t, node.SelectChild(game.Black))

	// Later callers lose the race instead of re-running the evaluator.
	_, ok, err = node.CreateChildren(ev, state)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(1), ev.calls.Load())
}

func TestEnterLeaveBracketsVirtualLoss(t *testing.T) {
	node := NewRoot()

	stats := node.EnterNode(0, 0)
	assert.Equal(t, int32(VirtualLossCount), stats.VirtualLoss)
	assert.Zero(t, stats.Visits)

	stats = node.LeaveNode(1, 0.8)
	assert.Zero(t, stats.VirtualLoss)
	assert.Equal(t, uint32(1), stats.Visits)
	assert.InDelta(t, 0.8, stats.EvalSum, 1e-9)
}

func TestEnterNodeGraftsLargerStats(t *testing.T) {
	node := NewRoot()

	stats := node.EnterNode(5, 2.5)
	assert.Equal(t, uint32(5), stats.Visits)
	assert.InDelta(t, 2.5, stats.EvalSum, 1e-9)
	node.LeaveNode(0, 0)

	// Smaller grafts never shrink the counters.
	stats = node.EnterNode(3, 1)
	assert.Equal(t, uint32(5), stats.Visits)
	assert.InDelta(t, 2.5, stats.EvalSum, 1e-9)
	node.LeaveNode(0, 0)
}

func TestConcurrentEnterLeaveQuiesces(t *testing.T) {
	node := NewRoot()

	const workers = 8
	const rounds = 200
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				node.EnterNode(0, 0)
				node.LeaveNode(1, 0.5)
			}
		}()
	}
	wg.Wait()

	stats := node.Stats()
	assert.Zero(t, stats.VirtualLoss)
	assert.Equal(t, uint32(workers*rounds), stats.Visits)
	assert.InDelta(t, float64(workers*rounds)*0.5, stats.EvalSum, 1e-6)
}
