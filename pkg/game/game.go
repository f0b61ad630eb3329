// Package game holds the contracts shared between the search tree, the
// network evaluator and the board implementation: colors, vertices, the
// board/rules capability and the evaluation capability.
package game

// Color of a player or of a point on the board.
type Color int8

const (
	Black Color = iota
	White
	Empty
)

func (c Color) Opponent() Color {
	switch c {
	case Black:
		return White
	case White:
		return Black
	}
	return Empty
}

func (c Color) String() string {
	switch c {
	case Black:
		return "black"
	case White:
		return "white"
	}
	return "empty"
}

// Vertex is a board intersection as a row-major index in [0, N*N),
// or Pass.
type Vertex int

const Pass Vertex = -1

// Position is a read-only snapshot of stone occupancy.
type Position interface {
	// Stone returns the color occupying the row-major index, or Empty.
	Stone(idx int) Color
}

// State is the board/rules capability the search consumes. It is mutable;
// callers that need a disposable copy use Clone. Implementations do not
// need to be safe for concurrent mutation, every simulation works on its
// own clone.
type State interface {
	Position

	// Size returns the board dimension N (19 for the standard game).
	Size() int

	// ToMove returns the side about to move.
	ToMove() Color

	// Passes returns the number of consecutive passes ending the move
	// history. Two passes terminate the game.
	Passes() int

	// Terminal reports whether the game has ended.
	Terminal() bool

	// IsLegal reports whether color may play the vertex. Pass is always
	// legal.
	IsLegal(c Color, v Vertex) bool

	// PlayMove plays the vertex (or Pass) for the side to move.
	PlayMove(v Vertex)

	// Superko reports whether the current whole-board position repeats
	// an earlier one.
	Superko() bool

	// History returns the position as it was `back` moves ago. The
	// second return is false when the history does not reach that far.
	History(back int) (Position, bool)

	// Clone returns an independent deep copy.
	Clone() State
}

// ScoredMove is one entry of a policy distribution: a vertex (or Pass)
// and the probability mass the network assigns to it.
type ScoredMove struct {
	Vertex Vertex
	Prob   float32
}

// Evaluator is the leaf-evaluation capability consumed by the tree. The
// returned value is the win probability in [0,1] for the side to move.
// The call is synchronous and may be slow; the tree guarantees it never
// runs under a node lock.
type Evaluator interface {
	Evaluate(state State) (policy []ScoredMove, value float32, err error)
}
