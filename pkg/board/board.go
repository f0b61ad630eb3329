// Package board is a compact Go board implementing the game.State
// capability: legality with captures and suicide, consecutive-pass
// termination, an 8-deep position history for feature encoding and
// whole-board positional-superko detection over xxhash fingerprints.
package board

import (
	"github.com/OneOfOne/xxhash"

	"gozero/pkg/game"
)

// How many prior positions are retained for the evaluator's history
// planes.
const historyDepth = 8

type position []game.Color

func (p position) Stone(idx int) game.Color {
	return p[idx]
}

// Board is a mutable Go position. Not safe for concurrent mutation;
// every simulation clones the root state and plays on its own copy.
type Board struct {
	size   int
	stones position
	toMove game.Color
	passes int

	// Previous positions, most recent first, capped at historyDepth.
	history []position
	// Fingerprint of every position since the start of the game,
	// current position last. Drives superko detection.
	hashes []uint64
}

// New creates an empty board of the given dimension with black to move.
func New(size int) *Board {
	b := &Board{
		size:   size,
		stones: make(position, size*size),
		toMove: game.Black,
	}
	for i := range b.stones {
		b.stones[i] = game.Empty
	}
	b.hashes = append(b.hashes, b.hash())
	return b
}

func (b *Board) Size() int           { return b.size }
func (b *Board) ToMove() game.Color  { return b.toMove }
func (b *Board) Passes() int         { return b.passes }
func (b *Board) Terminal() bool      { return b.passes >= 2 }
func (b *Board) Stone(idx int) game.Color {
	return b.stones[idx]
}

// History returns the position as it was `back` moves ago; back 0 is the
// current position.
func (b *Board) History(back int) (game.Position, bool) {
	if back == 0 {
		return b.stones, true
	}
	if back-1 < len(b.history) {
		return b.history[back-1], true
	}
	return nil, false
}

// Clone returns an independent deep copy.
func (b *Board) Clone() game.State {
	c := &Board{
		size:    b.size,
		stones:  append(position(nil), b.stones...),
		toMove:  b.toMove,
		passes:  b.passes,
		history: make([]position, len(b.history)),
		hashes:  append([]uint64(nil), b.hashes...),
	}
	for i := range b.history {
		c.history[i] = append(position(nil), b.history[i]...)
	}
	return c
}

func (b *Board) neighbors(idx int, f func(n int)) {
	x := idx % b.size
	if x > 0 {
		f(idx - 1)
	}
	if x < b.size-1 {
		f(idx + 1)
	}
	if idx >= b.size {
		f(idx - b.size)
	}
	if idx < b.size*(b.size-1) {
		f(idx + b.size)
	}
}

// floodGroup collects the group containing idx on the given stones and
// reports whether it has any liberty.
func (b *Board) floodGroup(stones position, idx int, group []bool) bool {
	color := stones[idx]
	stack := []int{idx}
	group[idx] = true
	hasLiberty := false

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		b.neighbors(cur, func(n int) {
			switch {
			case stones[n] == game.Empty:
				hasLiberty = true
			case stones[n] == color && !group[n]:
				group[n] = true
				stack = append(stack, n)
			}
		})
	}
	return hasLiberty
}

// resolveCaptures removes opponent groups left without liberties by a
// stone just placed at idx, then reports whether the placing side's own
// group still breathes (false means the move was suicide).
func (b *Board) resolveCaptures(stones position, idx int, c game.Color) bool {
	opp := c.Opponent()
	b.neighbors(idx, func(n int) {
		if stones[n] != opp {
			return
		}
		group := make([]bool, len(stones))
		if !b.floodGroup(stones, n, group) {
			for i, in := range group {
				if in {
					stones[i] = game.Empty
				}
			}
		}
	})

	group := make([]bool, len(stones))
	return b.floodGroup(stones, idx, group)
}

// IsLegal reports whether color may play the vertex: the point must be
// empty and the move must not be suicide. Pass is always legal. Superko
// is deliberately not checked here; the search prunes repetitions
// separately on disposable copies.
func (b *Board) IsLegal(c game.Color, v game.Vertex) bool {
	if v == game.Pass {
		return true
	}
	idx := int(v)
	if idx < 0 || idx >= len(b.stones) || b.stones[idx] != game.Empty {
		return false
	}

	scratch := append(position(nil), b.stones...)
	scratch[idx] = c
	return b.resolveCaptures(scratch, idx, c)
}

// PlayMove plays the vertex (or Pass) for the side to move. Illegal
// moves are the caller's responsibility; the board assumes IsLegal held.
func (b *Board) PlayMove(v game.Vertex) {
	b.pushHistory()

	if v == game.Pass {
		b.passes++
	} else {
		idx := int(v)
		b.stones[idx] = b.toMove
		b.resolveCaptures(b.stones, idx, b.toMove)
		b.passes = 0
	}

	b.toMove = b.toMove.Opponent()
	b.hashes = append(b.hashes, b.hash())
}

func (b *Board) pushHistory() {
	snapshot := append(position(nil), b.stones...)
	b.history = append([]position{snapshot}, b.history...)
	if len(b.history) > historyDepth {
		b.history = b.history[:historyDepth]
	}
}

// Superko reports whether the current whole-board position already
// occurred earlier in the game.
func (b *Board) Superko() bool {
	cur := b.hashes[len(b.hashes)-1]
	for _, h := range b.hashes[:len(b.hashes)-1] {
		if h == cur {
			return true
		}
	}
	return false
}

func (b *Board) hash() uint64 {
	buf := make([]byte, len(b.stones))
	for i, c := range b.stones {
		buf[i] = byte(c)
	}
	return xxhash.Checksum64(buf)
}
