package tree

import (
	"math"
	"sort"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"gozero/pkg/game"
)

// KillSuperkos drops every candidate whose move would recreate an earlier
// whole-board position, preserving the order of the survivors. Only safe
// to call before any child has been materialized.
func (n *Node) KillSuperkos(state game.State) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.children) > 0 {
		panic("tree: KillSuperkos after child materialization")
	}

	good := make([]Candidate, 0, len(n.candidates))
	for _, cand := range n.candidates {
		if cand.Move != game.Pass {
			probe := state.Clone()
			probe.PlayMove(cand.Move)
			if probe.Superko() {
				continue
			}
		}
		good = append(good, cand)
	}
	n.candidates = good
}

// ApplyExplorationNoise blends a Dirichlet(alpha) draw into the candidate
// priors: prior' = prior*(1-epsilon) + epsilon*noise. A degenerate draw
// (sample sum at or below the smallest positive value) leaves the priors
// untouched. Only safe to call before any child has been materialized;
// applied once, at the root.
func (n *Node) ApplyExplorationNoise(src exprand.Source, epsilon, alpha float64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.children) > 0 {
		panic("tree: ApplyExplorationNoise after child materialization")
	}

	gamma := distuv.Gamma{Alpha: alpha, Beta: 1, Src: src}
	noise := make([]float64, len(n.candidates))
	var sampleSum float64
	for i := range noise {
		noise[i] = gamma.Rand()
		sampleSum += noise[i]
	}

	if sampleSum <= math.SmallestNonzeroFloat64 {
		return
	}

	for i := range n.candidates {
		eta := noise[i] / sampleSum
		prior := float64(n.candidates[i].Prior)
		n.candidates[i].Prior = float32(prior*(1-epsilon) + epsilon*eta)
	}
}

// RandomizeFirstProportionally moves one materialized child to the front
// of the owned sequence, picked with probability proportional to its
// visit share. Used to play the engine's actual move with some variety
// in the opening.
func (n *Node) RandomizeFirstProportionally(rng *exprand.Rand) {
	n.mu.Lock()
	defer n.mu.Unlock()

	var accum uint64
	accums := make([]uint64, 0, len(n.children))
	for _, child := range n.children {
		accum += uint64(child.Visits())
		accums = append(accums, accum)
	}
	if accum == 0 {
		return
	}

	pick := rng.Uint64n(accum)
	index := 0
	for i := range accums {
		if pick < accums[i] {
			index = i
			break
		}
	}

	if index == 0 {
		return
	}
	n.children[0], n.children[index] = n.children[index], n.children[0]
}

// nodeLess orders a strictly below b for root-child ranking: fewer real
// visits loses; at zero visits the lower prior loses; otherwise the lower
// effective eval for color loses.
func nodeLess(a, b *Node, color game.Color) bool {
	as, bs := a.Stats(), b.Stats()

	if as.Visits != bs.Visits {
		return as.Visits < bs.Visits
	}
	if as.Visits == 0 {
		return as.Prior < bs.Prior
	}
	return as.Eval(color) < bs.Eval(color)
}

// SortRootChildren materializes every remaining candidate and orders the
// children best first for the given color.
func (n *Node) SortRootChildren(color game.Color) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.expandAllLocked()
	sort.SliceStable(n.children, func(i, j int) bool {
		return nodeLess(n.children[j], n.children[i], color)
	})
}

// BestRootChild materializes every remaining candidate and returns the
// highest-ranked child for the given color, or nil when the node has no
// candidates at all.
func (n *Node) BestRootChild(color game.Color) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.expandAllLocked()
	if len(n.children) == 0 {
		return nil
	}

	best := n.children[0]
	for _, child := range n.children[1:] {
		if nodeLess(best, child, color) {
			best = child
		}
	}
	return best
}
