package tree

import (
	"math"

	"gozero/pkg/game"
)

// childStatsLocked returns the statistics PUCT scores candidate i with.
// Unmaterialized candidates are zero-visit children carrying their prior
// and the parent's inherited first-play-urgency. Caller holds n.mu.
func (n *Node) childStatsLocked(i int) Stats {
	if i < len(n.children) {
		return n.children[i].Stats()
	}
	return Stats{
		Prior:    n.candidates[i].Prior,
		InitEval: n.childInitEval,
	}
}

// SelectChild performs one PUCT hop for the given side to move: it scores
// every still-valid candidate with
//
//	eval(color) + ExplorationParam * prior * sqrt(parentVisits) / (1 + visits)
//
// and returns the argmax, materializing it into an owned child if needed.
// Ties keep the earliest candidate, which in sorted order is the one with
// the higher prior. Returns nil when every candidate has been invalidated.
func (n *Node) SelectChild(color game.Color) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()

	// Count parent visits over the children ourselves instead of using
	// our own counter, to stay correct with grafted statistics.
	var parentVisits uint64
	for _, child := range n.children {
		if !child.Valid() {
			continue
		}
		parentVisits += uint64(child.Visits())
	}
	numerator := math.Sqrt(float64(parentVisits))

	best := -1
	bestValue := -1000.0
	for i := range n.candidates {
		if i < len(n.children) && !n.children[i].Valid() {
			continue
		}

		stats := n.childStatsLocked(i)

		// Eval falls back to first-play-urgency on unvisited nodes.
		winrate := float64(stats.Eval(color))
		psa := float64(stats.Prior)
		denom := 1.0 + float64(stats.Visits)
		puct := ExplorationParam * psa * (numerator / denom)
		value := winrate + puct

		if value > bestValue {
			bestValue = value
			best = i
		}
	}

	if best < 0 {
		return nil
	}
	return n.materializeLocked(best)
}
