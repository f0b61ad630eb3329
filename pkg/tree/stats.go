package tree

import "gozero/pkg/game"

// Stats is a consistent snapshot of one node's counters, taken under the
// node's lock. The eval sum is accumulated from black's point of view
// regardless of who is to move.
type Stats struct {
	Visits      uint32
	EvalSum     float64
	Prior       float32
	InitEval    float32
	VirtualLoss int32
}

// Eval returns the effective evaluation from color's point of view.
// A node with no real or in-flight visits reports its first-play-urgency
// value. In-flight virtual losses count as zero-value outcomes for black,
// so they also lower the node's score for white after mirroring; either
// way a branch someone is already walking looks worse to the selecting
// side.
func (s Stats) Eval(color game.Color) float32 {
	total := int64(s.Visits) + int64(s.VirtualLoss)

	score := s.InitEval
	if total > 0 {
		sum := s.EvalSum
		if color == game.White {
			sum += float64(s.VirtualLoss)
		}
		score = float32(sum / float64(total))
	}
	if color == game.White {
		score = 1 - score
	}
	return score
}

// Stats returns an atomic snapshot of the node's counters.
func (n *Node) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.statsLocked()
}

func (n *Node) statsLocked() Stats {
	return Stats{
		Visits:      n.visits,
		EvalSum:     n.evalSum,
		Prior:       n.prior,
		InitEval:    n.initEval,
		VirtualLoss: n.virtualLoss,
	}
}

// Eval is shorthand for Stats().Eval(color).
func (n *Node) Eval(color game.Color) float32 {
	return n.Stats().Eval(color)
}

// Visits returns the number of completed backups through the node.
func (n *Node) Visits() uint32 {
	return n.Stats().Visits
}
