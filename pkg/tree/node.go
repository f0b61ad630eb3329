// Package tree implements the shared search tree for neural-guided
// Monte-Carlo tree search: one lock per node, candidate children carrying
// network priors, virtual-loss bracketing for parallel workers and a
// race-safe once-only expansion state machine.
//
// Lock discipline: a node's lock guards only that node's own fields.
// Where child statistics are read during selection, the child lock is
// taken while holding the parent lock; the reverse order never occurs,
// so the hierarchy cannot deadlock.
package tree

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"gozero/pkg/game"
)

// Candidate is a scored move produced by the evaluator that has not yet
// been materialized into an owned child node.
type Candidate struct {
	Move  game.Vertex
	Prior float32
}

// Node is one vertex of the search tree. Nodes are created either as the
// root or by materializing a parent's candidate during selection, and own
// their children exclusively; dropping the root releases the whole tree.
type Node struct {
	mu sync.Mutex

	move  game.Vertex
	prior float32

	// Completed-backup counters. evalSum accumulates from black's
	// point of view.
	visits      uint32
	evalSum     float64
	virtualLoss int32

	initEval      float32
	childInitEval float32

	// Scored moves not yet turned into nodes, sorted best to worst
	// prior, and the owned children materialized from them. Children
	// always occupy the leading candidate slots.
	candidates []Candidate
	children   []*Node

	// Somebody is running the evaluator for this node. Never unset;
	// publishing the candidates supersedes it.
	expanding bool
	expanded  atomic.Bool
	invalid   atomic.Bool
}

// NewNode creates a detached node for the given move with the prior its
// parent's evaluation assigned and the parent's first-play-urgency value.
func NewNode(move game.Vertex, prior, initEval float32) *Node {
	return &Node{move: move, prior: prior, initEval: initEval}
}

// NewRoot creates a tree root for a position that has not been evaluated
// yet.
func NewRoot() *Node {
	return NewNode(game.Pass, 0, 0.5)
}

// Move returns the move this node represents.
func (n *Node) Move() game.Vertex { return n.move }

// Prior returns the probability mass the parent's evaluation assigned to
// this node's move.
func (n *Node) Prior() float32 { return n.prior }

// FirstVisit reports whether no backup has completed through this node.
func (n *Node) FirstVisit() bool { return n.Visits() == 0 }

// Expanded reports whether candidate children have been published.
func (n *Node) Expanded() bool { return n.expanded.Load() }

// Valid reports whether the node may still be selected. Nodes leading
// into superko repetitions are invalidated.
func (n *Node) Valid() bool { return !n.invalid.Load() }

// Invalidate excludes the node from all future selection and statistics
// aggregation.
func (n *Node) Invalidate() { n.invalid.Store(true) }

// CreateChildren runs the evaluator on state and publishes the resulting
// scored moves as this node's candidate children. Exactly one of any
// number of racing callers performs the evaluation and returns ok=true
// with the network eval converted to black's point of view; the others
// return ok=false immediately and must back up the value they already
// hold. Terminal positions (two consecutive passes) are never expanded.
//
// The evaluator call deliberately runs without holding the node lock, so
// concurrent traversals elsewhere in the tree are never blocked on a
// forward pass.
func (n *Node) CreateChildren(ev game.Evaluator, state game.State) (eval float32, ok bool, err error) {
	// check whether somebody beat us to it (atomic)
	if n.expanded.Load() {
		return 0, false, nil
	}

	n.mu.Lock()
	// no successors in final state
	if state.Terminal() {
		n.mu.Unlock()
		return 0, false, nil
	}
	// re-check under the lock, and bail if someone else is already
	// running the expansion
	if n.expanded.Load() || n.expanding {
		n.mu.Unlock()
		return 0, false, nil
	}
	n.expanding = true
	n.mu.Unlock()

	policy, value, err := ev.Evaluate(state)
	if err != nil {
		// The position stays unevaluated; clear the claim so the
		// driver may retry after handling the error.
		n.mu.Lock()
		n.expanding = false
		n.mu.Unlock()
		return 0, false, err
	}

	// The network reports the winrate for the side to move, the tree
	// scores from black's point of view.
	toMove := state.ToMove()
	netEval := value
	if toMove == game.White {
		netEval = 1 - netEval
	}

	nodelist := make([]Candidate, 0, len(policy))
	var legalSum float32
	for _, sm := range policy {
		if state.IsLegal(toMove, sm.Vertex) {
			nodelist = append(nodelist, Candidate{Move: sm.Vertex, Prior: sm.Prob})
			legalSum += sm.Prob
		}
	}

	// If the legal mass is zero or denormal, don't try to normalize.
	if float64(legalSum) > math.SmallestNonzeroFloat32 {
		for i := range nodelist {
			nodelist[i].Prior /= legalSum
		}
	}

	n.linkNodelist(nodelist, netEval)
	return netEval, true, nil
}

// linkNodelist publishes the candidate children, best prior first, and
// flips the node to expanded. An empty nodelist (every scored move was
// illegal) is published too, so the node reads as expanded-with-nothing
// rather than staying claimed forever.
func (n *Node) linkNodelist(nodelist []Candidate, initEval float32) {
	sort.SliceStable(nodelist, func(i, j int) bool {
		return nodelist[i].Prior > nodelist[j].Prior
	})

	n.mu.Lock()
	n.candidates = nodelist
	n.childInitEval = initEval
	n.expanded.Store(true)
	n.mu.Unlock()
}

// EnterNode starts walking down this node: it increments the virtual
// loss and, when grafting pre-computed statistics, installs
// initialVisits/initialEvalSum if they exceed what the node holds.
// Returns a snapshot of the updated statistics.
func (n *Node) EnterNode(initialVisits uint32, initialEvalSum float64) Stats {
	n.mu.Lock()
	defer n.mu.Unlock()

	if initialVisits > n.visits {
		n.visits = initialVisits
		n.evalSum = initialEvalSum
	}
	n.virtualLoss += VirtualLossCount
	return n.statsLocked()
}

// LeaveNode finishes walking this node: it accumulates the real outcome
// and removes the virtual loss EnterNode applied. Returns a snapshot of
// the updated statistics.
func (n *Node) LeaveNode(visits uint32, evalSum float64) Stats {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.visits += visits
	n.evalSum += evalSum
	n.virtualLoss -= VirtualLossCount
	return n.statsLocked()
}

// NumCandidates returns how many candidate children the node carries,
// materialized or not.
func (n *Node) NumCandidates() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.candidates)
}

// FirstChild returns the first materialized child, or nil.
func (n *Node) FirstChild() *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.children) == 0 {
		return nil
	}
	return n.children[0]
}

// Children returns a copy of the materialized children sequence.
func (n *Node) Children() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// materializeLocked turns candidate i into an owned child, consuming its
// candidate entry. Children pack the front of the candidate slice, so the
// entry is swapped into place first. Caller holds n.mu.
func (n *Node) materializeLocked(i int) *Node {
	if i < len(n.children) {
		return n.children[i]
	}

	dest := len(n.children)
	n.candidates[dest], n.candidates[i] = n.candidates[i], n.candidates[dest]

	c := n.candidates[dest]
	child := NewNode(c.Move, c.Prior, n.childInitEval)
	n.children = append(n.children, child)
	return child
}

// expandAllLocked materializes every remaining candidate. Caller holds
// n.mu.
func (n *Node) expandAllLocked() {
	for i := len(n.children); i < len(n.candidates); i++ {
		n.materializeLocked(i)
	}
}
