// Package search drives neural-guided Monte-Carlo tree search: a fixed
// pool of workers runs root-to-leaf-to-root simulations against one
// shared tree, coordinated only through per-node locks and the
// virtual-loss bracketing the tree provides.
package search

import (
	"context"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/rs/zerolog"
	exprand "golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	"gozero/pkg/game"
	"gozero/pkg/tree"
)

const mainWorkerID = 0

// Odd multiplier decorrelating per-worker seeds drawn from one root
// seed.
const seedStride = 0x9e3779b97f4a7c15

// NodeSize returns the per-node byte cost the memory limit is measured
// in. Candidate entries are smaller than materialized nodes, so the
// limiter's size accounting errs on the safe side.
func NodeSize() uint32 {
	return uint32(unsafe.Sizeof(tree.Node{}))
}

// SymmetryEvaluator evaluates a position under an explicit symmetry
// index in [0,8). Implemented by network.Network.
type SymmetryEvaluator interface {
	Evaluate(state game.State, symmetry int) ([]game.ScoredMove, float32, error)
}

// randomSymmetry adapts a SymmetryEvaluator to the tree's Evaluator
// capability by drawing a fresh symmetry per evaluation from the
// worker's own generator.
type randomSymmetry struct {
	ev  SymmetryEvaluator
	rng *exprand.Rand
}

func (r randomSymmetry) Evaluate(state game.State) ([]game.ScoredMove, float32, error) {
	return r.ev.Evaluate(state, r.rng.Intn(8))
}

// Search owns one root position and one shared tree. Configure it,
// call Run, then read the result off the root via BestMove or the tree
// utilities.
type Search struct {
	Limiter *Limiter

	state    game.State
	ev       SymmetryEvaluator
	root     *tree.Node
	logger   zerolog.Logger
	listener *StatsListener

	seed         uint64
	noiseEpsilon float64
	noiseAlpha   float64

	cycles   atomic.Uint32
	cps      atomic.Uint32
	maxdepth atomic.Int32
	size     atomic.Uint32
}

type Option func(*Search)

// WithLogger attaches a structured logger for search lifecycle events.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Search) { s.logger = logger }
}

// WithListener attaches progress callbacks.
func WithListener(listener StatsListener) Option {
	return func(s *Search) { *s.listener = listener }
}

// WithSeed fixes the root seed every worker generator derives from.
func WithSeed(seed uint64) Option {
	return func(s *Search) { s.seed = seed }
}

// WithExplorationNoise blends a Dirichlet(alpha) draw into the root
// priors before the workers start, as used for self-play variety.
func WithExplorationNoise(epsilon, alpha float64) Option {
	return func(s *Search) {
		s.noiseEpsilon = epsilon
		s.noiseAlpha = alpha
	}
}

// New builds a search over the given root position. The state is cloned
// per simulation and never mutated.
func New(state game.State, ev SymmetryEvaluator, opts ...Option) *Search {
	s := &Search{
		Limiter:  NewLimiter(NodeSize()),
		state:    state,
		ev:       ev,
		root:     tree.NewRoot(),
		logger:   zerolog.Nop(),
		listener: &StatsListener{nCycles: 1},
		seed:     uint64(time.Now().UnixNano()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Search) SetLimits(limits *Limits) {
	s.Limiter.SetLimits(limits)
}

// Root exposes the shared tree root.
func (s *Search) Root() *tree.Node { return s.root }

// Cycles returns the number of completed simulations.
func (s *Search) Cycles() int { return int(s.cycles.Load()) }

// Cps returns simulations per second over the last search.
func (s *Search) Cps() uint32 { return s.cps.Load() }

// MaxDepth returns the deepest point any simulation reached.
func (s *Search) MaxDepth() int { return int(s.maxdepth.Load()) }

// Size returns the approximate number of tree nodes, counting published
// candidates.
func (s *Search) Size() uint32 { return s.size.Load() }

// StopReason is valid after Run returns.
func (s *Search) StopReason() StopReason { return s.Limiter.StopReason() }

// Stop asks the workers to wind down.
func (s *Search) Stop() { s.Limiter.SetStop(true) }

// Run expands the root, prunes superko candidates, optionally perturbs
// the root priors, then runs simulations on the configured worker pool
// until a budget is exhausted. Returns the root node. An evaluator
// configuration error aborts the search and is returned after the
// workers have unwound their virtual losses.
func (s *Search) Run(ctx context.Context) (*tree.Node, error) {
	s.Limiter.SetContext(ctx)
	s.Limiter.Reset()
	s.cycles.Store(0)
	s.cps.Store(0)
	s.maxdepth.Store(0)

	if err := s.prepareRoot(); err != nil {
		s.Limiter.MarkError()
		s.logger.Error().Err(err).Msg("root expansion failed")
		return s.root, err
	}

	threads := max(1, s.Limiter.Limits().NThreads)
	s.logger.Info().
		Int("threads", threads).
		Uint64("seed", s.seed).
		Str("limits", s.Limiter.Limits().String()).
		Msg("search started")

	g := new(errgroup.Group)
	for id := 0; id < threads; id++ {
		id := id
		g.Go(func() error { return s.worker(id) })
	}
	err := g.Wait()

	s.Limiter.EvaluateStopReason(s.size.Load(), s.cycles.Load())
	if err != nil {
		s.Limiter.MarkError()
	}

	if s.listener.onStop != nil {
		s.listener.onStop(s.snapshot())
	}
	s.logger.Info().
		Int("cycles", s.Cycles()).
		Uint32("cps", s.Cps()).
		Int("maxdepth", s.MaxDepth()).
		Uint32("nodes", s.Size()).
		Str("reason", s.StopReason().String()).
		Msg("search stopped")

	return s.root, err
}

// prepareRoot expands the root synchronously so every worker starts on
// a populated candidate list, then applies superko pruning and the
// optional exploration noise while nothing has been materialized yet.
func (s *Search) prepareRoot() error {
	rng := exprand.New(exprand.NewSource(s.seed))
	ev := randomSymmetry{ev: s.ev, rng: rng}

	if !s.root.Expanded() {
		_, ok, err := s.root.CreateChildren(ev, s.state.Clone())
		if err != nil {
			return err
		}
		if ok {
			s.size.Add(uint32(s.root.NumCandidates()) + 1)
		}
	}

	s.root.KillSuperkos(s.state)
	if s.noiseEpsilon > 0 {
		s.root.ApplyExplorationNoise(rng, s.noiseEpsilon, s.noiseAlpha)
	}
	return nil
}

func (s *Search) worker(id int) error {
	rng := exprand.New(exprand.NewSource(s.seed + uint64(id)*seedStride + 1))
	ev := randomSymmetry{ev: s.ev, rng: rng}

	for s.Limiter.Ok(s.size.Load(), s.cycles.Load()) {
		state := s.state.Clone()
		if _, _, err := s.playSimulation(state, s.root, ev, 0); err != nil {
			// Unrecoverable for this search; wind down the pool.
			s.Limiter.SetStop(true)
			return err
		}

		cycles := s.cycles.Add(1)
		s.cps.Store(cycles * 1000 / s.Limiter.Elapsed())

		if id == mainWorkerID && s.listener.onCycle != nil &&
			int(cycles)%s.listener.nCycles == 0 {
			s.listener.onCycle(s.snapshot())
		}
	}

	// Everyone stops once any limit trips.
	s.Limiter.SetStop(true)
	return nil
}

// playSimulation walks one simulation from node to a leaf and back. On
// the way down each hop brackets the node with EnterNode (pushing a
// virtual loss); on the way back up LeaveNode records the real outcome
// and pops the loss. The returned eval is from black's point of view;
// ok=false means the walk produced no usable outcome and only the
// virtual losses were unwound.
func (s *Search) playSimulation(state game.State, node *tree.Node, ev game.Evaluator, depth int32) (float32, bool, error) {
	color := state.ToMove()
	node.EnterNode(0, 0)

	var eval float32
	var ok bool

	if !node.Expanded() {
		if s.Limiter.Expand() {
			var err error
			eval, ok, err = node.CreateChildren(ev, state)
			if err != nil {
				node.LeaveNode(0, 0)
				return 0, false, err
			}
			if ok {
				s.size.Add(uint32(node.NumCandidates()))
			}
		}
		if !ok {
			// Terminal position, a lost expansion race or a
			// frozen tree: back up what the node already knows.
			eval, ok = nodeFallbackEval(node)
		}
	} else {
		next := node.SelectChild(color)
		if next == nil {
			// Every candidate has been invalidated.
			eval, ok = nodeFallbackEval(node)
		} else {
			state.PlayMove(next.Move())
			if next.Move() != game.Pass && state.Superko() {
				next.Invalidate()
			} else {
				var err error
				eval, ok, err = s.playSimulation(state, next, ev, depth+1)
				if err != nil {
					node.LeaveNode(0, 0)
					return 0, false, err
				}
			}
		}
	}

	if ok {
		node.LeaveNode(1, float64(eval))
	} else {
		node.LeaveNode(0, 0)
	}

	s.updateDepth(depth)
	return eval, ok, nil
}

// nodeFallbackEval reports the node's own current estimate in black's
// perspective: the running average if any backup completed, the
// first-play-urgency value otherwise.
func nodeFallbackEval(node *tree.Node) (float32, bool) {
	stats := node.Stats()
	if stats.Visits > 0 {
		return float32(stats.EvalSum / float64(stats.Visits)), true
	}
	return stats.InitEval, true
}

func (s *Search) updateDepth(depth int32) {
	for {
		cur := s.maxdepth.Load()
		if depth <= cur || s.maxdepth.CompareAndSwap(cur, depth) {
			return
		}
	}
}

// BestMove ranks the root children for the side to move and returns the
// move to play; Pass when the root has no viable child. When
// temperature is true the choice is drawn proportionally to visit
// counts instead of greedily, for opening variety.
func (s *Search) BestMove(temperature bool) game.Vertex {
	color := s.state.ToMove()

	if temperature {
		s.root.SortRootChildren(color)
		rng := exprand.New(exprand.NewSource(s.seed ^ 0xda3e39cb94b95bdb))
		s.root.RandomizeFirstProportionally(rng)
		if first := s.root.FirstChild(); first != nil {
			return first.Move()
		}
		return game.Pass
	}

	best := s.root.BestRootChild(color)
	if best == nil {
		return game.Pass
	}
	return best.Move()
}

// Winrate returns the best child's effective eval for the side to move,
// or the root fallback when nothing has been searched.
func (s *Search) Winrate() float64 {
	color := s.state.ToMove()
	if best := bestVisitedChild(s.root); best != nil {
		return float64(best.Eval(color))
	}
	eval, _ := nodeFallbackEval(s.root)
	if color == game.White {
		eval = 1 - eval
	}
	return float64(eval)
}

// bestVisitedChild scans the materialized children for the most visited
// one without materializing anything, cheap enough for mid-search
// snapshots.
func bestVisitedChild(root *tree.Node) *tree.Node {
	var best *tree.Node
	var bestVisits uint32
	for _, child := range root.Children() {
		if !child.Valid() {
			continue
		}
		if v := child.Visits(); v > bestVisits {
			bestVisits = v
			best = child
		}
	}
	return best
}

func (s *Search) snapshot() SearchStats {
	stats := SearchStats{
		Cycles:     s.Cycles(),
		TimeMs:     int(s.Limiter.Elapsed()),
		Cps:        s.Cps(),
		MaxDepth:   s.MaxDepth(),
		Nodes:      s.Size(),
		BestMove:   game.Pass,
		Winrate:    s.Winrate(),
		StopReason: s.Limiter.StopReason(),
	}
	if best := bestVisitedChild(s.root); best != nil {
		stats.BestMove = best.Move()
	}
	return stats
}
