// Package arena plays head-to-head matches between two engine
// configurations. Games are distributed over a pool of workers, each
// playing complete games move by move with a fresh search per move, and
// the outcome tally is kept in lock-free counters.
package arena

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
	exprand "golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	"gozero/pkg/game"
	"gozero/pkg/search"
)

// Position is a scoreable game state: everything the search needs plus
// area scoring for deciding finished games.
type Position interface {
	game.State
	Score(komi float64) float64
}

// Player is one side of the match: a name for reporting, the evaluator
// driving its searches and the per-move search budget.
type Player struct {
	Name      string
	Evaluator search.SymmetryEvaluator
	Limits    *search.Limits
}

type MatchResult int

const (
	Pl1Win MatchResult = 1
	Pl2Win MatchResult = -1
	Draw   MatchResult = 0
)

// Stats is the running outcome tally. Safe for concurrent updates and
// reads while the match is in progress.
type Stats struct {
	p1Wins    uint32
	p2Wins    uint32
	draws     uint32
	blackWins uint32
	whiteWins uint32
}

func (s *Stats) Total() int {
	return s.P1Wins() + s.P2Wins() + s.Draws()
}

func (s *Stats) P1Wins() int {
	return int(atomic.LoadUint32(&s.p1Wins))
}

func (s *Stats) P2Wins() int {
	return int(atomic.LoadUint32(&s.p2Wins))
}

func (s *Stats) Draws() int {
	return int(atomic.LoadUint32(&s.draws))
}

func (s *Stats) BlackWins() int {
	return int(atomic.LoadUint32(&s.blackWins))
}

func (s *Stats) WhiteWins() int {
	return int(atomic.LoadUint32(&s.whiteWins))
}

// GameRecord describes one finished game for the OnGame callback.
type GameRecord struct {
	Worker   int
	Game     int
	Moves    []game.Vertex
	Score    float64 // black-positive area score
	Result   MatchResult
	Pl1Black bool
}

// Summary is the final match report.
type Summary struct {
	TotalGames int    `json:"total_games"`
	P1Wins     int    `json:"player1_wins"`
	P2Wins     int    `json:"player2_wins"`
	BlackWins  int    `json:"black_wins"`
	WhiteWins  int    `json:"white_wins"`
	Draws      int    `json:"draws"`
	Workers    int    `json:"workers"`
	P1Name     string `json:"player1_name"`
	P2Name     string `json:"player2_name"`
}

// Arena runs a series of games between Player1 and Player2 from a fixed
// starting position. Colors alternate between games so first-move
// advantage cancels out over an even number of games.
type Arena struct {
	Stats
	Player1  Player
	Player2  Player
	NGames   int
	NThreads int
	Komi     float64
	// MaxMoves cuts off games that never reach two consecutive
	// passes; the position is scored as it stands.
	MaxMoves int

	position Position
	seed     uint64
	logger   zerolog.Logger
	onGame   func(GameRecord)
}

type Option func(*Arena)

func WithLogger(logger zerolog.Logger) Option {
	return func(a *Arena) { a.logger = logger }
}

func WithSeed(seed uint64) Option {
	return func(a *Arena) { a.seed = seed }
}

// WithOnGame attaches a per-game callback. It may be called from any
// worker, so it must be safe for concurrent use.
func WithOnGame(onGame func(GameRecord)) Option {
	return func(a *Arena) { a.onGame = onGame }
}

func New(position Position, p1, p2 Player, opts ...Option) *Arena {
	size := position.Size()
	a := &Arena{
		Player1:  p1,
		Player2:  p2,
		NGames:   10,
		NThreads: 2,
		Komi:     7.5,
		MaxMoves: 2 * size * size,
		position: position,
		seed:     1,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Arena) Setup(nGames, nThreads int) *Arena {
	a.NGames = max(nGames, 1)
	a.NThreads = max(nThreads, 1)
	return a
}

// Run plays the configured number of games and returns the summary. A
// cancelled context stops the match early; games already finished stay
// counted. A search error aborts the whole match.
func (a *Arena) Run(ctx context.Context) (Summary, error) {
	a.logger.Info().
		Str("player1", a.Player1.Name).
		Str("player2", a.Player2.Name).
		Int("games", a.NGames).
		Int("workers", a.NThreads).
		Msg("match started")

	// Distribute the games evenly, the remainder going one each to
	// the first workers.
	g := new(errgroup.Group)
	per := a.NGames / a.NThreads
	rest := a.NGames % a.NThreads
	firstGame := 0
	for id := 0; id < a.NThreads; id++ {
		n := per
		if id < rest {
			n++
		}
		id, first := id, firstGame
		firstGame += n
		g.Go(func() error { return a.worker(ctx, id, first, n) })
	}
	err := g.Wait()

	summary := Summary{
		TotalGames: a.Total(),
		P1Wins:     a.P1Wins(),
		P2Wins:     a.P2Wins(),
		BlackWins:  a.BlackWins(),
		WhiteWins:  a.WhiteWins(),
		Draws:      a.Draws(),
		Workers:    a.NThreads,
		P1Name:     a.Player1.Name,
		P2Name:     a.Player2.Name,
	}
	a.logger.Info().
		Int("total", summary.TotalGames).
		Int("p1_wins", summary.P1Wins).
		Int("p2_wins", summary.P2Wins).
		Int("draws", summary.Draws).
		Msg("match finished")
	return summary, err
}

func (a *Arena) worker(ctx context.Context, id, firstGame, nGames int) error {
	rng := exprand.New(exprand.NewSource(a.seed + uint64(firstGame)))

	for i := 0; i < nGames; i++ {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		gameIdx := firstGame + i
		record, err := a.playGame(ctx, id, gameIdx, rng)
		if err != nil {
			return err
		}
		a.count(record)

		if a.onGame != nil {
			a.onGame(record)
		}
		a.logger.Debug().
			Int("game", gameIdx).
			Int("moves", len(record.Moves)).
			Float64("score", record.Score).
			Int("result", int(record.Result)).
			Msg("game finished")
	}
	return nil
}

// playGame plays one complete game, Player1 taking black on even game
// indices. A cancelled context scores the position as it stands.
func (a *Arena) playGame(ctx context.Context, id, gameIdx int, rng *exprand.Rand) (GameRecord, error) {
	pl1Black := gameIdx%2 == 0
	state := a.position.Clone().(Position)
	moves := make([]game.Vertex, 0, a.MaxMoves)

	for !state.Terminal() && len(moves) < a.MaxMoves {
		select {
		case <-ctx.Done():
			return a.finish(id, gameIdx, state, moves, pl1Black), nil
		default:
		}

		player := a.Player1
		if (state.ToMove() == game.Black) != pl1Black {
			player = a.Player2
		}

		s := search.New(state, player.Evaluator, search.WithSeed(rng.Uint64()))
		s.SetLimits(player.Limits)
		if _, err := s.Run(ctx); err != nil {
			return GameRecord{}, err
		}

		mv := s.BestMove(false)
		state.PlayMove(mv)
		moves = append(moves, mv)
	}

	return a.finish(id, gameIdx, state, moves, pl1Black), nil
}

func (a *Arena) finish(id, gameIdx int, state Position, moves []game.Vertex, pl1Black bool) GameRecord {
	score := state.Score(a.Komi)
	record := GameRecord{
		Worker:   id,
		Game:     gameIdx,
		Moves:    moves,
		Score:    score,
		Pl1Black: pl1Black,
	}

	switch {
	case score == 0:
		record.Result = Draw
	case (score > 0) == pl1Black:
		record.Result = Pl1Win
	default:
		record.Result = Pl2Win
	}
	return record
}

func (a *Arena) count(record GameRecord) {
	switch record.Result {
	case Draw:
		atomic.AddUint32(&a.draws, 1)
		return
	case Pl1Win:
		atomic.AddUint32(&a.p1Wins, 1)
	case Pl2Win:
		atomic.AddUint32(&a.p2Wins, 1)
	}

	if record.Score > 0 {
		atomic.AddUint32(&a.blackWins, 1)
	} else {
		atomic.AddUint32(&a.whiteWins, 1)
	}
}
