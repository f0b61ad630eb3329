package search

import "gozero/pkg/game"

// SearchStats is the snapshot handed to listener callbacks.
type SearchStats struct {
	Cycles     int
	TimeMs     int
	Cps        uint32
	MaxDepth   int
	Nodes      uint32
	BestMove   game.Vertex
	Winrate    float64
	StopReason StopReason
}

// ListenerFunc receives search statistics snapshots during the search.
type ListenerFunc func(SearchStats)

// StatsListener bundles the progress callbacks a caller may attach to a
// search. Callbacks run on the main worker only, so they need no
// synchronization of their own.
type StatsListener struct {
	// called every nCycles completed simulations
	onCycle ListenerFunc
	nCycles int

	// called once when the search stops, with StopReason populated
	onStop ListenerFunc
}

func NewStatsListener() StatsListener {
	return StatsListener{nCycles: 1}
}

// OnCycle attaches a periodic progress callback. Snapshotting the best
// line costs a root scan, so keep the interval coarse.
func (listener *StatsListener) OnCycle(onCycle ListenerFunc) *StatsListener {
	listener.onCycle = onCycle
	return listener
}

// SetCycleInterval makes OnCycle fire every n completed simulations.
func (listener *StatsListener) SetCycleInterval(n int) *StatsListener {
	if n < 1 {
		n = 1
	}
	listener.nCycles = n
	return listener
}

// OnStop attaches the end-of-search callback.
func (listener *StatsListener) OnStop(onStop ListenerFunc) *StatsListener {
	listener.onStop = onStop
	return listener
}
