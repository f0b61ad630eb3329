package search

import (
	"encoding/json"
	"math"
	"strings"
)

// Limits is the search budget: playout cycles, wall-clock time, worker
// count and a memory cap expressed in bytes over the approximate node
// size. Zero limits plus Infinite means the search only stops on an
// explicit Stop or context cancellation.
type Limits struct {
	Cycles   uint32
	Movetime int
	Infinite bool
	NThreads int
	ByteSize int64
}

func (l Limits) String() string {
	builder := strings.Builder{}
	_ = json.NewEncoder(&builder).Encode(l)
	return builder.String()
}

const (
	DefaultCyclesLimit   uint32 = math.MaxUint32
	DefaultMovetimeLimit int    = -1
	DefaultByteSizeLimit int64  = -1
)

func DefaultLimits() *Limits {
	return &Limits{
		Cycles:   DefaultCyclesLimit,
		Movetime: DefaultMovetimeLimit,
		Infinite: true,
		NThreads: 1,
		ByteSize: DefaultByteSizeLimit,
	}
}

// SetCycles caps the number of completed simulations.
func (l *Limits) SetCycles(cycles uint32) *Limits {
	l.Cycles = cycles
	l.Infinite = false
	return l
}

// SetMovetime caps the thinking time, in milliseconds.
func (l *Limits) SetMovetime(movetime int) *Limits {
	l.Movetime = movetime
	l.Infinite = false
	return l
}

func (l *Limits) SetInfinite(infinite bool) *Limits {
	l.Infinite = infinite
	return l
}

// SetThreads sets the number of simulation workers.
func (l *Limits) SetThreads(threads int) *Limits {
	l.NThreads = max(threads, 1)
	return l
}

// SetMbSize caps the tree memory, in mebibytes.
func (l *Limits) SetMbSize(mbsize int) *Limits {
	return l.SetByteSize(int64(mbsize) * (1 << 20))
}

// SetByteSize caps the tree memory, in bytes.
func (l *Limits) SetByteSize(bytesize int64) *Limits {
	l.ByteSize = bytesize
	l.Infinite = false
	return l
}

func (l *Limits) InfiniteSize() bool {
	return l.ByteSize == DefaultByteSizeLimit
}
