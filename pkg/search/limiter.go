package search

import (
	"context"
	"math"
	"sync/atomic"
)

type StopReason int

const (
	StopNone      StopReason = iota
	StopInterrupt            = 1 // Stopped by caller, via Stop() or context cancellation
	StopMovetime             = 2 // Time limit reached
	StopMemory               = 4 // Memory limit reached
	StopCycles               = 8 // Cycle limit reached
	StopError                = 16
)

func (sr StopReason) String() string {
	if sr == StopNone {
		return "None"
	}

	reasons := []struct {
		flag StopReason
		name string
	}{
		{StopInterrupt, "Interrupt"},
		{StopMovetime, "Movetime"},
		{StopMemory, "Memory"},
		{StopCycles, "Cycles"},
		{StopError, "Error"},
	}

	var result string
	for _, r := range reasons {
		if sr&r.flag == r.flag {
			if result != "" {
				result += "|"
			}
			result += r.name
		}
	}

	return result
}

const (
	stopMask   = int(StopInterrupt)
	timeMask   = int(StopMovetime)
	memoryMask = int(StopMemory)
	cyclesMask = int(StopCycles)
)

// Limiter decides when the workers should stop simulating and whether
// the tree may keep growing. All methods are safe for concurrent use by
// the workers.
type Limiter struct {
	limits     *Limits
	timer      *searchTimer
	nodeSize   uint32
	maxSize    uint32
	expand     atomic.Bool
	stop       atomic.Bool
	areSetMask int
	reason     StopReason
	ctx        context.Context
}

func NewLimiter(nodesize uint32) *Limiter {
	limiter := &Limiter{
		limits:   DefaultLimits(),
		timer:    newSearchTimer(),
		nodeSize: max(nodesize, 1),
		ctx:      context.Background(),
	}

	limiter.expand.Store(true)
	return limiter
}

// Reset arms the limiter for a new search: clears the stop flag, starts
// the clock and recomputes the node budget implied by the memory cap.
func (l *Limiter) Reset() {
	l.timer.Movetime(l.limits.Movetime)
	l.timer.Reset()
	l.stop.Store(false)
	l.expand.Store(true)
	l.reason = StopNone

	if l.limits.ByteSize != DefaultByteSizeLimit {
		l.maxSize = uint32(l.limits.ByteSize / int64(l.nodeSize))
	} else {
		l.maxSize = math.MaxUint32
	}

	// Pre-calculate which limits are armed at all, see Ok.
	l.areSetMask = toMask(l.timer.IsSet(), 1) |
		toMask(l.limits.ByteSize != DefaultByteSizeLimit, 2) |
		toMask(l.limits.Cycles != DefaultCyclesLimit, 3)
}

func (l *Limiter) EvaluateStopReason(size, cycles uint32) {
	okMask := l.OkMask(size, cycles)
	reason := StopNone

	if okMask&stopMask == stopMask {
		reason |= StopInterrupt
	}
	if okMask&timeMask == timeMask {
		reason |= StopMovetime
	}
	if okMask&memoryMask == memoryMask {
		reason |= StopMemory
	}
	if okMask&cyclesMask == cyclesMask {
		reason |= StopCycles
	}

	l.reason = reason
}

// StopReason is valid after the search ends.
func (l *Limiter) StopReason() StopReason {
	return l.reason
}

// MarkError records that the search ended because a worker failed.
// Called after the workers have been joined.
func (l *Limiter) MarkError() {
	l.reason |= StopError
}

func (l *Limiter) SetContext(ctx context.Context) {
	l.ctx = ctx
}

func (l *Limiter) SetStop(v bool) {
	l.stop.Store(v)
}

func (l *Limiter) Stop() bool {
	select {
	case <-l.ctx.Done():
		l.stop.Store(true)
	default:
	}
	return l.stop.Load()
}

func (l *Limiter) SetLimits(limits *Limits) {
	l.limits = limits
}

func (l *Limiter) Limits() *Limits {
	return l.limits
}

// Elapsed returns milliseconds since the last Reset, at least 1.
func (l *Limiter) Elapsed() uint32 {
	return uint32(l.timer.Deltatime())
}

// Expand reports whether new nodes may still be added to the tree.
func (l *Limiter) Expand() bool {
	return l.expand.Load()
}

func toMask(val bool, offset int) int {
	if val {
		return 1 << offset
	}
	return 0
}

func (l *Limiter) limitMask(size, cycles uint32) int {
	stop := l.Stop()
	if l.limits.Infinite {
		return toMask(stop, 0)
	}

	limitMask := 0
	limitMask |= toMask(stop, 0)
	limitMask |= toMask(l.timer.IsEnd(), 1)
	limitMask |= toMask(l.maxSize <= size, 2)
	limitMask |= toMask(l.limits.Cycles <= cycles, 3)

	return limitMask
}

// OkMask reports which limits are currently exceeded. When the memory
// cap is hit but a time or cycle budget is also armed, expansion is
// frozen instead of stopping the search: simulations keep refining the
// existing tree until the other budget runs out.
func (l *Limiter) OkMask(size, cycles uint32) int {
	limitMask := l.limitMask(size, cycles)

	if (l.areSetMask&memoryMask) == memoryMask && (l.areSetMask&(timeMask|cyclesMask)) != 0 {
		if limitMask&memoryMask == memoryMask {
			l.expand.Store(false)
			limitMask ^= memoryMask
		}
	}

	return limitMask
}

func (l *Limiter) Ok(size, cycles uint32) bool {
	return l.OkMask(size, cycles) == 0
}
