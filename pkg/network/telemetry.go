package network

import "sync"

// Telemetry is an optional deduplication ledger counting how often the
// network was asked to evaluate a position it has already seen. It is
// diagnostics only: it never influences search results, and it carries
// its own lock so it is independent of any tree lock.
type Telemetry struct {
	mu         sync.Mutex
	seen       map[uint64]struct{}
	total      int
	duplicates int
}

func NewTelemetry() *Telemetry {
	return &Telemetry{seen: make(map[uint64]struct{})}
}

func (t *Telemetry) record(hash uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[hash]; ok {
		t.duplicates++
	}
	t.total++
	t.seen[hash] = struct{}{}
}

// Counts returns the number of evaluations recorded so far and how many
// of them hit a position evaluated before.
func (t *Telemetry) Counts() (total, duplicates int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total, t.duplicates
}
