package search

import (
	"time"
)

type searchTimer struct {
	start    time.Time
	duration time.Duration
}

func newSearchTimer() *searchTimer {
	return &searchTimer{time.Now(), -1}
}

// IsEnd reports whether an armed deadline has passed.
func (t *searchTimer) IsEnd() bool {
	return t.duration > 0 && time.Since(t.start) >= t.duration
}

// IsSet reports whether a deadline is armed at all.
func (t *searchTimer) IsSet() bool {
	return t.duration != -1
}

func (t *searchTimer) Reset() {
	t.start = time.Now()
}

// Deltatime returns whole milliseconds since the last Reset, at least 1
// so it can serve as a division denominator.
func (t *searchTimer) Deltatime() int {
	return max(int(time.Since(t.start).Milliseconds()), 1)
}

// Movetime arms the deadline, in milliseconds. Negative disarms it.
func (t *searchTimer) Movetime(movetime int) {
	if movetime < 0 {
		t.duration = -1
	} else {
		t.duration = time.Duration(movetime) * time.Millisecond
	}
}
