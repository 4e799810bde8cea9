package repo

import (
	"sync"
	"time"
)

// monotonicClock issues strictly increasing timestamps for message ordering.
// Two concurrent appends must never share an ordering key, even when the
// wall clock stands still or runs backwards. BSON datetimes carry millisecond
// precision, so ties advance by a full millisecond to survive the round trip.
type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
}

func newMonotonicClock() *monotonicClock {
	return &monotonicClock{}
}

// Next returns a UTC timestamp strictly later than any previously issued.
func (c *monotonicClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC().Truncate(time.Millisecond)
	if !now.After(c.last) {
		now = c.last.Add(time.Millisecond)
	}
	c.last = now
	return now
}
