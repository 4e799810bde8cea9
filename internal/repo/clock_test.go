package repo

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonotonicClockStrictlyIncreasing(t *testing.T) {
	clock := newMonotonicClock()

	prev := clock.Next()
	for i := 0; i < 1000; i++ {
		next := clock.Next()
		require.True(t, next.After(prev), "tick %d did not advance", i)
		prev = next
	}
}

func TestMonotonicClockSurvivesWallClockStall(t *testing.T) {
	clock := newMonotonicClock()
	// Pin the clock ahead of the wall clock so every call hits the tie
	// branch.
	clock.last = time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)

	a := clock.Next()
	b := clock.Next()

	assert.Equal(t, time.Millisecond, b.Sub(a))
	assert.Zero(t, a.Nanosecond()%int(time.Millisecond))
}

func TestMonotonicClockConcurrent(t *testing.T) {
	clock := newMonotonicClock()

	const workers = 8
	const perWorker = 200

	var mu sync.Mutex
	stamps := make([]time.Time, 0, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]time.Time, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, clock.Next())
			}
			mu.Lock()
			stamps = append(stamps, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	for i := 1; i < len(stamps); i++ {
		require.True(t, stamps[i].After(stamps[i-1]), "duplicate timestamp at %d", i)
	}
}
