package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_StartsAtZero(t *testing.T) {
	assert.Equal(t, int64(0), NewClock().Current())
	assert.Equal(t, int64(100), NewClockAt(100).Current())
}

func TestClock_Next_Incrementing(t *testing.T) {
	c := NewClock()

	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}

func TestClock_ConcurrentProducers(t *testing.T) {
	c := NewClock()
	const producers = 50
	const updatesEach = 200

	var mu sync.Mutex
	seen := make(map[int64]bool, producers*updatesEach)

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, updatesEach)
			for j := 0; j < updatesEach; j++ {
				local = append(local, c.Next())
			}
			mu.Lock()
			for _, s := range local {
				seen[s] = true
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, producers*updatesEach, "every seq must be unique")
	assert.Equal(t, int64(producers*updatesEach), c.Current())
}
