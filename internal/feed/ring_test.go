package feed

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario 5 (spec §8): capacity 8 (usable 7), 7 pushes succeed, the 8th
// fails, and after one pop the next push succeeds again.
func TestRingFullAtCapacity(t *testing.T) {
	r := NewRing[int](8)
	require.Equal(t, 8, r.Capacity())

	for i := 0; i < 7; i++ {
		require.True(t, r.TryPush(i), "push %d should succeed", i)
	}
	assert.False(t, r.TryPush(99), "8th push must fail: ring full")

	v, ok := r.TryPop()
	require.True(t, ok)
	assert.Equal(t, 0, v)

	assert.True(t, r.TryPush(99))
}

func TestRingPopEmpty(t *testing.T) {
	r := NewRing[int](8)
	_, ok := r.TryPop()
	assert.False(t, ok)
}

func TestRingFIFOOrder(t *testing.T) {
	r := NewRing[int](8)
	for i := 0; i < 5; i++ {
		require.True(t, r.TryPush(i))
	}
	for i := 0; i < 5; i++ {
		v, ok := r.TryPop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestRingCapacityRoundsUpToPowerOfTwo(t *testing.T) {
	r := NewRing[int](10)
	assert.Equal(t, 16, r.Capacity())
}

func TestMPSCRingConcurrentProducers(t *testing.T) {
	r := NewMPSCRing[int](1024)
	const producers = 8
	const perProducer = 64

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for !r.TryPush(base*perProducer + i) {
				}
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for i := 0; i < producers*perProducer; i++ {
		v, ok := r.TryPop()
		require.True(t, ok)
		assert.False(t, seen[v], "value %d popped twice", v)
		seen[v] = true
	}
	_, ok := r.TryPop()
	assert.False(t, ok)
}
