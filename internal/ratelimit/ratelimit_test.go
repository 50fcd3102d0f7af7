package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestAllow_BurstThenDrop exercises spec scenario S6: rate=30/min, burst=10,
// 15 updates at once admits exactly 10 and drops 5.
func TestAllow_BurstThenDrop(t *testing.T) {
	l := New(30, 10)
	const userID = int64(7)

	admitted := 0
	for i := 0; i < 15; i++ {
		if l.Allow(userID) {
			admitted++
		}
	}
	assert.Equal(t, 10, admitted)
}

func TestAllow_RefillsOverTime(t *testing.T) {
	l := New(30, 10)
	const userID = int64(7)

	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow(userID))
	}
	assert.False(t, l.Allow(userID))

	l.mu.Lock()
	l.buckets[userID].lastUpdate = l.buckets[userID].lastUpdate.Add(-2 * time.Second)
	l.mu.Unlock()

	assert.True(t, l.Allow(userID))
}

func TestAllow_SeparateUsersHaveSeparateBuckets(t *testing.T) {
	l := New(30, 1)
	assert.True(t, l.Allow(1))
	assert.True(t, l.Allow(2))
	assert.False(t, l.Allow(1))
}
