package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStore_Allow(t *testing.T) {
	now := time.Now()
	s := NewStore(1, 2)
	s.now = func() time.Time { return now }

	assert.True(t, s.Allow("203.0.113.7"))
	assert.True(t, s.Allow("203.0.113.7"))
	assert.False(t, s.Allow("203.0.113.7"), "burst exhausted")
	assert.True(t, s.Allow("198.51.100.1"), "keys are independent")

	now = now.Add(time.Second)
	assert.True(t, s.Allow("203.0.113.7"), "refilled after one second")
}

func TestStore_Unlimited(t *testing.T) {
	s := NewStore(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, s.Allow("k"))
	}
}

func TestStore_Prune(t *testing.T) {
	now := time.Now()
	s := NewStore(10, 10)
	s.now = func() time.Time { return now }

	s.Allow("old")
	now = now.Add(10 * time.Minute)
	s.Allow("new")

	assert.Equal(t, 1, s.Prune(5*time.Minute))
	assert.Equal(t, 1, s.Len())
}
