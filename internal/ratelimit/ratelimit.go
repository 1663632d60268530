package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Store keeps one token bucket per key, usually the client IP.
type Store struct {
	sync.Mutex
	data  map[string]*entry
	limit rate.Limit
	burst int
	now   func() time.Time
}

func NewStore(rps float64, burst int) *Store {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &Store{
		data:  make(map[string]*entry),
		limit: limit,
		burst: burst,
		now:   time.Now,
	}
}

func (s *Store) Allow(key string) bool {
	s.Lock()
	defer s.Unlock()
	now := s.now()
	e, ok := s.data[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.data[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Prune drops buckets idle for longer than idle and returns how many went.
func (s *Store) Prune(idle time.Duration) int {
	s.Lock()
	defer s.Unlock()
	cutoff := s.now().Add(-idle)
	removed := 0
	for key, e := range s.data {
		if e.lastSeen.Before(cutoff) {
			delete(s.data, key)
			removed++
		}
	}
	return removed
}

func (s *Store) Len() int {
	s.Lock()
	defer s.Unlock()
	return len(s.data)
}

// Run prunes idle buckets every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Prune(idle)
		}
	}
}
