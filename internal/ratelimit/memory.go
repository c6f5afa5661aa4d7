package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	memoryIdleTTL       = time.Hour
	memorySweepInterval = 10 * time.Minute
)

type memoryBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryStore keeps buckets in process memory. Suitable for single-node
// deployments and tests; buckets reset on restart.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		buckets: make(map[string]*memoryBucket),
		now:     time.Now,
	}
	go s.sweepLoop()
	return s
}

// Take consumes one token. The map lock protects only in-memory
// bookkeeping; nothing here suspends.
func (s *MemoryStore) Take(_ context.Context, key string, rule Rule) (Decision, error) {
	s.mu.Lock()
	b, ok := s.buckets[key]
	if !ok {
		b = &memoryBucket{
			limiter: rate.NewLimiter(rate.Limit(rule.RefillPerMinute/60.0), rule.MaxTokens),
		}
		s.buckets[key] = b
	}
	b.lastSeen = s.now()
	lim := b.limiter
	s.mu.Unlock()

	allowed := lim.Allow()
	remaining := int(lim.Tokens())
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{
		Allowed:   allowed,
		Limit:     rule.MaxTokens,
		Remaining: remaining,
	}
	if !allowed {
		d.RetryAfter = rule.RetryAfter()
	}
	return d, nil
}

func (s *MemoryStore) sweepLoop() {
	for {
		time.Sleep(memorySweepInterval)
		cutoff := s.now().Add(-memoryIdleTTL)
		s.mu.Lock()
		for key, b := range s.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(s.buckets, key)
			}
		}
		s.mu.Unlock()
	}
}
