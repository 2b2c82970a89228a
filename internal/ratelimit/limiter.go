// Package ratelimit implements generic sliding-window admission control
// keyed by an arbitrary string: a caller identity, an upstream API name, a
// client IP. State is in-memory and rebuilds empty after a restart.
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

type shard struct {
	mu     sync.Mutex
	events map[string][]time.Time
}

// Limiter admits at most limit events per key per trailing window. Admission
// is checked before recording, so a rejected request never consumes quota.
type Limiter struct {
	shards [shardCount]*shard
	limit  int
	window time.Duration
}

func NewLimiter(limit int, window time.Duration) *Limiter {
	l := &Limiter{
		limit:  limit,
		window: window,
	}
	for i := range l.shards {
		l.shards[i] = &shard{events: make(map[string][]time.Time)}
	}
	return l
}

// Window returns the configured window, used as the retry-after hint for
// rejected callers.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Allow prunes events outside the window, then admits and records the
// request iff the key has quota left.
func (l *Limiter) Allow(key string, now time.Time) bool {
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := prune(s.events[key], now, l.window)
	if len(kept) >= l.limit {
		l.store(s, key, kept)
		return false
	}

	l.store(s, key, append(kept, now))
	return true
}

// Remaining reports how many more requests the key may make right now.
func (l *Limiter) Remaining(key string, now time.Time) int {
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := prune(s.events[key], now, l.window)
	l.store(s, key, kept)

	remaining := l.limit - len(kept)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Reset clears the window for a key. Administrative escape hatch.
func (l *Limiter) Reset(key string) {
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.events, key)
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return l.shards[h.Sum32()%shardCount]
}

func (l *Limiter) store(s *shard, key string, kept []time.Time) {
	if len(kept) == 0 {
		delete(s.events, key)
		return
	}
	s.events[key] = kept
}

func prune(stamps []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	for i, ts := range stamps {
		if ts.After(cutoff) {
			return stamps[i:]
		}
	}
	return nil
}
