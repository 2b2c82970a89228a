// Package lockout tracks failed login attempts per username over a sliding
// window and derives a locked/unlocked state. State is in-memory and
// advisory: it rebuilds from empty after a restart without correctness loss.
package lockout

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// Info describes an active lockout.
type Info struct {
	Attempts  int
	UnlockAt  time.Time
	Remaining time.Duration
}

type shard struct {
	mu       sync.Mutex
	failures map[string][]time.Time
}

// Tracker is a sharded sliding-window failure counter. Operations on the
// same username serialize on its shard, so two concurrent failures can never
// both observe "not yet locked" and miss the threshold.
type Tracker struct {
	shards      [shardCount]*shard
	maxAttempts int
	window      time.Duration
}

func NewTracker(maxAttempts int, window time.Duration) *Tracker {
	t := &Tracker{
		maxAttempts: maxAttempts,
		window:      window,
	}
	for i := range t.shards {
		t.shards[i] = &shard{failures: make(map[string][]time.Time)}
	}
	return t
}

func (t *Tracker) shardFor(username string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(username))
	return t.shards[h.Sum32()%shardCount]
}

// RecordFailure appends a failed attempt timestamp and prunes entries that
// have aged out of the window. Returns true when this failure crossed the
// lockout threshold (a Warned -> Locked transition).
func (t *Tracker) RecordFailure(username string, now time.Time) bool {
	s := t.shardFor(username)
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := prune(s.failures[username], now, t.window)
	wasLocked := len(kept) >= t.maxAttempts
	kept = append(kept, now)
	s.failures[username] = kept

	return !wasLocked && len(kept) >= t.maxAttempts
}

// RecordSuccess clears all recorded failures for the username.
func (t *Tracker) RecordSuccess(username string) {
	s := t.shardFor(username)
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.failures, username)
}

// IsLocked prunes, then compares the in-window failure count to the
// threshold.
func (t *Tracker) IsLocked(username string, now time.Time) bool {
	s := t.shardFor(username)
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := t.pruneAndStore(s, username, now)
	return len(kept) >= t.maxAttempts
}

// LockoutInfo returns attempt count, unlock time and remaining duration, or
// nil when the username is not locked. UnlockAt is the most recent failure
// plus the window.
func (t *Tracker) LockoutInfo(username string, now time.Time) *Info {
	s := t.shardFor(username)
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := t.pruneAndStore(s, username, now)
	if len(kept) < t.maxAttempts {
		return nil
	}

	latest := kept[len(kept)-1]
	unlockAt := latest.Add(t.window)

	remaining := unlockAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}

	return &Info{
		Attempts:  len(kept),
		UnlockAt:  unlockAt,
		Remaining: remaining,
	}
}

func (t *Tracker) pruneAndStore(s *shard, username string, now time.Time) []time.Time {
	kept := prune(s.failures[username], now, t.window)
	if len(kept) == 0 {
		delete(s.failures, username)
	} else {
		s.failures[username] = kept
	}
	return kept
}

// prune drops timestamps outside [now-window, now]. Entries are appended in
// order, so the first in-window index bounds the rest.
func prune(stamps []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	for i, ts := range stamps {
		if !ts.Before(cutoff) {
			return stamps[i:]
		}
	}
	return nil
}
