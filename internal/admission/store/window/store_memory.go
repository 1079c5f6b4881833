// Package window implements the fixed-window counter table behind the
// admission controller. State is pure in-memory; no call blocks on I/O.
package window

import (
	"hash/fnv"
	"sync"
	"time"

	"spendgate/internal/admission/models"
)

const shardCount = 64

// entry is the mutable counter for one (policy, client) key.
type entry struct {
	count   int
	resetAt time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// MemoryStore is a sharded fixed-window counter table. Each shard serializes
// its own keys, so concurrent checks for different clients almost never
// contend while checks for the same key are strictly ordered. The
// read-decide-write triad for a key happens entirely under its shard lock and
// is never observable half-applied.
type MemoryStore struct {
	shards [shardCount]shard
}

// NewMemoryStore creates an empty counter table.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*entry)
	}
	return s
}

// Evaluate applies one request against the window for key. Expiry is checked
// before the limit, so a request arriving exactly at the window boundary
// always starts a fresh window rather than being denied against a stale count.
func (s *MemoryStore) Evaluate(key string, limit int, window time.Duration, now time.Time) models.Decision {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok || !now.Before(e.resetAt) {
		// Fresh window: replace rather than increment a stale entry.
		e = &entry{count: 1, resetAt: now.Add(window)}
		sh.entries[key] = e
		return models.Decision{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit - 1,
			ResetAt:   e.resetAt,
		}
	}

	if e.count >= limit {
		return models.Decision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    e.resetAt,
			RetryAfter: retryAfterSeconds(e.resetAt, now),
		}
	}

	e.count++
	return models.Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - e.count,
		ResetAt:   e.resetAt,
	}
}

// SweepExpired removes entries whose window has closed and reports how many
// were evicted. Safe to run concurrently with Evaluate: a sweep and a fresh
// entry creation race benignly, the freshly created entry survives.
func (s *MemoryStore) SweepExpired(now time.Time) int {
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, e := range sh.entries {
			if !now.Before(e.resetAt) {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Reset clears the counter for a key, admitting the next request immediately.
func (s *MemoryStore) Reset(key string) {
	sh := s.shard(key)
	sh.mu.Lock()
	delete(sh.entries, key)
	sh.mu.Unlock()
}

// Len returns the number of tracked keys, live and expired-but-unswept.
func (s *MemoryStore) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

func (s *MemoryStore) shard(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.shards[h.Sum32()%shardCount]
}

func retryAfterSeconds(resetAt, now time.Time) int {
	secs := int(resetAt.Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}
