package dedup

import "time"

// Store tracks when each fingerprint was last delivered. Entries older than the
// TTL are treated as absent and removed on access or by Sweep.
type Store struct {
	seen map[string]time.Time
	ttl  time.Duration
}

// NewStore wraps a persisted seen-map. The map is owned by the store afterwards.
func NewStore(seen map[string]time.Time, ttl time.Duration) *Store {
	if seen == nil {
		seen = map[string]time.Time{}
	}
	return &Store{seen: seen, ttl: ttl}
}

// IsNew reports whether fingerprint has no live record at now.
func (s *Store) IsNew(fingerprint string, now time.Time) bool {
	ts, ok := s.seen[fingerprint]
	if !ok {
		return true
	}
	if s.expired(ts, now) {
		delete(s.seen, fingerprint)
		return true
	}
	return false
}

// MarkSeen records fingerprint as delivered (or intentionally dropped) at now.
func (s *Store) MarkSeen(fingerprint string, now time.Time) {
	if fingerprint == "" {
		return
	}
	s.seen[fingerprint] = now.UTC()
}

// Sweep removes every expired record and returns how many were dropped.
func (s *Store) Sweep(now time.Time) int {
	removed := 0
	for fp, ts := range s.seen {
		if s.expired(ts, now) {
			delete(s.seen, fp)
			removed++
		}
	}
	return removed
}

// Len returns the number of records currently held.
func (s *Store) Len() int {
	return len(s.seen)
}

// Snapshot exposes the underlying map for persistence.
func (s *Store) Snapshot() map[string]time.Time {
	return s.seen
}

func (s *Store) expired(ts, now time.Time) bool {
	return now.Sub(ts) > s.ttl
}
