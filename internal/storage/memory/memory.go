// Package memory implements the structures store contract entirely in
// process memory. It backs local development (no Postgres required) and the
// engine-level tests; semantics match the postgres implementation.
package memory

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/wafflecomposite/peakstranding-server/internal/storage"
)

type userTotals struct {
	sent     int64
	received int64
}

type Store struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]storage.Structure
	users  map[int64]userTotals

	now func() time.Time
}

func New() *Store {
	return &Store{
		nextID: 1,
		byID:   make(map[int64]storage.Structure),
		users:  make(map[int64]userTotals),
		now:    time.Now,
	}
}

func (s *Store) Create(_ context.Context, st storage.Structure, maxPerScene int) (storage.Structure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.ID = s.nextID
	s.nextID++
	st.Likes = 0
	st.CreatedAt = s.now().UTC()
	s.byID[st.ID] = st

	// Evict oldest-first until the (scene, user) bucket fits the cap. The
	// insert and the evictions share the critical section, so no reader ever
	// observes an over-capacity bucket.
	for s.bucketSize(st.Scene, st.UserID) > maxPerScene {
		victim, ok := s.oldestInBucket(st.Scene, st.UserID)
		if !ok {
			break
		}
		delete(s.byID, victim)
	}

	return st, nil
}

func (s *Store) bucketSize(scene string, userID int64) int {
	n := 0
	for _, st := range s.byID {
		if st.Scene == scene && st.UserID == userID {
			n++
		}
	}
	return n
}

// oldestInBucket returns the id of the eviction candidate: smallest
// CreatedAt, ties broken by smallest id.
func (s *Store) oldestInBucket(scene string, userID int64) (int64, bool) {
	var victim int64
	var victimAt time.Time
	found := false
	for id, st := range s.byID {
		if st.Scene != scene || st.UserID != userID {
			continue
		}
		if !found || st.CreatedAt.Before(victimAt) || (st.CreatedAt.Equal(victimAt) && id < victim) {
			victim = id
			victimAt = st.CreatedAt
			found = true
		}
	}
	return victim, found
}

func (s *Store) Random(_ context.Context, f storage.RandomFilter, limit int) ([]storage.Structure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	excluded := make(map[string]struct{}, len(f.ExcludePrefabs))
	for _, p := range f.ExcludePrefabs {
		excluded[p] = struct{}{}
	}

	matches := make([]storage.Structure, 0)
	for _, st := range s.byID {
		if st.Scene != f.Scene {
			continue
		}
		if f.MapID != nil && st.MapID != *f.MapID {
			continue
		}
		if _, ok := excluded[st.Prefab]; ok {
			continue
		}
		matches = append(matches, st)
	}

	if limit > len(matches) {
		limit = len(matches)
	}

	// Uniform sample without replacement: take a prefix of a random
	// permutation of the match set.
	out := make([]storage.Structure, 0, limit)
	for _, i := range rand.Perm(len(matches))[:limit] {
		out = append(out, matches[i])
	}
	return out, nil
}

func (s *Store) AddLikes(_ context.Context, id int64, liker int64, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.byID[id]
	if !ok {
		return 0, storage.ErrNotFound
	}
	if st.UserID == liker {
		return 0, storage.ErrSelfLike
	}

	st.Likes += delta
	s.byID[id] = st

	lt := s.users[liker]
	lt.sent += delta
	s.users[liker] = lt

	ot := s.users[st.UserID]
	ot.received += delta
	s.users[st.UserID] = ot

	return st.Likes, nil
}

func (s *Store) SceneCounts(_ context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int64)
	for _, st := range s.byID {
		counts[st.Scene]++
	}
	return counts, nil
}

// LikeTotals reports the accumulated sent/received like counters for a user.
func (s *Store) LikeTotals(userID int64) (sent, received int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.users[userID]
	return t.sent, t.received
}

// Get returns a structure by id (test helper and admin tooling).
func (s *Store) Get(id int64) (storage.Structure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byID[id]
	return st, ok
}
