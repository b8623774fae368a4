package telemetry

import (
	"sync"
	"time"
)

// Store owns the single snapshot of an engine.
//
// All writers go through Update, which runs the mutation under the write
// lock on a private copy and publishes it in one step; readers only ever
// see complete snapshots.
type Store struct {
	mu       sync.RWMutex
	snap     Snapshot
	now      func() time.Time
	subs     map[int]chan Snapshot
	nextSub  int
	subsLock sync.Mutex
}

// NewStore creates a store holding initial
func NewStore(initial Snapshot) *Store {
	return &Store{
		snap: initial.Clone(),
		now:  time.Now,
		subs: make(map[int]chan Snapshot),
	}
}

// Read returns a copy of the current snapshot
func (s *Store) Read() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Update applies fn atomically. fn receives a copy of the current snapshot
// and reports whether it changed anything; unchanged results are discarded
// without notifying subscribers. Update returns the resulting snapshot and
// whether it was written.
func (s *Store) Update(fn func(*Snapshot) bool) (Snapshot, bool) {
	s.mu.Lock()
	next := s.snap.Clone()
	if !fn(&next) {
		current := s.snap.Clone()
		s.mu.Unlock()
		return current, false
	}
	next.Seq = s.snap.Seq + 1
	next.UpdatedAt = s.now()
	s.snap = next
	out := next.Clone()
	// Notify under the write lock so subscribers observe writes in order.
	s.notify(out)
	s.mu.Unlock()

	return out, true
}

// Subscribe returns a channel that receives the latest snapshot after every
// write and a function that cancels the subscription. Slow subscribers only
// see the most recent snapshot; writers never block on them.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.subsLock.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsLock.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subsLock.Lock()
			delete(s.subs, id)
			s.subsLock.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// notify delivers snap to every subscriber, replacing any undelivered snapshot
func (s *Store) notify(snap Snapshot) {
	s.subsLock.Lock()
	defer s.subsLock.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- snap.Clone():
			continue
		default:
		}
		// Drop the stale value and retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap.Clone():
		default:
		}
	}
}
