// Package store holds the in-memory, append-only record of accepted usage events.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/sdpower/ccmonitor-go/internal/types"
)

// EventStore keeps accepted events ordered by timestamp.
type EventStore struct {
	mu     sync.RWMutex
	events []types.UsageEvent
}

func New() *EventStore {
	return &EventStore{}
}

// Append inserts ev at its timestamp position. Events sharing a timestamp
// keep their arrival order.
func (s *EventStore) Append(ev types.UsageEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.events)
	if n == 0 || !ev.Timestamp.Before(s.events[n-1].Timestamp) {
		s.events = append(s.events, ev)
		return
	}

	i := sort.Search(n, func(i int) bool {
		return s.events[i].Timestamp.After(ev.Timestamp)
	})
	s.events = append(s.events, types.UsageEvent{})
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = ev
}

// Range returns a copy of the events with from <= timestamp <= to.
func (s *EventStore) Range(from, to time.Time) []types.UsageEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if to.Before(from) {
		return nil
	}
	lo := sort.Search(len(s.events), func(i int) bool {
		return !s.events[i].Timestamp.Before(from)
	})
	hi := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].Timestamp.After(to)
	})
	if lo >= hi {
		return nil
	}

	out := make([]types.UsageEvent, hi-lo)
	copy(out, s.events[lo:hi])
	return out
}

// Len returns the number of stored events.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Prune drops events older than before and returns how many were removed.
func (s *EventStore) Prune(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.events), func(i int) bool {
		return !s.events[i].Timestamp.Before(before)
	})
	if i == 0 {
		return 0
	}
	s.events = append([]types.UsageEvent(nil), s.events[i:]...)
	return i
}
