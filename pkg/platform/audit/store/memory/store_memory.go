package memory

import (
	"context"
	"sort"
	"sync"

	"circulation/pkg/domain"
	audit "circulation/pkg/platform/audit"
)

// InMemoryStore keeps audit events per member. It is the default sink when no
// broker is configured.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[domain.MemberID][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[domain.MemberID][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.MemberID] = append(s.events[event.MemberID], event)
	return nil
}

func (s *InMemoryStore) ListByMember(_ context.Context, memberID domain.MemberID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[memberID]...), nil
}

// ListRecent returns the most recent limit events across all members, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []audit.Event
	for _, memberEvents := range s.events {
		all = append(all, memberEvents...)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
