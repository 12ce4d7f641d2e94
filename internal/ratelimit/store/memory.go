// Package store persists login lockout records. Stores are plain I/O; the
// thresholds and durations belong to the service.
package store

import (
	"context"
	"sync"
	"time"

	"circulation/internal/ratelimit/models"
)

// InMemory keeps lockout records in process. It is the default store and the
// fallback while Redis is unhealthy.
type InMemory struct {
	mu      sync.Mutex
	records map[string]*models.Lockout
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[string]*models.Lockout)}
}

// RecordFailure counts one failure. A failure after the window ended starts a
// new window.
func (s *InMemory) RecordFailure(_ context.Context, key string, now time.Time, window time.Duration) (*models.Lockout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || !now.Before(rec.WindowEnds) {
		var lockedUntil *time.Time
		if ok {
			lockedUntil = rec.LockedUntil
		}
		rec = &models.Lockout{Key: key, WindowEnds: now.Add(window), LockedUntil: lockedUntil}
		s.records[key] = rec
	}
	rec.Failures++
	return clone(rec), nil
}

func (s *InMemory) Lock(_ context.Context, key string, _, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		rec = &models.Lockout{Key: key}
		s.records[key] = rec
	}
	rec.LockedUntil = &until
	return nil
}

// Get returns nil when the pair has no history.
func (s *InMemory) Get(_ context.Context, key string, _ time.Time) (*models.Lockout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	return clone(rec), nil
}

func (s *InMemory) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func clone(rec *models.Lockout) *models.Lockout {
	c := *rec
	if rec.LockedUntil != nil {
		until := *rec.LockedUntil
		c.LockedUntil = &until
	}
	return &c
}
