package store

import (
	"context"
	"slices"
	"sync"

	"circulation/internal/catalog/models"
	"circulation/pkg/domain"
	"circulation/pkg/platform/sentinel"
)

// InMemory is the catalog store used when no database is configured.
// Books are copied on the way in and out.
type InMemory struct {
	mu    sync.RWMutex
	books map[domain.BookID]*models.Book
}

func NewInMemory() *InMemory {
	return &InMemory{books: make(map[domain.BookID]*models.Book)}
}

func (s *InMemory) Create(_ context.Context, book *models.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.books[book.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.books[book.ID] = book.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.BookID) (*models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return b.Clone(), nil
}

func (s *InMemory) Update(_ context.Context, book *models.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[book.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.books[book.ID] = book.Clone()
	return nil
}

func (s *InMemory) Delete(_ context.Context, id domain.BookID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.books, id)
	return nil
}

// DecrementStock takes one copy off the shelf. It returns
// sentinel.ErrInvalidState when none is left.
func (s *InMemory) DecrementStock(_ context.Context, id domain.BookID) (*models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if b.Stock <= 0 {
		return nil, sentinel.ErrInvalidState
	}
	b.Stock--
	return b.Clone(), nil
}

func (s *InMemory) IncrementStock(_ context.Context, id domain.BookID) (*models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	b.Stock++
	return b.Clone(), nil
}

// ListAll returns a snapshot ordered by creation time.
func (s *InMemory) ListAll(_ context.Context) ([]*models.Book, error) {
	s.mu.RLock()
	out := make([]*models.Book, 0, len(s.books))
	for _, b := range s.books {
		out = append(out, b.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *models.Book) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(a.ID.String(), b.ID.String())
	})
	return out, nil
}

func (s *InMemory) FindByIDs(_ context.Context, ids []domain.BookID) (map[domain.BookID]*models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.BookID]*models.Book, len(ids))
	for _, id := range ids {
		if b, ok := s.books[id]; ok {
			out[id] = b.Clone()
		}
	}
	return out, nil
}

func compareIDs(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
