package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"circulation/internal/circulation/models"
	"circulation/pkg/domain"
	"circulation/pkg/platform/sentinel"
)

type pair struct {
	member domain.MemberID
	book   domain.BookID
}

// InMemory keeps loan transactions in a map with a secondary index on open
// (member, book) pairs, mirroring the partial unique index in Postgres.
type InMemory struct {
	mu   sync.RWMutex
	txns map[domain.TransactionID]*models.Transaction
	open map[pair]domain.TransactionID
}

func NewInMemory() *InMemory {
	return &InMemory{
		txns: make(map[domain.TransactionID]*models.Transaction),
		open: make(map[pair]domain.TransactionID),
	}
}

// Create returns sentinel.ErrAlreadyUsed when the id exists or the pair
// already has an open loan.
func (s *InMemory) Create(_ context.Context, txn *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.txns[txn.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	key := pair{member: txn.MemberID, book: txn.BookID}
	if !txn.IsReturned() {
		if _, busy := s.open[key]; busy {
			return sentinel.ErrAlreadyUsed
		}
		s.open[key] = txn.ID
	}
	s.txns[txn.ID] = txn.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.TransactionID) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txns[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *InMemory) FindOpenByPair(_ context.Context, memberID domain.MemberID, bookID domain.BookID) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.open[pair{member: memberID, book: bookID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.txns[id].Clone(), nil
}

// Close sets the return date and fee exactly once. A second call returns
// sentinel.ErrInvalidState and leaves the stored transaction untouched.
func (s *InMemory) Close(_ context.Context, id domain.TransactionID, returnedAt time.Time, fee decimal.Decimal) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if t.IsReturned() {
		return nil, sentinel.ErrInvalidState
	}
	t.ApplyReturn(returnedAt, fee)
	delete(s.open, pair{member: t.MemberID, book: t.BookID})
	return t.Clone(), nil
}

// ListOpen returns open loans, optionally narrowed to one member, oldest first.
func (s *InMemory) ListOpen(_ context.Context, memberID *domain.MemberID) ([]*models.Transaction, error) {
	s.mu.RLock()
	out := make([]*models.Transaction, 0, len(s.open))
	for p, id := range s.open {
		if memberID != nil && p.member != *memberID {
			continue
		}
		out = append(out, s.txns[id].Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *models.Transaction) int {
		if c := a.IssueDate.Compare(b.IssueDate); c != 0 {
			return c
		}
		return compareIDs(a.ID.String(), b.ID.String())
	})
	return out, nil
}

// ListAll returns every transaction, newest issue first.
func (s *InMemory) ListAll(_ context.Context) ([]*models.Transaction, error) {
	s.mu.RLock()
	out := make([]*models.Transaction, 0, len(s.txns))
	for _, t := range s.txns {
		out = append(out, t.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *models.Transaction) int {
		if c := b.IssueDate.Compare(a.IssueDate); c != 0 {
			return c
		}
		return compareIDs(a.ID.String(), b.ID.String())
	})
	return out, nil
}

func (s *InMemory) HasOpenLoansForBook(_ context.Context, bookID domain.BookID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for p := range s.open {
		if p.book == bookID {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemory) HasOpenLoansForMember(_ context.Context, memberID domain.MemberID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for p := range s.open {
		if p.member == memberID {
			return true, nil
		}
	}
	return false, nil
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
