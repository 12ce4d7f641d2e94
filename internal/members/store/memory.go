package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"circulation/internal/members/models"
	"circulation/pkg/domain"
	"circulation/pkg/platform/sentinel"
)

// InMemory keeps members keyed by ID with a case-insensitive email index.
type InMemory struct {
	mu      sync.RWMutex
	members map[domain.MemberID]*models.Member
	byEmail map[string]domain.MemberID
}

func NewInMemory() *InMemory {
	return &InMemory{
		members: make(map[domain.MemberID]*models.Member),
		byEmail: make(map[string]domain.MemberID),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create returns sentinel.ErrAlreadyUsed when the email is taken.
func (s *InMemory) Create(_ context.Context, m *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := emailKey(m.Email)
	if _, taken := s.byEmail[key]; taken {
		return sentinel.ErrAlreadyUsed
	}
	if _, exists := s.members[m.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.members[m.ID] = m.Clone()
	s.byEmail[key] = m.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.MemberID) (*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return m.Clone(), nil
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.members[id].Clone(), nil
}

// Update replaces the profile. Debt is kept from the stored record so a
// profile write can never change it.
func (s *InMemory) Update(_ context.Context, m *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.members[m.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	newKey := emailKey(m.Email)
	if owner, taken := s.byEmail[newKey]; taken && owner != m.ID {
		return sentinel.ErrAlreadyUsed
	}
	delete(s.byEmail, emailKey(current.Email))
	next := m.Clone()
	next.Debt = current.Debt
	next.PasswordHash = current.PasswordHash
	s.members[m.ID] = next
	s.byEmail[newKey] = m.ID
	return nil
}

func (s *InMemory) Delete(_ context.Context, id domain.MemberID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byEmail, emailKey(m.Email))
	delete(s.members, id)
	return nil
}

// AddDebt adds delta to the member's debt and returns the updated member.
func (s *InMemory) AddDebt(_ context.Context, id domain.MemberID, delta decimal.Decimal) (*models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	m.Debt = m.Debt.Add(delta)
	return m.Clone(), nil
}

func (s *InMemory) ListAll(_ context.Context) ([]*models.Member, error) {
	s.mu.RLock()
	out := make([]*models.Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m.Clone())
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b *models.Member) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Email, b.Email)
	})
	return out, nil
}

func (s *InMemory) FindByIDs(_ context.Context, ids []domain.MemberID) (map[domain.MemberID]*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.MemberID]*models.Member, len(ids))
	for _, id := range ids {
		if m, ok := s.members[id]; ok {
			out[id] = m.Clone()
		}
	}
	return out, nil
}
