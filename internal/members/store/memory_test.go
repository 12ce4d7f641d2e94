package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"circulation/internal/members/models"
	"circulation/pkg/domain"
	"circulation/pkg/platform/sentinel"
)

type MemberStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestMemberStoreSuite(t *testing.T) {
	suite.Run(t, new(MemberStoreSuite))
}

func (s *MemberStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *MemberStoreSuite) newMember(email string) *models.Member {
	m, err := models.NewMember(domain.NewMemberID(), "Name", email, "hash", domain.RoleMember, time.Now())
	s.Require().NoError(err)
	return m
}

func (s *MemberStoreSuite) TestEmailUniqueness() {
	s.Require().NoError(s.store.Create(s.ctx, s.newMember("ada@example.com")))

	s.Run("case-insensitive duplicate is rejected", func() {
		dup := s.newMember("ada@example.com")
		dup.Email = "ADA@example.com"
		s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrAlreadyUsed)
	})

	s.Run("lookup by email ignores case", func() {
		found, err := s.store.FindByEmail(s.ctx, "Ada@Example.com")
		s.Require().NoError(err)
		s.Equal("ada@example.com", found.Email)
	})
}

func (s *MemberStoreSuite) TestUpdateKeepsDebtAndMovesEmailIndex() {
	m := s.newMember("old@example.com")
	s.Require().NoError(s.store.Create(s.ctx, m))
	_, err := s.store.AddDebt(s.ctx, m.ID, decimal.NewFromInt(20))
	s.Require().NoError(err)

	m.Email = "new@example.com"
	m.Debt = decimal.Zero
	s.Require().NoError(s.store.Update(s.ctx, m))

	found, err := s.store.FindByID(s.ctx, m.ID)
	s.Require().NoError(err)
	s.True(found.Debt.Equal(decimal.NewFromInt(20)))

	_, err = s.store.FindByEmail(s.ctx, "old@example.com")
	s.ErrorIs(err, sentinel.ErrNotFound)

	other := s.newMember("other@example.com")
	s.Require().NoError(s.store.Create(s.ctx, other))
	other.Email = "new@example.com"
	s.ErrorIs(s.store.Update(s.ctx, other), sentinel.ErrAlreadyUsed)
}

func (s *MemberStoreSuite) TestConcurrentDebtIsNotLost() {
	m := s.newMember("debt@example.com")
	s.Require().NoError(s.store.Create(s.ctx, m))

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.store.AddDebt(s.ctx, m.ID, decimal.NewFromInt(1))
		}()
	}
	wg.Wait()

	found, err := s.store.FindByID(s.ctx, m.ID)
	s.Require().NoError(err)
	s.True(found.Debt.Equal(decimal.NewFromInt(50)))
}

func (s *MemberStoreSuite) TestDeleteAndList() {
	a := s.newMember("a@example.com")
	b := s.newMember("b@example.com")
	s.Require().NoError(s.store.Create(s.ctx, a))
	s.Require().NoError(s.store.Create(s.ctx, b))

	all, err := s.store.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 2)

	s.Require().NoError(s.store.Delete(s.ctx, a.ID))
	s.ErrorIs(s.store.Delete(s.ctx, a.ID), sentinel.ErrNotFound)

	s.Run("email is reusable after delete", func() {
		s.NoError(s.store.Create(s.ctx, s.newMember("a@example.com")))
	})
}

func (s *MemberStoreSuite) TestFindByIDs() {
	a, b := s.newMember("a@example.com"), s.newMember("b@example.com")
	s.Require().NoError(s.store.Create(s.ctx, a))
	s.Require().NoError(s.store.Create(s.ctx, b))

	found, err := s.store.FindByIDs(s.ctx, []domain.MemberID{a.ID, domain.NewMemberID()})
	s.Require().NoError(err)
	s.Len(found, 1)
	s.Equal("a@example.com", found[a.ID].Email)
}
