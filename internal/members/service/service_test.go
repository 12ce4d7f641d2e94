package service

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"circulation/internal/access"
	"circulation/internal/members/password"
	"circulation/internal/members/store"
	"circulation/internal/platform/metrics"
	"circulation/pkg/domain"
	dErrors "circulation/pkg/domain-errors"
	audit "circulation/pkg/platform/audit"
	"circulation/pkg/platform/audit/publisher"
	auditmemory "circulation/pkg/platform/audit/store/memory"
	ctxutil "circulation/pkg/testutil"
)

type fakeLoans struct {
	mu   sync.Mutex
	open map[domain.MemberID]bool
}

func (f *fakeLoans) HasOpenLoansForMember(_ context.Context, id domain.MemberID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open[id], nil
}

type MemberServiceSuite struct {
	suite.Suite
	service    *Service
	loans      *fakeLoans
	auditStore *auditmemory.InMemoryStore
	metrics    *metrics.Metrics
	librarian  context.Context
	member     context.Context
}

func TestMemberServiceSuite(t *testing.T) {
	suite.Run(t, new(MemberServiceSuite))
}

func (s *MemberServiceSuite) SetupTest() {
	s.loans = &fakeLoans{open: map[domain.MemberID]bool{}}
	s.auditStore = auditmemory.NewInMemoryStore()
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.service = New(store.NewInMemory(), s.loans, access.NewGuard(),
		WithHasher(password.NewHasher(bcrypt.MinCost)),
		WithAuditPublisher(publisher.NewPublisher(s.auditStore)),
		WithMetrics(s.metrics),
	)
	s.librarian = ctxutil.AsLibrarian(context.Background(), domain.NewMemberID())
	s.member = ctxutil.AsMember(context.Background(), domain.NewMemberID())
}

func (s *MemberServiceSuite) create(email string) domain.MemberID {
	m, err := s.service.CreateMember(s.librarian, CreateMemberRequest{Name: "Ada", Email: email, Password: "pw"})
	s.Require().NoError(err)
	return m.ID
}

func (s *MemberServiceSuite) TestCreateMember() {
	s.Run("defaults role to member and starts with zero debt", func() {
		m, err := s.service.CreateMember(s.librarian, CreateMemberRequest{Name: "Ada", Email: "ada@example.com", Password: "pw"})
		s.Require().NoError(err)
		s.Equal(domain.RoleMember, m.Role)
		s.True(m.Debt.IsZero())
		s.NotEqual("pw", m.PasswordHash)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.MembersCreated))

		events, err := s.auditStore.ListByMember(context.Background(), m.ID)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventMemberCreated), events[0].Action)
	})

	s.Run("duplicate email in another case is a conflict", func() {
		_, err := s.service.CreateMember(s.librarian, CreateMemberRequest{Name: "Other", Email: "ADA@example.com", Password: "pw"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("missing fields are invalid input", func() {
		for _, req := range []CreateMemberRequest{
			{Email: "x@example.com", Password: "pw"},
			{Name: "x", Password: "pw"},
			{Name: "x", Email: "x@example.com"},
			{Name: "x", Email: "not-an-email", Password: "pw"},
		} {
			_, err := s.service.CreateMember(s.librarian, req)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), req)
		}
	})

	s.Run("unknown role is invalid input", func() {
		_, err := s.service.CreateMember(s.librarian, CreateMemberRequest{Name: "x", Email: "r@example.com", Password: "pw", Role: "admin"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("member caller is forbidden", func() {
		_, err := s.service.CreateMember(s.member, CreateMemberRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *MemberServiceSuite) TestUpdateMember() {
	id := s.create("first@example.com")
	s.create("second@example.com")

	s.Run("profile edit keeps role and debt", func() {
		_, err := s.service.AdjustDebt(s.librarian, id, decimal.NewFromInt(7))
		s.Require().NoError(err)

		m, err := s.service.UpdateMember(s.librarian, id, "Renamed", "renamed@example.com")
		s.Require().NoError(err)
		s.Equal("Renamed", m.Name)
		s.Equal(domain.RoleMember, m.Role)

		again, err := s.service.GetMember(s.librarian, id)
		s.Require().NoError(err)
		s.True(again.Debt.Equal(decimal.NewFromInt(7)))
	})

	s.Run("email taken by another member is a conflict", func() {
		_, err := s.service.UpdateMember(s.librarian, id, "x", "second@example.com")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown member is not found", func() {
		_, err := s.service.UpdateMember(s.librarian, domain.NewMemberID(), "x", "x@example.com")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *MemberServiceSuite) TestRemoveMember() {
	borrowing := s.create("borrower@example.com")
	s.loans.open[borrowing] = true
	s.True(dErrors.HasCode(s.service.RemoveMember(s.librarian, borrowing), dErrors.CodeConflict))

	idle := s.create("idle@example.com")
	s.Require().NoError(s.service.RemoveMember(s.librarian, idle))
	s.True(dErrors.HasCode(s.service.RemoveMember(s.librarian, idle), dErrors.CodeNotFound))

	s.True(dErrors.HasCode(s.service.RemoveMember(s.member, borrowing), dErrors.CodeForbidden))
}

func (s *MemberServiceSuite) TestAdjustDebt() {
	id := s.create("debtor@example.com")

	_, err := s.service.AdjustDebt(s.librarian, id, decimal.NewFromInt(-1))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = s.service.AdjustDebt(s.member, id, decimal.NewFromInt(1))
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	m, err := s.service.AdjustDebt(s.librarian, id, decimal.NewFromInt(20))
	s.Require().NoError(err)
	s.True(m.Debt.Equal(decimal.NewFromInt(20)))

	_, err = s.service.AdjustDebt(s.librarian, domain.NewMemberID(), decimal.NewFromInt(1))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *MemberServiceSuite) TestAuthenticate() {
	s.create("login@example.com")

	m, err := s.service.Authenticate(context.Background(), " Login@Example.com ", "pw")
	s.Require().NoError(err)
	s.Equal("login@example.com", m.Email)

	_, wrongPassword := s.service.Authenticate(context.Background(), "login@example.com", "nope")
	_, unknownEmail := s.service.Authenticate(context.Background(), "nobody@example.com", "pw")
	s.True(dErrors.HasCode(wrongPassword, dErrors.CodeUnauthorized))
	s.Equal(wrongPassword.Error(), unknownEmail.Error(), "failures must be indistinguishable")
}

func (s *MemberServiceSuite) TestBootstrapLibrarian() {
	m, err := s.service.BootstrapLibrarian(context.Background(), "Root", "root@example.com", "pw")
	s.Require().NoError(err)
	s.Equal(domain.RoleLibrarian, m.Role)

	_, err = s.service.BootstrapLibrarian(context.Background(), "Root", "root@example.com", "pw")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	derived, err := s.service.BootstrapLibrarian(context.Background(), " ", "front.desk@example.com", "pw")
	s.Require().NoError(err)
	s.Equal("Front Desk", derived.Name)
}

func (s *MemberServiceSuite) TestListMembers() {
	s.create("a@example.com")
	s.create("b@example.com")

	all, err := s.service.ListMembers(s.librarian)
	s.Require().NoError(err)
	s.Len(all, 2)

	_, err = s.service.ListMembers(s.member)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}
