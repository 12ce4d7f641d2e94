// Package service implements the member directory: the roster, credentials
// and the running debt of each member.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"circulation/internal/access"
	"circulation/internal/members/models"
	"circulation/internal/members/password"
	"circulation/internal/platform/metrics"
	"circulation/pkg/domain"
	dErrors "circulation/pkg/domain-errors"
	emailutil "circulation/pkg/email"
	audit "circulation/pkg/platform/audit"
	"circulation/pkg/platform/sentinel"
	"circulation/pkg/platform/tx"
	"circulation/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, m *models.Member) error
	FindByID(ctx context.Context, id domain.MemberID) (*models.Member, error)
	FindByEmail(ctx context.Context, email string) (*models.Member, error)
	Update(ctx context.Context, m *models.Member) error
	Delete(ctx context.Context, id domain.MemberID) error
	AddDebt(ctx context.Context, id domain.MemberID, delta decimal.Decimal) (*models.Member, error)
	ListAll(ctx context.Context) ([]*models.Member, error)
	FindByIDs(ctx context.Context, ids []domain.MemberID) (map[domain.MemberID]*models.Member, error)
}

// LoanChecker reports open loans so a borrowing member cannot be removed.
type LoanChecker interface {
	HasOpenLoansForMember(ctx context.Context, memberID domain.MemberID) (bool, error)
}

type Guard interface {
	Require(ctx context.Context, op access.Operation) (access.Principal, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// CreateMemberRequest carries a new member's profile and credential.
type CreateMemberRequest struct {
	Name     string
	Email    string
	Password string
	// Role defaults to member when empty.
	Role string
}

type Service struct {
	members        Store
	loans          LoanChecker
	guard          Guard
	hasher         *password.Hasher
	tx             tx.Runner
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithHasher(h *password.Hasher) Option {
	return func(s *Service) {
		s.hasher = h
	}
}

// WithTxRunner sets the transactional boundary shared with the circulation engine.
func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func New(members Store, loans LoanChecker, guard Guard, opts ...Option) *Service {
	s := &Service{members: members, loans: loans, guard: guard}
	for _, opt := range opts {
		opt(s)
	}
	if s.hasher == nil {
		s.hasher = password.NewHasher(0)
	}
	if s.tx == nil {
		s.tx = tx.NewSharded()
	}
	return s
}

// CreateMember registers a member. Duplicate emails are a conflict.
func (s *Service) CreateMember(ctx context.Context, req CreateMemberRequest) (*models.Member, error) {
	principal, err := s.guard.Require(ctx, access.OpCreateMember)
	if err != nil {
		return nil, err
	}
	member, err := s.create(ctx, req)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, principal.MemberID, audit.EventMemberCreated, member.ID)
	return member, nil
}

// BootstrapLibrarian creates a librarian without a caller. It exists for
// first-run setup from the server and the admin CLI, which have no principal.
func (s *Service) BootstrapLibrarian(ctx context.Context, name, email, pw string) (*models.Member, error) {
	if strings.TrimSpace(name) == "" {
		name = emailutil.DisplayName(email)
	}
	member, err := s.create(ctx, CreateMemberRequest{
		Name:     name,
		Email:    email,
		Password: pw,
		Role:     string(domain.RoleLibrarian),
	})
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, member.ID, audit.EventMemberCreated, member.ID)
	return member, nil
}

func (s *Service) create(ctx context.Context, req CreateMemberRequest) (*models.Member, error) {
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "name, email and password are required")
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	member, err := models.NewMember(domain.NewMemberID(), req.Name, req.Email, hash, role, requestcontext.Now(ctx))
	if err != nil {
		return nil, translateInvariant(err)
	}
	if err := s.members.Create(ctx, member); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create member")
	}
	if s.metrics != nil {
		s.metrics.IncrementMembersCreated()
	}
	return member, nil
}

func (s *Service) GetMember(ctx context.Context, id domain.MemberID) (*models.Member, error) {
	if _, err := s.guard.Require(ctx, access.OpGetMember); err != nil {
		return nil, err
	}
	m, err := s.members.FindByID(ctx, id)
	if err != nil {
		return nil, wrapMemberErr(err, "failed to load member")
	}
	return m, nil
}

// GetMembers resolves several members at once. Unknown ids are left out of
// the result.
func (s *Service) GetMembers(ctx context.Context, ids []domain.MemberID) (map[domain.MemberID]*models.Member, error) {
	if _, err := s.guard.Require(ctx, access.OpGetMember); err != nil {
		return nil, err
	}
	found, err := s.members.FindByIDs(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load members")
	}
	return found, nil
}

func (s *Service) ListMembers(ctx context.Context) ([]*models.Member, error) {
	if _, err := s.guard.Require(ctx, access.OpListMembers); err != nil {
		return nil, err
	}
	all, err := s.members.ListAll(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list members")
	}
	return all, nil
}

// UpdateMember changes name and email. Role and debt are never touched here.
func (s *Service) UpdateMember(ctx context.Context, id domain.MemberID, name, email string) (*models.Member, error) {
	principal, err := s.guard.Require(ctx, access.OpUpdateMember)
	if err != nil {
		return nil, err
	}

	var updated *models.Member
	err = s.tx.RunInTx(ctx, []string{tx.MemberKey(id.String())}, func(ctx context.Context) error {
		m, err := s.members.FindByID(ctx, id)
		if err != nil {
			return wrapMemberErr(err, "failed to load member")
		}
		if err := m.CanUpdateProfile(name, email); err != nil {
			return translateInvariant(err)
		}
		m.ApplyProfileUpdate(name, email, requestcontext.Now(ctx))
		if err := s.members.Update(ctx, m); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "email is already registered")
			}
			return wrapMemberErr(err, "failed to update member")
		}
		updated = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, principal.MemberID, audit.EventMemberUpdated, id)
	return updated, nil
}

// RemoveMember deletes a member without open loans.
func (s *Service) RemoveMember(ctx context.Context, id domain.MemberID) error {
	principal, err := s.guard.Require(ctx, access.OpRemoveMember)
	if err != nil {
		return err
	}

	err = s.tx.RunInTx(ctx, []string{tx.MemberKey(id.String())}, func(ctx context.Context) error {
		if _, err := s.members.FindByID(ctx, id); err != nil {
			return wrapMemberErr(err, "failed to load member")
		}
		open, err := s.loans.HasOpenLoansForMember(ctx, id)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check open loans")
		}
		if open {
			return dErrors.New(dErrors.CodeConflict, "member has outstanding loans")
		}
		if err := s.members.Delete(ctx, id); err != nil {
			return wrapMemberErr(err, "failed to remove member")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.emitAudit(ctx, principal.MemberID, audit.EventMemberRemoved, id)
	return nil
}

// AdjustDebt adds a non-negative fee to the member's debt. Only the
// circulation engine calls it.
func (s *Service) AdjustDebt(ctx context.Context, id domain.MemberID, delta decimal.Decimal) (*models.Member, error) {
	if _, err := s.guard.Require(ctx, access.OpAdjustDebt); err != nil {
		return nil, err
	}
	if err := models.CanAccrueDebt(delta); err != nil {
		return nil, translateInvariant(err)
	}

	var updated *models.Member
	err := s.tx.RunInTx(ctx, []string{tx.MemberKey(id.String())}, func(ctx context.Context) error {
		m, err := s.members.AddDebt(ctx, id, delta)
		if err != nil {
			return wrapMemberErr(err, "failed to adjust debt")
		}
		updated = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Authenticate checks a credential. Unknown email and wrong password are the
// same Unauthorized error.
func (s *Service) Authenticate(ctx context.Context, email, pw string) (*models.Member, error) {
	m, err := s.members.FindByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.hasher.VerifyNothing(pw)
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load member")
	}
	if !s.hasher.Verify(pw, m.PasswordHash) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
	}
	return m, nil
}

func (s *Service) emitAudit(ctx context.Context, actorID domain.MemberID, action audit.AuditEvent, subject domain.MemberID) {
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		MemberID: subject,
		Subject:  "member:" + subject.String(),
		Action:   string(action),
		ActorID:  actorID.String(),
	})
	if err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"request_id", requestcontext.RequestID(ctx),
			"action", string(action),
			"error", err,
		)
	}
}

func wrapMemberErr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "member not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func translateInvariant(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) && de.Code == dErrors.CodeInvariantViolation {
		return dErrors.New(dErrors.CodeInvalidInput, de.Message)
	}
	return err
}
