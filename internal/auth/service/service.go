// Package service exchanges member credentials for signed access tokens and
// revokes them on logout.
package service

import (
	"context"
	"log/slog"
	"time"

	membermodels "circulation/internal/members/models"
	"circulation/internal/platform/metrics"
	"circulation/pkg/domain"
	dErrors "circulation/pkg/domain-errors"
	audit "circulation/pkg/platform/audit"
	"circulation/pkg/platform/middleware/metadata"
	"circulation/pkg/requestcontext"
)

const defaultTokenTTL = 24 * time.Hour

// TRLFailureMode decides what logout does when the revocation list is
// unreachable.
type TRLFailureMode string

const (
	// TRLFailureModeFail reports the failure to the caller.
	TRLFailureModeFail TRLFailureMode = "fail"
	// TRLFailureModeWarn logs it and reports success.
	TRLFailureModeWarn TRLFailureMode = "warn"
)

type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*membermodels.Member, error)
}

type TokenIssuer interface {
	GenerateAccessToken(memberID domain.MemberID, email string, role domain.Role, expiresIn time.Duration) (token string, jti string, expiresAt time.Time, err error)
}

type RevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// LoginLimiter locks out an email and client address pair after repeated
// failures.
type LoginLimiter interface {
	Check(ctx context.Context, email, ip string) error
	RecordFailure(ctx context.Context, email, ip string) error
	Clear(ctx context.Context, email, ip string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// LoginResult is a freshly issued access token.
type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	ExpiresIn   time.Duration
	MemberID    domain.MemberID
	Role        domain.Role
}

type Service struct {
	members        Authenticator
	tokens         TokenIssuer
	trl            RevocationList
	limiter        LoginLimiter
	tokenTTL       time.Duration
	failureMode    TRLFailureMode
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

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

func WithLoginLimiter(l LoginLimiter) Option {
	return func(s *Service) {
		s.limiter = l
	}
}

func WithTRLFailureMode(mode TRLFailureMode) Option {
	return func(s *Service) {
		s.failureMode = mode
	}
}

func New(members Authenticator, tokens TokenIssuer, trl RevocationList, opts ...Option) *Service {
	s := &Service{
		members:     members,
		tokens:      tokens,
		trl:         trl,
		tokenTTL:    defaultTokenTTL,
		failureMode: TRLFailureModeFail,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login checks the credential and issues an access token. Unknown email and
// wrong password produce the same error. A locked out pair is refused before
// the password is checked.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = membermodels.NormalizeEmail(email)
	ip := metadata.GetClientIP(ctx)
	if err := s.checkLockout(ctx, email, ip); err != nil {
		return nil, err
	}

	member, err := s.members.Authenticate(ctx, email, password)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			s.authFailure(ctx, email, ip)
		}
		return nil, err
	}
	if s.limiter != nil {
		if err := s.limiter.Clear(ctx, email, ip); err != nil {
			s.logger.WarnContext(ctx, "failed to clear login failures",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}

	token, jti, expiresAt, err := s.tokens.GenerateAccessToken(member.ID, member.Email, member.Role, s.tokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	s.logAudit(ctx, audit.EventLoginSucceeded, member.ID, "jti:"+jti, "")
	return &LoginResult{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		ExpiresIn:   s.tokenTTL,
		MemberID:    member.ID,
		Role:        member.Role,
	}, nil
}

// Logout revokes the token that authenticated the request for the rest of
// its lifetime.
func (s *Service) Logout(ctx context.Context) error {
	memberID, _, ok := requestcontext.Principal(ctx)
	if !ok {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	jti, expiresAt := requestcontext.Token(ctx)
	if jti == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	ttl := expiresAt.Sub(requestcontext.Now(ctx))
	if ttl > 0 {
		if err := s.trl.RevokeToken(ctx, jti, ttl); err != nil {
			s.logger.ErrorContext(ctx, "failed to add token to revocation list",
				"request_id", requestcontext.RequestID(ctx),
				"jti", jti,
				"error", err,
			)
			if s.failureMode == TRLFailureModeFail {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
			}
		}
	}

	s.logAudit(ctx, audit.EventLogout, memberID, "jti:"+jti, "")
	return nil
}

// IsTokenRevoked lets the authentication middleware consult the revocation
// list.
func (s *Service) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return s.trl.IsRevoked(ctx, jti)
}

// checkLockout only refuses a locked pair. An unreachable lockout store lets
// the attempt through.
func (s *Service) checkLockout(ctx context.Context, email, ip string) error {
	if s.limiter == nil {
		return nil
	}
	err := s.limiter.Check(ctx, email, ip)
	if err == nil {
		return nil
	}
	if dErrors.HasCode(err, dErrors.CodeRateLimited) {
		s.logAudit(ctx, audit.EventLoginFailed, domain.MemberID{}, "email:"+email, "locked_out")
		return err
	}
	s.logger.ErrorContext(ctx, "login lockout check failed",
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	return nil
}

func (s *Service) authFailure(ctx context.Context, email, ip string) {
	if s.metrics != nil {
		s.metrics.IncrementLoginFailures()
	}
	if s.limiter != nil {
		if err := s.limiter.RecordFailure(ctx, email, ip); err != nil {
			s.logger.ErrorContext(ctx, "failed to record login failure",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}
	s.logger.WarnContext(ctx, "login rejected",
		"request_id", requestcontext.RequestID(ctx),
		"client_ip", ip,
	)
	s.logAudit(ctx, audit.EventLoginFailed, domain.MemberID{}, "email:"+email, "invalid_credentials")
}

func (s *Service) logAudit(ctx context.Context, action audit.AuditEvent, memberID domain.MemberID, subject, reason string) {
	if s.auditPublisher == nil {
		return
	}
	// A rejected login has no member; the client address stands in as actor.
	decision, actor := "allowed", memberID.String()
	if action == audit.EventLoginFailed {
		decision, actor = "denied", metadata.GetClientIP(ctx)
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		MemberID: memberID,
		Subject:  subject,
		Action:   string(action),
		Decision: decision,
		Reason:   reason,
		ActorID:  actor,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"request_id", requestcontext.RequestID(ctx),
			"action", string(action),
			"error", err,
		)
	}
}
