// Package service locks out an email and client address pair after repeated
// failed logins.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"circulation/internal/ratelimit/models"
	"circulation/pkg/domain"
	dErrors "circulation/pkg/domain-errors"
	audit "circulation/pkg/platform/audit"
	"circulation/pkg/platform/circuit"
	"circulation/pkg/requestcontext"
)

type Store interface {
	RecordFailure(ctx context.Context, key string, now time.Time, window time.Duration) (*models.Lockout, error)
	Lock(ctx context.Context, key string, now, until time.Time) error
	Get(ctx context.Context, key string, now time.Time) (*models.Lockout, error)
	Clear(ctx context.Context, key string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Config bounds failed logins: MaxFailures within Window locks the pair for
// LockDuration.
type Config struct {
	MaxFailures  int
	Window       time.Duration
	LockDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxFailures:  5,
		Window:       15 * time.Minute,
		LockDuration: 15 * time.Minute,
	}
}

type Service struct {
	primary        Store
	fallback       Store
	breaker        *circuit.Breaker
	config         Config
	logger         *slog.Logger
	auditPublisher AuditPublisher
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

func WithConfig(cfg Config) Option {
	return func(s *Service) {
		if cfg.MaxFailures > 0 {
			s.config.MaxFailures = cfg.MaxFailures
		}
		if cfg.Window > 0 {
			s.config.Window = cfg.Window
		}
		if cfg.LockDuration > 0 {
			s.config.LockDuration = cfg.LockDuration
		}
	}
}

// WithFallback serves requests from fallback while the primary store keeps
// failing.
func WithFallback(fallback Store, breaker *circuit.Breaker) Option {
	return func(s *Service) {
		s.fallback = fallback
		s.breaker = breaker
	}
}

func New(primary Store, opts ...Option) *Service {
	s := &Service{
		primary: primary,
		config:  DefaultConfig(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check rejects a login attempt while the pair is locked.
func (s *Service) Check(ctx context.Context, email, ip string) error {
	key := models.NewLockoutKey(email, ip)
	now := requestcontext.Now(ctx)
	var rec *models.Lockout
	err := s.do(ctx, func(st Store) error {
		var err error
		rec, err = st.Get(ctx, key, now)
		return err
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read login lockout")
	}
	if rec.IsLockedAt(now) {
		return dErrors.Newf(dErrors.CodeRateLimited,
			"too many failed logins; retry in %s", rec.LockedUntil.Sub(now).Round(time.Second))
	}
	return nil
}

// RecordFailure counts a failed login and locks the pair once the window
// holds MaxFailures.
func (s *Service) RecordFailure(ctx context.Context, email, ip string) error {
	key := models.NewLockoutKey(email, ip)
	now := requestcontext.Now(ctx)
	return s.do(ctx, func(st Store) error {
		rec, err := st.RecordFailure(ctx, key, now, s.config.Window)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record login failure")
		}
		if !rec.ShouldLock(s.config.MaxFailures) || rec.IsLockedAt(now) {
			return nil
		}
		until := now.Add(s.config.LockDuration)
		if err := st.Lock(ctx, key, now, until); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock login")
		}
		s.logger.WarnContext(ctx, "login locked",
			"request_id", requestcontext.RequestID(ctx),
			"client_ip", ip,
			"locked_until", until,
		)
		s.emitLocked(ctx, email, ip)
		return nil
	})
}

// Clear forgets the pair's failures after a successful login.
func (s *Service) Clear(ctx context.Context, email, ip string) error {
	key := models.NewLockoutKey(email, ip)
	return s.do(ctx, func(st Store) error {
		return st.Clear(ctx, key)
	})
}

// do runs fn against the primary store and falls back to the local store
// while the breaker is open.
func (s *Service) do(ctx context.Context, fn func(Store) error) error {
	err := fn(s.primary)
	if s.breaker == nil || s.fallback == nil {
		return err
	}
	if err == nil {
		if _, change := s.breaker.RecordSuccess(); change.Closed {
			s.logger.InfoContext(ctx, "login lockout store recovered", "breaker", s.breaker.Name())
		}
		return nil
	}
	useFallback, change := s.breaker.RecordFailure()
	if change.Opened {
		s.logger.WarnContext(ctx, "login lockout store degraded; using local fallback",
			"breaker", s.breaker.Name(),
			"error", err,
		)
	}
	if !useFallback {
		return err
	}
	return fn(s.fallback)
}

func (s *Service) emitLocked(ctx context.Context, email, ip string) {
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Category:  audit.EventLoginLocked.Category(),
		Timestamp: requestcontext.Now(ctx),
		MemberID:  domain.MemberID{},
		Subject:   "email:" + strings.ToLower(strings.TrimSpace(email)),
		Action:    string(audit.EventLoginLocked),
		Decision:  "denied",
		Reason:    "too_many_failures",
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   ip,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", audit.EventLoginLocked,
			"error", err,
		)
	}
}
