// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets the authenticated principal, request ID and request time;
// services read them without importing net/http. The principal is the
// explicit replacement for process-wide session state: every operation sees
// exactly the caller that presented the credential.
//
// Usage in tests:
//
//	ctx = requestcontext.WithPrincipal(ctx, memberID, domain.RoleLibrarian)
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	"circulation/pkg/domain"
)

type (
	memberIDKey    struct{}
	roleKey        struct{}
	tokenIDKey     struct{}
	tokenExpiryKey struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

var (
	ContextKeyMemberID    = memberIDKey{}
	ContextKeyRole        = roleKey{}
	ContextKeyTokenID     = tokenIDKey{}
	ContextKeyTokenExpiry = tokenExpiryKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Principal
// -----------------------------------------------------------------------------

// WithPrincipal records the authenticated caller.
func WithPrincipal(ctx context.Context, memberID domain.MemberID, role domain.Role) context.Context {
	ctx = context.WithValue(ctx, ContextKeyMemberID, memberID)
	return context.WithValue(ctx, ContextKeyRole, role)
}

// Principal returns the authenticated caller. ok is false for anonymous calls.
func Principal(ctx context.Context) (domain.MemberID, domain.Role, bool) {
	memberID, ok := ctx.Value(ContextKeyMemberID).(domain.MemberID)
	if !ok || memberID.IsNil() {
		return domain.MemberID{}, "", false
	}
	role, ok := ctx.Value(ContextKeyRole).(domain.Role)
	if !ok {
		return domain.MemberID{}, "", false
	}
	return memberID, role, true
}

// MemberID returns the authenticated member ID, or the nil ID when anonymous.
func MemberID(ctx context.Context) domain.MemberID {
	memberID, _, _ := Principal(ctx)
	return memberID
}

// WithToken records the credential's JWT ID and expiry so logout can revoke it.
func WithToken(ctx context.Context, jti string, expiresAt time.Time) context.Context {
	ctx = context.WithValue(ctx, ContextKeyTokenID, jti)
	return context.WithValue(ctx, ContextKeyTokenExpiry, expiresAt)
}

// Token returns the JWT ID and expiry of the presented credential.
func Token(ctx context.Context) (string, time.Time) {
	jti, _ := ctx.Value(ContextKeyTokenID).(string)
	exp, _ := ctx.Value(ContextKeyTokenExpiry).(time.Time)
	return jti, exp
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (CLI, workers, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
