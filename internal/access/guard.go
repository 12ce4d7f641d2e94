// Package access gates every catalog, directory and circulation operation by
// the caller's role.
//
// The principal comes from the request context, placed there by the auth
// middleware. Services call Require before touching input or stores, so a
// caller without the capability is rejected regardless of what it sent.
package access

import (
	"context"
	"log/slog"
	"net/http"

	"circulation/pkg/domain"
	dErrors "circulation/pkg/domain-errors"
	"circulation/pkg/platform/httputil"
	"circulation/pkg/requestcontext"
)

// Principal is the resolved caller of an operation.
type Principal struct {
	MemberID     domain.MemberID
	Role         domain.Role
	Capabilities Capabilities
}

func (p Principal) IsLibrarian() bool {
	return p.Role == domain.RoleLibrarian
}

// Guard checks the capabilities of the principal on the request context.
type Guard struct {
	logger *slog.Logger
}

type Option func(*Guard)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

func NewGuard(opts ...Option) *Guard {
	g := &Guard{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Require returns the caller when it may perform op. Anonymous callers and
// callers lacking the capability get Forbidden.
func (g *Guard) Require(ctx context.Context, op Operation) (Principal, error) {
	memberID, role, ok := requestcontext.Principal(ctx)
	if !ok {
		g.deny(ctx, op, "anonymous")
		return Principal{}, dErrors.Newf(dErrors.CodeForbidden, "%s requires an authenticated caller", op)
	}
	caps := CapabilitiesFor(role)
	if !caps.Allows(op) {
		g.deny(ctx, op, string(role))
		return Principal{}, dErrors.Newf(dErrors.CodeForbidden, "role %s may not %s", role, op)
	}
	return Principal{MemberID: memberID, Role: role, Capabilities: caps}, nil
}

func (g *Guard) deny(ctx context.Context, op Operation, who string) {
	if g.logger == nil {
		return
	}
	g.logger.WarnContext(ctx, "operation denied",
		"request_id", requestcontext.RequestID(ctx),
		"operation", string(op),
		"caller", who,
	)
}

// RequireOperation rejects requests whose caller may not perform op before the
// handler reads the body.
func (g *Guard) RequireOperation(op Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := g.Require(r.Context(), op); err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
