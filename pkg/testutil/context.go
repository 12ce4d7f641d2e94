package testutil

import (
	"context"
	"net/http"
	"time"

	"circulation/pkg/domain"
	"circulation/pkg/requestcontext"
)

// AsLibrarian returns a context carrying a librarian principal.
func AsLibrarian(ctx context.Context, memberID domain.MemberID) context.Context {
	return requestcontext.WithPrincipal(ctx, memberID, domain.RoleLibrarian)
}

// AsMember returns a context carrying a member principal.
func AsMember(ctx context.Context, memberID domain.MemberID) context.Context {
	return requestcontext.WithPrincipal(ctx, memberID, domain.RoleMember)
}

// At pins the request time seen by services.
func At(ctx context.Context, t time.Time) context.Context {
	return requestcontext.WithTime(ctx, t)
}

// WithPrincipal adds a principal to the request context, simulating what the
// auth middleware does for authenticated requests.
func WithPrincipal(req *http.Request, memberID domain.MemberID, role domain.Role) *http.Request {
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), memberID, role))
}
