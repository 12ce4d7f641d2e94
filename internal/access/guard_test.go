package access

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circulation/pkg/domain"
	dErrors "circulation/pkg/domain-errors"
	"circulation/pkg/requestcontext"
)

var librarianOnly = []Operation{
	OpAddBook, OpUpdateBook, OpRemoveBook,
	OpDecrementStock, OpIncrementStock, OpAdjustDebt,
	OpCreateMember, OpGetMember, OpListMembers, OpUpdateMember, OpRemoveMember,
	OpIssue, OpReturn, OpListTransactions, OpGetTransaction,
}

func TestGuard_Require(t *testing.T) {
	guard := NewGuard()
	memberID := domain.NewMemberID()

	t.Run("anonymous caller is forbidden everywhere", func(t *testing.T) {
		for _, op := range append(librarianOnly, OpListBooks, OpListOutstanding) {
			_, err := guard.Require(context.Background(), op)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden), op)
		}
	})

	t.Run("member is forbidden on librarian operations", func(t *testing.T) {
		ctx := requestcontext.WithPrincipal(context.Background(), memberID, domain.RoleMember)
		for _, op := range librarianOnly {
			_, err := guard.Require(ctx, op)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden), op)
		}
	})

	t.Run("member may list books and own loans", func(t *testing.T) {
		ctx := requestcontext.WithPrincipal(context.Background(), memberID, domain.RoleMember)
		p, err := guard.Require(ctx, OpListBooks)
		require.NoError(t, err)
		assert.Equal(t, memberID, p.MemberID)
		assert.False(t, p.IsLibrarian())
		assert.False(t, p.Capabilities.SeesUnavailableBooks())
		assert.False(t, p.Capabilities.ReadsAllLoans())

		_, err = guard.Require(ctx, OpListOutstanding)
		require.NoError(t, err)
	})

	t.Run("librarian may do everything", func(t *testing.T) {
		ctx := requestcontext.WithPrincipal(context.Background(), memberID, domain.RoleLibrarian)
		for _, op := range append(librarianOnly, OpListBooks, OpListOutstanding) {
			p, err := guard.Require(ctx, op)
			require.NoError(t, err, op)
			assert.True(t, p.Capabilities.SeesUnavailableBooks())
		}
	})
}

func TestGuard_RequireOperation(t *testing.T) {
	g := NewGuard()
	called := false
	h := g.RequireOperation(OpAddBook)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/books", nil)
	req = req.WithContext(requestcontext.WithPrincipal(req.Context(), domain.NewMemberID(), domain.RoleMember))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.False(t, called)
}
