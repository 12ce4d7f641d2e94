package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"circulation/pkg/domain"
)

func TestPrincipal(t *testing.T) {
	t.Run("anonymous context has no principal", func(t *testing.T) {
		_, _, ok := Principal(context.Background())
		assert.False(t, ok)
	})

	t.Run("nil member id is treated as anonymous", func(t *testing.T) {
		ctx := WithPrincipal(context.Background(), domain.MemberID{}, domain.RoleLibrarian)
		_, _, ok := Principal(ctx)
		assert.False(t, ok)
	})

	t.Run("returns stored principal", func(t *testing.T) {
		memberID := domain.NewMemberID()
		ctx := WithPrincipal(context.Background(), memberID, domain.RoleMember)
		gotID, gotRole, ok := Principal(ctx)
		assert.True(t, ok)
		assert.Equal(t, memberID, gotID)
		assert.Equal(t, domain.RoleMember, gotRole)
	})
}

func TestNow(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, fixed, Now(WithTime(context.Background(), fixed)))
	assert.WithinDuration(t, time.Now(), Now(context.Background()), time.Second)
}
