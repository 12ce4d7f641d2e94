package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct error", func(t *testing.T) {
		err := New(CodeOutOfStock, "book has no copies available")
		assert.True(t, HasCode(err, CodeOutOfStock))
		assert.False(t, HasCode(err, CodeNotFound))
	})

	t.Run("matches through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("issue: %w", New(CodeDuplicateLoan, "loan already open"))
		assert.True(t, HasCode(err, CodeDuplicateLoan))
	})

	t.Run("nil and plain errors have no code", func(t *testing.T) {
		assert.False(t, HasCode(nil, CodeInternal))
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeForbidden, CodeOf(New(CodeForbidden, "nope")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("unclassified")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodeInternal, "failed to load book")

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to load book")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestErrorsIsComparesCodeAndMessage(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(CodeUnauthorized, "invalid token"))
	require.ErrorIs(t, err, New(CodeUnauthorized, "invalid token"))
	assert.NotErrorIs(t, err, New(CodeUnauthorized, "token has expired"))
}
