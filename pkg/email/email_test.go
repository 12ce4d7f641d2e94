package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", DisplayName("ada.lovelace@library.test"))
	assert.Equal(t, "Head", DisplayName("head@library.test"))
	assert.Equal(t, "Front Desk", DisplayName("front_desk+ops@library.test"))
	assert.Equal(t, "Librarian", DisplayName("@library.test"))
}
