// Package email derives display values from email addresses.
package email

import (
	"strings"
	"unicode"
)

// DisplayName builds a name from the local part, splitting on '.', '_', '-'
// and '+'. "ada.lovelace@x.test" becomes "Ada Lovelace".
func DisplayName(address string) string {
	local, _, _ := strings.Cut(address, "@")
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "Librarian"
	}
	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
