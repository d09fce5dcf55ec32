// Package normalize canonicalizes user-supplied identity fields before they
// are stored or compared.
package normalize

import "strings"

// Email returns a normalized form of an email address suitable for
// storage and comparisons. Normalization currently trims surrounding
// whitespace and lower-cases the address.
func Email(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// Username trims surrounding whitespace. Case is preserved for display but
// uniqueness is enforced on the stored value as-is.
func Username(u string) string {
	return strings.TrimSpace(u)
}

// Content trims surrounding whitespace from message text. An all-whitespace
// message normalizes to the empty string.
func Content(c string) string {
	return strings.TrimSpace(c)
}
