package shared

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName trims surrounding whitespace and applies Unicode NFC so
// visually identical names collapse onto the same unique index entry.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
