package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeNameTrimsWhitespace(t *testing.T) {
	assert.Equal(t, "editor", NormalizeName("  editor \t"))
	assert.Equal(t, "", NormalizeName("   "))
}

func TestNormalizeNameAppliesNFC(t *testing.T) {
	// e + combining acute composes to the single code point form.
	decomposed := "cafe\u0301"
	composed := "caf\u00e9"
	assert.Equal(t, composed, NormalizeName(decomposed))
	assert.Equal(t, NormalizeName(composed), NormalizeName(decomposed), "both spellings land on one canonical form")
}
