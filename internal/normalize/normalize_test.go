package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhone(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"formatted", "(707) 555-0142", "7075550142"},
		{"leading country code", "+1 707 555 0142", "7075550142"},
		{"eleven digits no country code kept", "77075550142", "77075550142"},
		{"already normalized", "7075550142", "7075550142"},
		{"garbage", "call me", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Phone(tt.in))
		})
	}
}

func TestEmail(t *testing.T) {
	assert.Equal(t, "j.doe@example.com", Email("  J.Doe@Example.com "))
	assert.Equal(t, "", Email("   "))
}

func TestName(t *testing.T) {
	assert.Equal(t, "maria alvarez", Name("  Maria   ALVAREZ "))
}

func TestNormalizationIdempotent(t *testing.T) {
	inputs := []string{"(707) 555-0142", "+1 707 555 0142", "J.Doe@Example.com", "  Maria   Alvarez "}
	for _, in := range inputs {
		assert.Equal(t, Phone(Phone(in)), Phone(in), "phone not idempotent for %q", in)
		assert.Equal(t, Email(Email(in)), Email(in), "email not idempotent for %q", in)
		assert.Equal(t, Name(Name(in)), Name(in), "name not idempotent for %q", in)
	}
}

func TestNameSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, NameSimilarity("Maria Alvarez", "maria  alvarez"))
	assert.Equal(t, 0.0, NameSimilarity("", "maria"))
	assert.Equal(t, 0.0, NameSimilarity("maria", ""))

	// One edit over 13 characters.
	sim := NameSimilarity("maria alvarez", "marie alvarez")
	assert.InDelta(t, 1.0-1.0/13.0, sim, 1e-9)

	// Totally different strings stay near zero but never negative.
	assert.GreaterOrEqual(t, NameSimilarity("ab", "zzzzzzzzzz"), 0.0)
}
