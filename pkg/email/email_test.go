package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveName(t *testing.T) {
	tests := []struct {
		email string
		first string
		last  string
	}{
		{"jane.doe@example.com", "Jane", "Doe"},
		{"jane_doe@example.com", "Jane", "Doe"},
		{"jane-t-doe@example.com", "Jane", "Doe"},
		{"jdoe99@example.com", "Jdoe", ""},
		{"jane@example.com", "Jane", ""},
		{"@example.com", "", ""},
		{"12345@example.com", "", ""},
		{"", "", ""},
	}
	for _, tc := range tests {
		first, last := DeriveName(tc.email)
		assert.Equal(t, tc.first, first, tc.email)
		assert.Equal(t, tc.last, last, tc.email)
	}
}
