package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKnownNames(t *testing.T) {
	for _, name := range Names() {
		fn, err := Lookup(name)
		require.NoError(t, err, "name %s", name)
		require.NotNil(t, fn)
	}
}

func TestLookupUnknownName(t *testing.T) {
	_, err := Lookup("reverse")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transformation")

	assert.False(t, IsKnown("reverse"))
	assert.True(t, IsKnown(Uppercase))
}

func TestTransformations(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{Uppercase, "abc123", "ABC123"},
		{Uppercase, "", ""},
		{Lowercase, "John DOE", "john doe"},
		{TitleCase, "john DOE", "John Doe"},
		{TitleCase, "", ""},
		{Trim, "  hello  ", "hello"},
		{Trim, "\t\n", ""},
		{PhoneFormat, "+95 (1) 234-5678", "9512345678"},
		{PhoneFormat, "no digits", ""},
		{PhoneFormat, "", ""},
		{EmailLower, "  John.Doe@Example.COM ", "john.doe@example.com"},
		{RemoveSpecialChars, "Yangon #1 (HQ)!", "Yangon 1 HQ"},
		{RemoveSpecialChars, "", ""},
	}

	for _, tc := range cases {
		fn, err := Lookup(tc.name)
		require.NoError(t, err)
		assert.Equal(t, tc.want, fn(tc.input), "%s(%q)", tc.name, tc.input)
	}
}

// Transformations must be deterministic and safe to reapply.
func TestTransformationsIdempotentOnOutput(t *testing.T) {
	for _, name := range []string{Uppercase, Lowercase, Trim, PhoneFormat, EmailLower, RemoveSpecialChars} {
		fn, err := Lookup(name)
		require.NoError(t, err)
		out := fn("  Mixed Case 123!@# ")
		assert.Equal(t, out, fn(out), "reapplying %s changed the value", name)
	}
}
