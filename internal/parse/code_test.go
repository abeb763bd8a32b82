package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livestock-collar-backend/internal/apperr"
)

func TestNormalizeCode(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expected  string
		expectErr bool
	}{
		{name: "already canonical", raw: "AB-12", expected: "AB-12"},
		{name: "lower case and spaces", raw: "  ab-12 ", expected: "AB-12"},
		{name: "max lengths", raw: "ABCD-12345", expected: "ABCD-12345"},
		{name: "single letter single digit", raw: "x-1", expected: "X-1"},
		{name: "digits only", raw: "1234-", expectErr: true},
		{name: "too many letters", raw: "ABCDE-1", expectErr: true},
		{name: "too many digits", raw: "AB-123456", expectErr: true},
		{name: "missing dash", raw: "AB12", expectErr: true},
		{name: "empty", raw: "   ", expectErr: true},
		{name: "inner space", raw: "AB - 1", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, err := NormalizeCode(tc.raw)
			if tc.expectErr {
				assert.ErrorIs(t, err, apperr.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, code)
		})
	}
}

func TestSequenceOf(t *testing.T) {
	assert.Equal(t, 12, SequenceOf("AB-12"))
	assert.Equal(t, 0, SequenceOf("AB"))
	assert.Equal(t, 7, SequenceOf("AB-007"))
}

func TestNextCodes(t *testing.T) {
	existing := []string{"AB-1", "AB-9", "AB-3", "ABC-40", "X-100"}

	codes, err := NextCodes("AB", existing, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"AB-10", "AB-11", "AB-12"}, codes)

	codes, err = NextCodes("Z", nil, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Z-1", "Z-2"}, codes)

	_, err = NextCodes("AB", existing, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = NextCodes("AB", []string{"AB-99999"}, 1)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestValidBase(t *testing.T) {
	base, err := ValidBase(" ab ")
	require.NoError(t, err)
	assert.Equal(t, "AB", base)

	_, err = ValidBase("AB-1")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
