package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructorsWrapSentinels(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		kind error
	}{
		{"not found", NotFound("collar %d", 7), ErrNotFound},
		{"conflict", Conflict("code %q", "AB-1"), ErrConflict},
		{"validation", Validation("bad code"), ErrValidation},
		{"configuration", Configuration("state %q missing", "active"), ErrConfiguration},
		{"geometry", Geometry("not a polygon"), ErrGeometry},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.err, tc.kind)
			assert.ErrorIs(t, fmt.Errorf("outer: %w", tc.err), tc.kind)
		})
	}
}

func TestMessageKeepsContext(t *testing.T) {
	err := NotFound("collar %d", 42)
	assert.Equal(t, "not found: collar 42", err.Error())
	assert.False(t, errors.Is(err, ErrConflict))
}
