package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livestock-collar-backend/internal/apperr"
	"livestock-collar-backend/internal/model"
)

func seededRows() []model.CollarState {
	return []model.CollarState{
		{ID: 1, Name: "available"},
		{ID: 2, Name: "active"},
		{ID: 3, Name: "low-battery"},
		{ID: 4, Name: "defective"},
	}
}

func TestResolveID(t *testing.T) {
	c := New(seededRows())

	testCases := []struct {
		name     string
		input    string
		expected int64
		wantErr  bool
	}{
		{name: "exact", input: "available", expected: 1},
		{name: "upper case", input: "ACTIVE", expected: 2},
		{name: "mixed case with spaces", input: "  Low-Battery ", expected: 3},
		{name: "defective", input: "defective", expected: 4},
		{name: "unknown", input: "lost", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := c.ResolveID(tc.input)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnknownState)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, id)
		})
	}
}

func TestResolveName(t *testing.T) {
	c := New(seededRows())

	name, err := c.ResolveName(4)
	require.NoError(t, err)
	assert.Equal(t, Defective, name)

	_, err = c.ResolveName(99)
	assert.ErrorIs(t, err, ErrUnknownState)
}

func TestMustHaveReportsConfigurationError(t *testing.T) {
	c := New([]model.CollarState{{ID: 1, Name: "available"}})

	_, err := c.MustHave(Active)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
	assert.Equal(t, []State{Active, LowBattery, Defective}, c.Missing())
}

func TestIsSticky(t *testing.T) {
	c := New(seededRows())

	assert.False(t, c.IsSticky(1))
	assert.False(t, c.IsSticky(2))
	assert.True(t, c.IsSticky(3))
	assert.True(t, c.IsSticky(4))
	assert.False(t, c.IsSticky(42))
}

func TestNewIgnoresUnknownRows(t *testing.T) {
	rows := append(seededRows(), model.CollarState{ID: 9, Name: "retired"})
	c := New(rows)

	assert.Len(t, c.States(), 4)
	assert.Empty(t, c.Missing())
}
