package importer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livestock-collar-backend/internal/apperr"
	"livestock-collar-backend/internal/store"
)

func TestReadCSV(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		expected  []Row
		expectErr error
	}{
		{
			name:  "original headers",
			input: "Codigo,ID Animal Asignado (opcional)\nab-1,COW-1\nAB-2,\n",
			expected: []Row{
				{Line: 2, Code: "ab-1", AnimalIdentifier: "COW-1"},
				{Line: 3, Code: "AB-2"},
			},
		},
		{
			name:  "english aliases in reverse order with BOM",
			input: "\ufeffAnimal, Code\nCOW-9 , XY-3\n",
			expected: []Row{
				{Line: 2, Code: "XY-3", AnimalIdentifier: "COW-9"},
			},
		},
		{
			name:     "blank lines are skipped",
			input:    "code\n\n,\nAB-1\n",
			expected: []Row{{Line: 3, Code: "AB-1"}},
		},
		{
			name:      "missing code column",
			input:     "animal\nCOW-1\n",
			expectErr: apperr.ErrValidation,
		},
		{
			name:      "empty file",
			input:     "",
			expectErr: apperr.ErrValidation,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rows, err := ReadCSV(strings.NewReader(tc.input))
			if tc.expectErr != nil {
				assert.ErrorIs(t, err, tc.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, rows)
		})
	}
}

func TestXLSXRoundTrip(t *testing.T) {
	data, err := ExportXLSX([]store.ExportRow{
		{Code: "AB-1", AnimalIdentifier: "COW-1"},
		{Code: "AB-2"},
	})
	require.NoError(t, err)

	rows, err := ReadXLSX(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []Row{
		{Line: 2, Code: "AB-1", AnimalIdentifier: "COW-1"},
		{Line: 3, Code: "AB-2"},
	}, rows)

	template, err := TemplateXLSX()
	require.NoError(t, err)
	rows, err = ReadXLSX(bytes.NewReader(template))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReadXLSXRejectsGarbage(t *testing.T) {
	_, err := ReadXLSX(strings.NewReader("not a workbook"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestWriteDetailCSV(t *testing.T) {
	report := &Report{Rows: []RowDetail{
		{Code: "AB-1", AnimalIdentifier: "COW-1", Message: "collar created; assigned to COW-1"},
		{Code: "1234-", Message: "validation error: invalid"},
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteDetailCSV(&buf, report))
	assert.Equal(t,
		"code,animalIdentifier,detailMessage\nAB-1,COW-1,collar created; assigned to COW-1\n1234-,,validation error: invalid\n",
		buf.String())
}
