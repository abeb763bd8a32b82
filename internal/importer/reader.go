package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"livestock-collar-backend/internal/apperr"
)

// Column headers written by the export and the template. The reader also
// accepts the aliases below.
const (
	CodeHeader   = "Codigo"
	AnimalHeader = "ID Animal Asignado (opcional)"
)

// ImportHeader is the header row of every collar sheet.
var ImportHeader = []string{CodeHeader, AnimalHeader}

var (
	codeAliases   = []string{"codigo", "código", "code", "collar", "collar code", "collar_code"}
	animalAliases = []string{
		"id animal asignado (opcional)", "id animal asignado", "animal", "animal id",
		"animal_id", "animal identifier", "animalidentifier",
	}
)

// Row is one data line of an import file. Line is the 1-based record number in
// the source, counting the header.
type Row struct {
	Line             int
	Code             string
	AnimalIdentifier string
}

// ReadCSV parses a comma separated import file.
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, apperr.Validation("malformed CSV at line %d: %v", parseErr.Line, parseErr.Err)
		}
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return fromRecords(records)
}

// ReadXLSX parses the first sheet of an Excel import file.
func ReadXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Validation("failed to parse Excel file: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.Validation("Excel file has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperr.Validation("failed to read rows: %v", err)
	}
	return fromRecords(records)
}

func fromRecords(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, apperr.Validation("import file is empty")
	}
	codeCol, animalCol := locateColumns(records[0])
	if codeCol < 0 {
		return nil, apperr.Validation("missing required column %q", CodeHeader)
	}

	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		row := Row{
			Line:             i + 2,
			Code:             cell(record, codeCol),
			AnimalIdentifier: cell(record, animalCol),
		}
		if row.Code == "" && row.AnimalIdentifier == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func locateColumns(header []string) (codeCol, animalCol int) {
	codeCol, animalCol = -1, -1
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		switch {
		case codeCol < 0 && contains(codeAliases, name):
			codeCol = i
		case animalCol < 0 && contains(animalAliases, name):
			animalCol = i
		}
	}
	return codeCol, animalCol
}

func cell(record []string, col int) string {
	if col < 0 || col >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[col])
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
