package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"livestock-collar-backend/internal/store"
)

// DetailHeader is the header row of the per-row import detail file.
var DetailHeader = []string{"code", "animalIdentifier", "detailMessage"}

// WriteExportCSV writes collars in the import format so the file can be
// re-imported unchanged.
func WriteExportCSV(w io.Writer, rows []store.ExportRow) error {
	return writeCSV(w, ImportHeader, exportRecords(rows))
}

// ExportXLSX renders collars in the import format as a workbook.
func ExportXLSX(rows []store.ExportRow) ([]byte, error) {
	return buildWorkbook("Collares", ImportHeader, exportRecords(rows), []float64{16, 32})
}

// WriteTemplateCSV writes an empty import file.
func WriteTemplateCSV(w io.Writer) error {
	return writeCSV(w, ImportHeader, nil)
}

// TemplateXLSX renders an empty import workbook.
func TemplateXLSX() ([]byte, error) {
	return buildWorkbook("Collares", ImportHeader, nil, []float64{16, 32})
}

// WriteDetailCSV writes one line per processed row of the report.
func WriteDetailCSV(w io.Writer, report *Report) error {
	return writeCSV(w, DetailHeader, detailRecords(report))
}

// DetailXLSX renders the report rows as a workbook.
func DetailXLSX(report *Report) ([]byte, error) {
	return buildWorkbook("Detalle", DetailHeader, detailRecords(report), []float64{16, 24, 60})
}

func exportRecords(rows []store.ExportRow) [][]string {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{r.Code, r.AnimalIdentifier})
	}
	return records
}

func detailRecords(report *Report) [][]string {
	records := make([][]string, 0, len(report.Rows))
	for _, r := range report.Rows {
		records = append(records, []string{r.Code, r.AnimalIdentifier, r.Message})
	}
	return records
}

func writeCSV(w io.Writer, header []string, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write CSV rows: %w", err)
	}
	return nil
}

// buildWorkbook writes a single-sheet workbook with a styled, frozen header row.
func buildWorkbook(sheetName string, headers []string, records [][]string, widths []float64) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetRow(sheetName, "A1", &headers); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}

	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, record := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := record
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
