package dataset

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadXLSX reads one worksheet of a workbook as a table. An empty sheet name
// selects the first worksheet. Fully empty rows are skipped and short rows
// are padded to the header width.
func ReadXLSX(name string, r io.Reader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return nil, fmt.Errorf("%s: no sheets: %w", name, ErrEmptyTable)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: sheet %q: %w", name, sheet, err)
	}
	return tableFromRows(name, rows)
}

// tableFromRows uses the first non-empty row as the header. Row numbers in
// errors are 1-based sheet rows, blank rows included.
func tableFromRows(name string, rows [][]string) (*Table, error) {
	var header []string
	var body [][]string
	for i, row := range rows {
		if isBlankRow(row) {
			continue
		}
		if header == nil {
			header = make([]string, len(row))
			for i, h := range row {
				header[i] = strings.TrimSpace(h)
			}
			continue
		}
		if len(row) > len(header) {
			return nil, fmt.Errorf("%s: %w", name, &RowError{Row: i + 1, Err: fmt.Errorf("%d cells, header has %d", len(row), len(header))})
		}
		padded := make([]string, len(header))
		copy(padded, row)
		body = append(body, padded)
	}
	if header == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyTable)
	}
	return NewTable(name, header, body), nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// WriteXLSX writes the header and the rows at the given positions to a
// single-sheet workbook. Cells that parse as numbers are stored as numbers.
func (t *Table) WriteXLSX(w io.Writer, sheet string, rows []int) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Sheet1"
	}
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return err
		}
	}

	header := make([]any, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for n, i := range rows {
		if i < 0 || i >= len(t.Rows) {
			return fmt.Errorf("%s: row %d out of range", t.Name, i)
		}
		cells := make([]any, len(t.Rows[i]))
		for j, c := range t.Rows[i] {
			cells[j] = cellValue(c)
		}
		cell, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}

func cellValue(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || strings.ContainsAny(trimmed, "xXpP") {
		return s
	}
	return v
}
