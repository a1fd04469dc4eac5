package google

import (
	"fmt"
	"strings"

	"finboard/internal/dataset"
)

// tableFromValues converts a values matrix (as returned by Sheets API) into
// a table. The first row is the header; the API trims trailing empty cells,
// so short rows are padded to the header width.
func tableFromValues(name string, values [][]interface{}) (*dataset.Table, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%s: %w", name, dataset.ErrEmptyTable)
	}
	header := toStrings(values[0])
	rows := make([][]string, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		if isBlank(row) {
			continue
		}
		if len(row) > len(header) {
			return nil, fmt.Errorf("%s: %w", name, &dataset.RowError{Row: i + 1, Err: fmt.Errorf("%d cells, header has %d", len(row), len(header))})
		}
		padded := make([]string, len(header))
		copy(padded, row)
		rows = append(rows, padded)
	}
	return dataset.NewTable(name, header, rows), nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func isBlank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
