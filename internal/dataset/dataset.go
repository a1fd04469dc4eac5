package dataset

import (
	"io"
	"path"
	"slices"
	"strings"

	"finboard/internal/core"
)

type (
	// Dataset is a loaded table together with its typed records. It is never
	// modified after binding and may be shared between goroutines.
	Dataset[R core.Record] struct {
		table   *Table
		records []R
	}

	TaxDataset = Dataset[core.TaxRecord]
	TipDataset = Dataset[core.TipRecord]
)

func newDataset[R core.Record](t *Table, records []R) *Dataset[R] {
	return &Dataset[R]{table: t, records: records}
}

func (d *Dataset[R]) Name() string { return d.table.Name }

func (d *Dataset[R]) Len() int { return len(d.records) }

// Records returns a copy of all records in source order.
func (d *Dataset[R]) Records() []R { return slices.Clone(d.records) }

func (d *Dataset[R]) Header() []string { return slices.Clone(d.table.Header) }

// Categories returns the distinct category labels in order of first appearance.
func (d *Dataset[R]) Categories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range d.records {
		c := r.CategoryLabel()
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// HasTimestamps reports whether every record carries a date.
func (d *Dataset[R]) HasTimestamps() bool {
	if len(d.records) == 0 {
		return false
	}
	for _, r := range d.records {
		if r.Timestamp().IsZero() {
			return false
		}
	}
	return true
}

// DateBounds returns the earliest and latest record day. ok is false when no
// record has a date.
func (d *Dataset[R]) DateBounds() (minDate, maxDate core.Date, ok bool) {
	for _, r := range d.records {
		ts := r.Timestamp()
		if ts.IsZero() {
			continue
		}
		day := core.Date{Time: ts}.Day()
		if !ok || day.Before(minDate.Time) {
			minDate = day
		}
		if !ok || day.After(maxDate.Time) {
			maxDate = day
		}
		ok = true
	}
	return minDate, maxDate, ok
}

func rowPositions[R core.Record](subset []R) []int {
	rows := make([]int, len(subset))
	for i, r := range subset {
		rows[i] = r.Position()
	}
	return rows
}

// WriteCSV writes the header and the subset's rows. Datasets read from a
// text file keep their delimiter, quoting, BOM and line endings.
func WriteCSV[R core.Record](w io.Writer, d *Dataset[R], subset []R) error {
	return d.table.WriteRows(w, rowPositions(subset))
}

// WriteXLSX writes the header and the subset's rows as a one-sheet workbook
// named after the dataset.
func WriteXLSX[R core.Record](w io.Writer, d *Dataset[R], subset []R) error {
	return d.table.WriteXLSX(w, sheetName(d.table.Name), rowPositions(subset))
}

// sheetName keeps names within the 31 character worksheet limit and free of
// characters Excel rejects.
func sheetName(name string) string {
	name = strings.TrimSuffix(name, path.Ext(name))
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			r = '_'
		}
		out = append(out, r)
		if len(out) == 31 {
			break
		}
	}
	if len(out) == 0 {
		return "Sheet1"
	}
	return string(out)
}
