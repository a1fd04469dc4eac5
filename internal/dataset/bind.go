package dataset

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"finboard/internal/core"
)

// RowError locates a row that could not be bound. Row is the 1-based row
// number in the source with the header on row 1.
type RowError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("malformed row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("malformed row %d, column %s, value %q: %v", e.Row, e.Column, e.Value, e.Err)
}

func (e *RowError) Unwrap() []error { return []error{ErrMalformedRow, e.Err} }

var (
	errRequired  = errors.New("value required")
	errNotNumber = errors.New("not a number")
	errNotInt    = errors.New("not an integer")
)

var (
	taxColumns = []string{
		core.FieldProjDate, core.FieldCountry, core.FieldCategory,
		core.FieldGrossSales, core.FieldNetSales, core.FieldGrossIncome,
		core.FieldTaxDue, core.FieldTotalTaxableIncome, core.FieldOSD40,
		core.FieldNetTaxableIncome,
	}
	tipColumns = []string{
		core.FieldTotalBill, core.FieldTip, core.FieldSex, core.FieldSmoker,
		core.FieldDay, core.FieldTime, core.FieldSize,
	}
)

// TaxNumericFields lists the monetary columns of the tax dataset.
var TaxNumericFields = []string{
	core.FieldGrossSales, core.FieldNetSales, core.FieldGrossIncome,
	core.FieldTaxDue, core.FieldTotalTaxableIncome, core.FieldOSD40,
	core.FieldNetTaxableIncome,
}

// TipNumericFields lists the numeric columns of the tips dataset.
var TipNumericFields = []string{core.FieldTotalBill, core.FieldTip, core.FieldSize}

// rowBinder resolves required columns once and parses cells of one row,
// stopping at the first bad cell.
type rowBinder struct {
	cols map[string]int
	row  []string
	line int
	err  error
}

func columns(t *Table, required []string) (map[string]int, error) {
	idx := t.ColumnIndex()
	cols := make(map[string]int, len(required))
	var missing []string
	for _, c := range required {
		i, ok := idx[normalizeColumn(c)]
		if !ok {
			missing = append(missing, c)
			continue
		}
		cols[c] = i
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s: %w: %s", t.Name, ErrMissingColumn, strings.Join(missing, ", "))
	}
	return cols, nil
}

func (b *rowBinder) fail(col, val string, err error) {
	if b.err == nil {
		b.err = &RowError{Row: b.line, Column: col, Value: val, Err: err}
	}
}

func (b *rowBinder) raw(col string) string {
	i, ok := b.cols[col]
	if !ok || i >= len(b.row) {
		return ""
	}
	return strings.TrimSpace(b.row[i])
}

func (b *rowBinder) text(col string) string {
	v := b.raw(col)
	if v == "" {
		b.fail(col, v, errRequired)
	}
	return v
}

func (b *rowBinder) number(col string) float64 {
	v := b.raw(col)
	if v == "" {
		b.fail(col, v, errRequired)
		return 0
	}
	f, ok := parseNumber(v)
	if !ok {
		b.fail(col, v, errNotNumber)
		return 0
	}
	return f
}

// parseNumber accepts plain floats and, failing that, amounts with
// thousands separators or a decimal comma.
func parseNumber(v string) (float64, bool) {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f, !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	neg := strings.HasPrefix(v, "-")
	d, err := core.ParseAmount(strings.TrimPrefix(v, "-"))
	if err != nil {
		return 0, false
	}
	f := d.InexactFloat64()
	if neg {
		f = -f
	}
	return f, true
}

func (b *rowBinder) integer(col string) int {
	f := b.number(col)
	if f != math.Trunc(f) {
		b.fail(col, b.raw(col), errNotInt)
		return 0
	}
	return int(f)
}

func (b *rowBinder) date(col string) core.Date {
	v := b.raw(col)
	if v == "" {
		b.fail(col, v, errRequired)
		return core.Date{}
	}
	d, err := core.ParseDate(v)
	if err != nil {
		b.fail(col, v, err)
	}
	return d
}

// BindTax binds the tax/sales table. Every column is required and every
// row must parse; the first bad cell aborts the load.
func BindTax(t *Table) (*Dataset[core.TaxRecord], error) {
	cols, err := columns(t, taxColumns)
	if err != nil {
		return nil, err
	}
	records := make([]core.TaxRecord, 0, len(t.Rows))
	for i, row := range t.Rows {
		b := rowBinder{cols: cols, row: row, line: i + 2}
		rec := core.TaxRecord{
			Index:              i,
			ProjDate:           b.date(core.FieldProjDate),
			Country:            b.text(core.FieldCountry),
			Category:           b.text(core.FieldCategory),
			GrossSales:         b.number(core.FieldGrossSales),
			NetSales:           b.number(core.FieldNetSales),
			GrossIncome:        b.number(core.FieldGrossIncome),
			TaxDue:             b.number(core.FieldTaxDue),
			TotalTaxableIncome: b.number(core.FieldTotalTaxableIncome),
			OSD40:              b.number(core.FieldOSD40),
			NetTaxableIncome:   b.number(core.FieldNetTaxableIncome),
		}
		if b.err != nil {
			return nil, fmt.Errorf("%s: %w", t.Name, b.err)
		}
		records = append(records, rec)
	}
	return newDataset(t, records), nil
}

// BindTips binds the tips table. billdate is optional; when the column is
// present every row must carry a valid date.
func BindTips(t *Table) (*Dataset[core.TipRecord], error) {
	cols, err := columns(t, tipColumns)
	if err != nil {
		return nil, err
	}
	if i, ok := t.ColumnIndex()[normalizeColumn(core.FieldBillDate)]; ok {
		cols[core.FieldBillDate] = i
	}
	_, dated := cols[core.FieldBillDate]

	records := make([]core.TipRecord, 0, len(t.Rows))
	for i, row := range t.Rows {
		b := rowBinder{cols: cols, row: row, line: i + 2}
		rec := core.TipRecord{
			Index:     i,
			TotalBill: b.number(core.FieldTotalBill),
			Tip:       b.number(core.FieldTip),
			Sex:       b.text(core.FieldSex),
			Smoker:    b.text(core.FieldSmoker),
			Day:       b.text(core.FieldDay),
			Time:      b.text(core.FieldTime),
			Size:      b.integer(core.FieldSize),
		}
		if dated {
			rec.BillDate = b.date(core.FieldBillDate)
		}
		if b.err != nil {
			return nil, fmt.Errorf("%s: %w", t.Name, b.err)
		}
		records = append(records, rec)
	}
	return newDataset(t, records), nil
}
